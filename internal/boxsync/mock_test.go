package boxsync

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
)

// memSettings is an in-memory Settings with synchronous watchers.
type memSettings struct {
	mu       sync.Mutex
	values   map[string]string
	watchers map[string]map[int]func(string)
	nextID   int
	setErr   error
}

func newMemSettings() *memSettings {
	return &memSettings{
		values:   make(map[string]string),
		watchers: make(map[string]map[int]func(string)),
	}
}

func (m *memSettings) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memSettings) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	if m.setErr != nil {
		m.mu.Unlock()
		return m.setErr
	}
	m.values[key] = value
	fns := make([]func(string), 0, len(m.watchers[key]))
	for _, fn := range m.watchers[key] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
	return nil
}

func (m *memSettings) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	_, ok := m.values[key]
	delete(m.values, key)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	m.mu.Lock()
	fns := make([]func(string), 0, len(m.watchers[key]))
	for _, fn := range m.watchers[key] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn("")
	}
	return nil
}

func (m *memSettings) Watch(key string, fn func(string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	if m.watchers[key] == nil {
		m.watchers[key] = make(map[int]func(string))
	}
	m.watchers[key][id] = fn
	return func() {
		m.mu.Lock()
		delete(m.watchers[key], id)
		m.mu.Unlock()
	}
}

func (m *memSettings) value(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

// memCache is an in-memory CacheStore. Lists are sorted by id.
type memCache struct {
	mu       sync.Mutex
	services map[string]*Service
	tags     map[string]Tag
	sets     int
	listErr  error
	setErr   error
}

func newMemCache(services ...Service) *memCache {
	c := &memCache{
		services: make(map[string]*Service),
		tags:     make(map[string]Tag),
	}
	for i := range services {
		c.services[services[i].ID] = services[i].DeepCopy()
	}
	return c
}

func (c *memCache) GetService(_ context.Context, id string) (*Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	svc, ok := c.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return svc.DeepCopy(), nil
}

func (c *memCache) ListServices(_ context.Context) ([]Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listErr != nil {
		return nil, c.listErr
	}
	out := make([]Service, 0, len(c.services))
	for _, svc := range c.services {
		out = append(out, *svc.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *memCache) SetService(_ context.Context, svc *Service) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.setErr != nil {
		return c.setErr
	}
	c.sets++
	c.services[svc.ID] = svc.DeepCopy()
	return nil
}

func (c *memCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.services = make(map[string]*Service)
	c.tags = make(map[string]Tag)
	return nil
}

func (c *memCache) ListTags(_ context.Context) ([]Tag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Tag, 0, len(c.tags))
	for _, t := range c.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *memCache) SetTag(_ context.Context, tag *Tag) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tags[tag.ID] = *tag
	return nil
}

func (c *memCache) DeleteTag(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tags[id]; !ok {
		return ErrTagNotFound
	}
	delete(c.tags, id)
	return nil
}

func (c *memCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

// fakeTransport records requests and answers them through handle.
type fakeTransport struct {
	mu           sync.Mutex
	destinations []Destination
	requests     []Request
	configureErr error
	handle       func(ctx context.Context, req Request) (*Response, error)
}

func (f *fakeTransport) Configure(_ context.Context, dest Destination) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.configureErr != nil {
		return f.configureErr
	}
	f.destinations = append(f.destinations, dest)
	return nil
}

func (f *fakeTransport) Do(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handle := f.handle
	f.mu.Unlock()

	if handle == nil {
		return nil, &HTTPError{Status: http.StatusNotFound}
	}
	return handle(ctx, req)
}

func (f *fakeTransport) lastRequest() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return Request{}
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeTransport) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// jsonResponse builds a 200 response with v encoded as JSON.
func jsonResponse(v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return &Response{StatusCode: http.StatusOK, ContentType: "application/json", Body: body}
}

// recorder collects bus events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func watchBus(bus *Bus) *recorder {
	rec := &recorder{}
	bus.Subscribe(EventServiceChange, rec.handle)
	bus.Subscribe(EventServiceStateChange, rec.handle)
	return rec
}
