package api

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/boxlink/internal/boxsync"
)

// fakeCore is an in-memory Core. Errors set on it are returned by the
// matching method.
type fakeCore struct {
	mu sync.Mutex

	loggedIn bool
	expiry   time.Time
	origin   string
	boxes    []boxsync.Box
	active   int
	polling  bool
	services map[string]*boxsync.Service
	tags     map[string]boxsync.Tag

	stateErr  error
	getResult *boxsync.GetResult
	opErr     error

	setStates []boxsync.State
	setValues []any
	cleared   bool

	subs   map[boxsync.SubscriptionID]subscription
	nextID boxsync.SubscriptionID
}

type subscription struct {
	typ     boxsync.EventType
	handler boxsync.Handler
}

func newFakeCore() *fakeCore {
	return &fakeCore{
		origin:   "https://box.local:443",
		active:   -1,
		services: make(map[string]*boxsync.Service),
		tags:     make(map[string]boxsync.Tag),
		subs:     make(map[boxsync.SubscriptionID]subscription),
	}
}

func (f *fakeCore) IsLoggedIn(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeCore) TokenExpiry(context.Context) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expiry, !f.expiry.IsZero()
}

func (f *fakeCore) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedIn = false
	f.expiry = time.Time{}
	return nil
}

func (f *fakeCore) LoginURL(ctx context.Context, currentURL string) (string, error) {
	origin := f.Origin(ctx)
	if origin == "" {
		return "", boxsync.ErrNotConfigured
	}
	return origin + "/login?redirect=" + currentURL, nil
}

func (f *fakeCore) Boxes() []boxsync.Box {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]boxsync.Box(nil), f.boxes...)
}

func (f *fakeCore) ActiveBox() (boxsync.Box, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active < 0 || f.active >= len(f.boxes) {
		return boxsync.Box{}, -1, false
	}
	return f.boxes[f.active], f.active, true
}

func (f *fakeCore) SelectBox(_ context.Context, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.boxes) {
		return boxsync.ErrBoxIndexOutOfRange
	}
	f.active = index
	f.origin = f.boxes[index].Origin()
	return nil
}

func (f *fakeCore) Configured(ctx context.Context) bool {
	return f.Origin(ctx) != ""
}

func (f *fakeCore) Origin(context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.origin
}

func (f *fakeCore) Services(context.Context) ([]boxsync.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]boxsync.Service, 0, len(f.services))
	for _, svc := range f.services {
		out = append(out, *svc.DeepCopy())
	}
	return out, nil
}

func (f *fakeCore) Service(_ context.Context, id string) (*boxsync.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	svc, ok := f.services[id]
	if !ok {
		return nil, boxsync.ErrServiceNotFound
	}
	return svc.DeepCopy(), nil
}

func (f *fakeCore) ServiceState(_ context.Context, id string) (boxsync.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	svc, ok := f.services[id]
	if !ok {
		return nil, boxsync.ErrServiceNotFound
	}
	return svc.State, nil
}

func (f *fakeCore) SetServiceState(_ context.Context, id string, state boxsync.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return f.stateErr
	}
	if _, ok := f.services[id]; !ok {
		return boxsync.ErrServiceNotFound
	}
	f.setStates = append(f.setStates, state)
	return nil
}

func (f *fakeCore) SetServiceTags(_ context.Context, id string, tagIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	svc, ok := f.services[id]
	if !ok {
		return boxsync.ErrServiceNotFound
	}
	for _, t := range tagIDs {
		if _, ok := f.tags[t]; !ok {
			return boxsync.ErrTagNotFound
		}
	}
	svc.Tags = tagIDs
	return nil
}

func (f *fakeCore) Tags(context.Context) ([]boxsync.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]boxsync.Tag, 0, len(f.tags))
	for _, t := range f.tags {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeCore) SetTag(_ context.Context, tag boxsync.Tag) error {
	if tag.ID == "" || tag.Name == "" {
		return boxsync.ErrInvalidTag
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[tag.ID] = tag
	return nil
}

func (f *fakeCore) DeleteTag(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tags[id]; !ok {
		return boxsync.ErrTagNotFound
	}
	delete(f.tags, id)
	return nil
}

func (f *fakeCore) PerformGetOperation(context.Context, boxsync.Operation) (*boxsync.GetResult, error) {
	if f.opErr != nil {
		return nil, f.opErr
	}
	return f.getResult, nil
}

func (f *fakeCore) PerformSetOperation(_ context.Context, _ boxsync.Operation, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opErr != nil {
		return f.opErr
	}
	f.setValues = append(f.setValues, value)
	return nil
}

func (f *fakeCore) PollingEnabled(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polling
}

func (f *fakeCore) SetPollingEnabled(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polling = enabled
	return nil
}

func (f *fakeCore) Subscribe(t boxsync.EventType, handler boxsync.Handler) boxsync.SubscriptionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.subs[f.nextID] = subscription{typ: t, handler: handler}
	return f.nextID
}

func (f *fakeCore) Unsubscribe(id boxsync.SubscriptionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

// emit delivers e to subscribers of its type, synchronously.
func (f *fakeCore) emit(e boxsync.Event) {
	f.mu.Lock()
	var handlers []boxsync.Handler
	for _, s := range f.subs {
		if s.typ == e.Type {
			handlers = append(handlers, s.handler)
		}
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(e)
	}
}

func (f *fakeCore) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeCore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	f.loggedIn = false
	f.services = make(map[string]*boxsync.Service)
	return nil
}

func (f *fakeCore) addService(svc boxsync.Service) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[svc.ID] = &svc
}
