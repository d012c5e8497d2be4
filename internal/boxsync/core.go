package boxsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultRequestTimeout  = 5 * time.Second
	DefaultPollingInterval = 2 * time.Second
	DefaultAPIVersion      = 1
	DefaultServiceType     = "_https._tcp"
	DefaultHTTPSPort       = 443
)

// Options tunes the core.
type Options struct {
	// RequestTimeout bounds every transport call.
	RequestTimeout time.Duration

	// PollingInterval is used when the polling_interval setting is unset.
	PollingInterval time.Duration

	// APIVersion is used when the api_version setting is unset.
	APIVersion int

	// ServiceType is the advertisement watched for boxes.
	ServiceType string

	// StaticOrigin is registered as the only box when no discovery provider
	// is available. When empty the persisted origin is used instead.
	StaticOrigin string
}

// Deps are the collaborators the core is built from.
// Discovery and Logger are optional.
type Deps struct {
	Settings  Settings
	Cache     CacheStore
	Transport Transport
	Discovery DiscoveryProvider
	Logger    Logger
	Options   Options
}

// Core ties the components together.
//
// It is constructed once with New and handed to whatever needs it (API,
// CLI, mirrors). Every read of service data goes through the cache store.
//
// Thread Safety: all methods are safe for concurrent use.
type Core struct {
	settings  Settings
	cache     CacheStore
	transport Transport
	discovery DiscoveryProvider
	logger    Logger
	opts      Options

	bus        *Bus
	session    *SessionManager
	registry   *BoxRegistry
	scheduler  *Scheduler
	reconciler *Reconciler
	dispatcher *Dispatcher

	mu              sync.Mutex
	started         bool
	stopDiscovery   context.CancelFunc
	stopPollWatcher func()
}

// New creates a core from deps.
func New(deps Deps) (*Core, error) {
	if deps.Settings == nil {
		return nil, errors.New("boxsync: settings are required")
	}
	if deps.Cache == nil {
		return nil, errors.New("boxsync: cache store is required")
	}
	if deps.Transport == nil {
		return nil, errors.New("boxsync: transport is required")
	}

	opts := deps.Options
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.PollingInterval <= 0 {
		opts.PollingInterval = DefaultPollingInterval
	}
	if opts.APIVersion <= 0 {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.ServiceType == "" {
		opts.ServiceType = DefaultServiceType
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Core{
		settings:  deps.Settings,
		cache:     deps.Cache,
		transport: deps.Transport,
		discovery: deps.Discovery,
		logger:    logger,
		opts:      opts,
		bus:       NewBus(),
	}

	c.session = NewSessionManager(c.settings)
	c.bus.SetLogger(logger)
	c.session.SetLogger(logger)

	c.registry = NewBoxRegistry(c.settings, c.transport)
	c.registry.SetLogger(logger)

	c.reconciler = NewReconciler(c.cache, c.FetchServices, c.bus)
	c.reconciler.SetLogger(logger)

	c.dispatcher = NewDispatcher(c.request, c.apiVersion)
	c.dispatcher.SetLogger(logger)

	c.scheduler = NewScheduler(c.pollCycle, c.pollingInterval)
	c.scheduler.SetLogger(logger)

	return c, nil
}

// Session returns the session manager.
func (c *Core) Session() *SessionManager { return c.session }

// Registry returns the box registry.
func (c *Core) Registry() *BoxRegistry { return c.registry }

// Scheduler returns the polling scheduler.
func (c *Core) Scheduler() *Scheduler { return c.scheduler }

// Reconciler returns the state reconciler.
func (c *Core) Reconciler() *Reconciler { return c.reconciler }

// Init runs the startup sequence once.
//
// It resolves the session from currentURL and returns early with a Redirect
// outcome when a token was just captured. Otherwise it starts box discovery
// (or registers the static origin when no provider is available), then
// follows the polling_enabled setting.
func (c *Core) Init(ctx context.Context, currentURL string) (Outcome, error) {
	if currentURL != "" {
		outcome, err := c.session.ResolveFromLocation(ctx, currentURL)
		if err != nil {
			return Outcome{}, err
		}
		if outcome.Kind == OutcomeRedirect {
			c.logger.Info("redirecting after session capture", "url", outcome.URL)
			return outcome, nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return Continue(), nil
	}

	if err := c.startDiscoveryLocked(ctx); err != nil {
		return Outcome{}, err
	}

	c.stopPollWatcher = c.settings.Watch(SettingPollingEnabled, func(value string) {
		enabled, _ := strconv.ParseBool(value) //nolint:errcheck // malformed means off
		c.applyPolling(enabled)
	})
	c.applyPolling(settingBool(ctx, c.settings, SettingPollingEnabled))

	c.started = true
	c.logger.Info("core initialised", "logged_in", c.session.IsLoggedIn(ctx))
	return Continue(), nil
}

func (c *Core) startDiscoveryLocked(ctx context.Context) error {
	if c.discovery != nil {
		dctx, cancel := context.WithCancel(context.Background())
		err := c.discovery.Watch(dctx, c.opts.ServiceType, func(e DiscoveryEvent) {
			c.registry.OnDiscovered(dctx, e)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("starting discovery: %w", err)
		}
		c.stopDiscovery = cancel
		c.logger.Info("discovery started", "service_type", c.opts.ServiceType)
		return nil
	}

	origin := c.opts.StaticOrigin
	if origin == "" {
		stored, err := c.settings.Get(ctx, SettingOrigin)
		if err != nil {
			return fmt.Errorf("reading origin: %w", err)
		}
		origin = stored
	}
	if origin == "" {
		c.logger.Warn("no discovery provider and no origin configured")
		return nil
	}

	box, err := BoxFromOrigin(origin)
	if err != nil {
		return err
	}
	c.registry.OnDiscovered(ctx, DiscoveryEvent{Action: DiscoveryAdded, Box: box})
	return nil
}

// BoxFromOrigin builds a box from an https origin. The host doubles as the
// dialled address.
func BoxFromOrigin(origin string) (Box, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return Box{}, fmt.Errorf("parsing origin %q: %w", origin, err)
	}
	host := u.Hostname()
	if host == "" {
		return Box{}, fmt.Errorf("origin %q has no host", origin)
	}

	port := DefaultHTTPSPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Box{}, fmt.Errorf("origin %q has invalid port: %w", origin, err)
		}
	}
	return Box{Name: host, Port: port, Addresses: []string{host}}, nil
}

func (c *Core) applyPolling(enabled bool) {
	if enabled {
		c.scheduler.Enable()
		return
	}
	c.scheduler.Disable()
}

// pollCycle is the scheduler's cycle. Before a box is selected there is
// nothing to poll.
func (c *Core) pollCycle(ctx context.Context) error {
	if !c.registry.Configured(ctx) {
		c.logger.Debug("skipping poll, no box configured")
		return nil
	}
	_, err := c.reconciler.RunCycle(ctx)
	return err
}

// Clear stops polling and discovery, forgets every box, empties the cache
// and logs out. Init may be called again afterwards.
//
// A cycle in flight is cancelled and settles before anything is reset, so
// it cannot write fetched services back into the emptied cache.
func (c *Core) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.stopLocked()
	c.started = false
	c.mu.Unlock()

	c.scheduler.Stop()
	c.registry.Reset(ctx)

	var errs []error
	if err := c.cache.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clearing cache: %w", err))
	}
	if err := c.session.Logout(ctx); err != nil {
		errs = append(errs, err)
	}
	c.logger.Info("core cleared")
	return errors.Join(errs...)
}

// Close stops background work. A running polling cycle is cancelled and
// waited for.
func (c *Core) Close() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()

	c.scheduler.Close()
}

func (c *Core) stopLocked() {
	if c.stopDiscovery != nil {
		c.stopDiscovery()
		c.stopDiscovery = nil
	}
	if c.stopPollWatcher != nil {
		c.stopPollWatcher()
		c.stopPollWatcher = nil
	}
}

// request issues req against the active box with the session token attached.
//
// The call is bounded by the request timeout. When the deadline passes first
// the context is cancelled, ErrRequestTimeout is returned and whatever the
// transport produces later is dropped.
func (c *Core) request(ctx context.Context, req Request) (*Response, error) {
	if !c.registry.Configured(ctx) {
		return nil, ErrNotConfigured
	}
	req.SessionToken = c.session.Token(ctx)

	tctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.transport.Do(tctx, req)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		if c.timedOut(ctx, tctx) {
			return nil, fmt.Errorf("%w: %s %s", ErrRequestTimeout, req.Method, req.Path)
		}
		return r.resp, r.err
	case <-tctx.Done():
		if c.timedOut(ctx, tctx) {
			c.logger.Warn("request timed out", "method", req.Method, "path", req.Path, "timeout", c.opts.RequestTimeout)
			return nil, fmt.Errorf("%w: %s %s", ErrRequestTimeout, req.Method, req.Path)
		}
		return nil, ctx.Err()
	}
}

// timedOut reports whether tctx expired on its own deadline rather than
// through cancellation of the caller's ctx.
func (c *Core) timedOut(ctx, tctx context.Context) bool {
	return ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded)
}

func (c *Core) apiVersion() int {
	return settingInt(context.Background(), c.settings, SettingAPIVersion, c.opts.APIVersion)
}

func (c *Core) pollingInterval() time.Duration {
	return settingDuration(context.Background(), c.settings, SettingPollingInterval, c.opts.PollingInterval)
}

// Subscribe registers handler for events of type t.
func (c *Core) Subscribe(t EventType, handler Handler) SubscriptionID {
	return c.bus.Subscribe(t, handler)
}

// Unsubscribe removes a subscription.
func (c *Core) Unsubscribe(id SubscriptionID) {
	c.bus.Unsubscribe(id)
}

// Services returns every cached service.
func (c *Core) Services(ctx context.Context) ([]Service, error) {
	return c.cache.ListServices(ctx)
}

// Service returns one cached service.
func (c *Core) Service(ctx context.Context, id string) (*Service, error) {
	return c.cache.GetService(ctx, id)
}

// FetchServices returns the live service list of the box.
// The cache is not touched.
func (c *Core) FetchServices(ctx context.Context) ([]Service, error) {
	resp, err := c.request(ctx, Request{
		Method: http.MethodGet,
		Path:   apiPath(c.apiVersion(), "services"),
	})
	if err != nil {
		return nil, err
	}

	var services []Service
	if err := resp.DecodeJSON(&services); err != nil {
		return nil, err
	}
	return services, nil
}

// ServiceState reads the state of one service from the box.
func (c *Core) ServiceState(ctx context.Context, id string) (State, error) {
	resp, err := c.request(ctx, Request{
		Method: http.MethodGet,
		Path:   statePath(id),
	})
	if err != nil {
		return nil, err
	}

	var state State
	if err := resp.DecodeJSON(&state); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: null state for %s", ErrOperationFailed, id)
	}
	return state, nil
}

// SetServiceState writes state to one service on the box.
//
// On success the keys are merged into the cached record (which is created if
// missing) and a service-state-change is dispatched.
func (c *Core) SetServiceState(ctx context.Context, id string, state State) error {
	if id == "" {
		return ErrInvalidService
	}

	resp, err := c.request(ctx, Request{
		Method: http.MethodPut,
		Path:   statePath(id),
		Body:   state,
	})
	if err != nil {
		return fmt.Errorf("setting state of %s: %w", id, err)
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := resp.DecodeJSON(&result); err != nil {
		return fmt.Errorf("setting state of %s: %w", id, err)
	}
	if result.Result != resultSuccess {
		return fmt.Errorf("%w: state of %s returned %q", ErrOperationFailed, id, result.Result)
	}

	svc, err := c.cache.GetService(ctx, id)
	switch {
	case errors.Is(err, ErrServiceNotFound):
		svc = &Service{ID: id}
	case err != nil:
		return fmt.Errorf("reading cached %s: %w", id, err)
	}
	if svc.State == nil {
		svc.State = State{}
	}
	for k, v := range state {
		svc.State[k] = deepCopyValue(v)
	}
	return c.store(ctx, svc)
}

func statePath(id string) string {
	return "/services/" + url.PathEscape(id) + "/state"
}

// PerformGetOperation reads a channel of the box.
func (c *Core) PerformGetOperation(ctx context.Context, op Operation) (*GetResult, error) {
	return c.dispatcher.PerformGet(ctx, op)
}

// PerformSetOperation writes a channel of the box.
func (c *Core) PerformSetOperation(ctx context.Context, op Operation, value any) error {
	return c.dispatcher.PerformSet(ctx, op, value)
}

// Tags returns every stored tag.
func (c *Core) Tags(ctx context.Context) ([]Tag, error) {
	return c.cache.ListTags(ctx)
}

// SetTag creates or renames a tag.
func (c *Core) SetTag(ctx context.Context, tag Tag) error {
	if tag.ID == "" {
		return fmt.Errorf("%w: tag id is required", ErrInvalidTag)
	}
	if tag.Name == "" {
		tag.Name = tag.ID
	}
	return c.cache.SetTag(ctx, &tag)
}

// DeleteTag removes a tag and detaches it from every service carrying it.
func (c *Core) DeleteTag(ctx context.Context, id string) error {
	if err := c.cache.DeleteTag(ctx, id); err != nil {
		return err
	}

	services, err := c.cache.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("listing services: %w", err)
	}
	for i := range services {
		svc := &services[i]
		if !svc.HasTag(id) {
			continue
		}
		svc.Tags = slices.DeleteFunc(svc.Tags, func(t string) bool { return t == id })
		if err := c.store(ctx, svc); err != nil {
			return err
		}
	}
	return nil
}

// SetServiceTags replaces the tags of a cached service. Duplicate ids are
// collapsed keeping the first occurrence; unknown tag ids are rejected.
func (c *Core) SetServiceTags(ctx context.Context, id string, tagIDs []string) error {
	svc, err := c.cache.GetService(ctx, id)
	if err != nil {
		return err
	}

	known, err := c.cache.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("listing tags: %w", err)
	}
	exists := make(map[string]bool, len(known))
	for _, t := range known {
		exists[t.ID] = true
	}

	tags := make([]string, 0, len(tagIDs))
	for _, t := range tagIDs {
		if !exists[t] {
			return fmt.Errorf("%w: %s", ErrTagNotFound, t)
		}
		if !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	svc.Tags = tags
	return c.store(ctx, svc)
}

// store persists svc and announces it.
func (c *Core) store(ctx context.Context, svc *Service) error {
	if err := c.cache.SetService(ctx, svc); err != nil {
		return fmt.Errorf("persisting service %s: %w", svc.ID, err)
	}
	c.bus.Dispatch(Event{Type: EventServiceStateChange, Service: svc.DeepCopy()})
	return nil
}

// SetPollingEnabled persists the polling flag. The scheduler follows the
// setting through its watcher.
func (c *Core) SetPollingEnabled(ctx context.Context, enabled bool) error {
	if err := c.settings.Set(ctx, SettingPollingEnabled, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("persisting polling flag: %w", err)
	}
	return nil
}

// PollingEnabled reports the persisted polling flag.
func (c *Core) PollingEnabled(ctx context.Context) bool {
	return settingBool(ctx, c.settings, SettingPollingEnabled)
}

// SelectBox makes the discovered box at index active.
func (c *Core) SelectBox(ctx context.Context, index int) error {
	return c.registry.SelectBox(ctx, index)
}

// Boxes returns the discovered boxes.
func (c *Core) Boxes() []Box {
	return c.registry.Boxes()
}

// Configured reports whether a box is selected and the transport points at it.
func (c *Core) Configured(ctx context.Context) bool {
	return c.registry.Configured(ctx)
}

// Origin returns the persisted origin of the active box.
func (c *Core) Origin(ctx context.Context) string {
	origin, err := c.settings.Get(ctx, SettingOrigin)
	if err != nil {
		return ""
	}
	return origin
}

// LoginURL returns the login page of the active box that redirects back to
// currentURL. It fails when no origin is known yet.
func (c *Core) LoginURL(ctx context.Context, currentURL string) (string, error) {
	origin := c.Origin(ctx)
	if origin == "" {
		return "", ErrNotConfigured
	}
	return c.session.LoginURL(currentURL, origin), nil
}

// IsLoggedIn reports whether a session token is stored.
func (c *Core) IsLoggedIn(ctx context.Context) bool {
	return c.session.IsLoggedIn(ctx)
}

// TokenExpiry returns the expiry claimed by the session token, if any.
func (c *Core) TokenExpiry(ctx context.Context) (time.Time, bool) {
	return c.session.TokenExpiry(ctx)
}

// Logout forgets the session token. Cached data is kept.
func (c *Core) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// ActiveBox returns the selected box and its index.
func (c *Core) ActiveBox() (Box, int, bool) {
	return c.registry.Active()
}
