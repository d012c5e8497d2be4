package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/boxlink/internal/audit"
	"github.com/nerrad567/boxlink/internal/boxsync"
	"github.com/nerrad567/boxlink/internal/infrastructure/config"
	"github.com/nerrad567/boxlink/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Core is the part of boxsync.Core the API serves.
type Core interface {
	IsLoggedIn(ctx context.Context) bool
	TokenExpiry(ctx context.Context) (time.Time, bool)
	Logout(ctx context.Context) error
	LoginURL(ctx context.Context, currentURL string) (string, error)

	Boxes() []boxsync.Box
	ActiveBox() (boxsync.Box, int, bool)
	SelectBox(ctx context.Context, index int) error
	Configured(ctx context.Context) bool
	Origin(ctx context.Context) string

	Services(ctx context.Context) ([]boxsync.Service, error)
	Service(ctx context.Context, id string) (*boxsync.Service, error)
	ServiceState(ctx context.Context, id string) (boxsync.State, error)
	SetServiceState(ctx context.Context, id string, state boxsync.State) error
	SetServiceTags(ctx context.Context, id string, tagIDs []string) error

	Tags(ctx context.Context) ([]boxsync.Tag, error)
	SetTag(ctx context.Context, tag boxsync.Tag) error
	DeleteTag(ctx context.Context, id string) error

	PerformGetOperation(ctx context.Context, op boxsync.Operation) (*boxsync.GetResult, error)
	PerformSetOperation(ctx context.Context, op boxsync.Operation, value any) error

	PollingEnabled(ctx context.Context) bool
	SetPollingEnabled(ctx context.Context, enabled bool) error

	Subscribe(t boxsync.EventType, handler boxsync.Handler) boxsync.SubscriptionID
	Unsubscribe(id boxsync.SubscriptionID)

	Clear(ctx context.Context) error
}

// HealthChecker is implemented by optional components reported on /health
// and /metrics.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsProvider reports connection pool statistics.
type StatsProvider interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Core    Core
	DB      StatsProvider
	Version string

	// Components reports optional dependencies by name, e.g. "database",
	// "mqtt", "influxdb".
	Components map[string]HealthChecker

	// Audit records writes and serves /audit. Nil disables both.
	Audit audit.Repository
}

// Server is the local HTTP API server.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	core       Core
	db         StatsProvider
	version    string
	components map[string]HealthChecker
	auditLog   audit.Repository
	recorder   *audit.Recorder
	startTime  time.Time

	hub *Hub

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	relay    []boxsync.SubscriptionID
}

// New creates a server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Core == nil {
		return nil, fmt.Errorf("core is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      withWSDefaults(deps.WS),
		logger:     deps.Logger,
		core:       deps.Core,
		db:         deps.DB,
		version:    deps.Version,
		components: deps.Components,
		auditLog:   deps.Audit,
		startTime:  time.Now(),
	}
	if deps.Audit != nil {
		s.recorder = audit.NewRecorder(deps.Audit)
		s.recorder.SetLogger(deps.Logger)
	}
	s.hub = NewHub(s.wsCfg, deps.Logger,
		string(boxsync.EventServiceChange),
		string(boxsync.EventServiceStateChange),
	)
	s.hub.SetSnapshot(s.snapshot)
	return s, nil
}

func withWSDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10
	}
	return cfg
}

// snapshot gives a new "service-change" subscriber the cached services.
func (s *Server) snapshot(channel string) any {
	if channel != string(boxsync.EventServiceChange) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	services, err := s.core.Services(ctx)
	if err != nil {
		s.logger.Debug("websocket snapshot failed", "error", err)
		return nil
	}
	return services
}

// Handler returns the router. Start serves the same handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener, relays core events to WebSocket clients and
// serves in the background. Binding errors are returned.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	s.relay = s.relayEvents()

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	srv := s.server
	go func() {
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops relaying events and shuts the server down, waiting up to ten
// seconds for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	relay := s.relay
	cancel := s.cancel
	s.server, s.relay, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	for _, id := range relay {
		s.core.Unsubscribe(id)
	}
	if cancel != nil {
		cancel()
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancelShutdown()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// relayEvents forwards core events to WebSocket subscribers of the channel
// of the same name.
func (s *Server) relayEvents() []boxsync.SubscriptionID {
	return []boxsync.SubscriptionID{
		s.core.Subscribe(boxsync.EventServiceChange, func(e boxsync.Event) {
			s.hub.Broadcast(string(e.Type), e.Services)
		}),
		s.core.Subscribe(boxsync.EventServiceStateChange, func(e boxsync.Event) {
			s.hub.Broadcast(string(e.Type), e.Service)
		}),
	}
}
