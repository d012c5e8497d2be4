package boxsync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Logger defines the logging interface used by the core.
// It is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Settings keys read and written by the core.
const (
	SettingOrigin          = "origin"
	SettingAPIVersion      = "api_version"
	SettingPollingInterval = "polling_interval"
	SettingPollingEnabled  = "polling_enabled"
	SettingSessionToken    = "session_token"
	SettingConfigured      = "configured"
)

// Settings is a persistent key/value store with change notification.
//
// Get returns "" for unset keys. Watch registers fn for changes of key and
// returns a function that removes the watcher. Implementations call watchers
// after the write has been persisted.
type Settings interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Watch(key string, fn func(value string)) (cancel func())
}

// CacheStore is the durable store of services and tags.
// It is the source of truth for every consumer read.
type CacheStore interface {
	// GetService returns ErrServiceNotFound if the id is not cached.
	GetService(ctx context.Context, id string) (*Service, error)
	ListServices(ctx context.Context) ([]Service, error)
	// SetService inserts or replaces the record with the same id.
	SetService(ctx context.Context, svc *Service) error
	Clear(ctx context.Context) error

	ListTags(ctx context.Context) ([]Tag, error)
	SetTag(ctx context.Context, tag *Tag) error
	// DeleteTag returns ErrTagNotFound if the id is not stored.
	DeleteTag(ctx context.Context, id string) error
}

// Destination is where the transport sends requests.
//
// Origin is the URL base (https://{box name}:{port}); Host and Port are the
// network address actually dialled, which lets the box be reached by IP while
// TLS and virtual hosting still see its advertised name.
type Destination struct {
	Origin string
	Host   string
	Port   int
}

// Request is a single call to the box.
type Request struct {
	Method string
	Path   string

	// Body is JSON-encoded when non-nil.
	Body any

	// Binary asks for the binary media type instead of JSON.
	Binary bool

	// SessionToken authenticates the request when non-empty.
	SessionToken string
}

// Response is the raw answer of the box.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("%w: empty response", ErrOperationFailed)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Transport performs requests against the configured box.
//
// Implementations must honour ctx cancellation: the core cancels ctx when a
// request times out and discards whatever arrives afterwards.
// Non-success status codes are returned as *HTTPError.
type Transport interface {
	// Configure points the transport at a box. It returns once the new
	// destination is in effect.
	Configure(ctx context.Context, dest Destination) error
	Do(ctx context.Context, req Request) (*Response, error)
}

// DiscoveryAction is the kind of a discovery event.
type DiscoveryAction string

const (
	DiscoveryAdded   DiscoveryAction = "added"
	DiscoveryRemoved DiscoveryAction = "removed"
)

// DiscoveryEvent is one box advertisement change.
type DiscoveryEvent struct {
	Action DiscoveryAction
	Box    Box
}

// DiscoveryProvider watches the local network for box advertisements.
//
// Watch starts watching serviceType and returns immediately; onEvent is
// invoked for every change until ctx is cancelled.
type DiscoveryProvider interface {
	Watch(ctx context.Context, serviceType string, onEvent func(DiscoveryEvent)) error
}

// Settings helpers. Unset or malformed values fall back to the given default.

func settingInt(ctx context.Context, s Settings, key string, def int) int {
	v, err := s.Get(ctx, key)
	if err != nil || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func settingBool(ctx context.Context, s Settings, key string) bool {
	v, err := s.Get(ctx, key)
	if err != nil {
		return false
	}
	b, _ := strconv.ParseBool(v) //nolint:errcheck // malformed means false
	return b
}

func settingDuration(ctx context.Context, s Settings, key string, def time.Duration) time.Duration {
	v, err := s.Get(ctx, key)
	if err != nil || v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	// Bare integers are milliseconds.
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
