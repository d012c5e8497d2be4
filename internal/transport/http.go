package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/boxlink/internal/boxsync"
)

const (
	// DefaultBinaryMediaType is the only binary type the box serves.
	DefaultBinaryMediaType = "image/jpeg"

	jsonMediaType = "application/json"

	// maxResponseBytes bounds the body read from the box. Snapshots are the
	// largest payloads.
	maxResponseBytes = 32 << 20

	// maxErrorBody is how much of an error body is kept in HTTPError.
	maxErrorBody = 512

	dialTimeout         = 5 * time.Second
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 5 * time.Second

	sessionCookie   = "session_token"
	requestIDHeader = "X-Request-ID"
)

// Config contains transport options.
type Config struct {
	// BinaryMediaType is sent as Accept for binary requests.
	BinaryMediaType string

	// InsecureSkipVerify disables certificate verification. Boxes usually
	// present self-signed certificates.
	InsecureSkipVerify bool

	// RootCAs verifies the box certificate when set.
	RootCAs *x509.CertPool
}

// Logger is the logging interface used by the transport.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// HTTPTransport implements boxsync.Transport.
//
// Thread Safety: all methods are safe for concurrent use. Configure swaps the
// destination atomically; requests already running finish against the old one.
type HTTPTransport struct {
	cfg    Config
	logger Logger

	mu     sync.RWMutex
	dest   boxsync.Destination
	origin *url.URL
	client *http.Client
}

var _ boxsync.Transport = (*HTTPTransport)(nil)

// New creates an unconfigured transport.
func New(cfg Config) *HTTPTransport {
	if cfg.BinaryMediaType == "" {
		cfg.BinaryMediaType = DefaultBinaryMediaType
	}
	return &HTTPTransport{cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the transport.
func (t *HTTPTransport) SetLogger(logger Logger) {
	t.logger = logger
}

// Configure points the transport at dest.
func (t *HTTPTransport) Configure(_ context.Context, dest boxsync.Destination) error {
	origin, err := url.Parse(dest.Origin)
	if err != nil {
		return fmt.Errorf("parsing origin: %w", err)
	}
	if origin.Scheme != "https" && origin.Scheme != "http" {
		return fmt.Errorf("origin %q: unsupported scheme", dest.Origin)
	}
	if dest.Host == "" || dest.Port <= 0 {
		return fmt.Errorf("destination %q has no dialable address", dest.Origin)
	}

	client := t.newClient(origin.Hostname(), net.JoinHostPort(dest.Host, strconv.Itoa(dest.Port)))

	t.mu.Lock()
	old := t.client
	t.dest = dest
	t.origin = origin
	t.client = client
	t.mu.Unlock()

	if old != nil {
		old.CloseIdleConnections()
	}
	return nil
}

// Destination returns the configured destination.
func (t *HTTPTransport) Destination() (boxsync.Destination, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dest, t.client != nil
}

// newClient builds a client that dials addr whatever host a URL names.
func (t *HTTPTransport) newClient(serverName, addr string) *http.Client {
	dialer := &net.Dialer{Timeout: dialTimeout}

	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
			TLSClientConfig: &tls.Config{
				ServerName:         serverName,
				InsecureSkipVerify: t.cfg.InsecureSkipVerify, //nolint:gosec // boxes use self-signed certificates
				RootCAs:            t.cfg.RootCAs,
				MinVersion:         tls.VersionTLS12,
			},
			TLSHandshakeTimeout: tlsHandshakeTimeout,
			IdleConnTimeout:     idleConnTimeout,
			MaxIdleConnsPerHost: 4,
		},
		// The box answers directly; a redirect means a misconfigured origin.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Do sends req to the configured box.
func (t *HTTPTransport) Do(ctx context.Context, req boxsync.Request) (*boxsync.Response, error) {
	t.mu.RLock()
	client, origin := t.client, t.origin
	t.mu.RUnlock()
	if client == nil {
		return nil, boxsync.ErrNotConfigured
	}

	httpReq, err := t.buildRequest(ctx, origin, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	t.logger.Debug("box request",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"request_id", httpReq.Header.Get(requestIDHeader),
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &boxsync.HTTPError{Status: resp.StatusCode, Body: errorBody(body)}
	}

	return &boxsync.Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (t *HTTPTransport) buildRequest(ctx context.Context, origin *url.URL, req boxsync.Request) (*http.Request, error) {
	target, err := origin.Parse(req.Path)
	if err != nil {
		return nil, fmt.Errorf("building url for %q: %w", req.Path, err)
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", jsonMediaType)
	}
	if req.Binary {
		httpReq.Header.Set("Accept", t.cfg.BinaryMediaType)
	} else {
		httpReq.Header.Set("Accept", jsonMediaType)
	}
	httpReq.Header.Set(requestIDHeader, uuid.NewString())

	if req.SessionToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.SessionToken)
		httpReq.AddCookie(&http.Cookie{Name: sessionCookie, Value: req.SessionToken})
	}
	return httpReq, nil
}

func errorBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
