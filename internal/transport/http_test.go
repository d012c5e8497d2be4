package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/nerrad567/boxlink/internal/boxsync"
)

// newBox starts a TLS test server and returns a transport configured to reach
// it under the name box.local.
func newBox(t *testing.T, handler http.HandlerFunc) *HTTPTransport {
	t.Helper()

	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split listener address: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	tr := New(Config{InsecureSkipVerify: true})
	err = tr.Configure(context.Background(), boxsync.Destination{
		Origin: "https://box.local:" + portStr,
		Host:   host,
		Port:   port,
	})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	return tr
}

func TestHTTPTransport_NotConfigured(t *testing.T) {
	tr := New(Config{})
	_, err := tr.Do(context.Background(), boxsync.Request{Method: http.MethodGet, Path: "/api/v1/services"})
	if !errors.Is(err, boxsync.ErrNotConfigured) {
		t.Errorf("Do() error = %v, want ErrNotConfigured", err)
	}
	if _, ok := tr.Destination(); ok {
		t.Error("Destination() reported configured")
	}
}

func TestHTTPTransport_Configure_Invalid(t *testing.T) {
	tests := []struct {
		name string
		dest boxsync.Destination
	}{
		{"bad scheme", boxsync.Destination{Origin: "ftp://box.local", Host: "10.0.0.2", Port: 21}},
		{"no host", boxsync.Destination{Origin: "https://box.local", Port: 443}},
		{"no port", boxsync.Destination{Origin: "https://box.local", Host: "10.0.0.2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := New(Config{}).Configure(context.Background(), tt.dest); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHTTPTransport_DialsAddressWithBoxName(t *testing.T) {
	var gotHost, gotSNI string
	tr := newBox(t, func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotSNI = r.TLS.ServerName
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[]`) //nolint:errcheck // test server
	})

	if _, err := tr.Do(context.Background(), boxsync.Request{Method: http.MethodGet, Path: "/api/v1/services"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !strings.HasPrefix(gotHost, "box.local:") {
		t.Errorf("Host = %q, want box.local", gotHost)
	}
	if gotSNI != "box.local" {
		t.Errorf("SNI = %q, want box.local", gotSNI)
	}
}

func TestHTTPTransport_Headers(t *testing.T) {
	var got *http.Request
	var body string
	tr := newBox(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		io.WriteString(w, `{"result":"success"}`) //nolint:errcheck // test server
	})

	resp, err := tr.Do(context.Background(), boxsync.Request{
		Method:       http.MethodPut,
		Path:         "/api/v1/channels/set",
		Body:         [][]map[string]any{{{"id": "x"}, {"OnOff": true}}},
		SessionToken: "tok123",
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(resp.Body) != `{"result":"success"}` {
		t.Errorf("Body = %s", resp.Body)
	}

	if got.Method != http.MethodPut || got.URL.Path != "/api/v1/channels/set" {
		t.Errorf("request = %s %s", got.Method, got.URL.Path)
	}
	if body != `[[{"id":"x"},{"OnOff":true}]]` {
		t.Errorf("body = %s", body)
	}
	if h := got.Header.Get("Authorization"); h != "Bearer tok123" {
		t.Errorf("Authorization = %q", h)
	}
	if c, err := got.Cookie("session_token"); err != nil || c.Value != "tok123" {
		t.Errorf("session_token cookie = %v, %v", c, err)
	}
	if got.Header.Get("Content-Type") != "application/json" || got.Header.Get("Accept") != "application/json" {
		t.Errorf("content negotiation headers = %v", got.Header)
	}
	if got.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing")
	}
}

func TestHTTPTransport_NoTokenNoAuth(t *testing.T) {
	var got *http.Request
	tr := newBox(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		io.WriteString(w, `{}`) //nolint:errcheck // test server
	})

	if _, err := tr.Do(context.Background(), boxsync.Request{Path: "/x"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got.Header.Get("Authorization") != "" || len(got.Cookies()) != 0 {
		t.Error("credentials sent without a session")
	}
	if got.Method != http.MethodGet {
		t.Errorf("Method = %s, want GET default", got.Method)
	}
}

func TestHTTPTransport_Binary(t *testing.T) {
	var accept string
	tr := newBox(t, func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xff, 0xd8, 0xff}) //nolint:errcheck // test server
	})

	resp, err := tr.Do(context.Background(), boxsync.Request{Method: http.MethodPut, Path: "/api/v1/channels/get", Binary: true})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if accept != DefaultBinaryMediaType {
		t.Errorf("Accept = %q", accept)
	}
	if resp.ContentType != "image/jpeg" || len(resp.Body) != 3 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHTTPTransport_HTTPError(t *testing.T) {
	tr := newBox(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session expired", http.StatusUnauthorized)
	})

	_, err := tr.Do(context.Background(), boxsync.Request{Path: "/api/v1/services"})
	var httpErr *boxsync.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Do() error = %v, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusUnauthorized || httpErr.Body != "session expired" {
		t.Errorf("HTTPError = %+v", httpErr)
	}
}

func TestHTTPTransport_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	tr := newBox(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Do(ctx, boxsync.Request{Path: "/slow"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestErrorBody(t *testing.T) {
	long := strings.Repeat("x", 2*maxErrorBody)
	if got := errorBody([]byte(long)); len(got) != maxErrorBody {
		t.Errorf("len(errorBody) = %d, want %d", len(got), maxErrorBody)
	}
	if got := errorBody([]byte("  oops\n")); got != "oops" {
		t.Errorf("errorBody = %q", got)
	}
}
