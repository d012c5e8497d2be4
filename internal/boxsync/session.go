package boxsync

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// sessionTokenParam is the query parameter the box appends to the
	// redirect URL after a successful login.
	sessionTokenParam = "session_token"

	// redirectURLParam tells the box where to send the user after login.
	redirectURLParam = "redirect_url"
)

// OutcomeKind tells the initialiser whether to carry on.
type OutcomeKind int

const (
	// OutcomeContinue means initialisation proceeds normally.
	OutcomeContinue OutcomeKind = iota

	// OutcomeRedirect means the caller must navigate to Outcome.URL and
	// stop initialising. It is not a failure.
	OutcomeRedirect
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRedirect:
		return "redirect"
	default:
		return "continue"
	}
}

// Outcome is the result of resolving the session from the current location.
type Outcome struct {
	Kind OutcomeKind
	URL  string
}

// Continue is the outcome that lets initialisation proceed.
func Continue() Outcome { return Outcome{Kind: OutcomeContinue} }

// Redirect is the outcome that stops initialisation in favour of u.
func Redirect(u string) Outcome { return Outcome{Kind: OutcomeRedirect, URL: u} }

// SessionManager holds the session token in Settings.
type SessionManager struct {
	settings Settings
	logger   Logger
}

// NewSessionManager creates a session manager backed by settings.
func NewSessionManager(settings Settings) *SessionManager {
	return &SessionManager{settings: settings, logger: noopLogger{}}
}

// SetLogger sets the logger for the session manager.
func (m *SessionManager) SetLogger(logger Logger) {
	m.logger = logger
}

// Token returns the stored session token, or "" when logged out.
func (m *SessionManager) Token(ctx context.Context) string {
	token, err := m.settings.Get(ctx, SettingSessionToken)
	if err != nil {
		m.logger.Warn("reading session token failed", "error", err)
		return ""
	}
	return token
}

// IsLoggedIn reports whether a non-empty session token is held.
func (m *SessionManager) IsLoggedIn(ctx context.Context) bool {
	return m.Token(ctx) != ""
}

// ResolveFromLocation captures a session token handed over in currentURL.
//
// When the URL carries a session_token query parameter the token is stored,
// the parameter is stripped and a Redirect to the stripped URL is returned.
// When the parameter is absent, or a session is already held, the outcome is
// Continue. A present but empty parameter is stripped without storing anything.
func (m *SessionManager) ResolveFromLocation(ctx context.Context, currentURL string) (Outcome, error) {
	if m.IsLoggedIn(ctx) {
		return Continue(), nil
	}

	u, err := url.Parse(currentURL)
	if err != nil {
		return Outcome{}, fmt.Errorf("parsing location: %w", err)
	}

	query := u.Query()
	if !query.Has(sessionTokenParam) {
		return Continue(), nil
	}

	token := query.Get(sessionTokenParam)
	if token != "" {
		if err := m.settings.Set(ctx, SettingSessionToken, token); err != nil {
			return Outcome{}, fmt.Errorf("storing session token: %w", err)
		}
		m.logger.Info("session token captured from location")
	}

	u.RawQuery = stripQueryParam(u.RawQuery, sessionTokenParam)
	return Redirect(u.String()), nil
}

// stripQueryParam removes every occurrence of name from a raw query string,
// keeping the remaining parameters in their original order and encoding.
func stripQueryParam(rawQuery, name string) string {
	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		key, _, _ := strings.Cut(part, "=")
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if key == name || part == "" {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "&")
}

// LoginURL returns the box login page that redirects back to currentURL.
func (m *SessionManager) LoginURL(currentURL, hubOrigin string) string {
	return BuildLoginURL(currentURL, hubOrigin)
}

// BuildLoginURL returns {hubOrigin}/?redirect_url={urlencoded currentURL}.
func BuildLoginURL(currentURL, hubOrigin string) string {
	return strings.TrimRight(hubOrigin, "/") + "/?" + redirectURLParam + "=" + url.QueryEscape(currentURL)
}

// Logout clears the stored token.
func (m *SessionManager) Logout(ctx context.Context) error {
	if err := m.settings.Delete(ctx, SettingSessionToken); err != nil {
		return fmt.Errorf("clearing session token: %w", err)
	}
	m.logger.Info("logged out")
	return nil
}

// TokenExpiry returns the exp claim of the session token when it is a JWT.
//
// The box signs the token and the client holds no key, so the claims are read
// without verification and used for display only. ok is false for opaque
// tokens or tokens without exp.
func (m *SessionManager) TokenExpiry(ctx context.Context) (exp time.Time, ok bool) {
	token := m.Token(ctx)
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
