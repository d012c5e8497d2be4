package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/boxlink/internal/audit"
)

// sessionResponse describes the login state of the box session.
type sessionResponse struct {
	LoggedIn   bool       `json:"logged_in"`
	Configured bool       `json:"configured"`
	Origin     string     `json:"origin,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// handleGetSession reports whether a session token is held and when it expires.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := sessionResponse{
		LoggedIn:   s.core.IsLoggedIn(ctx),
		Configured: s.core.Configured(ctx),
		Origin:     s.core.Origin(ctx),
	}
	if exp, ok := s.core.TokenExpiry(ctx); ok {
		resp.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLoginURL returns the box login page that redirects back to ?url=.
func (s *Server) handleLoginURL(w http.ResponseWriter, r *http.Request) {
	current := r.URL.Query().Get("url")
	if current == "" {
		writeBadRequest(w, "url query parameter is required")
		return
	}
	loginURL, err := s.core.LoginURL(r.Context(), current)
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"login_url": loginURL})
}

// handleLogout forgets the session token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.core.Logout(r.Context()); err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	s.record(r, audit.ActionLogout, audit.EntitySession, "", nil)
	w.WriteHeader(http.StatusNoContent)
}
