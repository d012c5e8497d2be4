package api

import (
	"net/http"

	"github.com/nerrad567/boxlink/internal/audit"
)

type pollingBody struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleGetPolling(w http.ResponseWriter, r *http.Request) {
	enabled := s.core.PollingEnabled(r.Context())
	writeJSON(w, http.StatusOK, pollingBody{Enabled: &enabled})
}

// handleSetPolling stores the polling flag; the scheduler follows it at once.
func (s *Server) handleSetPolling(w http.ResponseWriter, r *http.Request) {
	var req pollingBody
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}
	if err := s.core.SetPollingEnabled(r.Context(), *req.Enabled); err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	s.record(r, audit.ActionSetPolling, audit.EntitySystem, "polling", map[string]any{"enabled": *req.Enabled})
	writeJSON(w, http.StatusOK, req)
}
