package api

import (
	"net/http"

	"github.com/nerrad567/boxlink/internal/audit"
)

// handleClear stops polling and discovery, empties the cache and logs out.
// The WebSocket relay stays registered.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.core.Clear(r.Context()); err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	s.record(r, audit.ActionClear, audit.EntitySystem, "", nil)
	s.logger.Info("local state cleared", "request_id", requestID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
