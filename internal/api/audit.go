package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/boxlink/internal/audit"
)

// record adds an audit entry for a write made through the API.
func (s *Server) record(r *http.Request, action, entityType, entityID string, details map[string]any) {
	s.recorder.Record(r.Context(), audit.SourceAPI, action, entityType, entityID, details)
}

// handleListAudit returns audit entries, newest first.
//
// Query parameters: action, entity_type, entity_id, source, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Source:     q.Get("source"),
	}

	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
	}

	result, err := s.auditLog.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to list audit logs")
		s.logger.Error("listing audit logs", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
