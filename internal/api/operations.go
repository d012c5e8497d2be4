package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nerrad567/boxlink/internal/audit"
	"github.com/nerrad567/boxlink/internal/boxsync"
)

type operationRequest struct {
	Operation boxsync.Operation `json:"operation"`
	Value     json.RawMessage   `json:"value,omitempty"`
}

func decodeOperation(w http.ResponseWriter, r *http.Request) (operationRequest, bool) {
	var req operationRequest
	if !decodeBody(w, r, &req) {
		return req, false
	}
	if req.Operation.ID == "" {
		writeBadRequest(w, "operation.id is required")
		return req, false
	}
	return req, true
}

// handlePerformGet reads a channel of the box. Binary results are written
// as-is with the content type the box reported.
func (s *Server) handlePerformGet(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOperation(w, r)
	if !ok {
		return
	}
	result, err := s.core.PerformGetOperation(r.Context(), req.Operation)
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}

	if result.IsBinary() {
		contentType := result.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		w.Write(result.Data) //nolint:errcheck // client may have gone away
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": result.Value})
}

// handlePerformSet writes a value to a channel of the box.
func (s *Server) handlePerformSet(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOperation(w, r)
	if !ok {
		return
	}

	var value any
	if len(req.Value) > 0 {
		if err := json.Unmarshal(req.Value, &value); err != nil {
			writeBadRequest(w, "invalid value: "+err.Error())
			return
		}
	}

	if err := s.core.PerformSetOperation(r.Context(), req.Operation, value); err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	s.record(r, audit.ActionPerformSet, audit.EntityChannel, req.Operation.ID, map[string]any{"value": value})
	w.WriteHeader(http.StatusNoContent)
}
