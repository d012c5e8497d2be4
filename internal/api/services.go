package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/boxlink/internal/audit"
	"github.com/nerrad567/boxlink/internal/boxsync"
)

// handleListServices returns the cached services.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.core.Services(r.Context())
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	if services == nil {
		services = []boxsync.Service{}
	}

	if tag := r.URL.Query().Get("tag"); tag != "" {
		filtered := make([]boxsync.Service, 0, len(services))
		for _, svc := range services {
			if svc.HasTag(tag) {
				filtered = append(filtered, svc)
			}
		}
		services = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"services": services,
		"count":    len(services),
	})
}

// handleGetService returns one cached service.
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.core.Service(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// handleGetServiceState fetches the live state of a service from the box.
func (s *Server) handleGetServiceState(w http.ResponseWriter, r *http.Request) {
	state, err := s.core.ServiceState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

// handleSetServiceState writes a state object to the box.
func (s *Server) handleSetServiceState(w http.ResponseWriter, r *http.Request) {
	var state boxsync.State
	if !decodeBody(w, r, &state) {
		return
	}
	if state == nil {
		writeBadRequest(w, "state must be a JSON object")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.core.SetServiceState(r.Context(), id, state); err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	s.record(r, audit.ActionSetState, audit.EntityService, id, map[string]any{"state": map[string]any(state)})
	w.WriteHeader(http.StatusAccepted)
}

type serviceTagsRequest struct {
	Tags []string `json:"tags"`
}

// handleSetServiceTags replaces the tag list of a cached service.
func (s *Server) handleSetServiceTags(w http.ResponseWriter, r *http.Request) {
	var req serviceTagsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}
	id := chi.URLParam(r, "id")
	if err := s.core.SetServiceTags(r.Context(), id, req.Tags); err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	s.record(r, audit.ActionSetServiceTags, audit.EntityService, id, map[string]any{"tags": req.Tags})
	svc, err := s.core.Service(r.Context(), id)
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}
