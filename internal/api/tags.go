package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/boxlink/internal/audit"
	"github.com/nerrad567/boxlink/internal/boxsync"
)

// handleListTags returns every cached tag.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.core.Tags(r.Context())
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	if tags == nil {
		tags = []boxsync.Tag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

type tagRequest struct {
	Name string `json:"name"`
}

// handlePutTag creates or renames the tag in the path.
func (s *Server) handlePutTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tag := boxsync.Tag{ID: chi.URLParam(r, "id"), Name: req.Name}
	if err := s.core.SetTag(r.Context(), tag); err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	s.record(r, audit.ActionSetTag, audit.EntityTag, tag.ID, map[string]any{"name": tag.Name})
	writeJSON(w, http.StatusOK, tag)
}

// handleDeleteTag removes a tag and strips it from every service.
func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.core.DeleteTag(r.Context(), id); err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	s.record(r, audit.ActionDeleteTag, audit.EntityTag, id, nil)
	w.WriteHeader(http.StatusNoContent)
}
