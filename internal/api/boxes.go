package api

import (
	"net/http"

	"github.com/nerrad567/boxlink/internal/audit"
	"github.com/nerrad567/boxlink/internal/boxsync"
)

type boxesResponse struct {
	Boxes  []boxsync.Box `json:"boxes"`
	Active *int          `json:"active,omitempty"`
}

// handleListBoxes lists discovered boxes and the index of the active one.
func (s *Server) handleListBoxes(w http.ResponseWriter, _ *http.Request) {
	resp := boxesResponse{Boxes: s.core.Boxes()}
	if resp.Boxes == nil {
		resp.Boxes = []boxsync.Box{}
	}
	if _, idx, ok := s.core.ActiveBox(); ok {
		resp.Active = &idx
	}
	writeJSON(w, http.StatusOK, resp)
}

type selectBoxRequest struct {
	Index *int `json:"index"`
}

// handleSelectBox makes the box at the given index active.
func (s *Server) handleSelectBox(w http.ResponseWriter, r *http.Request) {
	var req selectBoxRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Index == nil {
		writeBadRequest(w, "index is required")
		return
	}
	if err := s.core.SelectBox(r.Context(), *req.Index); err != nil {
		s.writeCoreError(w, r, err)
		return
	}

	box, idx, _ := s.core.ActiveBox()
	s.record(r, audit.ActionSelectBox, audit.EntityBox, box.Name, map[string]any{"index": idx})
	writeJSON(w, http.StatusOK, map[string]any{
		"active": idx,
		"box":    box,
		"origin": s.core.Origin(r.Context()),
	})
}
