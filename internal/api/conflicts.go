package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListConflicts is GET /api/conflicts?window= (spec.md §6). window is
// accepted for API compatibility but the active set already reflects the
// Conflict Detector's configured window; only dismissed-state filtering is
// applied here.
func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := s.store.ListConflicts(r.Context(), false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflicts)
}

// handleDismissConflict is POST /api/conflicts/:id/dismiss (spec.md §6).
func (s *Server) handleDismissConflict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DismissConflict(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
