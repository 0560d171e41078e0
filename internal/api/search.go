package api

import (
	"net/http"

	"github.com/devpulse/server/internal/store"
)

// handleSearch is GET /api/search?q=&type=events|sessions|devlogs|all&limit=
// (spec.md §6, §8 "search with empty q returns empty result sets, not an
// error").
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	scope := store.SearchScope(r.URL.Query().Get("type"))
	if scope == "" {
		scope = store.ScopeAll
	}
	limit := clampLimit(queryInt(r, "limit", 20), 20, 100)

	result, err := s.store.Search(r.Context(), q, scope, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
