package api

import "net/http"

// handleListDevLogs is GET /api/devlogs?project=&limit= (spec.md §6).
func (s *Server) handleListDevLogs(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	limit := clampLimit(queryInt(r, "limit", 50), 50, 500)

	logs, err := s.store.ListDevLogs(r.Context(), project, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
