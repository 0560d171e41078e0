package api

import (
	"net/http"

	"github.com/devpulse/server/internal/model"
)

// handleTopology is GET /api/topology?project= (spec.md §6).
func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	nodes, err := s.store.ListAgentNodes(r.Context(), project)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.BuildTopology(project, nodes))
}
