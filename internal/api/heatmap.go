package api

import (
	"net/http"
	"time"

	"github.com/devpulse/server/internal/derive"
	"github.com/devpulse/server/internal/store"
)

// handleHeatmap is GET /api/analytics/heatmap?days=&project= (spec.md §6).
func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	days := clampLimit(queryInt(r, "days", 30), 30, 365)
	now := time.Now()

	events, err := s.store.Aggregate(r.Context(), store.AggregateHeatmap, store.AggregateParams{
		ProjectName: r.URL.Query().Get("project"),
		Start:       now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli(),
		End:         now.UnixMilli(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, derive.BuildHeatmap(events, time.Local))
}
