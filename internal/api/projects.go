package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/devpulse/server/internal/derive"
	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
)

// handleListProjects is GET /api/projects (spec.md §6).
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	for i := range projects {
		if err := s.applyHealth(r, &projects[i]); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, projects)
}

// handleGetProject is GET /api/projects/:name (spec.md §6).
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	project, err := s.store.GetProjectByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.applyHealth(r, project); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// applyHealth recomputes p's health score from its rolling 24h event and
// failure counters (spec.md §4.3). Health is derived at read time rather
// than persisted, since it depends on a moving 24h window.
func (s *Server) applyHealth(r *http.Request, p *model.Project) error {
	now := time.Now()
	start, end := now.Add(-24*time.Hour).UnixMilli(), now.UnixMilli()
	events, err := s.store.Aggregate(r.Context(), store.AggregateMetrics, store.AggregateParams{
		ProjectName: p.Name, Start: start, End: end,
	})
	if err != nil {
		return err
	}

	failures := 0
	for _, e := range events {
		if e.HookEventType == model.PostToolUseFailure {
			failures++
		}
	}

	score, components := derive.HealthScore(p.TestStatus, len(events), failures)
	p.HealthTrend = derive.HealthTrend(score, p.Health)
	p.Health = score
	p.HealthComponents = componentsJSON(components)
	return nil
}
