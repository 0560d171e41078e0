package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/config"
	"github.com/devpulse/server/internal/derive"
	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
)

// handleCosts is GET /api/costs?group=project|session|daily&project=&start=&end=&days=
// (spec.md §6, §4.3).
func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	if group == "" {
		group = "project"
	}
	start, end, err := s.costWindow(r)
	if err != nil {
		writeError(w, err)
		return
	}

	events, err := s.store.Aggregate(r.Context(), store.AggregateCosts, store.AggregateParams{
		ProjectName: r.URL.Query().Get("project"), Start: start, End: end,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	switch group {
	case "project":
		writeJSON(w, http.StatusOK, s.costsByProject(r, events))
	case "session":
		writeJSON(w, http.StatusOK, s.costsBySession(events))
	case "daily":
		writeJSON(w, http.StatusOK, costsByDay(s.cfg, events))
	default:
		writeError(w, apperr.Malformed("group must be project, session, or daily", nil))
	}
}

func (s *Server) costWindow(r *http.Request) (start, end int64, err error) {
	q := r.URL.Query()
	if startStr, endStr := q.Get("start"), q.Get("end"); startStr != "" || endStr != "" {
		start = queryInt64(startStr)
		end = queryInt64(endStr)
		if end == 0 {
			end = time.Now().UnixMilli()
		}
		return start, end, nil
	}
	days := queryInt(r, "days", 30)
	now := time.Now()
	return now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli(), now.UnixMilli(), nil
}

func (s *Server) costsByProject(r *http.Request, events []model.HookEvent) []derive.CostEstimate {
	lookup, err := s.sessionProjectLookup(r)
	if err != nil {
		return nil
	}
	byProject := make(map[string][]model.HookEvent)
	for _, e := range events {
		byProject[lookup[e.Key()]] = append(byProject[lookup[e.Key()]], e)
	}
	return estimateAndSort(s.cfg, byProject)
}

func (s *Server) costsBySession(events []model.HookEvent) []derive.CostEstimate {
	bySession := make(map[string][]model.HookEvent)
	for _, e := range events {
		bySession[e.Key().AgentID()] = append(bySession[e.Key().AgentID()], e)
	}
	return estimateAndSort(s.cfg, bySession)
}

func costsByDay(cfg *config.Config, events []model.HookEvent) []derive.CostEstimate {
	byDay := make(map[string][]model.HookEvent)
	for _, e := range events {
		day := time.UnixMilli(e.Timestamp).Format("2006-01-02")
		byDay[day] = append(byDay[day], e)
	}
	return estimateAndSort(cfg, byDay)
}

func estimateAndSort(cfg *config.Config, grouped map[string][]model.HookEvent) []derive.CostEstimate {
	out := make([]derive.CostEstimate, 0, len(grouped))
	for key, evs := range grouped {
		out = append(out, derive.EstimateCost(cfg, key, evs))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
