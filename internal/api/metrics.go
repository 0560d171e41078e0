package api

import (
	"net/http"
	"time"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/derive"
	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
)

// handleMetrics is GET /api/metrics?group=session|project&project=&start=&end=
// (spec.md §6, §4.3, seed test 2: tool_success_rate).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	if group == "" {
		group = "session"
	}

	q := r.URL.Query()
	end := time.Now().UnixMilli()
	if v := queryInt64(q.Get("end")); v != 0 {
		end = v
	}
	start := queryInt64(q.Get("start"))

	sessions, err := s.store.ListSessions(r.Context(), q.Get("project"), 0)
	if err != nil {
		writeError(w, err)
		return
	}

	var sessionMetrics []derive.SessionMetrics
	var durations []float64
	for _, sess := range sessions {
		events, err := s.store.ListEvents(r.Context(), store.EventFilter{
			SourceApp: sess.SourceApp, SessionID: sess.SessionID, Since: start, Before: end,
		}, 100000)
		if err != nil {
			writeError(w, err)
			return
		}
		reverseEvents(events)
		sm := derive.SessionMetricsFromEvents(sess.SourceApp, sess.SessionID, sess.StartedAt, events)
		sessionMetrics = append(sessionMetrics, sm)
		durations = append(durations, float64(sess.LastEventAt-sess.StartedAt)/60000)
	}

	switch group {
	case "session":
		writeJSON(w, http.StatusOK, sessionMetrics)
	case "project":
		writeJSON(w, http.StatusOK, derive.ProjectMetricsFromSessions(q.Get("project"), sessionMetrics, durations))
	default:
		writeError(w, apperr.Malformed("group must be session or project", nil))
	}
}

// reverseEvents flips events into ascending timestamp order; ListEvents
// returns newest-first, but SessionMetricsFromEvents expects non-decreasing
// order to compute turn durations correctly.
func reverseEvents(events []model.HookEvent) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
