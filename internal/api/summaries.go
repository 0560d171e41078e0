package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/derive"
	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
)

// handleSummaries is GET /api/summaries?period=daily&date=YYYY-MM-DD or
// period=weekly&week=YYYY-Www (spec.md §6).
func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")

	var start, end int64
	switch period {
	case "weekly":
		week := r.URL.Query().Get("week")
		t, err := parseISOWeek(week)
		if err != nil {
			writeError(w, apperr.Malformed("invalid week parameter", err))
			return
		}
		start, end = store.ISOWeekBounds(t)
	case "daily", "":
		date := r.URL.Query().Get("date")
		t := time.Now()
		if date != "" {
			parsed, err := time.ParseInLocation("2006-01-02", date, time.Local)
			if err != nil {
				writeError(w, apperr.Malformed("invalid date parameter", err))
				return
			}
			t = parsed
		}
		start, end = store.DayBounds(t)
	default:
		writeError(w, apperr.Malformed("period must be daily or weekly", nil))
		return
	}

	events, err := s.store.Aggregate(r.Context(), store.AggregateSummaries, store.AggregateParams{Start: start, End: end})
	if err != nil {
		writeError(w, err)
		return
	}

	lookup, err := s.sessionProjectLookup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	projectEvents := derive.AttachProjectNames(events, lookup)
	writeJSON(w, http.StatusOK, derive.Summaries(projectEvents))
}

// parseISOWeek parses a "YYYY-Www" string into a time.Time that falls
// within that ISO week, for store.ISOWeekBounds.
func parseISOWeek(week string) (time.Time, error) {
	var year, weekNum int
	if n, err := fmt.Sscanf(week, "%d-W%d", &year, &weekNum); err != nil || n != 2 {
		return time.Time{}, fmt.Errorf("expected YYYY-Www, got %q", week)
	}
	// Jan 4th always falls in ISO week 1; walk to the target week's Monday.
	jan4 := time.Date(year, 1, 4, 0, 0, 0, 0, time.Local)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	week1Monday := jan4.AddDate(0, 0, -(weekday - 1))
	return week1Monday.AddDate(0, 0, (weekNum-1)*7), nil
}

// sessionProjectLookup builds the (source_app,session_id) -> project_name
// map derive.AttachProjectNames needs, since project_name lives on Session,
// not HookEvent (spec.md §3).
func (s *Server) sessionProjectLookup(r *http.Request) (map[model.SessionKey]string, error) {
	sessions, err := s.store.ListSessions(r.Context(), "", 0)
	if err != nil {
		return nil, err
	}
	lookup := make(map[model.SessionKey]string, len(sessions))
	for _, sess := range sessions {
		lookup[sess.Key()] = sess.ProjectName
	}
	return lookup, nil
}
