package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
)

// AggregateKind selects which rollup Aggregate computes the raw event set
// for; the actual math (medians, breakdowns, heatmap cells) happens in
// internal/derive over the returned events (spec.md §4.1, §4.3).
type AggregateKind string

const (
	AggregateCosts     AggregateKind = "costs"
	AggregateMetrics   AggregateKind = "metrics"
	AggregateSummaries AggregateKind = "summaries"
	AggregateHeatmap   AggregateKind = "heatmap"
)

// AggregateParams bounds an Aggregate call. ProjectName is optional (empty
// means all projects); Start/End are unix-ms bounds, both inclusive-exclusive
// as [Start, End).
type AggregateParams struct {
	ProjectName string
	Start       int64
	End         int64
}

// Aggregate returns the raw events backing a rollup of the given kind
// within params' bounds, grouped by (project_name, day|ISO-week) being the
// caller's responsibility once the rows are in hand (spec.md §4.3).
func (s *Store) Aggregate(ctx context.Context, kind AggregateKind, params AggregateParams) ([]model.HookEvent, error) {
	q := `SELECT id, source_app, session_id, hook_event_type, payload, summary, model_name, timestamp, time_skew
	      FROM events WHERE timestamp >= ? AND timestamp < ?`
	args := []any{params.Start, params.End}

	if params.ProjectName != "" {
		// project_name lives in session/event payloads, not the events
		// table itself; narrow via a join against sessions once a session
		// row exists for (source_app, session_id).
		q = `SELECT e.id, e.source_app, e.session_id, e.hook_event_type, e.payload, e.summary, e.model_name, e.timestamp, e.time_skew
		     FROM events e
		     JOIN sessions s ON s.source_app = e.source_app AND s.session_id = e.session_id
		     WHERE e.timestamp >= ? AND e.timestamp < ? AND s.project_name = ?`
		args = append(args, params.ProjectName)
	}
	q += " ORDER BY timestamp ASC, id ASC"

	rows, err := s.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.StoreIOError("aggregate "+string(kind), err)
	}
	defer rows.Close()

	var out []model.HookEvent
	for rows.Next() {
		var e model.HookEvent
		var payload, eventType string
		if err := rows.Scan(&e.ID, &e.SourceApp, &e.SessionID, &eventType, &payload, &e.Summary, &e.ModelName, &e.Timestamp, &e.TimeSkew); err != nil {
			return nil, apperr.StoreIOError("scan aggregate event", err)
		}
		e.HookEventType = model.HookEventType(eventType)
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DayBounds returns the [start, end) unix-ms bounds of the local calendar
// day containing t, for AggregateParams (spec.md §4.1 "local calendar for
// day").
func DayBounds(t time.Time) (int64, int64) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start.UnixMilli(), start.AddDate(0, 0, 1).UnixMilli()
}

// ISOWeekBounds returns the [start, end) unix-ms bounds of the ISO-8601 week
// (Mon-Sun) containing t (spec.md §4.1 "ISO-8601 weeks (Mon-Sun) for week").
func ISOWeekBounds(t time.Time) (int64, int64) {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // ISO: Monday=1 ... Sunday=7
	}
	monday := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, -(weekday - 1))
	return monday.UnixMilli(), monday.AddDate(0, 0, 7).UnixMilli()
}
