package store

import (
	"context"
	"database/sql"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
)

// AppendEvent inserts e within tx and sets e.ID to its assigned row ID. Events
// are immutable once written (spec.md §4.1).
func (s *Store) AppendEvent(tx *sql.Tx, e *model.HookEvent) error {
	res, err := tx.Exec(
		`INSERT INTO events (source_app, session_id, hook_event_type, payload, summary, model_name, timestamp, time_skew)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SourceApp, e.SessionID, string(e.HookEventType), string(e.Payload), e.Summary, e.ModelName, e.Timestamp, e.TimeSkew,
	)
	if err != nil {
		return apperr.StoreIOError("append event", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperr.StoreIOError("read inserted event id", err)
	}
	e.ID = id
	return nil
}

// EventFilter narrows ListEvents (spec.md §6 GET /events/recent,
// GET /events/filter-options).
type EventFilter struct {
	SourceApp     string
	SessionID     string
	HookEventType string
	Since         int64
	Before        int64
}

// ListEvents returns events matching filter ordered newest-first
// (timestamp DESC, id DESC), bounded by limit — the shape GET /events/recent
// and GET /api/sessions/:id/events want directly. This is the opposite of
// spec.md §4.1's non-decreasing commit-order guarantee used by derivation;
// callers that need chronological order (e.g. api/metrics.go's
// reverseEvents, feeding derive.SessionMetricsFromEvents) must reverse the
// result themselves.
func (s *Store) ListEvents(ctx context.Context, filter EventFilter, limit int) ([]model.HookEvent, error) {
	q := `SELECT id, source_app, session_id, hook_event_type, payload, summary, model_name, timestamp, time_skew
	      FROM events WHERE 1=1`
	var args []any

	if filter.SourceApp != "" {
		q += " AND source_app = ?"
		args = append(args, filter.SourceApp)
	}
	if filter.SessionID != "" {
		q += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.HookEventType != "" {
		q += " AND hook_event_type = ?"
		args = append(args, filter.HookEventType)
	}
	if filter.Since > 0 {
		q += " AND timestamp >= ?"
		args = append(args, filter.Since)
	}
	if filter.Before > 0 {
		q += " AND timestamp < ?"
		args = append(args, filter.Before)
	}
	q += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.StoreIOError("list events", err)
	}
	defer rows.Close()

	var out []model.HookEvent
	for rows.Next() {
		var e model.HookEvent
		var payload, eventType string
		if err := rows.Scan(&e.ID, &e.SourceApp, &e.SessionID, &eventType, &payload, &e.Summary, &e.ModelName, &e.Timestamp, &e.TimeSkew); err != nil {
			return nil, apperr.StoreIOError("scan event", err)
		}
		e.HookEventType = model.HookEventType(eventType)
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DistinctEventTypes, DistinctSourceApps, and DistinctSessionIDs back
// GET /events/filter-options.
func (s *Store) DistinctEventTypes(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "hook_event_type")
}

func (s *Store) DistinctSourceApps(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "source_app")
}

func (s *Store) DistinctSessionIDs(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "session_id")
}

func (s *Store) distinctColumn(ctx context.Context, col string) ([]string, error) {
	rows, err := s.readDB.QueryContext(ctx, "SELECT DISTINCT "+col+" FROM events ORDER BY "+col)
	if err != nil {
		return nil, apperr.StoreIOError("list distinct "+col, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, apperr.StoreIOError("scan distinct "+col, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteEventsBefore deletes events older than cutoff (unix ms), in chunks
// of at most limit rows, returning the number deleted. Used by the
// Retention Manager (spec.md §4.7).
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff int64, limit int) (int64, error) {
	res, err := s.writeDB.ExecContext(ctx,
		"DELETE FROM events WHERE id IN (SELECT id FROM events WHERE timestamp < ? LIMIT ?)", cutoff, limit)
	if err != nil {
		return 0, apperr.StoreIOError("delete old events", err)
	}
	return res.RowsAffected()
}

// ListEventsBefore returns events older than cutoff for archival, oldest
// first, bounded by limit.
func (s *Store) ListEventsBefore(ctx context.Context, cutoff int64, limit int) ([]model.HookEvent, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, source_app, session_id, hook_event_type, payload, summary, model_name, timestamp, time_skew
		 FROM events WHERE timestamp < ? ORDER BY timestamp ASC, id ASC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, apperr.StoreIOError("list events before cutoff", err)
	}
	defer rows.Close()

	var out []model.HookEvent
	for rows.Next() {
		var e model.HookEvent
		var payload, eventType string
		if err := rows.Scan(&e.ID, &e.SourceApp, &e.SessionID, &eventType, &payload, &e.Summary, &e.ModelName, &e.Timestamp, &e.TimeSkew); err != nil {
			return nil, apperr.StoreIOError("scan event", err)
		}
		e.HookEventType = model.HookEventType(eventType)
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}
