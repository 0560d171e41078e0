package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
)

// InsertDevLog writes a DevLog within tx and sets d.ID to its assigned ID. Written
// once, when a session's state machine reaches "stopped" (spec.md §4.2).
func (s *Store) InsertDevLog(tx *sql.Tx, d *model.DevLog) error {
	filesChanged, err := json.Marshal(d.FilesChanged)
	if err != nil {
		return apperr.Malformed("marshal files changed", err)
	}
	commits, err := json.Marshal(d.Commits)
	if err != nil {
		return apperr.Malformed("marshal commits", err)
	}
	toolBreakdown, err := json.Marshal(d.ToolBreakdown)
	if err != nil {
		return apperr.Malformed("marshal tool breakdown", err)
	}

	res, err := tx.Exec(
		`INSERT INTO devlogs (
			session_id, source_app, project_name, branch, started_at, ended_at,
			duration_minutes, event_count, summary, files_changed, commits, tool_breakdown
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.SourceApp, d.ProjectName, d.Branch, d.StartedAt, d.EndedAt,
		d.DurationMinutes, d.EventCount, d.Summary, string(filesChanged), string(commits), string(toolBreakdown),
	)
	if err != nil {
		return apperr.StoreIOError("insert devlog", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperr.StoreIOError("read inserted devlog id", err)
	}
	d.ID = id
	return nil
}

// ListDevLogs returns dev logs, optionally narrowed to one project, newest
// first (spec.md §6 GET /api/devlogs).
func (s *Store) ListDevLogs(ctx context.Context, projectName string, limit int) ([]model.DevLog, error) {
	q := `SELECT id, session_id, source_app, project_name, branch, started_at, ended_at,
			duration_minutes, event_count, summary, files_changed, commits, tool_breakdown
		  FROM devlogs`
	var args []any
	if projectName != "" {
		q += " WHERE project_name = ?"
		args = append(args, projectName)
	}
	q += " ORDER BY ended_at DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.StoreIOError("list devlogs", err)
	}
	defer rows.Close()

	var out []model.DevLog
	for rows.Next() {
		var d model.DevLog
		var filesChanged, commits, toolBreakdown string
		if err := rows.Scan(
			&d.ID, &d.SessionID, &d.SourceApp, &d.ProjectName, &d.Branch, &d.StartedAt, &d.EndedAt,
			&d.DurationMinutes, &d.EventCount, &d.Summary, &filesChanged, &commits, &toolBreakdown,
		); err != nil {
			return nil, apperr.StoreIOError("scan devlog", err)
		}
		_ = json.Unmarshal([]byte(filesChanged), &d.FilesChanged)
		_ = json.Unmarshal([]byte(commits), &d.Commits)
		_ = json.Unmarshal([]byte(toolBreakdown), &d.ToolBreakdown)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListDevLogsBefore and DeleteDevLogsBefore back devlog retention (spec.md
// §4.7), keyed by ended_at per the idx_devlogs_project_ended index.
func (s *Store) ListDevLogsBefore(ctx context.Context, cutoff int64, limit int) ([]model.DevLog, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, session_id, source_app, project_name, branch, started_at, ended_at,
			duration_minutes, event_count, summary, files_changed, commits, tool_breakdown
		 FROM devlogs WHERE ended_at < ? ORDER BY ended_at ASC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, apperr.StoreIOError("list devlogs before cutoff", err)
	}
	defer rows.Close()

	var out []model.DevLog
	for rows.Next() {
		var d model.DevLog
		var filesChanged, commits, toolBreakdown string
		if err := rows.Scan(
			&d.ID, &d.SessionID, &d.SourceApp, &d.ProjectName, &d.Branch, &d.StartedAt, &d.EndedAt,
			&d.DurationMinutes, &d.EventCount, &d.Summary, &filesChanged, &commits, &toolBreakdown,
		); err != nil {
			return nil, apperr.StoreIOError("scan devlog", err)
		}
		_ = json.Unmarshal([]byte(filesChanged), &d.FilesChanged)
		_ = json.Unmarshal([]byte(commits), &d.Commits)
		_ = json.Unmarshal([]byte(toolBreakdown), &d.ToolBreakdown)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDevLogsBefore(ctx context.Context, cutoff int64, limit int) (int64, error) {
	res, err := s.writeDB.ExecContext(ctx,
		"DELETE FROM devlogs WHERE id IN (SELECT id FROM devlogs WHERE ended_at < ? LIMIT ?)", cutoff, limit)
	if err != nil {
		return 0, apperr.StoreIOError("delete old devlogs", err)
	}
	return res.RowsAffected()
}
