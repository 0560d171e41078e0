package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
)

// UpsertSession writes the full current state of a session within tx
// (spec.md §4.1, §4.2). Called once per ingested event after the state
// machine transition has been computed.
func (s *Store) UpsertSession(tx *sql.Tx, sess *model.Session) error {
	history, err := json.Marshal(sess.CompactionHistory)
	if err != nil {
		return apperr.Malformed("marshal compaction history", err)
	}

	_, err = tx.Exec(
		`INSERT INTO sessions (
			source_app, session_id, project_name, status, current_branch,
			started_at, last_event_at, event_count, model_name, cwd, task_context,
			compaction_count, last_compaction_at, compaction_history, parent_id,
			tool_use_count, tool_failure_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_app, session_id) DO UPDATE SET
			project_name = excluded.project_name,
			status = excluded.status,
			current_branch = excluded.current_branch,
			last_event_at = excluded.last_event_at,
			event_count = excluded.event_count,
			model_name = excluded.model_name,
			cwd = excluded.cwd,
			task_context = excluded.task_context,
			compaction_count = excluded.compaction_count,
			last_compaction_at = excluded.last_compaction_at,
			compaction_history = excluded.compaction_history,
			parent_id = excluded.parent_id,
			tool_use_count = excluded.tool_use_count,
			tool_failure_count = excluded.tool_failure_count`,
		sess.SourceApp, sess.SessionID, sess.ProjectName, string(sess.Status), sess.CurrentBranch,
		sess.StartedAt, sess.LastEventAt, sess.EventCount, sess.ModelName, sess.Cwd, sess.TaskContext,
		sess.CompactionCount, sess.LastCompactionAt, string(history), sess.ParentID,
		sess.ToolUseCount, sess.ToolFailureCount,
	)
	if err != nil {
		return apperr.StoreIOError("upsert session", err)
	}
	return nil
}

// GetSession reads a single session by key via tx, used mid-transaction by
// the ingest processor to compute the next state machine transition.
func (s *Store) GetSession(tx *sql.Tx, key model.SessionKey) (*model.Session, error) {
	row := tx.QueryRow(
		`SELECT source_app, session_id, project_name, status, current_branch,
			started_at, last_event_at, event_count, model_name, cwd, task_context,
			compaction_count, last_compaction_at, compaction_history, parent_id,
			tool_use_count, tool_failure_count
		 FROM sessions WHERE source_app = ? AND session_id = ?`,
		key.SourceApp, key.SessionID,
	)
	return scanSession(row)
}

// CountActiveSessions returns the number of non-stopped sessions recorded
// for projectName within tx (spec.md §3 invariant: Project.active_sessions
// equals the count of non-stopped sessions for that project). Called once
// per ingested event to recompute the field from scratch rather than track
// it incrementally.
func (s *Store) CountActiveSessions(tx *sql.Tx, projectName string) (int, error) {
	var count int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE project_name = ? AND status != ?`,
		projectName, model.StatusStopped,
	).Scan(&count)
	if err != nil {
		return 0, apperr.StoreIOError("count active sessions", err)
	}
	return count, nil
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var sess model.Session
	var status, history string
	err := row.Scan(
		&sess.SourceApp, &sess.SessionID, &sess.ProjectName, &status, &sess.CurrentBranch,
		&sess.StartedAt, &sess.LastEventAt, &sess.EventCount, &sess.ModelName, &sess.Cwd, &sess.TaskContext,
		&sess.CompactionCount, &sess.LastCompactionAt, &history, &sess.ParentID,
		&sess.ToolUseCount, &sess.ToolFailureCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreIOError("scan session", err)
	}
	sess.Status = model.SessionStatus(status)
	if history != "" {
		_ = json.Unmarshal([]byte(history), &sess.CompactionHistory)
	}
	return &sess, nil
}

// ListSessions returns sessions, optionally narrowed to one project, most
// recently active first (spec.md §6 GET /api/sessions).
func (s *Store) ListSessions(ctx context.Context, projectName string, limit int) ([]model.Session, error) {
	q := `SELECT source_app, session_id, project_name, status, current_branch,
			started_at, last_event_at, event_count, model_name, cwd, task_context,
			compaction_count, last_compaction_at, compaction_history, parent_id,
			tool_use_count, tool_failure_count
		  FROM sessions`
	var args []any
	if projectName != "" {
		q += " WHERE project_name = ?"
		args = append(args, projectName)
	}
	q += " ORDER BY last_event_at DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.StoreIOError("list sessions", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		var status, history string
		if err := rows.Scan(
			&sess.SourceApp, &sess.SessionID, &sess.ProjectName, &status, &sess.CurrentBranch,
			&sess.StartedAt, &sess.LastEventAt, &sess.EventCount, &sess.ModelName, &sess.Cwd, &sess.TaskContext,
			&sess.CompactionCount, &sess.LastCompactionAt, &history, &sess.ParentID,
			&sess.ToolUseCount, &sess.ToolFailureCount,
		); err != nil {
			return nil, apperr.StoreIOError("scan session", err)
		}
		sess.Status = model.SessionStatus(status)
		if history != "" {
			_ = json.Unmarshal([]byte(history), &sess.CompactionHistory)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSessionByID returns a single session without requiring a transaction,
// for read-path handlers (spec.md §6 GET /api/sessions/:id/events).
func (s *Store) GetSessionByID(ctx context.Context, key model.SessionKey) (*model.Session, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT source_app, session_id, project_name, status, current_branch,
			started_at, last_event_at, event_count, model_name, cwd, task_context,
			compaction_count, last_compaction_at, compaction_history, parent_id,
			tool_use_count, tool_failure_count
		 FROM sessions WHERE source_app = ? AND session_id = ?`,
		key.SourceApp, key.SessionID,
	)
	var sess model.Session
	var status, history string
	err := row.Scan(
		&sess.SourceApp, &sess.SessionID, &sess.ProjectName, &status, &sess.CurrentBranch,
		&sess.StartedAt, &sess.LastEventAt, &sess.EventCount, &sess.ModelName, &sess.Cwd, &sess.TaskContext,
		&sess.CompactionCount, &sess.LastCompactionAt, &history, &sess.ParentID,
		&sess.ToolUseCount, &sess.ToolFailureCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session not found")
	}
	if err != nil {
		return nil, apperr.StoreIOError("get session", err)
	}
	sess.Status = model.SessionStatus(status)
	if history != "" {
		_ = json.Unmarshal([]byte(history), &sess.CompactionHistory)
	}
	return &sess, nil
}

// ListSessionsBefore returns the same stopped/idle, past-cutoff sessions
// DeleteSessionsBefore would remove, for the Retention Manager's archive
// step to serialize before deleting (spec.md §4.7 step 2).
func (s *Store) ListSessionsBefore(ctx context.Context, cutoff int64, limit int) ([]model.Session, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT source_app, session_id, project_name, status, current_branch,
			started_at, last_event_at, event_count, model_name, cwd, task_context,
			compaction_count, last_compaction_at, compaction_history, parent_id,
			tool_use_count, tool_failure_count
		 FROM sessions
		 WHERE last_event_at < ? AND status IN ('stopped', 'idle')
		 ORDER BY last_event_at ASC
		 LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, apperr.StoreIOError("list sessions before cutoff", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		var status, history string
		if err := rows.Scan(
			&sess.SourceApp, &sess.SessionID, &sess.ProjectName, &status, &sess.CurrentBranch,
			&sess.StartedAt, &sess.LastEventAt, &sess.EventCount, &sess.ModelName, &sess.Cwd, &sess.TaskContext,
			&sess.CompactionCount, &sess.LastCompactionAt, &history, &sess.ParentID,
			&sess.ToolUseCount, &sess.ToolFailureCount,
		); err != nil {
			return nil, apperr.StoreIOError("scan session", err)
		}
		sess.Status = model.SessionStatus(status)
		if history != "" {
			_ = json.Unmarshal([]byte(history), &sess.CompactionHistory)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSessionsBefore removes sessions whose last activity predates cutoff
// and that are not active/waiting (spec.md §4.7 retention never purges a
// live session).
func (s *Store) DeleteSessionsBefore(ctx context.Context, cutoff int64, limit int) (int64, error) {
	res, err := s.writeDB.ExecContext(ctx,
		`DELETE FROM sessions WHERE rowid IN (
			SELECT rowid FROM sessions
			WHERE last_event_at < ? AND status IN ('stopped', 'idle')
			LIMIT ?
		)`, cutoff, limit)
	if err != nil {
		return 0, apperr.StoreIOError("delete old sessions", err)
	}
	return res.RowsAffected()
}
