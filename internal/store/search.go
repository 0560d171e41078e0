package store

import (
	"context"
	"encoding/json"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
)

// SearchScope narrows Search to one table or "all" (spec.md §4.1, §6
// GET /api/search).
type SearchScope string

const (
	ScopeEvents  SearchScope = "events"
	ScopeSessions SearchScope = "sessions"
	ScopeDevLogs SearchScope = "devlogs"
	ScopeAll     SearchScope = "all"
)

// SearchResult groups matches by table. Results are not ranked beyond
// recency and are capped per scope (spec.md §4.1).
type SearchResult struct {
	Events   []model.HookEvent `json:"events,omitempty"`
	Sessions []model.Session   `json:"sessions,omitempty"`
	DevLogs  []model.DevLog    `json:"devlogs,omitempty"`
}

// Search performs a LIKE-style scan over indexed and payload-derived text
// columns. An empty query returns an empty result set, not an error
// (spec.md §8 edge cases).
func (s *Store) Search(ctx context.Context, query string, scope SearchScope, limit int) (SearchResult, error) {
	var result SearchResult
	if query == "" {
		return result, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	like := "%" + query + "%"

	if scope == ScopeEvents || scope == ScopeAll {
		rows, err := s.readDB.QueryContext(ctx,
			`SELECT id, source_app, session_id, hook_event_type, payload, summary, model_name, timestamp, time_skew
			 FROM events WHERE summary LIKE ? OR payload LIKE ?
			 ORDER BY timestamp DESC LIMIT ?`, like, like, limit)
		if err != nil {
			return result, apperr.StoreIOError("search events", err)
		}
		for rows.Next() {
			var e model.HookEvent
			var payload, eventType string
			if err := rows.Scan(&e.ID, &e.SourceApp, &e.SessionID, &eventType, &payload, &e.Summary, &e.ModelName, &e.Timestamp, &e.TimeSkew); err != nil {
				rows.Close()
				return result, apperr.StoreIOError("scan search event", err)
			}
			e.HookEventType = model.HookEventType(eventType)
			e.Payload = json.RawMessage(payload)
			result.Events = append(result.Events, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return result, apperr.StoreIOError("search events", err)
		}
	}

	if scope == ScopeSessions || scope == ScopeAll {
		rows, err := s.readDB.QueryContext(ctx,
			`SELECT source_app, session_id, project_name, status, current_branch,
				started_at, last_event_at, event_count, model_name, cwd, task_context,
				compaction_count, last_compaction_at, compaction_history, parent_id,
				tool_use_count, tool_failure_count
			 FROM sessions WHERE project_name LIKE ? OR task_context LIKE ? OR cwd LIKE ?
			 ORDER BY last_event_at DESC LIMIT ?`, like, like, like, limit)
		if err != nil {
			return result, apperr.StoreIOError("search sessions", err)
		}
		for rows.Next() {
			var sess model.Session
			var status, history string
			if err := rows.Scan(
				&sess.SourceApp, &sess.SessionID, &sess.ProjectName, &status, &sess.CurrentBranch,
				&sess.StartedAt, &sess.LastEventAt, &sess.EventCount, &sess.ModelName, &sess.Cwd, &sess.TaskContext,
				&sess.CompactionCount, &sess.LastCompactionAt, &history, &sess.ParentID,
				&sess.ToolUseCount, &sess.ToolFailureCount,
			); err != nil {
				rows.Close()
				return result, apperr.StoreIOError("scan search session", err)
			}
			sess.Status = model.SessionStatus(status)
			if history != "" {
				_ = json.Unmarshal([]byte(history), &sess.CompactionHistory)
			}
			result.Sessions = append(result.Sessions, sess)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return result, apperr.StoreIOError("search sessions", err)
		}
	}

	if scope == ScopeDevLogs || scope == ScopeAll {
		rows, err := s.readDB.QueryContext(ctx,
			`SELECT id, session_id, source_app, project_name, branch, started_at, ended_at,
				duration_minutes, event_count, summary, files_changed, commits, tool_breakdown
			 FROM devlogs WHERE summary LIKE ? OR project_name LIKE ?
			 ORDER BY ended_at DESC LIMIT ?`, like, like, limit)
		if err != nil {
			return result, apperr.StoreIOError("search devlogs", err)
		}
		for rows.Next() {
			var d model.DevLog
			var filesChanged, commits, toolBreakdown string
			if err := rows.Scan(
				&d.ID, &d.SessionID, &d.SourceApp, &d.ProjectName, &d.Branch, &d.StartedAt, &d.EndedAt,
				&d.DurationMinutes, &d.EventCount, &d.Summary, &filesChanged, &commits, &toolBreakdown,
			); err != nil {
				rows.Close()
				return result, apperr.StoreIOError("scan search devlog", err)
			}
			_ = json.Unmarshal([]byte(filesChanged), &d.FilesChanged)
			_ = json.Unmarshal([]byte(commits), &d.Commits)
			_ = json.Unmarshal([]byte(toolBreakdown), &d.ToolBreakdown)
			result.DevLogs = append(result.DevLogs, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return result, apperr.StoreIOError("search devlogs", err)
		}
	}

	return result, nil
}
