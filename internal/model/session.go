package model

import "time"

// SessionStatus is a session's position in the state machine (spec.md §4.2).
type SessionStatus string

const (
	StatusActive  SessionStatus = "active"
	StatusWaiting SessionStatus = "waiting"
	StatusIdle    SessionStatus = "idle"
	StatusStopped SessionStatus = "stopped"
)

// IdleAfter is the lazy-idle threshold: a session in active/waiting with no
// events for this long is materialized as idle on read (spec.md §4.2).
const IdleAfter = 90 * time.Second

// Session is one continuous agent run, identified by (SourceApp, SessionID).
type Session struct {
	SourceApp         string        `json:"source_app"`
	SessionID         string        `json:"session_id"`
	ProjectName       string        `json:"project_name"`
	Status            SessionStatus `json:"status"`
	CurrentBranch     string        `json:"current_branch,omitempty"`
	StartedAt         int64         `json:"started_at"`
	LastEventAt       int64         `json:"last_event_at"`
	EventCount        int           `json:"event_count"`
	ModelName         string        `json:"model_name,omitempty"`
	Cwd               string        `json:"cwd,omitempty"`
	TaskContext       string        `json:"task_context,omitempty"` // raw JSON text
	CompactionCount   int           `json:"compaction_count"`
	LastCompactionAt  int64         `json:"last_compaction_at,omitempty"`
	CompactionHistory []int64       `json:"compaction_history,omitempty"`
	ParentID          string        `json:"parent_id,omitempty"`

	ToolUseCount     int `json:"-"`
	ToolFailureCount int `json:"-"`
}

// Key returns this session's identity.
func (s *Session) Key() SessionKey {
	return SessionKey{SourceApp: s.SourceApp, SessionID: s.SessionID}
}

// AgentID returns the topology node key for this session.
func (s *Session) AgentID() string {
	return s.Key().AgentID()
}

// EffectiveStatus materializes the lazy-idle transition: a session whose
// last event is older than IdleAfter and whose persisted status is active
// or waiting reads back as idle, without a stored mutation (spec.md §4.2).
func (s *Session) EffectiveStatus(now time.Time) SessionStatus {
	if s.Status == StatusStopped || s.Status == StatusIdle {
		return s.Status
	}
	if now.UnixMilli()-s.LastEventAt > IdleAfter.Milliseconds() {
		return StatusIdle
	}
	return s.Status
}

// NextStatus computes the state machine transition for eventType arriving
// on a session currently in status (spec.md §4.2 transition table).
// Every event type other than Notification and the session-closing types
// counts as tool/prompt activity and moves the session to active.
func NextStatus(current SessionStatus, eventType HookEventType) SessionStatus {
	if current == StatusStopped {
		return StatusStopped
	}
	if eventType.ClosesSession() {
		return StatusStopped
	}
	if eventType == Notification {
		return StatusWaiting
	}
	return StatusActive
}

// InitialStatus returns the state a brand-new session key starts in, based
// on the first event ever observed for it (spec.md §4.2).
func InitialStatus(firstEventType HookEventType) SessionStatus {
	if firstEventType == Notification {
		return StatusWaiting
	}
	return StatusActive
}

// ContextHealth classifies compaction pressure from compaction history
// within the last 10 minutes (SPEC_FULL.md §12 supplement, used by seed
// test 4 in spec.md §8).
type ContextHealth string

const (
	HealthGreen  ContextHealth = "green"
	HealthYellow ContextHealth = "yellow"
	HealthRed    ContextHealth = "red"
)

// DeriveContextHealth classifies compaction pressure from the compaction
// history timestamps (unix ms) relative to now.
func DeriveContextHealth(history []int64, now time.Time) ContextHealth {
	cutoff := now.Add(-10 * time.Minute).UnixMilli()
	recent := 0
	for _, ts := range history {
		if ts >= cutoff {
			recent++
		}
	}
	switch {
	case recent >= 2:
		return HealthRed
	case recent == 1:
		return HealthYellow
	default:
		return HealthGreen
	}
}
