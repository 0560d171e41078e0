// Package model defines the persisted and derived entities DevPulse works
// with: hook events, sessions, projects, agent topology, dev logs, file
// conflicts, alerts, and webhooks.
package model

import (
	"encoding/json"
	"time"
)

// HookEventType is the closed tag set a hook event's type must belong to.
type HookEventType string

const (
	SessionStart       HookEventType = "SessionStart"
	UserPromptSubmit   HookEventType = "UserPromptSubmit"
	PreToolUse         HookEventType = "PreToolUse"
	PostToolUse        HookEventType = "PostToolUse"
	PostToolUseFailure HookEventType = "PostToolUseFailure"
	Notification       HookEventType = "Notification"
	Stop               HookEventType = "Stop"
	SessionEnd         HookEventType = "SessionEnd"
	SubagentStart      HookEventType = "SubagentStart"
	SubagentStop       HookEventType = "SubagentStop"
	Compaction         HookEventType = "Compaction"
)

// validHookEventTypes is the closed set used by IsValid.
var validHookEventTypes = map[HookEventType]bool{
	SessionStart:       true,
	UserPromptSubmit:   true,
	PreToolUse:         true,
	PostToolUse:        true,
	PostToolUseFailure: true,
	Notification:       true,
	Stop:               true,
	SessionEnd:         true,
	SubagentStart:      true,
	SubagentStop:       true,
	Compaction:         true,
}

// IsValid reports whether t belongs to the closed hook event tag set.
func (t HookEventType) IsValid() bool {
	return validHookEventTypes[t]
}

// ClosesSession reports whether an event of this type ends a session's
// lifecycle (state machine transition to "stopped" in spec.md §4.2).
func (t HookEventType) ClosesSession() bool {
	return t == Stop || t == SessionEnd
}

// EventPayload is the tagged-variant view over a hook event's opaque JSON
// payload (spec.md §9 design notes): known fields are surfaced for
// derivation and conflict detection, while the raw bytes are retained
// verbatim for storage and replay.
type EventPayload struct {
	ToolName         string          `json:"tool_name,omitempty"`
	FilePath         string          `json:"file_path,omitempty"`
	Command          string          `json:"command,omitempty"`
	ProjectName      string          `json:"project_name,omitempty"`
	CurrentBranch    string          `json:"current_branch,omitempty"`
	Cwd              string          `json:"cwd,omitempty"`
	DevServers       json.RawMessage `json:"dev_servers,omitempty"`
	DeploymentStatus json.RawMessage `json:"deployment_status,omitempty"`
	GithubStatus     json.RawMessage `json:"github_status,omitempty"`
	TaskContext      json.RawMessage `json:"task_context,omitempty"`
	Output           string          `json:"output,omitempty"`
	ParentID         string          `json:"parent_id,omitempty"`

	// raw holds the untouched payload bytes so storage and replay never
	// lose fields this struct doesn't model explicitly.
	raw json.RawMessage
}

// ParsePayload decodes raw into an EventPayload, retaining the raw bytes
// verbatim. raw must be a JSON object; an empty/nil raw yields a zero-value
// payload backed by "{}".
func ParsePayload(raw json.RawMessage) (EventPayload, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var p EventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return EventPayload{}, err
	}
	p.raw = raw
	return p, nil
}

// Raw returns the original, untouched payload bytes.
func (p EventPayload) Raw() json.RawMessage {
	if len(p.raw) == 0 {
		return json.RawMessage("{}")
	}
	return p.raw
}

// MarshalJSON marshals the payload back to its original raw bytes so a
// stored event replays byte-for-byte.
func (p EventPayload) MarshalJSON() ([]byte, error) {
	return p.Raw(), nil
}

// HookEvent is a single persisted, immutable event emitted by an agent.
type HookEvent struct {
	ID            int64           `json:"id"`
	SourceApp     string          `json:"source_app"`
	SessionID     string          `json:"session_id"`
	HookEventType HookEventType   `json:"hook_event_type"`
	Payload       json.RawMessage `json:"payload"`
	Summary       string          `json:"summary,omitempty"`
	ModelName     string          `json:"model_name,omitempty"`
	Timestamp     int64           `json:"timestamp"`
	TimeSkew      bool            `json:"time_skew,omitempty"`
}

// Key returns the composite session key (source_app, session_id) this
// event belongs to.
func (e HookEvent) Key() SessionKey {
	return SessionKey{SourceApp: e.SourceApp, SessionID: e.SessionID}
}

// SessionKey is the unique identity for a Session: (source_app, session_id).
type SessionKey struct {
	SourceApp string
	SessionID string
}

// AgentID returns the "source_app:session_id" string used as a topology
// node key (spec.md GLOSSARY).
func (k SessionKey) AgentID() string {
	return k.SourceApp + ":" + k.SessionID
}

// ClampTimestamp clamps ts to [now-24h, now+5m] per spec.md §4.2 step 2,
// reporting whether clamping (time skew) occurred. The clamped value itself
// is NOT used to overwrite the event -- it is informational only; the
// event is stored with its original timestamp and flagged.
func ClampTimestamp(ts int64, now time.Time) (skewed bool) {
	nowMs := now.UnixMilli()
	lower := nowMs - (24 * time.Hour).Milliseconds()
	upper := nowMs + (5 * time.Minute).Milliseconds()
	return ts < lower || ts > upper
}
