package model

// DevLog is a post-mortem summary row written when a session reaches
// "stopped" (spec.md §3, §4.2).
type DevLog struct {
	ID              int64          `json:"id"`
	SessionID       string         `json:"session_id"`
	SourceApp       string         `json:"source_app"`
	ProjectName     string         `json:"project_name"`
	Branch          string         `json:"branch,omitempty"`
	StartedAt       int64          `json:"started_at"`
	EndedAt         int64          `json:"ended_at"`
	DurationMinutes float64        `json:"duration_minutes"`
	EventCount      int            `json:"event_count"`
	Summary         string         `json:"summary,omitempty"`
	FilesChanged    []string       `json:"files_changed,omitempty"`
	Commits         []string       `json:"commits,omitempty"`
	ToolBreakdown   map[string]int `json:"tool_breakdown,omitempty"`
}
