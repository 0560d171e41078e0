package derive

import (
	"encoding/json"

	"github.com/devpulse/server/internal/model"
)

// SessionMetrics is the per-session rollup spec.md §4.3 describes.
type SessionMetrics struct {
	SessionID          string         `json:"session_id"`
	SourceApp          string         `json:"source_app"`
	ToolUseCount       int            `json:"tool_use_count"`
	ToolFailureCount   int            `json:"tool_failure_count"`
	ToolSuccessRate    float64        `json:"tool_success_rate"`
	AvgTurnSeconds     float64        `json:"avg_turn_seconds"`
	MedianTurnSeconds  float64        `json:"median_turn_seconds"`
	EventsPerMinute    float64        `json:"events_per_minute"`
	Timeline           map[int64]int  `json:"timeline"` // minute offset from started_at -> event count
}

// SessionMetricsFromEvents computes a SessionMetrics from one session's
// events, ordered non-decreasing by timestamp (the order Store.Aggregate
// returns; Store.ListEvents returns newest-first, so its results must be
// reversed first). startedAt is the session's started_at (unix ms).
func SessionMetricsFromEvents(sourceApp, sessionID string, startedAt int64, events []model.HookEvent) SessionMetrics {
	m := SessionMetrics{
		SessionID: sessionID,
		SourceApp: sourceApp,
		Timeline:  make(map[int64]int),
	}
	if len(events) == 0 {
		return m
	}

	var turns []float64
	var pendingPromptAt int64
	havePendingPrompt := false

	for _, e := range events {
		switch e.HookEventType {
		case model.PostToolUse:
			m.ToolUseCount++
		case model.PostToolUseFailure:
			m.ToolFailureCount++
		case model.UserPromptSubmit:
			pendingPromptAt = e.Timestamp
			havePendingPrompt = true
		case model.Stop, model.Notification:
			if havePendingPrompt {
				turns = append(turns, float64(e.Timestamp-pendingPromptAt)/1000)
				havePendingPrompt = false
			}
		}

		minuteOffset := (e.Timestamp - startedAt) / 60000
		m.Timeline[minuteOffset]++
	}

	denom := m.ToolUseCount + m.ToolFailureCount
	if denom > 0 {
		m.ToolSuccessRate = 100 * float64(m.ToolUseCount) / float64(denom)
	}

	m.AvgTurnSeconds = Average(turns)
	m.MedianTurnSeconds = Median(turns)

	lastEvent := events[len(events)-1]
	durationMinutes := float64(lastEvent.Timestamp-startedAt) / 60000
	if durationMinutes > 0 {
		m.EventsPerMinute = float64(len(events)) / durationMinutes
	}

	return m
}

// ProjectMetrics rolls up a project's session metrics (spec.md §4.3).
type ProjectMetrics struct {
	ProjectName           string  `json:"project_name"`
	SessionCount           int     `json:"session_count"`
	TotalToolUseCount      int     `json:"total_tool_use_count"`
	TotalToolFailureCount  int     `json:"total_tool_failure_count"`
	MeanToolSuccessRate    float64 `json:"mean_tool_success_rate"`
	TotalDurationMinutes   float64 `json:"total_duration_minutes"`
}

// ProjectMetricsFromSessions rolls up per-session metrics into a project
// total: mean of rates, sums of counts, total duration (spec.md §4.3).
func ProjectMetricsFromSessions(projectName string, sessionMetrics []SessionMetrics, durationsMinutes []float64) ProjectMetrics {
	pm := ProjectMetrics{ProjectName: projectName, SessionCount: len(sessionMetrics)}
	var rates []float64
	for _, sm := range sessionMetrics {
		pm.TotalToolUseCount += sm.ToolUseCount
		pm.TotalToolFailureCount += sm.ToolFailureCount
		rates = append(rates, sm.ToolSuccessRate)
	}
	pm.MeanToolSuccessRate = Average(rates)
	for _, d := range durationsMinutes {
		pm.TotalDurationMinutes += d
	}
	return pm
}

// eventPayloadToolName extracts tool_name from a PostToolUse/PostToolUseFailure
// payload, returning "" if absent or malformed. Used by the tool_breakdown
// summary aggregation.
func eventPayloadToolName(raw json.RawMessage) string {
	p, err := model.ParsePayload(raw)
	if err != nil {
		return ""
	}
	return p.ToolName
}
