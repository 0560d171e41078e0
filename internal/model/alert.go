package model

// AlertKind classifies an Alert (spec.md §4.5).
type AlertKind string

const (
	AlertErrorSpike      AlertKind = "error_spike"
	AlertStuckSession    AlertKind = "stuck_session"
	AlertWaitingTooLong  AlertKind = "waiting_too_long"
)

// AlertSeverity is an Alert's urgency.
type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is produced by the Alert Engine from rolling event metrics
// (spec.md §3, §4.5). Dismissal is client-side state with a TTL and is not
// modeled server-side.
type Alert struct {
	ID          string        `json:"id"`
	Kind        AlertKind     `json:"kind"`
	Severity    AlertSeverity `json:"severity"`
	AgentLabel  string        `json:"agentLabel"`
	Message     string        `json:"message"`
	DetectedAt  int64         `json:"detectedAt"`
}

// DedupKey is the (kind, agentLabel) pair alerts are deduplicated by.
type DedupKey struct {
	Kind       AlertKind
	AgentLabel string
}
