package model

// Webhook is a registered outbound notification target (spec.md §3, §4.6).
type Webhook struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	URL            string   `json:"url"`
	Secret         string   `json:"secret,omitempty"`
	EventTypes     []string `json:"event_types,omitempty"` // empty = all
	ProjectFilter  string   `json:"project_filter,omitempty"`
	Active         bool     `json:"active"`
	TriggerCount   int      `json:"trigger_count"`
	FailureCount   int      `json:"failure_count"`
	LastStatus     int      `json:"last_status,omitempty"`
	LastError      string   `json:"last_error,omitempty"`
	LastTriggeredAt int64   `json:"last_triggered_at,omitempty"`
}

// Matches reports whether this webhook's filters accept an event of the
// given type for the given derived project name (spec.md §4.6).
func (w Webhook) Matches(eventType HookEventType, projectName string) bool {
	if !w.Active {
		return false
	}
	if len(w.EventTypes) > 0 {
		matched := false
		for _, t := range w.EventTypes {
			if HookEventType(t) == eventType {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if w.ProjectFilter != "" && w.ProjectFilter != projectName {
		return false
	}
	return true
}

// OutboundPayload is the JSON body POSTed to a webhook's URL (spec.md §6).
type OutboundPayload struct {
	Type        string `json:"type"`
	Event       any    `json:"event"`
	ProjectName string `json:"project_name"`
}

// Setting is a single persisted key/value configuration row (spec.md §3).
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Retention setting keys (spec.md §4.7).
const (
	SettingRetentionEventsDays       = "retention.events.days"
	SettingRetentionDevlogsDays      = "retention.devlogs.days"
	SettingRetentionSessionsDays     = "retention.sessions.days"
	SettingRetentionArchiveEnabled   = "retention.archive.enabled"
	SettingRetentionArchiveDirectory = "retention.archive.directory"
	SettingRetentionCleanupIntervalH = "retention.cleanup.interval.hours"
)
