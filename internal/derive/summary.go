package derive

import (
	"strings"

	"github.com/devpulse/server/internal/model"
)

// PeriodSummary is the per-project daily/weekly rollup spec.md §4.3
// describes.
type PeriodSummary struct {
	ProjectName          string         `json:"project_name"`
	SessionCount         int            `json:"session_count"`
	TotalDurationMinutes float64        `json:"total_duration_minutes"`
	ToolBreakdown        map[string]int `json:"tool_breakdown"`
	FilesChanged         []string       `json:"files_changed"`
	Commits              []string       `json:"commits"`
	CommitCount          int            `json:"commit_count"`
}

// Summaries groups events (already joined with project names) by project,
// producing one PeriodSummary per project for the period the caller already
// bounded via AggregateParams (spec.md §4.1 day/ISO-week grouping).
func Summaries(events []ProjectEvent) map[string]*PeriodSummary {
	out := make(map[string]*PeriodSummary)
	sessionFirstLast := make(map[model.SessionKey][2]int64) // [first, last] timestamp
	sessionsSeen := make(map[string]map[model.SessionKey]bool)

	for _, pe := range events {
		s, ok := out[pe.ProjectName]
		if !ok {
			s = &PeriodSummary{ProjectName: pe.ProjectName, ToolBreakdown: make(map[string]int)}
			out[pe.ProjectName] = s
			sessionsSeen[pe.ProjectName] = make(map[model.SessionKey]bool)
		}
		sessionsSeen[pe.ProjectName][pe.SessionKey] = true

		bounds, ok := sessionFirstLast[pe.SessionKey]
		if !ok {
			bounds = [2]int64{pe.Timestamp, pe.Timestamp}
		} else {
			if pe.Timestamp < bounds[0] {
				bounds[0] = pe.Timestamp
			}
			if pe.Timestamp > bounds[1] {
				bounds[1] = pe.Timestamp
			}
		}
		sessionFirstLast[pe.SessionKey] = bounds

		switch pe.HookEventType {
		case model.PostToolUse, model.PostToolUseFailure:
			if tool := eventPayloadToolName(pe.Payload); tool != "" {
				s.ToolBreakdown[tool]++
			}
			if path := eventPayloadFilePath(pe.Payload); path != "" {
				s.FilesChanged = appendUnique(s.FilesChanged, path)
			}
			if commit, ok := eventPayloadCommit(pe.Payload); ok {
				s.Commits = append(s.Commits, commit)
				s.CommitCount++
			}
		}
	}

	for name, s := range out {
		s.SessionCount = len(sessionsSeen[name])
	}
	for key, bounds := range sessionFirstLast {
		for name, seen := range sessionsSeen {
			if seen[key] {
				out[name].TotalDurationMinutes += float64(bounds[1]-bounds[0]) / 60000
			}
		}
	}

	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func eventPayloadFilePath(raw []byte) string {
	p, err := model.ParsePayload(raw)
	if err != nil {
		return ""
	}
	return p.FilePath
}

// eventPayloadCommit reports whether a PostToolUse event is a git commit
// invocation (Bash tool, command containing "git commit"), returning its
// command text as the commit record. No richer commit metadata is available
// from hook payloads, so the command line itself stands in for a message.
func eventPayloadCommit(raw []byte) (string, bool) {
	p, err := model.ParsePayload(raw)
	if err != nil {
		return "", false
	}
	if p.ToolName != "Bash" {
		return "", false
	}
	if !strings.Contains(p.Command, "git commit") {
		return "", false
	}
	return p.Command, true
}
