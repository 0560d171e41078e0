package derive

import "github.com/devpulse/server/internal/model"

// activityCapPerDay is the events-in-24h count at which the activity
// component saturates at 100 (spec.md §4.3 "linear... up to a cap" does not
// name the cap; chosen as a round number consistent with an actively
// multi-agent project and documented here as a default, not source-mandated,
// per spec.md §9 open questions).
const activityCapPerDay = 500

// HealthComponents is the weighted blend spec.md §4.3 defines: test status
// 40%, activity 30%, error rate 30%.
type HealthComponents struct {
	Test     float64 `json:"test"`
	Activity float64 `json:"activity"`
	Error    float64 `json:"error"`
}

// HealthScore computes a project's 0-100 composite and its component
// breakdown from its current test status and rolling 24h counters
// (spec.md §4.3).
func HealthScore(status model.TestStatus, eventsLast24h, failuresLast24h int) (score int, components HealthComponents) {
	switch status {
	case model.TestPassing:
		components.Test = 100
	case model.TestFailing:
		components.Test = 0
	default:
		components.Test = 60
	}

	components.Activity = 100 * float64(eventsLast24h) / float64(activityCapPerDay)
	if components.Activity > 100 {
		components.Activity = 100
	}

	if eventsLast24h > 0 {
		components.Error = 100 * (1 - float64(failuresLast24h)/float64(eventsLast24h))
	} else {
		components.Error = 100
	}

	weighted := 0.4*components.Test + 0.3*components.Activity + 0.3*components.Error
	score = int(weighted + 0.5)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, components
}

// HealthTrend returns the sign of (today - yesterday) for two previously
// computed health scores (spec.md §4.3).
func HealthTrend(today, yesterday int) int {
	return Sign(float64(today - yesterday))
}
