package derive

import (
	"github.com/devpulse/server/internal/config"
	"github.com/devpulse/server/internal/model"
)

// bytesPerToken is the rough chars-per-token heuristic used across the
// ecosystem for estimate-only cost accounting (spec.md §1 non-goals rule out
// exact token/cost accounting).
const bytesPerToken = 4.0

// CostEstimate is the estimated $ spend attributable to one grouping key
// (project, session, or day) for the events it was computed from.
type CostEstimate struct {
	Key           string  `json:"key"`
	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
}

// EstimateCost sums estimated input/output tokens across events and prices
// them using cfg's per-model table, keyed under key (spec.md §4.3 costs).
// UserPromptSubmit payload bytes count as input; every other event type's
// payload bytes count as output, approximating the prompt/response split.
func EstimateCost(cfg *config.Config, key string, events []model.HookEvent) CostEstimate {
	est := CostEstimate{Key: key}
	var cost float64

	for _, e := range events {
		tokens := int64(float64(len(e.Payload)) / bytesPerToken)
		pricing := cfg.Pricing(e.ModelName)
		if e.HookEventType == model.UserPromptSubmit {
			est.InputTokens += tokens
			cost += float64(tokens) / 1_000_000 * pricing.InputPerMtok
		} else {
			est.OutputTokens += tokens
			cost += float64(tokens) / 1_000_000 * pricing.OutputPerMtok
		}
	}

	est.EstimatedCost = cost
	return est
}

// GroupEventsByModel partitions events by model_name, used when a cost
// query needs a per-model breakdown rather than a single total.
func GroupEventsByModel(events []model.HookEvent) map[string][]model.HookEvent {
	out := make(map[string][]model.HookEvent)
	for _, e := range events {
		out[e.ModelName] = append(out[e.ModelName], e)
	}
	return out
}
