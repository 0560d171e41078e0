// Package alert computes DevPulse's alert set from rolling event metrics
// and live session state (spec.md §4.5).
package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/devpulse/server/internal/config"
	"github.com/devpulse/server/internal/model"
)

// eventSample is one ingested event's contribution to the rolling error-rate
// window.
type eventSample struct {
	at      time.Time
	failure bool
}

// Engine tracks the rolling 10-minute counters and the currently-firing
// alert set. Rebuilt on startup from the last window of events per spec.md
// §5 ("the alert state is rebuilt on startup from the last 10 min of
// events and updated by the writer").
type Engine struct {
	cfg config.AlertConfig

	mu      sync.Mutex
	samples []eventSample
	active  map[model.DedupKey]model.Alert
}

// New returns an Engine configured with cfg's window and thresholds.
func New(cfg config.AlertConfig) *Engine {
	return &Engine{
		cfg:    cfg,
		active: make(map[model.DedupKey]model.Alert),
	}
}

// RecordEvent feeds one ingested event into the rolling error-rate counter.
// Only events fed here count toward error_spike's total/failure ratio.
func (e *Engine) RecordEvent(eventType model.HookEventType, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = append(e.samples, eventSample{at: at, failure: eventType == model.PostToolUseFailure})
	e.prune(at)
}

func (e *Engine) prune(now time.Time) {
	cutoff := now.Add(-time.Duration(e.cfg.WindowMinutes) * time.Minute)
	kept := e.samples[:0:0]
	for _, s := range e.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	e.samples = kept
}

// errorRate returns (failures, total, ratio) over the current window.
func (e *Engine) errorRate(now time.Time) (int, int, float64) {
	e.prune(now)
	total, failures := 0, 0
	for _, s := range e.samples {
		total++
		if s.failure {
			failures++
		}
	}
	if total == 0 {
		return 0, 0, 0
	}
	return failures, total, float64(failures) / float64(total)
}

// Evaluate recomputes the alert set against the current rolling counters
// and the supplied live sessions, returning every alert newly raised or
// newly cleared since the previous call. Alerts are deduplicated by
// (kind, agentLabel): already-active alerts are not returned again while
// their condition persists, and become re-emittable once cleared (spec.md
// §4.5).
func (e *Engine) Evaluate(sessions []model.Session, now time.Time) (raised []model.Alert, cleared []model.DedupKey) {
	e.mu.Lock()
	defer e.mu.Unlock()

	wanted := make(map[model.DedupKey]model.Alert)

	if failures, total, ratio := e.errorRate(now); total >= e.cfg.ErrorRateMinSample && ratio > e.cfg.ErrorRateThreshold {
		key := model.DedupKey{Kind: model.AlertErrorSpike, AgentLabel: "global"}
		wanted[key] = model.Alert{
			ID: alertID(key, now), Kind: model.AlertErrorSpike, AgentLabel: "global",
			Severity:   severityFor(ratio > e.cfg.ErrorRateCritical),
			Message:    fmt.Sprintf("%d of %d recent events failed (%.0f%%)", failures, total, ratio*100),
			DetectedAt: now.UnixMilli(),
		}
	}

	for _, sess := range sessions {
		label := sess.AgentID()
		idleFor := now.Sub(time.UnixMilli(sess.LastEventAt))

		switch sess.Status {
		case model.StatusActive:
			if minutes := idleFor.Minutes(); minutes > e.cfg.StuckAfterMinutes {
				key := model.DedupKey{Kind: model.AlertStuckSession, AgentLabel: label}
				wanted[key] = model.Alert{
					ID: alertID(key, now), Kind: model.AlertStuckSession, AgentLabel: label,
					Severity:   severityFor(minutes > e.cfg.CriticalAfterMinutes),
					Message:    fmt.Sprintf("%s has had no activity for %.0f minutes", label, minutes),
					DetectedAt: now.UnixMilli(),
				}
			}
		case model.StatusWaiting:
			if minutes := idleFor.Minutes(); minutes > e.cfg.WaitingAfterMinutes {
				key := model.DedupKey{Kind: model.AlertWaitingTooLong, AgentLabel: label}
				wanted[key] = model.Alert{
					ID: alertID(key, now), Kind: model.AlertWaitingTooLong, AgentLabel: label,
					Severity:   severityFor(minutes > e.cfg.CriticalAfterMinutes),
					Message:    fmt.Sprintf("%s has been waiting for %.0f minutes", label, minutes),
					DetectedAt: now.UnixMilli(),
				}
			}
		}
	}

	for key, al := range wanted {
		if _, already := e.active[key]; !already {
			raised = append(raised, al)
		}
	}
	for key := range e.active {
		if _, stillWanted := wanted[key]; !stillWanted {
			cleared = append(cleared, key)
		}
	}
	e.active = wanted

	return raised, cleared
}

// Active returns every alert currently firing, for the initial snapshot
// sent to new subscribers (spec.md §4.8).
func (e *Engine) Active() []model.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Alert, 0, len(e.active))
	for _, al := range e.active {
		out = append(out, al)
	}
	return out
}

func severityFor(critical bool) model.AlertSeverity {
	if critical {
		return model.AlertCritical
	}
	return model.AlertWarning
}

func alertID(key model.DedupKey, now time.Time) string {
	return fmt.Sprintf("%s:%s:%d", key.Kind, key.AgentLabel, now.UnixMilli())
}
