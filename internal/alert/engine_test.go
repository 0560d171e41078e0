package alert

import (
	"testing"
	"time"

	"github.com/devpulse/server/internal/config"
	"github.com/devpulse/server/internal/model"
)

func testConfig() config.AlertConfig {
	return config.AlertConfig{
		WindowMinutes:        10,
		ErrorRateThreshold:   0.3,
		ErrorRateMinSample:   10,
		ErrorRateCritical:    0.5,
		StuckAfterMinutes:    10,
		WaitingAfterMinutes:  5,
		CriticalAfterMinutes: 30,
	}
}

func TestErrorSpikeRequiresMinSample(t *testing.T) {
	e := New(testConfig())
	now := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		e.RecordEvent(model.PostToolUseFailure, now)
	}
	raised, _ := e.Evaluate(nil, now)
	if len(raised) != 0 {
		t.Fatalf("expected no error_spike below min sample, got %+v", raised)
	}
}

func TestErrorSpikeFiresAboveThreshold(t *testing.T) {
	e := New(testConfig())
	now := time.Unix(1700000000, 0)
	for i := 0; i < 4; i++ {
		e.RecordEvent(model.PostToolUseFailure, now)
	}
	for i := 0; i < 6; i++ {
		e.RecordEvent(model.PostToolUse, now)
	}
	raised, _ := e.Evaluate(nil, now)
	if len(raised) != 1 || raised[0].Kind != model.AlertErrorSpike {
		t.Fatalf("expected one error_spike alert, got %+v", raised)
	}
	if raised[0].Severity != model.AlertWarning {
		t.Errorf("Severity = %s, want warning at 40%% failure rate", raised[0].Severity)
	}
}

func TestErrorSpikeDedupedAcrossCalls(t *testing.T) {
	e := New(testConfig())
	now := time.Unix(1700000000, 0)
	for i := 0; i < 10; i++ {
		e.RecordEvent(model.PostToolUseFailure, now)
	}
	first, _ := e.Evaluate(nil, now)
	if len(first) != 1 {
		t.Fatalf("expected first Evaluate to raise, got %+v", first)
	}
	second, cleared := e.Evaluate(nil, now)
	if len(second) != 0 {
		t.Fatalf("expected second Evaluate not to re-raise while condition persists, got %+v", second)
	}
	if len(cleared) != 0 {
		t.Fatalf("expected nothing cleared, got %+v", cleared)
	}
}

func TestErrorSpikeClearsWhenRateDrops(t *testing.T) {
	e := New(testConfig())
	now := time.Unix(1700000000, 0)
	for i := 0; i < 10; i++ {
		e.RecordEvent(model.PostToolUseFailure, now)
	}
	e.Evaluate(nil, now)

	later := now.Add(11 * time.Minute) // outside the 10 min window, samples prune away
	_, cleared := e.Evaluate(nil, later)
	if len(cleared) != 1 || cleared[0].Kind != model.AlertErrorSpike {
		t.Fatalf("expected error_spike to clear once samples age out, got %+v", cleared)
	}
}

func TestStuckSessionAlert(t *testing.T) {
	e := New(testConfig())
	now := time.Unix(1700000000, 0)
	sess := model.Session{
		SourceApp: "claude", SessionID: "s1", Status: model.StatusActive,
		LastEventAt: now.Add(-15 * time.Minute).UnixMilli(),
	}
	raised, _ := e.Evaluate([]model.Session{sess}, now)
	if len(raised) != 1 || raised[0].Kind != model.AlertStuckSession {
		t.Fatalf("expected stuck_session alert, got %+v", raised)
	}
}

func TestWaitingTooLongAlertSeverityEscalates(t *testing.T) {
	e := New(testConfig())
	now := time.Unix(1700000000, 0)
	sess := model.Session{
		SourceApp: "claude", SessionID: "s1", Status: model.StatusWaiting,
		LastEventAt: now.Add(-40 * time.Minute).UnixMilli(),
	}
	raised, _ := e.Evaluate([]model.Session{sess}, now)
	if len(raised) != 1 || raised[0].Severity != model.AlertCritical {
		t.Fatalf("expected critical waiting_too_long beyond 30 min, got %+v", raised)
	}
}

func TestNoAlertForHealthySession(t *testing.T) {
	e := New(testConfig())
	now := time.Unix(1700000000, 0)
	sess := model.Session{
		SourceApp: "claude", SessionID: "s1", Status: model.StatusActive,
		LastEventAt: now.Add(-1 * time.Minute).UnixMilli(),
	}
	raised, _ := e.Evaluate([]model.Session{sess}, now)
	if len(raised) != 0 {
		t.Fatalf("expected no alerts for a healthy session, got %+v", raised)
	}
}
