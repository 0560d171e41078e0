package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/devpulse/server/internal/alert"
	"github.com/devpulse/server/internal/conflict"
	"github.com/devpulse/server/internal/config"
	"github.com/devpulse/server/internal/hub"
	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
	"github.com/devpulse/server/internal/webhook"
)

func testProcessor(t *testing.T) *Processor {
	t.Helper()
	s, err := store.Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := hub.New()
	cd := conflict.New(10 * time.Minute)
	ae := alert.New(config.AlertConfig{
		WindowMinutes:      10,
		ErrorRateThreshold: 0.3,
		ErrorRateMinSample: 10,
		ErrorRateCritical:  0.5,
		StuckAfterMinutes:  10,
	})
	wd := webhook.New(s, zerolog.Nop())
	return New(s, cd, ae, h, wd, zerolog.Nop())
}

func rawPayload(t *testing.T, v map[string]any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

func TestIngestRejectsMissingSourceApp(t *testing.T) {
	p := testProcessor(t)
	_, err := p.Ingest(context.Background(), model.HookEvent{
		SessionID:     "s1",
		HookEventType: model.PostToolUse,
		Payload:       rawPayload(t, map[string]any{}),
	})
	if err == nil {
		t.Fatal("expected an error for missing source_app")
	}
}

func TestIngestRejectsUnknownEventType(t *testing.T) {
	p := testProcessor(t)
	_, err := p.Ingest(context.Background(), model.HookEvent{
		SourceApp:     "claude",
		SessionID:     "s1",
		HookEventType: model.HookEventType("NotARealType"),
		Payload:       rawPayload(t, map[string]any{}),
	})
	if err == nil {
		t.Fatal("expected an error for an unrecognized hook_event_type")
	}
}

func TestIngestAssignsTimestampWhenAbsent(t *testing.T) {
	p := testProcessor(t)
	before := time.Now().UnixMilli()
	stored, err := p.Ingest(context.Background(), model.HookEvent{
		SourceApp:     "claude",
		SessionID:     "s1",
		HookEventType: model.PostToolUse,
		Payload:       rawPayload(t, map[string]any{}),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stored.Timestamp < before {
		t.Fatalf("expected an assigned timestamp >= %d, got %d", before, stored.Timestamp)
	}
	if stored.TimeSkew {
		t.Fatal("a freshly assigned timestamp should never be flagged as skewed")
	}
}

func TestIngestFlagsFutureSkewButStillStores(t *testing.T) {
	p := testProcessor(t)
	future := time.Now().Add(time.Hour).UnixMilli()
	stored, err := p.Ingest(context.Background(), model.HookEvent{
		SourceApp:     "claude",
		SessionID:     "s1",
		HookEventType: model.PostToolUse,
		Timestamp:     future,
		Payload:       rawPayload(t, map[string]any{}),
	})
	if err != nil {
		t.Fatalf("expected a skewed event to still be stored, got error: %v", err)
	}
	if !stored.TimeSkew {
		t.Fatal("expected a far-future timestamp to be flagged as skewed")
	}
	if stored.Timestamp != future {
		t.Fatalf("expected the original timestamp to be preserved, got %d", stored.Timestamp)
	}
}

func TestIngestInitializesSessionActive(t *testing.T) {
	p := testProcessor(t)
	ctx := context.Background()
	if _, err := p.Ingest(ctx, model.HookEvent{
		SourceApp: "claude", SessionID: "s1", HookEventType: model.PreToolUse,
		Payload: rawPayload(t, map[string]any{"project_name": "acme"}),
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	sessions, err := p.store.ListSessions(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != model.StatusActive {
		t.Fatalf("expected one active session, got %+v", sessions)
	}
	if sessions[0].EventCount != 1 {
		t.Fatalf("expected event_count 1, got %d", sessions[0].EventCount)
	}
}

func TestIngestActiveSessionsReflectsLiveCountNotEventCount(t *testing.T) {
	p := testProcessor(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := p.Ingest(ctx, model.HookEvent{
			SourceApp: "claude", SessionID: "s1", HookEventType: model.PreToolUse,
			Payload: rawPayload(t, map[string]any{"project_name": "acme"}),
		}); err != nil {
			t.Fatalf("Ingest event %d: %v", i, err)
		}
	}

	proj, err := p.store.GetProjectByName(ctx, "acme")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if proj == nil || proj.ActiveSessions != 1 {
		t.Fatalf("expected active_sessions == 1 after 3 events on one session, got %+v", proj)
	}

	if _, err := p.Ingest(ctx, model.HookEvent{
		SourceApp: "claude", SessionID: "s2", HookEventType: model.PreToolUse,
		Payload: rawPayload(t, map[string]any{"project_name": "acme"}),
	}); err != nil {
		t.Fatalf("Ingest second session: %v", err)
	}
	proj, err = p.store.GetProjectByName(ctx, "acme")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if proj.ActiveSessions != 2 {
		t.Fatalf("expected active_sessions == 2 with two live sessions, got %+v", proj)
	}

	if _, err := p.Ingest(ctx, model.HookEvent{
		SourceApp: "claude", SessionID: "s1", HookEventType: model.Stop,
		Payload: rawPayload(t, map[string]any{"project_name": "acme"}),
	}); err != nil {
		t.Fatalf("Ingest stop: %v", err)
	}
	proj, err = p.store.GetProjectByName(ctx, "acme")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if proj.ActiveSessions != 1 {
		t.Fatalf("expected active_sessions == 1 after s1 stops, got %+v", proj)
	}
}

func TestIngestNotificationStartsWaiting(t *testing.T) {
	p := testProcessor(t)
	ctx := context.Background()
	if _, err := p.Ingest(ctx, model.HookEvent{
		SourceApp: "claude", SessionID: "s1", HookEventType: model.Notification,
		Payload: rawPayload(t, map[string]any{"project_name": "acme"}),
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	sessions, err := p.store.ListSessions(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != model.StatusWaiting {
		t.Fatalf("expected one waiting session, got %+v", sessions)
	}
}

func TestIngestStopClosesSessionAndWritesDevLog(t *testing.T) {
	p := testProcessor(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, model.HookEvent{
		SourceApp: "claude", SessionID: "s1", HookEventType: model.PreToolUse,
		Payload: rawPayload(t, map[string]any{"project_name": "acme", "current_branch": "main"}),
	}); err != nil {
		t.Fatalf("Ingest first event: %v", err)
	}
	if _, err := p.Ingest(ctx, model.HookEvent{
		SourceApp: "claude", SessionID: "s1", HookEventType: model.Stop,
		Payload: rawPayload(t, map[string]any{"project_name": "acme"}),
	}); err != nil {
		t.Fatalf("Ingest stop event: %v", err)
	}

	sessions, err := p.store.ListSessions(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != model.StatusStopped {
		t.Fatalf("expected a stopped session, got %+v", sessions)
	}

	logs, err := p.store.ListDevLogs(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("list devlogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected exactly one devlog written on session close, got %d", len(logs))
	}
}

func TestIngestIgnoresEventsAfterStop(t *testing.T) {
	p := testProcessor(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, model.HookEvent{
		SourceApp: "claude", SessionID: "s1", HookEventType: model.Stop,
		Payload: rawPayload(t, map[string]any{"project_name": "acme"}),
	}); err != nil {
		t.Fatalf("Ingest stop event: %v", err)
	}
	if _, err := p.Ingest(ctx, model.HookEvent{
		SourceApp: "claude", SessionID: "s1", HookEventType: model.PreToolUse,
		Payload: rawPayload(t, map[string]any{"project_name": "acme"}),
	}); err != nil {
		t.Fatalf("Ingest event after stop: %v", err)
	}

	sessions, err := p.store.ListSessions(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != model.StatusStopped {
		t.Fatalf("expected the session to remain stopped, got %+v", sessions)
	}
	if sessions[0].EventCount != 2 {
		t.Fatalf("expected the post-stop event to still be counted, got %d", sessions[0].EventCount)
	}
}

func TestIngestTracksToolFailureCounters(t *testing.T) {
	p := testProcessor(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, model.HookEvent{
		SourceApp: "claude", SessionID: "s1", HookEventType: model.PostToolUse,
		Payload: rawPayload(t, map[string]any{"project_name": "acme", "tool_name": "Read"}),
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := p.Ingest(ctx, model.HookEvent{
		SourceApp: "claude", SessionID: "s1", HookEventType: model.PostToolUseFailure,
		Payload: rawPayload(t, map[string]any{"project_name": "acme", "tool_name": "Write"}),
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	sessions, err := p.store.ListSessions(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ToolUseCount != 2 || sessions[0].ToolFailureCount != 1 {
		t.Fatalf("expected 2 tool uses, 1 failure, got %+v", sessions[0])
	}
}

func TestIngestWritesSubagentTopologyEdge(t *testing.T) {
	p := testProcessor(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, model.HookEvent{
		SourceApp: "claude", SessionID: "child", HookEventType: model.SubagentStart,
		Payload: rawPayload(t, map[string]any{"project_name": "acme", "parent_id": "claude:parent"}),
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	nodes, err := p.store.ListAgentNodes(ctx, "acme")
	if err != nil {
		t.Fatalf("list agent nodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ParentID != "claude:parent" {
		t.Fatalf("expected one topology edge to the declared parent, got %+v", nodes)
	}
}

func TestIngestBroadcastsEventBeforeDerivedState(t *testing.T) {
	p := testProcessor(t)
	sub := p.hub.Subscribe("")

	if _, err := p.Ingest(context.Background(), model.HookEvent{
		SourceApp: "claude", SessionID: "s1", HookEventType: model.PreToolUse,
		Payload: rawPayload(t, map[string]any{"project_name": "acme"}),
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first, ok := sub.Next(ctx)
	if !ok || first.Type != hub.KindEvent {
		t.Fatalf("expected the event notification first, got %+v", first)
	}
	second, ok := sub.Next(ctx)
	if !ok || second.Type != hub.KindSessions {
		t.Fatalf("expected the session notification second, got %+v", second)
	}
}
