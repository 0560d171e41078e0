package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/devpulse/server/internal/model"

	_ "modernc.org/sqlite"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tm.UTC()
}

// testStore returns a Store backed by an in-memory SQLite database.
func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	s, err := NewFromDB(db, zerolog.Nop())
	if err != nil {
		db.Close()
		t.Fatalf("new store from db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendEventAssignsID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var e1, e2 *model.HookEvent
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		e1 = &model.HookEvent{SourceApp: "claude", SessionID: "s1", HookEventType: model.SessionStart, Payload: []byte("{}"), Timestamp: 1000}
		if err := s.AppendEvent(tx, e1); err != nil {
			return err
		}
		e2 = &model.HookEvent{SourceApp: "claude", SessionID: "s1", HookEventType: model.Stop, Payload: []byte("{}"), Timestamp: 2000}
		return s.AppendEvent(tx, e2)
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if e1.ID == 0 || e2.ID == 0 || e1.ID == e2.ID {
		t.Fatalf("expected distinct assigned ids, got %d and %d", e1.ID, e2.ID)
	}

	events, err := s.ListEvents(ctx, EventFilter{SessionID: "s1"}, 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ListEvents returned %d events, want 2", len(events))
	}
	if events[0].HookEventType != model.Stop {
		t.Errorf("ListEvents[0] = %s, want most-recent-first ordering", events[0].HookEventType)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		e := &model.HookEvent{SourceApp: "claude", SessionID: "s1", HookEventType: model.SessionStart, Payload: []byte("{}"), Timestamp: 1000}
		if err := s.AppendEvent(tx, e); err != nil {
			return err
		}
		return sql.ErrTxDone
	})
	if err == nil {
		t.Fatal("expected WithTx to propagate error")
	}

	events, err := s.ListEvents(ctx, EventFilter{}, 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected rollback to discard the insert, got %d events", len(events))
	}
}

func TestUpsertSessionRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &model.Session{
		SourceApp: "claude", SessionID: "s1", ProjectName: "devpulse",
		Status: model.StatusActive, StartedAt: 1000, LastEventAt: 1000,
		EventCount: 1, CompactionHistory: []int64{500, 900},
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error { return s.UpsertSession(tx, sess) })
	if err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	got, err := s.GetSessionByID(ctx, model.SessionKey{SourceApp: "claude", SessionID: "s1"})
	if err != nil {
		t.Fatalf("GetSessionByID: %v", err)
	}
	if got.ProjectName != "devpulse" || got.Status != model.StatusActive {
		t.Errorf("got %+v", got)
	}
	if len(got.CompactionHistory) != 2 || got.CompactionHistory[1] != 900 {
		t.Errorf("CompactionHistory = %v, want [500 900]", got.CompactionHistory)
	}

	sess.Status = model.StatusStopped
	sess.EventCount = 2
	err = s.WithTx(ctx, func(tx *sql.Tx) error { return s.UpsertSession(tx, sess) })
	if err != nil {
		t.Fatalf("UpsertSession (update): %v", err)
	}
	got, err = s.GetSessionByID(ctx, model.SessionKey{SourceApp: "claude", SessionID: "s1"})
	if err != nil {
		t.Fatalf("GetSessionByID: %v", err)
	}
	if got.Status != model.StatusStopped || got.EventCount != 2 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestGetSessionByIDNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetSessionByID(context.Background(), model.SessionKey{SourceApp: "claude", SessionID: "missing"})
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestUpsertAgentNodeKeepsStickyParent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.UpsertAgentNode(tx, &model.AgentNode{AgentID: "claude:root", ProjectName: "devpulse", Status: "active"}); err != nil {
			return err
		}
		return s.UpsertAgentNode(tx, &model.AgentNode{AgentID: "claude:child", ParentID: "claude:root", ProjectName: "devpulse", Status: "active"})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A later update for claude:child with no parent must not clear the
	// sticky edge established by SubagentStart.
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.UpsertAgentNode(tx, &model.AgentNode{AgentID: "claude:child", ProjectName: "devpulse", Status: "stopped"})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	nodes, err := s.ListAgentNodes(ctx, "devpulse")
	if err != nil {
		t.Fatalf("ListAgentNodes: %v", err)
	}
	var child *model.AgentNode
	for i := range nodes {
		if nodes[i].AgentID == "claude:child" {
			child = &nodes[i]
		}
	}
	if child == nil {
		t.Fatal("claude:child not found")
	}
	if child.ParentID != "claude:root" {
		t.Errorf("ParentID = %q, want sticky %q", child.ParentID, "claude:root")
	}
	if child.Status != "stopped" {
		t.Errorf("Status = %q, want updated %q", child.Status, "stopped")
	}
}

func TestConflictUpsertAndDismiss(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := &model.FileConflict{
		ID: "c1", FilePath: "src/main.go", Severity: model.SeverityMedium, DetectedAt: 1000,
		Projects: []model.ConflictAgent{{ProjectName: "devpulse", AgentID: "claude:s1", AccessType: model.AccessWrite, LastAccess: 1000}},
	}
	if err := s.InsertConflict(ctx, c); err != nil {
		t.Fatalf("InsertConflict: %v", err)
	}

	active, err := s.ListConflicts(ctx, false)
	if err != nil {
		t.Fatalf("ListConflicts: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("ListConflicts = %d, want 1", len(active))
	}

	if err := s.DismissConflict(ctx, "c1"); err != nil {
		t.Fatalf("DismissConflict: %v", err)
	}
	active, err = s.ListConflicts(ctx, false)
	if err != nil {
		t.Fatalf("ListConflicts after dismiss: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("ListConflicts after dismiss = %d, want 0", len(active))
	}

	all, err := s.ListConflicts(ctx, true)
	if err != nil {
		t.Fatalf("ListConflicts(include dismissed): %v", err)
	}
	if len(all) != 1 || !all[0].Dismissed {
		t.Fatalf("expected 1 dismissed conflict, got %+v", all)
	}
}

func TestDismissConflictNotFound(t *testing.T) {
	s := testStore(t)
	if err := s.DismissConflict(context.Background(), "nope"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestWebhookCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	w := &model.Webhook{ID: "w1", Name: "ci", URL: "https://example.com/hook", Active: true, EventTypes: []string{"Stop"}}
	if err := s.CreateWebhook(ctx, w); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}

	got, err := s.GetWebhook(ctx, "w1")
	if err != nil {
		t.Fatalf("GetWebhook: %v", err)
	}
	if got.URL != w.URL || len(got.EventTypes) != 1 || got.EventTypes[0] != "Stop" {
		t.Errorf("got %+v", got)
	}

	w.Active = false
	if err := s.UpdateWebhook(ctx, w); err != nil {
		t.Fatalf("UpdateWebhook: %v", err)
	}
	got, err = s.GetWebhook(ctx, "w1")
	if err != nil {
		t.Fatalf("GetWebhook after update: %v", err)
	}
	if got.Active {
		t.Error("expected Active = false after update")
	}

	if err := s.RecordWebhookDelivery(ctx, "w1", 200, ""); err != nil {
		t.Fatalf("RecordWebhookDelivery: %v", err)
	}
	got, _ = s.GetWebhook(ctx, "w1")
	if got.TriggerCount != 1 || got.FailureCount != 0 {
		t.Errorf("delivery counters = %+v", got)
	}

	if err := s.DeleteWebhook(ctx, "w1"); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
	if _, err := s.GetWebhook(ctx, "w1"); err == nil {
		t.Fatal("expected not-found after delete")
	}
}

func TestSettingsGetSetFallback(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	got, err := s.GetSetting(ctx, "retention.events.days", "30")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if got != "30" {
		t.Errorf("GetSetting fallback = %q, want %q", got, "30")
	}

	if err := s.SetSetting(ctx, "retention.events.days", "7"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	got, err = s.GetSetting(ctx, "retention.events.days", "30")
	if err != nil {
		t.Fatalf("GetSetting after set: %v", err)
	}
	if got != "7" {
		t.Errorf("GetSetting = %q, want %q", got, "7")
	}
}

func TestSearchEmptyQueryReturnsEmpty(t *testing.T) {
	s := testStore(t)
	result, err := s.Search(context.Background(), "", ScopeAll, 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Events) != 0 || len(result.Sessions) != 0 || len(result.DevLogs) != 0 {
		t.Fatalf("expected empty result for empty query, got %+v", result)
	}
}

func TestSearchMatchesEventSummary(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		e := &model.HookEvent{SourceApp: "claude", SessionID: "s1", HookEventType: model.PostToolUse, Payload: []byte("{}"), Summary: "ran build script", Timestamp: 1000}
		return s.AppendEvent(tx, e)
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}

	result, err := s.Search(ctx, "build", ScopeEvents, 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("Search matched %d events, want 1", len(result.Events))
	}
}

func TestDeleteEventsBefore(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, ts := range []int64{100, 200, 9000} {
			e := &model.HookEvent{SourceApp: "claude", SessionID: "s1", HookEventType: model.SessionStart, Payload: []byte("{}"), Timestamp: ts}
			if err := s.AppendEvent(tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := s.DeleteEventsBefore(ctx, 1000, 100)
	if err != nil {
		t.Fatalf("DeleteEventsBefore: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d events, want 2", n)
	}

	remaining, err := s.ListEvents(ctx, EventFilter{}, 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Timestamp != 9000 {
		t.Fatalf("remaining events = %+v", remaining)
	}
}

func TestDayAndISOWeekBounds(t *testing.T) {
	start, end := DayBounds(mustParse(t, "2026-07-31T15:04:05Z"))
	wantStart := mustParse(t, "2026-07-31T00:00:00Z").UnixMilli()
	wantEnd := mustParse(t, "2026-08-01T00:00:00Z").UnixMilli()
	if start != wantStart || end != wantEnd {
		t.Errorf("DayBounds = [%d, %d), want [%d, %d)", start, end, wantStart, wantEnd)
	}

	// 2026-07-31 is a Friday; its ISO week runs Monday 2026-07-27 through
	// Sunday 2026-08-02 (exclusive end Monday 2026-08-03).
	wstart, wend := ISOWeekBounds(mustParse(t, "2026-07-31T15:04:05Z"))
	wantWStart := mustParse(t, "2026-07-27T00:00:00Z").UnixMilli()
	wantWEnd := mustParse(t, "2026-08-03T00:00:00Z").UnixMilli()
	if wstart != wantWStart || wend != wantWEnd {
		t.Errorf("ISOWeekBounds = [%d, %d), want [%d, %d)", wstart, wend, wantWStart, wantWEnd)
	}
}
