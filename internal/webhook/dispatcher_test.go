package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAttemptSignsPayload(t *testing.T) {
	var gotSig, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-DevPulse-Signature")
		body, _ := json.Marshal(map[string]string{"ok": "ok"})
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := testStore(t)
	d := New(s, zerolog.Nop())

	w := model.Webhook{ID: "wh1", URL: srv.URL, Secret: "s3cr3t", Active: true}
	status, err := d.attempt(context.Background(), w, model.OutboundPayload{Type: "PostToolUse"})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if gotSig == "" {
		t.Fatal("expected a signature header to be sent")
	}
	_ = gotBody
}

func TestAttemptNonSecretWebhookSendsNoSignature(t *testing.T) {
	var gotSig string
	sawHeader := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-DevPulse-Signature")
		sawHeader = gotSig != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := testStore(t)
	d := New(s, zerolog.Nop())
	w := model.Webhook{ID: "wh1", URL: srv.URL, Active: true}
	if _, err := d.attempt(context.Background(), w, model.OutboundPayload{}); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if sawHeader {
		t.Fatalf("expected no signature header without a secret, got %q", gotSig)
	}
}

func TestAttemptNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := testStore(t)
	d := New(s, zerolog.Nop())
	w := model.Webhook{ID: "wh1", URL: srv.URL, Active: true}
	status, err := d.attempt(context.Background(), w, model.OutboundPayload{})
	if err == nil {
		t.Fatal("expected an error on a 500 response")
	}
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
}

func TestQueuePushDropsOldestWhenFull(t *testing.T) {
	q := newWebhookQueue()
	for i := 0; i < queueCapacity; i++ {
		if dropped := q.push(outboundJob{webhookID: "wh1"}); dropped {
			t.Fatalf("unexpected drop at job %d", i)
		}
	}
	if dropped := q.push(outboundJob{webhookID: "wh1"}); !dropped {
		t.Fatal("expected the queue to drop the oldest pending job once full")
	}
	if len(q.ch) != queueCapacity {
		t.Fatalf("queue length = %d, want %d", len(q.ch), queueCapacity)
	}
}

func TestDispatchSkipsInactiveWebhook(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := testStore(t)
	ctx := context.Background()
	if err := s.CreateWebhook(ctx, &model.Webhook{ID: "wh1", Name: "n", URL: srv.URL, Active: false}); err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	d := New(s, zerolog.Nop())
	d.Dispatch(ctx, model.HookEvent{HookEventType: model.PostToolUse}, "proj")

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected inactive webhook not to be hit, got %d hits", hits)
	}
}
