package hub

import (
	"context"
	"testing"
	"time"

	"github.com/devpulse/server/internal/model"
)

func TestSendInitialThenEventOrdering(t *testing.T) {
	h := New()
	sub := h.Subscribe("")

	h.SendInitial(sub, Snapshot{})
	h.PublishEvent(model.HookEvent{SessionID: "s1"}, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, ok := sub.Next(ctx)
	if !ok || first.Type != KindInitial {
		t.Fatalf("expected initial message first, got %+v", first)
	}
	second, ok := sub.Next(ctx)
	if !ok || second.Type != KindEvent {
		t.Fatalf("expected event message second, got %+v", second)
	}
}

func TestProjectFilterExcludesOtherProjects(t *testing.T) {
	h := New()
	sub := h.Subscribe("alpha")

	h.PublishProjects(model.Project{Name: "beta"})
	h.PublishProjects(model.Project{Name: "alpha"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := sub.Next(ctx)
	if !ok {
		t.Fatal("expected one message to arrive")
	}
	p, ok := msg.Data.(model.Project)
	if !ok || p.Name != "alpha" {
		t.Fatalf("expected only the alpha project to reach the subscriber, got %+v", msg)
	}
}

func TestGlobalNotificationsReachFilteredSubscribers(t *testing.T) {
	h := New()
	sub := h.Subscribe("alpha")

	h.PublishAlert(model.Alert{ID: "a1", Kind: model.AlertErrorSpike})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := sub.Next(ctx)
	if !ok || msg.Type != KindAlerts {
		t.Fatalf("expected a global alert to reach a project-filtered subscriber, got %+v", msg)
	}
}

func TestEnqueueCoalescesSameKindWhenFull(t *testing.T) {
	sub := newSubscriber("")
	for i := 0; i < bufferSize; i++ {
		sub.enqueue(Message{Type: KindProjects, Data: i})
	}
	// Buffer full of KindProjects messages; one more should coalesce by
	// dropping the oldest KindProjects entry, not growing the queue.
	sub.enqueue(Message{Type: KindProjects, Data: "newest"})

	sub.mu.Lock()
	n := len(sub.queue)
	first := sub.queue[0].Data
	last := sub.queue[len(sub.queue)-1].Data
	sub.mu.Unlock()

	if n != bufferSize {
		t.Fatalf("queue length = %d, want %d (coalesced, not grown)", n, bufferSize)
	}
	if first != 1 {
		t.Fatalf("expected the oldest entry (0) dropped, first = %v", first)
	}
	if last != "newest" {
		t.Fatalf("expected the newest entry appended, last = %v", last)
	}
}

func TestEnqueueDropsOldestEventWhenFullOfEvents(t *testing.T) {
	sub := newSubscriber("")
	for i := 0; i < bufferSize; i++ {
		sub.enqueue(Message{Type: KindEvent, Data: i})
	}
	sub.enqueue(Message{Type: KindEvent, Data: "newest"})

	sub.mu.Lock()
	n := len(sub.queue)
	first := sub.queue[0].Data
	sub.mu.Unlock()

	if n != bufferSize {
		t.Fatalf("queue length = %d, want %d", n, bufferSize)
	}
	if first != 1 {
		t.Fatalf("expected event kind to drop the oldest entry too, first = %v", first)
	}
}

func TestNextReturnsFalseOnContextCancel(t *testing.T) {
	sub := newSubscriber("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := sub.Next(ctx)
	if ok {
		t.Fatal("expected Next to return false once context is canceled")
	}
}

func TestUnsubscribeClosesSubscriber(t *testing.T) {
	h := New()
	sub := h.Subscribe("")
	h.Unsubscribe(sub)
	h.PublishEvent(model.HookEvent{}, "")

	sub.mu.Lock()
	n := len(sub.queue)
	sub.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected a closed subscriber to ignore further publishes, queue len = %d", n)
	}
}
