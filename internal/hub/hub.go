// Package hub is DevPulse's in-process broadcast hub: a single writer
// fans typed notifications out to bounded per-subscriber queues (spec.md
// §4.8). Generalized from the teacher's single-kind session broadcaster
// into multi-kind notifications with per-kind coalescing.
package hub

import (
	"context"
	"sync"

	"github.com/devpulse/server/internal/model"
)

// Kind is a subscriber-stream message's notification type (spec.md §6
// "type ∈ {initial, event, projects, sessions, devlogs, topology,
// conflicts, alerts}").
type Kind string

const (
	KindInitial   Kind = "initial"
	KindEvent     Kind = "event"
	KindProjects  Kind = "projects"
	KindSessions  Kind = "sessions"
	KindDevlogs   Kind = "devlogs"
	KindTopology  Kind = "topology"
	KindConflicts Kind = "conflicts"
	KindAlerts    Kind = "alerts"
)

// bufferSize is each subscriber's bounded outbound buffer (spec.md §4.8
// default 256).
const bufferSize = 256

// SnapshotSize is how many recent events the initial snapshot carries
// (spec.md §4.8 "last N=150 events").
const SnapshotSize = 150

// Message is one frame sent to a subscriber (spec.md §6 "{type, data}").
type Message struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

// Snapshot is the combined payload of the single "initial" message sent on
// connect (spec.md §4.8 (a)-(f)).
type Snapshot struct {
	Events    []model.HookEvent   `json:"events"`
	Projects  []model.Project     `json:"projects"`
	Sessions  []model.Session     `json:"sessions"`
	Topology  []model.AgentNode   `json:"topology"`
	Conflicts []model.FileConflict `json:"conflicts"`
	Alerts    []model.Alert       `json:"alerts"`
}

// Hub owns the live subscriber set. Mutations (Subscribe/Unsubscribe,
// Publish*) all happen on the writer task, per spec.md §5's "the Broadcast
// Hub... runs as an independent long-lived task."
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new subscriber filtered to projectFilter (empty
// string subscribes to every project), per spec.md §4.8 "subscribers may
// be filtered by project at connect time; filter evaluation is on the
// sender side."
func (h *Hub) Subscribe(projectFilter string) *Subscriber {
	sub := newSubscriber(projectFilter)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes and closes sub.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.close()
}

// SubscriberCount reports how many subscribers are currently connected.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// SendInitial enqueues snap as sub's single "initial" message.
func (h *Hub) SendInitial(sub *Subscriber, snap Snapshot) {
	sub.enqueue(Message{Type: KindInitial, Data: snap})
}

// publish fans msg out to every subscriber whose project filter accepts
// projectName. An empty projectName (e.g. an admin-level notification)
// reaches every subscriber.
func (h *Hub) publish(kind Kind, data any, projectName string) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	msg := Message{Type: kind, Data: data}
	for _, s := range subs {
		if s.accepts(projectName) {
			s.enqueue(msg)
		}
	}
}

// PublishEvent fans out a newly committed event (spec.md §4.2 step 5,
// §5 "events are broadcast in the order they were committed"). Callers
// must call this synchronously, immediately after commit and before any
// other Publish* call for the same ingest, so derived-state notifications
// are ordered after the event that produced them (spec.md §5).
func (h *Hub) PublishEvent(e model.HookEvent, projectName string) {
	h.publish(KindEvent, e, projectName)
}

// PublishProjects fans out an updated project snapshot.
func (h *Hub) PublishProjects(p model.Project) {
	h.publish(KindProjects, p, p.Name)
}

// PublishSessions fans out an updated session snapshot.
func (h *Hub) PublishSessions(s model.Session, projectName string) {
	h.publish(KindSessions, s, projectName)
}

// PublishDevlog fans out a newly written DevLog.
func (h *Hub) PublishDevlog(d model.DevLog) {
	h.publish(KindDevlogs, d, d.ProjectName)
}

// PublishTopology fans out a project's updated agent topology.
func (h *Hub) PublishTopology(nodes []model.AgentNode, projectName string) {
	h.publish(KindTopology, nodes, projectName)
}

// PublishConflict fans out a newly detected or updated FileConflict. The
// Conflict Detector has no project-exclusive view of a file (any agent in
// any project may touch it), so conflicts reach every subscriber.
func (h *Hub) PublishConflict(c model.FileConflict) {
	h.publish(KindConflicts, c, "")
}

// PublishAlert fans out a newly raised alert. Alerts are global (error
// rate, stuck/waiting sessions are not project-scoped), so they reach
// every subscriber.
func (h *Hub) PublishAlert(a model.Alert) {
	h.publish(KindAlerts, a, "")
}

// Subscriber is one connected stream client's bounded, coalescing message
// queue (spec.md §4.8). Subscriber owns no network connection itself; the
// transport layer (internal/api) calls Next to pull messages and write
// them to the wire, applying its own write-deadline-based grace period.
type Subscriber struct {
	projectFilter string

	mu     sync.Mutex
	queue  []Message
	closed bool
	notify chan struct{}
}

func newSubscriber(projectFilter string) *Subscriber {
	return &Subscriber{
		projectFilter: projectFilter,
		notify:        make(chan struct{}, 1),
	}
}

func (s *Subscriber) accepts(projectName string) bool {
	return s.projectFilter == "" || projectName == "" || s.projectFilter == projectName
}

// enqueue appends msg, applying the coalescing backpressure policy when
// the buffer is full: drop the oldest pending message of the same kind
// (coalescing semantics; event messages are treated the same way, so a
// queue full of events sheds its oldest event); if the queue holds no
// message of that kind, drop the oldest message overall instead (spec.md
// §4.8).
func (s *Subscriber) enqueue(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if len(s.queue) >= bufferSize {
		dropped := false
		for i, m := range s.queue {
			if m.Type == msg.Type {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			s.queue = s.queue[1:]
		}
	}

	s.queue = append(s.queue, msg)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest queued message, if any.
func (s *Subscriber) pop() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Message{}, false
	}
	m := s.queue[0]
	s.queue = s.queue[1:]
	return m, true
}

// Next blocks until a message is available or ctx is canceled (spec.md §5
// "a subscriber context cancellation drains its queue and closes the
// stream cleanly" -- the caller is expected to keep calling Next until it
// returns ok == false, which drains whatever remains queued).
func (s *Subscriber) Next(ctx context.Context) (Message, bool) {
	for {
		if m, ok := s.pop(); ok {
			return m, true
		}
		select {
		case <-s.notify:
			continue
		case <-ctx.Done():
			return Message{}, false
		}
	}
}

// close marks the subscriber closed; further enqueue calls are no-ops.
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
