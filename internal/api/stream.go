package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devpulse/server/internal/hub"
	"github.com/devpulse/server/internal/store"
)

// writeWait is the grace period for flushing a queued message to the wire
// before the connection is considered dead (spec.md §5).
const writeWait = 30 * time.Second

// handleStream is GET /stream?project= (spec.md §4.8, §6). It upgrades to a
// WebSocket, sends one "initial" snapshot, then forwards every subsequent
// hub notification until the client disconnects or the subscriber's queue
// is torn down, generalized from the teacher's ws.Server.handleWS.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("stream: upgrade failed")
		return
	}
	defer conn.Close()

	projectFilter := r.URL.Query().Get("project")
	sub := s.hub.Subscribe(projectFilter)
	defer s.hub.Unsubscribe(sub)

	s.hub.SendInitial(sub, s.buildSnapshot(r, projectFilter))

	// A reader goroutine is required so gorilla/websocket notices a client
	// close; DevPulse's stream is send-only, so incoming frames are
	// discarded and only used to detect disconnects.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		msg, ok := sub.Next(ctx)
		if !ok {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// buildSnapshot assembles the combined "initial" payload (spec.md §4.8
// (a)-(f)): the last SnapshotSize events plus the current projects,
// sessions, topology, conflicts and alerts, scoped to projectFilter where
// the underlying store query supports project scoping.
func (s *Server) buildSnapshot(r *http.Request, projectFilter string) hub.Snapshot {
	ctx := r.Context()

	// Events carry no project_name of their own (spec.md §4.1), so the
	// initial snapshot's event list is the same global tail regardless of
	// projectFilter; per-project scoping happens for everything else.
	events, _ := s.store.ListEvents(ctx, store.EventFilter{}, hub.SnapshotSize)
	projects, _ := s.store.ListProjects(ctx)
	sessions, _ := s.store.ListSessions(ctx, projectFilter, 0)
	topology, _ := s.store.ListAgentNodes(ctx, projectFilter)
	conflicts, _ := s.store.ListConflicts(ctx, false)
	alerts := s.alerts.Active()

	if projectFilter != "" {
		filtered := projects[:0:0]
		for _, p := range projects {
			if p.Name == projectFilter {
				filtered = append(filtered, p)
			}
		}
		projects = filtered
	}

	return hub.Snapshot{
		Events:    events,
		Projects:  projects,
		Sessions:  sessions,
		Topology:  topology,
		Conflicts: conflicts,
		Alerts:    alerts,
	}
}
