package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
)

// sessionView wraps a model.Session with its derived, non-stored fields
// (spec.md §8 seed test 4: "the server's derived context_health when the
// derivation is requested").
type sessionView struct {
	model.Session
	EffectiveStatus model.SessionStatus `json:"effective_status"`
	ContextHealth   model.ContextHealth `json:"context_health"`
}

func toSessionView(sess model.Session, now time.Time) sessionView {
	return sessionView{
		Session:         sess,
		EffectiveStatus: sess.EffectiveStatus(now),
		ContextHealth:   model.DeriveContextHealth(sess.CompactionHistory, now),
	}
}

// handleListSessions is GET /api/sessions?project= (spec.md §6).
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	limit := clampLimit(queryInt(r, "limit", 100), 100, 500)

	sessions, err := s.store.ListSessions(r.Context(), project, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	views := make([]sessionView, len(sessions))
	for i, sess := range sessions {
		views[i] = toSessionView(sess, now)
	}
	writeJSON(w, http.StatusOK, views)
}

// handleSessionEvents is GET /api/sessions/:id/events?source_app= (spec.md
// §6 "source_app required for detail").
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	sourceApp := r.URL.Query().Get("source_app")
	if sourceApp == "" {
		writeError(w, apperr.Malformed("source_app query parameter is required", nil))
		return
	}

	limit := clampLimit(queryInt(r, "limit", 500), 500, 5000)
	events, err := s.store.ListEvents(r.Context(), store.EventFilter{
		SourceApp: sourceApp,
		SessionID: sessionID,
	}, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
