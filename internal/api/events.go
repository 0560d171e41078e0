package api

import (
	"encoding/json"
	"net/http"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
)

// handleIngest is POST /events (spec.md §6 "Ingest endpoint").
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var e model.HookEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, apperr.Malformed("decode request body", err))
		return
	}

	stored, err := s.processor.Ingest(r.Context(), e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// handleRecentEvents is GET /events/recent?limit= (spec.md §6).
func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(queryInt(r, "limit", 100), 100, 500)
	events, err := s.store.ListEvents(r.Context(), store.EventFilter{}, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleFilterOptions is GET /events/filter-options (spec.md §6).
func (s *Server) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	sourceApps, err := s.store.DistinctSourceApps(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	eventTypes, err := s.store.DistinctEventTypes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	sessionIDs, err := s.store.DistinctSessionIDs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source_apps":      sourceApps,
		"session_ids":      sessionIDs,
		"hook_event_types": eventTypes,
	})
}
