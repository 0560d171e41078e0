package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
)

// handleListWebhooks is GET /api/webhooks (spec.md §6).
func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.store.ListWebhooks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhooks)
}

// handleCreateWebhook is POST /api/webhooks (spec.md §6).
func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var wh model.Webhook
	if err := json.NewDecoder(r.Body).Decode(&wh); err != nil {
		writeError(w, apperr.Malformed("decode request body", err))
		return
	}
	wh.ID = uuid.NewString()

	if err := s.store.CreateWebhook(r.Context(), &wh); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wh)
}

// handleUpdateWebhook is PUT /api/webhooks/:id (spec.md §6).
func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	var wh model.Webhook
	if err := json.NewDecoder(r.Body).Decode(&wh); err != nil {
		writeError(w, apperr.Malformed("decode request body", err))
		return
	}
	wh.ID = chi.URLParam(r, "id")

	if err := s.store.UpdateWebhook(r.Context(), &wh); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

// handleDeleteWebhook is DELETE /api/webhooks/:id (spec.md §6).
func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteWebhook(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTestWebhook is POST /api/webhooks/:id/test (spec.md §6). It
// delivers synchronously, bypassing the dispatcher's retry queue, so the
// caller sees the real delivery outcome immediately.
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wh, err := s.store.GetWebhook(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	status, deliverErr := s.dispatcher.Test(r.Context(), *wh)
	deliveryErr := ""
	if deliverErr != nil {
		deliveryErr = deliverErr.Error()
	}
	if err := s.store.RecordWebhookDelivery(r.Context(), wh.ID, status, deliveryErr); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"error":  deliveryErr,
	})
}
