package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
)

// CreateWebhook inserts a new webhook registration (spec.md §6 POST
// /api/webhooks). Caller assigns ID.
func (s *Store) CreateWebhook(ctx context.Context, w *model.Webhook) error {
	eventTypes, err := json.Marshal(w.EventTypes)
	if err != nil {
		return apperr.Malformed("marshal event types", err)
	}
	_, err = s.writeDB.ExecContext(ctx,
		`INSERT INTO webhooks (id, name, url, secret, event_types, project_filter, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.URL, w.Secret, string(eventTypes), w.ProjectFilter, w.Active,
	)
	if err != nil {
		return apperr.StoreIOError("create webhook", err)
	}
	return nil
}

// UpdateWebhook overwrites a webhook's editable fields (spec.md §6 PUT
// /api/webhooks/:id).
func (s *Store) UpdateWebhook(ctx context.Context, w *model.Webhook) error {
	eventTypes, err := json.Marshal(w.EventTypes)
	if err != nil {
		return apperr.Malformed("marshal event types", err)
	}
	res, err := s.writeDB.ExecContext(ctx,
		`UPDATE webhooks SET name = ?, url = ?, secret = ?, event_types = ?, project_filter = ?, active = ?
		 WHERE id = ?`,
		w.Name, w.URL, w.Secret, string(eventTypes), w.ProjectFilter, w.Active, w.ID,
	)
	if err != nil {
		return apperr.StoreIOError("update webhook", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.StoreIOError("read update result", err)
	}
	if n == 0 {
		return apperr.NotFound("webhook not found")
	}
	return nil
}

// DeleteWebhook removes a webhook registration (spec.md §6 DELETE
// /api/webhooks/:id).
func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	res, err := s.writeDB.ExecContext(ctx, "DELETE FROM webhooks WHERE id = ?", id)
	if err != nil {
		return apperr.StoreIOError("delete webhook", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.StoreIOError("read delete result", err)
	}
	if n == 0 {
		return apperr.NotFound("webhook not found")
	}
	return nil
}

// GetWebhook returns one webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, id string) (*model.Webhook, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT id, name, url, secret, event_types, project_filter, active,
			trigger_count, failure_count, last_status, last_error, last_triggered_at
		 FROM webhooks WHERE id = ?`, id)
	w, err := scanWebhookRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("webhook not found")
	}
	return w, err
}

func scanWebhookRow(row *sql.Row) (*model.Webhook, error) {
	var w model.Webhook
	var eventTypes string
	err := row.Scan(&w.ID, &w.Name, &w.URL, &w.Secret, &eventTypes, &w.ProjectFilter, &w.Active,
		&w.TriggerCount, &w.FailureCount, &w.LastStatus, &w.LastError, &w.LastTriggeredAt)
	if err != nil {
		return nil, apperr.StoreIOError("scan webhook", err)
	}
	_ = json.Unmarshal([]byte(eventTypes), &w.EventTypes)
	return &w, nil
}

// ListWebhooks returns every registered webhook (spec.md §6 GET
// /api/webhooks). Used by the Webhook Dispatcher to resolve matches on
// every ingested event.
func (s *Store) ListWebhooks(ctx context.Context) ([]model.Webhook, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, name, url, secret, event_types, project_filter, active,
			trigger_count, failure_count, last_status, last_error, last_triggered_at
		 FROM webhooks ORDER BY name`)
	if err != nil {
		return nil, apperr.StoreIOError("list webhooks", err)
	}
	defer rows.Close()

	var out []model.Webhook
	for rows.Next() {
		var w model.Webhook
		var eventTypes string
		if err := rows.Scan(&w.ID, &w.Name, &w.URL, &w.Secret, &eventTypes, &w.ProjectFilter, &w.Active,
			&w.TriggerCount, &w.FailureCount, &w.LastStatus, &w.LastError, &w.LastTriggeredAt); err != nil {
			return nil, apperr.StoreIOError("scan webhook", err)
		}
		_ = json.Unmarshal([]byte(eventTypes), &w.EventTypes)
		out = append(out, w)
	}
	return out, rows.Err()
}

// RecordWebhookDelivery updates trigger/failure counters and last-delivery
// status after the Dispatcher attempts a send (spec.md §4.6).
func (s *Store) RecordWebhookDelivery(ctx context.Context, id string, status int, deliveryErr string) error {
	failureIncrement := 0
	if deliveryErr != "" {
		failureIncrement = 1
	}
	_, err := s.writeDB.ExecContext(ctx,
		`UPDATE webhooks SET
			trigger_count = trigger_count + 1,
			failure_count = failure_count + ?,
			last_status = ?,
			last_error = ?,
			last_triggered_at = ?
		 WHERE id = ?`,
		failureIncrement, status, deliveryErr, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return apperr.StoreIOError("record webhook delivery", err)
	}
	return nil
}
