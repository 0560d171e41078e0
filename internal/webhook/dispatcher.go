// Package webhook matches persisted events against registered webhook
// filters and posts signed payloads out of band with bounded retry
// (spec.md §4.6).
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
)

// retrySchedule is the fixed delay before each retry attempt (spec.md §4.6:
// "3 attempts, ... 1s/5s/30s"). It is a literal sequence, not an exponential
// curve, so no backoff library is wired in for it (SPEC_FULL.md §11).
var retrySchedule = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// queueCapacity bounds each webhook's pending-delivery queue (spec.md §4.6
// "a bounded per-webhook queue... overflow drops the oldest pending").
const queueCapacity = 32

// attemptTimeout bounds a single delivery attempt (spec.md §5).
const attemptTimeout = 10 * time.Second

type outboundJob struct {
	webhookID   string
	payload     model.OutboundPayload
}

// webhookQueue is one webhook's bounded, drop-oldest delivery queue.
type webhookQueue struct {
	ch chan outboundJob
}

func newWebhookQueue() *webhookQueue {
	return &webhookQueue{ch: make(chan outboundJob, queueCapacity)}
}

// push enqueues job, dropping the oldest pending job if the queue is full,
// and reports whether a drop occurred.
func (q *webhookQueue) push(job outboundJob) (dropped bool) {
	select {
	case q.ch <- job:
		return false
	default:
	}
	select {
	case <-q.ch:
		dropped = true
	default:
	}
	select {
	case q.ch <- job:
	default:
	}
	return dropped
}

// Dispatcher is the long-lived task that owns one worker goroutine per
// webhook and delivers matched events to it (spec.md §2 component 6, §5
// "a dispatcher task per webhook").
type Dispatcher struct {
	store  *store.Store
	client *http.Client
	log    zerolog.Logger

	mu     sync.Mutex
	queues map[string]*webhookQueue
}

// New returns a Dispatcher backed by s.
func New(s *store.Store, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  s,
		client: &http.Client{Timeout: attemptTimeout},
		log:    log.With().Str("component", "webhook").Logger(),
		queues: make(map[string]*webhookQueue),
	}
}

// Dispatch takes a persisted event snapshot, resolves the active webhook
// set, and enqueues a delivery job for every webhook whose filters match
// (spec.md §4.2 step 5, §4.6). Runs off the ingest critical path: callers
// invoke this from a goroutine, not inline with Ingest.
func (d *Dispatcher) Dispatch(ctx context.Context, e model.HookEvent, projectName string) {
	webhooks, err := d.store.ListWebhooks(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("list webhooks for dispatch")
		return
	}

	payload := model.OutboundPayload{Type: string(e.HookEventType), Event: e, ProjectName: projectName}

	for _, w := range webhooks {
		if !w.Matches(e.HookEventType, projectName) {
			continue
		}
		q := d.queueFor(w.ID)
		if dropped := q.push(outboundJob{webhookID: w.ID, payload: payload}); dropped {
			d.log.Warn().Str("webhook_id", w.ID).Msg("dropped oldest pending delivery, queue full")
			if err := d.store.RecordWebhookDelivery(ctx, w.ID, 0, "queue overflow: dropped oldest pending delivery"); err != nil {
				d.log.Error().Err(err).Msg("record dropped delivery")
			}
		}
	}
}

// queueFor returns the webhook's queue, starting its worker goroutine the
// first time a job is enqueued for it.
func (d *Dispatcher) queueFor(webhookID string) *webhookQueue {
	d.mu.Lock()
	defer d.mu.Unlock()

	if q, ok := d.queues[webhookID]; ok {
		return q
	}
	q := newWebhookQueue()
	d.queues[webhookID] = q
	go d.worker(webhookID, q)
	return q
}

func (d *Dispatcher) worker(webhookID string, q *webhookQueue) {
	for job := range q.ch {
		d.deliverWithRetry(context.Background(), webhookID, job.payload)
	}
}

// deliverWithRetry attempts delivery up to len(retrySchedule) times,
// waiting the fixed schedule between attempts, and records the outcome of
// every attempt (spec.md §4.6).
func (d *Dispatcher) deliverWithRetry(ctx context.Context, webhookID string, payload model.OutboundPayload) {
	w, err := d.store.GetWebhook(ctx, webhookID)
	if err != nil {
		d.log.Error().Err(err).Str("webhook_id", webhookID).Msg("load webhook for delivery")
		return
	}

	var lastErr error
	for attempt, delay := range retrySchedule {
		if delay > 0 {
			time.Sleep(delay)
		}
		status, err := d.attempt(ctx, *w, payload)
		if err == nil {
			if recErr := d.store.RecordWebhookDelivery(ctx, webhookID, status, ""); recErr != nil {
				d.log.Error().Err(recErr).Msg("record successful delivery")
			}
			return
		}
		lastErr = err
		_ = attempt
		if recErr := d.store.RecordWebhookDelivery(ctx, webhookID, status, err.Error()); recErr != nil {
			d.log.Error().Err(recErr).Msg("record failed attempt")
		}
	}
	d.log.Warn().Err(lastErr).Str("webhook_id", webhookID).Msg("webhook delivery exhausted retries")
}

// attempt performs a single signed POST, returning the response status code
// (0 if the request never reached the server) and an error for any non-2xx
// or transport failure.
func (d *Dispatcher) attempt(ctx context.Context, w model.Webhook, payload model.OutboundPayload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Secret != "" {
		req.Header.Set("X-DevPulse-Signature", "sha256="+sign(w.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// sign returns the lowercase hex HMAC-SHA256 of body keyed by secret
// (spec.md §6 "X-DevPulse-Signature: sha256=<hex HMAC of raw body>").
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Test posts a synthetic payload to w immediately, bypassing the queue, and
// reports the outcome inline (spec.md §4.6 "Test endpoint posts a synthetic
// payload and reports status inline").
func (d *Dispatcher) Test(ctx context.Context, w model.Webhook) (status int, err error) {
	payload := model.OutboundPayload{
		Type:        "test",
		Event:       map[string]any{"message": "DevPulse webhook test delivery"},
		ProjectName: "",
	}
	return d.attempt(ctx, w, payload)
}
