// Package ingest is DevPulse's single entry point that turns a validated
// hook event into durable state and broadcast notifications (spec.md
// §4.2).
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/devpulse/server/internal/alert"
	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/conflict"
	"github.com/devpulse/server/internal/derive"
	"github.com/devpulse/server/internal/hub"
	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
	"github.com/devpulse/server/internal/webhook"
)

// deadline bounds one Ingest call end-to-end (spec.md §5 "every ingest has
// a 5 s deadline end-to-end").
const deadline = 5 * time.Second

// historyLimit bounds how many of a session's prior events Ingest fetches
// to build its closing DevLog; generous enough for any realistic session.
const historyLimit = 100000

// Processor wires together every component an ingested event touches:
// the store, the Conflict Detector, the Alert Engine, the Broadcast Hub,
// and the Webhook Dispatcher (spec.md §2 component 1, §4.2).
type Processor struct {
	store      *store.Store
	conflicts  *conflict.Detector
	alerts     *alert.Engine
	hub        *hub.Hub
	dispatcher *webhook.Dispatcher
	log        zerolog.Logger
}

// New returns a Processor. conflicts/alerts/hub/dispatcher are long-lived
// and shared with their own independent tasks (spec.md §5).
func New(s *store.Store, conflicts *conflict.Detector, alerts *alert.Engine, h *hub.Hub, dispatcher *webhook.Dispatcher, log zerolog.Logger) *Processor {
	return &Processor{store: s, conflicts: conflicts, alerts: alerts, hub: h, dispatcher: dispatcher, log: log.With().Str("component", "ingest").Logger()}
}

// Ingest validates, durably stores, and broadcasts e, then hands it to the
// Webhook Dispatcher asynchronously (spec.md §4.2 Ingest(e)). Returns the
// stored event (with assigned ID and any time_skew flag) on success.
func (p *Processor) Ingest(ctx context.Context, e model.HookEvent) (*model.HookEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if err := validate(&e); err != nil {
		return nil, err
	}

	now := time.Now()
	if e.Timestamp == 0 {
		e.Timestamp = now.UnixMilli()
	}
	e.TimeSkew = model.ClampTimestamp(e.Timestamp, now)

	payload, err := model.ParsePayload(e.Payload)
	if err != nil {
		return nil, apperr.Malformed("parse payload", err)
	}
	e.Payload = payload.Raw()

	history, err := p.store.ListEvents(ctx, store.EventFilter{SourceApp: e.SourceApp, SessionID: e.SessionID}, historyLimit)
	if err != nil {
		return nil, apperr.StoreUnavailable("load session history", err)
	}

	var sess *model.Session
	var node *model.AgentNode
	var devLog *model.DevLog
	var proj *model.Project

	err = p.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := p.store.AppendEvent(tx, &e); err != nil {
			return err
		}

		prev, txErr := p.store.GetSession(tx, e.Key())
		if txErr != nil {
			return txErr
		}
		// A session writes its DevLog only on the event that stops it.
		alreadyStopped := prev != nil && prev.Status == model.StatusStopped

		sess, txErr = p.applySession(tx, e, payload)
		if txErr != nil {
			return txErr
		}

		if e.HookEventType == model.SubagentStart {
			node, txErr = p.applyTopology(tx, e, sess, payload)
			if txErr != nil {
				return txErr
			}
		}

		if e.HookEventType.ClosesSession() && !alreadyStopped {
			devLog, txErr = p.buildDevLog(sess, append(history, e))
			if txErr != nil {
				return txErr
			}
			if err := p.store.InsertDevLog(tx, devLog); err != nil {
				return err
			}
		}

		proj, txErr = p.applyProject(tx, sess)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	p.notify(ctx, e, sess, node, devLog, proj)

	go p.dispatcher.Dispatch(context.Background(), e, sess.ProjectName)

	return &e, nil
}

// validate enforces spec.md §4.2 step 1.
func validate(e *model.HookEvent) error {
	if e.SourceApp == "" {
		return apperr.Malformed("source_app is required", nil)
	}
	if e.SessionID == "" {
		return apperr.Malformed("session_id is required", nil)
	}
	if !e.HookEventType.IsValid() {
		return apperr.Malformed("hook_event_type is not a recognized type", nil)
	}
	if len(e.Payload) == 0 {
		e.Payload = json.RawMessage("{}")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(e.Payload, &obj); err != nil {
		return apperr.Malformed("payload must be a JSON object", err)
	}
	return nil
}

// applySession loads (or initializes) the session for e's key, applies the
// state machine transition and per-event derivations, and upserts it
// (spec.md §4.2 "Derivations updated per event").
func (p *Processor) applySession(tx *sql.Tx, e model.HookEvent, payload model.EventPayload) (*model.Session, error) {
	key := e.Key()
	sess, err := p.store.GetSession(tx, key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = &model.Session{
			SourceApp: key.SourceApp,
			SessionID: key.SessionID,
			Status:    model.InitialStatus(e.HookEventType),
			StartedAt: e.Timestamp,
		}
	} else {
		sess.Status = model.NextStatus(sess.Status, e.HookEventType)
	}

	sess.EventCount++
	sess.LastEventAt = e.Timestamp
	if sess.ModelName == "" && e.ModelName != "" {
		sess.ModelName = e.ModelName
	}
	if payload.ProjectName != "" {
		sess.ProjectName = payload.ProjectName
	}
	if payload.CurrentBranch != "" {
		sess.CurrentBranch = payload.CurrentBranch
	}
	if payload.Cwd != "" {
		sess.Cwd = payload.Cwd
	}
	if len(payload.TaskContext) > 0 {
		sess.TaskContext = string(payload.TaskContext)
	}
	if sess.ParentID == "" && payload.ParentID != "" {
		sess.ParentID = payload.ParentID
	}

	switch e.HookEventType {
	case model.Compaction:
		sess.CompactionHistory = append(sess.CompactionHistory, e.Timestamp)
		sess.CompactionCount++
		sess.LastCompactionAt = e.Timestamp
	case model.PostToolUse:
		sess.ToolUseCount++
	case model.PostToolUseFailure:
		sess.ToolUseCount++
		sess.ToolFailureCount++
	}

	if err := p.store.UpsertSession(tx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// applyTopology writes the sticky parent_id edge a SubagentStart event
// declares (spec.md §4.2 "writes a topology edge parent_id -> child
// agent_id extracted from the payload").
func (p *Processor) applyTopology(tx *sql.Tx, e model.HookEvent, sess *model.Session, payload model.EventPayload) (*model.AgentNode, error) {
	node := &model.AgentNode{
		AgentID:     e.Key().AgentID(),
		ParentID:    payload.ParentID,
		ProjectName: sess.ProjectName,
		ModelName:   sess.ModelName,
		Status:      string(sess.Status),
		TaskContext: sess.TaskContext,
	}
	if err := p.store.UpsertAgentNode(tx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// buildDevLog summarizes a closing session's full event history (spec.md
// §4.2 step 3 "produce the DevLog").
func (p *Processor) buildDevLog(sess *model.Session, events []model.HookEvent) (*model.DevLog, error) {
	projectEvents := derive.AttachProjectNames(events, map[model.SessionKey]string{sess.Key(): sess.ProjectName})
	summaries := derive.Summaries(projectEvents)
	ps := summaries[sess.ProjectName]

	d := &model.DevLog{
		SessionID:       sess.SessionID,
		SourceApp:       sess.SourceApp,
		ProjectName:     sess.ProjectName,
		Branch:          sess.CurrentBranch,
		StartedAt:       sess.StartedAt,
		EndedAt:         sess.LastEventAt,
		DurationMinutes: float64(sess.LastEventAt-sess.StartedAt) / 60000,
		EventCount:      sess.EventCount,
	}
	if ps != nil {
		d.FilesChanged = ps.FilesChanged
		d.Commits = ps.Commits
		d.ToolBreakdown = ps.ToolBreakdown
	}
	return d, nil
}

// applyProject recomputes the project row's session-derived fields after
// this event (active session count, last activity, current branch).
func (p *Processor) applyProject(tx *sql.Tx, sess *model.Session) (*model.Project, error) {
	if sess.ProjectName == "" {
		return nil, nil
	}
	proj, err := p.store.GetProject(tx, sess.ProjectName)
	if err != nil {
		return nil, err
	}
	if proj == nil {
		proj = &model.Project{Name: sess.ProjectName, TestStatus: model.TestUnknown}
	}
	if sess.CurrentBranch != "" {
		proj.CurrentBranch = sess.CurrentBranch
	}
	if sess.LastEventAt > proj.LastActivity {
		proj.LastActivity = sess.LastEventAt
	}
	active, err := p.store.CountActiveSessions(tx, sess.ProjectName)
	if err != nil {
		return nil, err
	}
	proj.ActiveSessions = active
	if err := p.store.UpsertProject(tx, proj); err != nil {
		return nil, err
	}
	return proj, nil
}

// notify enqueues the event notification plus every derived-state
// notification whose row changed, in that order (spec.md §4.2 step 4, §5
// "derived-state notifications... are sent after the event notification").
// Conflict/alert evaluation happens here, post-commit, since neither the
// Conflict Detector's registry nor the Alert Engine's counters are part of
// the durable transaction (spec.md §5: both regenerate from live data).
func (p *Processor) notify(ctx context.Context, e model.HookEvent, sess *model.Session, node *model.AgentNode, devLog *model.DevLog, proj *model.Project) {
	projectName := ""
	if sess != nil {
		projectName = sess.ProjectName
	}

	p.hub.PublishEvent(e, projectName)
	if sess != nil {
		p.hub.PublishSessions(*sess, projectName)
	}
	if proj != nil {
		p.hub.PublishProjects(*proj)
	}
	if node != nil {
		nodes, err := p.store.ListAgentNodes(ctx, node.ProjectName)
		if err != nil {
			p.log.Error().Err(err).Msg("list agent nodes for topology notification")
		} else {
			p.hub.PublishTopology(nodes, node.ProjectName)
		}
	}
	if devLog != nil {
		p.hub.PublishDevlog(*devLog)
	}

	payload, err := model.ParsePayload(e.Payload)
	if err == nil {
		if fc := p.conflicts.Observe(projectName, e.Key().AgentID(), payload.ToolName, payload.FilePath, time.UnixMilli(e.Timestamp)); fc != nil {
			if err := p.store.InsertConflict(ctx, fc); err != nil {
				p.log.Error().Err(err).Msg("insert detected conflict")
			} else {
				p.hub.PublishConflict(*fc)
			}
		}
	}

	p.alerts.RecordEvent(e.HookEventType, time.UnixMilli(e.Timestamp))
	if sess != nil {
		raised, _ := p.alerts.Evaluate([]model.Session{*sess}, time.UnixMilli(e.Timestamp))
		for _, a := range raised {
			p.hub.PublishAlert(a)
		}
	}
}
