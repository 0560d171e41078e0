package derive

import "github.com/devpulse/server/internal/model"

// ProjectEvent pairs a HookEvent with the project name of the session it
// belongs to. Store.Aggregate returns bare events; callers join against a
// session lookup before handing events to the grouping functions below,
// since project_name lives on Session, not HookEvent (spec.md §3).
type ProjectEvent struct {
	model.HookEvent
	ProjectName string
	SessionKey  model.SessionKey
}

// AttachProjectNames joins events against a source_app/session_id -> project
// name lookup, dropping events for keys the lookup doesn't know about (a
// session row always exists before its events do, per spec.md §4.2, so this
// should only drop events from sessions purged by retention mid-query).
func AttachProjectNames(events []model.HookEvent, lookup map[model.SessionKey]string) []ProjectEvent {
	out := make([]ProjectEvent, 0, len(events))
	for _, e := range events {
		key := e.Key()
		name, ok := lookup[key]
		if !ok {
			continue
		}
		out = append(out, ProjectEvent{HookEvent: e, ProjectName: name, SessionKey: key})
	}
	return out
}
