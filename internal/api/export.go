package api

import (
	"html/template"
	"net/http"
	"time"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/derive"
	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
)

// reportTemplate renders the HTML export (spec.md §6 GET /api/export/report).
// Kept as a single inline template rather than an external asset, since the
// report is the only HTML surface this server produces.
var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>DevPulse report{{if .Project}} — {{.Project.Name}}{{end}}</title>
<style>
body { font-family: -apple-system, sans-serif; margin: 2rem; color: #1a1a1a; }
h1 { margin-bottom: 0.2rem; }
.range { color: #666; margin-bottom: 1.5rem; }
table { border-collapse: collapse; width: 100%; margin-bottom: 2rem; }
th, td { border: 1px solid #ddd; padding: 6px 10px; text-align: left; font-size: 0.9rem; }
th { background: #f5f5f5; }
.health { font-weight: bold; }
</style>
</head>
<body>
<h1>DevPulse report{{if .Project}}: {{.Project.Name}}{{end}}</h1>
<p class="range">{{.From.Format "2006-01-02 15:04"}} &ndash; {{.To.Format "2006-01-02 15:04"}}</p>

{{if .Project}}
<p>Health: <span class="health">{{.Project.Health}}</span> (trend {{.Project.HealthTrend}}), branch {{.Project.CurrentBranch}}</p>
{{end}}

<h2>Sessions ({{len .Sessions}})</h2>
<table>
<tr><th>Session</th><th>Source</th><th>Status</th><th>Events</th><th>Failures</th></tr>
{{range .Sessions}}
<tr><td>{{.SessionID}}</td><td>{{.SourceApp}}</td><td>{{.Status}}</td><td>{{.EventCount}}</td><td>{{.ToolFailureCount}}</td></tr>
{{end}}
</table>

<h2>Dev logs ({{len .DevLogs}})</h2>
<table>
<tr><th>Session</th><th>Branch</th><th>Duration (min)</th><th>Files changed</th><th>Commits</th></tr>
{{range .DevLogs}}
<tr><td>{{.SessionID}}</td><td>{{.Branch}}</td><td>{{printf "%.1f" .DurationMinutes}}</td><td>{{len .FilesChanged}}</td><td>{{len .Commits}}</td></tr>
{{end}}
</table>

<h2>Estimated cost</h2>
<p>{{printf "%.4f" .Cost.EstimatedCost}} USD ({{.Cost.InputTokens}} input / {{.Cost.OutputTokens}} output tokens, {{len .Events}} events)</p>
</body>
</html>
`))

type reportData struct {
	Project  *model.Project
	Sessions []model.Session
	DevLogs  []model.DevLog
	Events   []model.HookEvent
	Cost     derive.CostEstimate
	From     time.Time
	To       time.Time
}

// handleExportReport is GET /api/export/report?project=&sessionId=&from=&to=
// (spec.md §6). from/to are RFC3339; sessionId narrows to a single session's
// events within an otherwise project-scoped report.
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	projectName := q.Get("project")
	sessionID := q.Get("sessionId")

	from, to, err := reportWindow(q)
	if err != nil {
		writeError(w, apperr.Malformed("parse report window", err))
		return
	}

	var project *model.Project
	if projectName != "" {
		project, err = s.store.GetProjectByName(ctx, projectName)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	sessions, err := s.store.ListSessions(ctx, projectName, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if sessionID != "" {
		sessions = filterSessionsByID(sessions, sessionID)
	}

	devlogs, err := s.store.ListDevLogs(ctx, projectName, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	var events []model.HookEvent
	for _, sess := range sessions {
		evs, err := s.store.ListEvents(ctx, store.EventFilter{
			SourceApp: sess.SourceApp,
			SessionID: sess.SessionID,
			Since:     from.UnixMilli(),
			Before:    to.UnixMilli(),
		}, 100000)
		if err != nil {
			writeError(w, err)
			return
		}
		events = append(events, evs...)
	}

	key := projectName
	if key == "" {
		key = "all-projects"
	}
	cost := derive.EstimateCost(s.cfg, key, events)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := reportTemplate.Execute(w, reportData{
		Project:  project,
		Sessions: sessions,
		DevLogs:  devlogs,
		Events:   events,
		Cost:     cost,
		From:     from,
		To:       to,
	}); err != nil {
		s.log.Error().Err(err).Msg("export: render report")
	}
}

// reportWindow parses the from/to query params, defaulting to the last 7
// days when either is absent.
func reportWindow(q map[string][]string) (from, to time.Time, err error) {
	to = time.Now()
	from = to.Add(-7 * 24 * time.Hour)

	if v := first(q, "to"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, err
		}
	}
	if v := first(q, "from"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

func first(q map[string][]string, key string) string {
	v := q[key]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func filterSessionsByID(sessions []model.Session, sessionID string) []model.Session {
	filtered := sessions[:0:0]
	for _, sess := range sessions {
		if sess.SessionID == sessionID {
			filtered = append(filtered, sess)
		}
	}
	return filtered
}
