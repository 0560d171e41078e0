package api

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/devpulse/server/internal/apperr"
)

// handleAdminStats is GET /api/admin/stats (spec.md §6). Process RSS/CPU%
// come from gopsutil rather than hand-parsed /proc reads, the way the
// teacher's go.mod already commits to that library for process stats.
func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	sessions, err := s.store.ListSessions(ctx, "", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	webhooks, err := s.store.ListWebhooks(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	dbSize, err := s.store.FileSize(s.cfg.Store.Path)
	if err != nil {
		writeError(w, err)
		return
	}

	rssBytes, cpuPercent := processStats()

	writeJSON(w, http.StatusOK, map[string]any{
		"project_count":       len(projects),
		"session_count":       len(sessions),
		"webhook_count":       len(webhooks),
		"subscriber_count":    s.hub.SubscriberCount(),
		"db_size_bytes":       dbSize,
		"process_rss_bytes":   rssBytes,
		"process_cpu_percent": cpuPercent,
	})
}

// processStats reports this process's own resident memory and CPU usage.
// Failures are non-fatal: admin stats still return with zeroed figures
// rather than failing the whole endpoint over a best-effort metric.
func processStats() (rssBytes uint64, cpuPercent float64) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		rssBytes = mem.RSS
	}
	if pct, err := proc.CPUPercent(); err == nil {
		cpuPercent = pct
	}
	return rssBytes, cpuPercent
}

// handleAdminCleanup is POST /api/admin/cleanup (spec.md §6, seed test 5).
// It runs the same retention pass the background ticker would, on demand.
func (s *Server) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := s.retention.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report.Flatten())
}

// handleGetSettings is GET /api/admin/settings (spec.md §6).
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.ListSettings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handlePutSettings is PUT /api/admin/settings (spec.md §6). The Retention
// Manager reads these keys live at each tick (store.GetSetting), so no
// restart is required for a change to take effect.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, apperr.Malformed("decode request body", err))
		return
	}

	for key, value := range updates {
		if err := s.store.SetSetting(r.Context(), key, value); err != nil {
			writeError(w, err)
			return
		}
	}

	settings, err := s.store.ListSettings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
