// Package retention prunes aged rows from the Store on a settings-driven
// schedule, optionally archiving them to JSON first (spec.md §4.7).
package retention

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/devpulse/server/internal/model"
	"github.com/devpulse/server/internal/store"
)

// chunkSize bounds how many rows are listed/deleted per table per tick, so
// a large backlog doesn't block the writer connection for long.
const chunkSize = 1000

// defaultMaxCleanupMillis bounds a single tick's wall-clock time; a
// cleanup that would exceed it stops after its current table and resumes
// on the next tick.
const defaultMaxCleanupMillis = 2000

// TableReport is one table's cleanup outcome for a single run.
type TableReport struct {
	Table        string `json:"table"`
	DeletedRows  int64  `json:"deleted_rows"`
	ArchivedRows int64  `json:"archived_rows"`
	ArchivePath  string `json:"archive_path,omitempty"`
}

// Report is the full outcome of one cleanup run (spec.md §4.7 step 5).
type Report struct {
	RanAt        int64         `json:"ran_at"`
	Tables       []TableReport `json:"tables"`
	DBSizeBefore int64         `json:"db_size_before"`
	DBSizeAfter  int64         `json:"db_size_after"`
}

// Flatten renders the report as a JSON-friendly map that, besides the
// nested per-table breakdown, surfaces "<table>_deleted"/"<table>_archived"
// top-level keys (spec.md §8 seed test 5: POST /api/admin/cleanup returns
// events_deleted/events_archived directly, not nested under tables[]).
func (r *Report) Flatten() map[string]any {
	out := map[string]any{
		"ran_at":         r.RanAt,
		"tables":         r.Tables,
		"db_size_before": r.DBSizeBefore,
		"db_size_after":  r.DBSizeAfter,
	}
	for _, tr := range r.Tables {
		out[tr.Table+"_deleted"] = tr.DeletedRows
		out[tr.Table+"_archived"] = tr.ArchivedRows
	}
	return out
}

// Manager owns the settings-driven cleanup tick (spec.md §4.7). It never
// touches the Conflict Detector's registry or the Alert Engine's in-memory
// state: both regenerate from live data, per spec.md §4.7's closing note.
type Manager struct {
	store  *store.Store
	dbPath string
	log    zerolog.Logger
}

// New returns a Manager that cleans the Store backed by the file at
// dbPath (needed for db_size_before/after reporting).
func New(s *store.Store, dbPath string, log zerolog.Logger) *Manager {
	return &Manager{store: s, dbPath: dbPath, log: log.With().Str("component", "retention").Logger()}
}

// Run executes one cleanup tick, reading thresholds from the Store's
// settings table so they can be changed at runtime via
// GET|PUT /api/admin/settings (spec.md §4.7, §6). Manual cleanup (spec.md
// §6 POST /api/admin/cleanup) calls this same method.
func (m *Manager) Run(ctx context.Context) (*Report, error) {
	now := time.Now()
	report := &Report{RanAt: now.UnixMilli()}

	sizeBefore, err := m.store.FileSize(m.dbPath)
	if err != nil {
		m.log.Warn().Err(err).Msg("read db size before cleanup")
	}
	report.DBSizeBefore = sizeBefore

	deadline := now.Add(defaultMaxCleanupMillis * time.Millisecond)
	archiveDir, archiveEnabled := m.archiveSettings(ctx)

	for _, table := range []string{"events", "devlogs", "sessions"} {
		if time.Now().After(deadline) {
			m.log.Warn().Str("table", table).Msg("cleanup deadline reached, deferring remaining tables to next tick")
			break
		}
		days := m.retentionDays(ctx, table)
		if days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -days).UnixMilli()

		tr, err := m.cleanTable(ctx, table, cutoff, archiveEnabled, archiveDir, now)
		if err != nil {
			return report, err
		}
		report.Tables = append(report.Tables, tr)
	}

	if err := m.store.Compact(ctx); err != nil {
		m.log.Error().Err(err).Msg("compact database")
	}
	sizeAfter, err := m.store.FileSize(m.dbPath)
	if err != nil {
		m.log.Warn().Err(err).Msg("read db size after cleanup")
	}
	report.DBSizeAfter = sizeAfter

	return report, nil
}

func (m *Manager) cleanTable(ctx context.Context, table string, cutoff int64, archiveEnabled bool, archiveDir string, now time.Time) (TableReport, error) {
	tr := TableReport{Table: table}

	if archiveEnabled {
		path, archived, err := m.archiveTable(ctx, table, cutoff, archiveDir, now)
		if err != nil {
			return tr, err
		}
		tr.ArchivePath = path
		tr.ArchivedRows = archived
	}

	var n int64
	var err error
	switch table {
	case "events":
		n, err = m.store.DeleteEventsBefore(ctx, cutoff, chunkSize)
	case "devlogs":
		n, err = m.store.DeleteDevLogsBefore(ctx, cutoff, chunkSize)
	case "sessions":
		n, err = m.store.DeleteSessionsBefore(ctx, cutoff, chunkSize)
	}
	if err != nil {
		return tr, err
	}
	tr.DeletedRows = n
	return tr, nil
}

// archiveTable serializes the rows about to be deleted from table to a
// timestamped JSON file under archiveDir (spec.md §4.7 step 2: "filename
// pattern YYYYMMDD-HHMMSS-<table>.json").
func (m *Manager) archiveTable(ctx context.Context, table string, cutoff int64, archiveDir string, now time.Time) (string, int64, error) {
	var payload any
	var rowCount int64
	switch table {
	case "events":
		rows, err := m.store.ListEventsBefore(ctx, cutoff, chunkSize)
		if err != nil {
			return "", 0, err
		}
		if len(rows) == 0 {
			return "", 0, nil
		}
		payload, rowCount = rows, int64(len(rows))
	case "devlogs":
		rows, err := m.store.ListDevLogsBefore(ctx, cutoff, chunkSize)
		if err != nil {
			return "", 0, err
		}
		if len(rows) == 0 {
			return "", 0, nil
		}
		payload, rowCount = rows, int64(len(rows))
	case "sessions":
		rows, err := m.store.ListSessionsBefore(ctx, cutoff, chunkSize)
		if err != nil {
			return "", 0, err
		}
		if len(rows) == 0 {
			return "", 0, nil
		}
		payload, rowCount = rows, int64(len(rows))
	default:
		return "", 0, nil
	}

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", 0, err
	}
	filename := now.Format("20060102-150405") + "-" + table + ".json"
	path := filepath.Join(archiveDir, filename)

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", 0, err
	}
	return path, rowCount, nil
}

func (m *Manager) retentionDays(ctx context.Context, table string) int {
	key := map[string]string{
		"events":   model.SettingRetentionEventsDays,
		"devlogs":  model.SettingRetentionDevlogsDays,
		"sessions": model.SettingRetentionSessionsDays,
	}[table]
	raw, err := m.store.GetSetting(ctx, key, "0")
	if err != nil {
		m.log.Warn().Err(err).Str("table", table).Msg("read retention days setting")
		return 0
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return days
}

func (m *Manager) archiveSettings(ctx context.Context) (dir string, enabled bool) {
	enabledRaw, err := m.store.GetSetting(ctx, model.SettingRetentionArchiveEnabled, "false")
	if err != nil {
		m.log.Warn().Err(err).Msg("read archive enabled setting")
	}
	dir, err = m.store.GetSetting(ctx, model.SettingRetentionArchiveDirectory, "")
	if err != nil {
		m.log.Warn().Err(err).Msg("read archive directory setting")
	}
	return dir, enabledRaw == "true" && dir != ""
}

// Tick runs Run on the configured interval until ctx is canceled, logging
// (not panicking on) any cleanup error so a single bad tick doesn't stop
// future ones.
func (m *Manager) Tick(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := m.Run(ctx)
			if err != nil {
				m.log.Error().Err(err).Msg("retention cleanup tick failed")
				continue
			}
			m.log.Info().
				Int64("db_size_before", report.DBSizeBefore).
				Int64("db_size_after", report.DBSizeAfter).
				Msg("retention cleanup complete")
		}
	}
}
