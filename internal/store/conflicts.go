package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
)

// InsertConflict writes a new FileConflict row (spec.md §4.4). The Conflict
// Detector only calls this on upward severity transitions or first sighting
// of a file; it never mutates an existing row in place.
func (s *Store) InsertConflict(ctx context.Context, c *model.FileConflict) error {
	projects, err := json.Marshal(c.Projects)
	if err != nil {
		return apperr.Malformed("marshal conflict agents", err)
	}
	_, err = s.writeDB.ExecContext(ctx,
		`INSERT INTO conflicts (id, file_path, severity, detected_at, projects, dismissed, is_manifest)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		c.ID, c.FilePath, string(c.Severity), c.DetectedAt, string(projects), c.IsManifest,
	)
	if err != nil {
		return apperr.StoreIOError("insert conflict", err)
	}
	return nil
}

// DismissConflict marks a conflict dismissed (spec.md §6 POST
// /api/conflicts/:id/dismiss). Dismissal is sticky until the file's conflict
// is naturally cleared and re-detected.
func (s *Store) DismissConflict(ctx context.Context, id string) error {
	res, err := s.writeDB.ExecContext(ctx, "UPDATE conflicts SET dismissed = 1 WHERE id = ?", id)
	if err != nil {
		return apperr.StoreIOError("dismiss conflict", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.StoreIOError("read dismiss result", err)
	}
	if n == 0 {
		return apperr.NotFound("conflict not found")
	}
	return nil
}

// ListConflicts returns conflicts, most recently detected first. When
// includeDismissed is false only active conflicts are returned (spec.md §6
// GET /api/conflicts).
func (s *Store) ListConflicts(ctx context.Context, includeDismissed bool) ([]model.FileConflict, error) {
	q := `SELECT id, file_path, severity, detected_at, projects, dismissed, is_manifest FROM conflicts`
	if !includeDismissed {
		q += " WHERE dismissed = 0"
	}
	q += " ORDER BY detected_at DESC"

	rows, err := s.readDB.QueryContext(ctx, q)
	if err != nil {
		return nil, apperr.StoreIOError("list conflicts", err)
	}
	defer rows.Close()

	var out []model.FileConflict
	for rows.Next() {
		var c model.FileConflict
		var severity, projects string
		if err := rows.Scan(&c.ID, &c.FilePath, &severity, &c.DetectedAt, &projects, &c.Dismissed, &c.IsManifest); err != nil {
			return nil, apperr.StoreIOError("scan conflict", err)
		}
		c.Severity = model.ConflictSeverity(severity)
		_ = json.Unmarshal([]byte(projects), &c.Projects)
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetActiveConflictByPath returns the most recent non-dismissed conflict row
// for a file path, or nil if none exists. The Conflict Detector does not
// call it; it tracks emitted severities in its own in-memory map.
func (s *Store) GetActiveConflictByPath(ctx context.Context, filePath string) (*model.FileConflict, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT id, file_path, severity, detected_at, projects, dismissed, is_manifest
		 FROM conflicts WHERE file_path = ? AND dismissed = 0 ORDER BY detected_at DESC LIMIT 1`, filePath)

	var c model.FileConflict
	var severity, projects string
	err := row.Scan(&c.ID, &c.FilePath, &severity, &c.DetectedAt, &projects, &c.Dismissed, &c.IsManifest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreIOError("get active conflict", err)
	}
	c.Severity = model.ConflictSeverity(severity)
	_ = json.Unmarshal([]byte(projects), &c.Projects)
	return &c, nil
}
