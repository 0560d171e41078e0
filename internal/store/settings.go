package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/devpulse/server/internal/apperr"
)

// GetSetting returns a setting's value, or fallback if unset (spec.md §4.7
// runtime-overridable retention knobs).
func (s *Store) GetSetting(ctx context.Context, key, fallback string) (string, error) {
	row := s.readDB.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fallback, nil
		}
		return "", apperr.StoreIOError("get setting", err)
	}
	return value, nil
}

// SetSetting upserts a single setting value (spec.md §6 PUT
// /api/admin/settings).
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return apperr.StoreIOError("set setting", err)
	}
	return nil
}

// ListSettings returns every persisted setting (spec.md §6 GET
// /api/admin/settings).
func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.readDB.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, apperr.StoreIOError("list settings", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, apperr.StoreIOError("scan setting", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
