package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SettingsRepository stores small JSON documents in the settings table.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a repository over an open, migrated database.
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get decodes the value stored under key into dst.
// Returns ErrSettingNotFound when the key is absent.
func (r *SettingsRepository) Get(ctx context.Context, key string, dst any) error {
	var raw string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSettingNotFound
	}
	if err != nil {
		return fmt.Errorf("reading setting %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decoding setting %s: %w", key, err)
	}
	return nil
}

// Put stores value under key, replacing any previous value.
func (r *SettingsRepository) Put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", key, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key succeeds.
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting setting %s: %w", key, err)
	}
	return nil
}
