package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for settings persistence operations.
type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)

	GetLightState(ctx context.Context, deviceID string) (*LightState, error)
	SetLightState(ctx context.Context, deviceID string, state *LightState) error
	ListLightStates(ctx context.Context) (map[string]LightState, error)

	RecorderEnabled(ctx context.Context) (bool, error)
	SetRecorderEnabled(ctx context.Context, enabled bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed settings repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the raw JSON value for a key.
func (r *SQLiteRepository) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	const query = `SELECT value FROM settings WHERE key = ?`
	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the raw JSON value for a key.
func (r *SQLiteRepository) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}

	const query = `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := r.db.ExecContext(ctx, query, key, value, now); err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	const query = `DELETE FROM settings WHERE key = ?`
	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("deleting setting %s: %w", key, err)
	}
	return nil
}

// List returns all settings as raw key/value pairs.
func (r *SQLiteRepository) List(ctx context.Context) (map[string]string, error) {
	const query = `SELECT key, value FROM settings ORDER BY key`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	return settings, nil
}

// GetLightState returns the persisted state for a light device.
// Returns ErrNotFound when no state has been stored yet.
func (r *SQLiteRepository) GetLightState(ctx context.Context, deviceID string) (*LightState, error) {
	raw, err := r.Get(ctx, LightStateKey(deviceID))
	if err != nil {
		return nil, err
	}

	var state LightState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decoding light state for %s: %w", deviceID, err)
	}
	return &state, nil
}

// SetLightState upserts the persisted state for a light device.
func (r *SQLiteRepository) SetLightState(ctx context.Context, deviceID string, state *LightState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding light state for %s: %w", deviceID, err)
	}
	return r.Set(ctx, LightStateKey(deviceID), string(raw))
}

// ListLightStates returns all persisted light states keyed by device ID.
// Entries that fail to decode are skipped.
func (r *SQLiteRepository) ListLightStates(ctx context.Context) (map[string]LightState, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	states := make(map[string]LightState)
	for key, raw := range all {
		if !strings.HasPrefix(key, lightStatePrefix) {
			continue
		}
		var state LightState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			continue
		}
		states[strings.TrimPrefix(key, lightStatePrefix)] = state
	}
	return states, nil
}

// RecorderEnabled reports whether event recording is enabled.
// Defaults to true when the setting has never been written.
func (r *SQLiteRepository) RecorderEnabled(ctx context.Context) (bool, error) {
	raw, err := r.Get(ctx, keyRecorderEnabled)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	var enabled bool
	if err := json.Unmarshal([]byte(raw), &enabled); err != nil {
		return false, fmt.Errorf("decoding recorder_enabled: %w", err)
	}
	return enabled, nil
}

// SetRecorderEnabled writes the global recording gate.
func (r *SQLiteRepository) SetRecorderEnabled(ctx context.Context, enabled bool) error {
	raw, err := json.Marshal(enabled)
	if err != nil {
		return fmt.Errorf("encoding recorder_enabled: %w", err)
	}
	return r.Set(ctx, keyRecorderEnabled, string(raw))
}
