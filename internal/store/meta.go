package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const metaModelVersion = "model_version"

// ErrModelTooNew is returned when the store was written by a newer model
// version than the caller declares.
var ErrModelTooNew = errors.New("store: model version is newer than configured")

// ModelVersion returns the application model version recorded in the store,
// 0 if none has been recorded yet.
func (s *Store) ModelVersion(ctx context.Context) (int, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, fmt.Errorf("model version: %w", err)
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaModelVersion).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("model version: %w", err)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("model version: corrupt value %q: %w", value, err)
	}
	return v, nil
}

// EnsureModelVersion records version as the store's model version.
// A store stamped with a newer version is rejected with ErrModelTooNew;
// an older or missing stamp is raised to version. No data is migrated.
func (s *Store) EnsureModelVersion(ctx context.Context, version int) error {
	current, err := s.ModelVersion(ctx)
	if err != nil {
		return err
	}
	if current > version {
		return fmt.Errorf("store has model version %d, configured %d: %w", current, version, ErrModelTooNew)
	}
	if current == version {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaModelVersion, strconv.Itoa(version))
	if err != nil {
		return fmt.Errorf("set model version: %w", err)
	}
	return nil
}
