// Package catalog provides the Catalog & Config Store (C1's read-only
// accessor half): a SQLite-backed key/value table for operator-tunable
// runtime knobs (confidence thresholds, verbalizer tone, detection mode),
// and a YAML-loaded venue catalog (rooms, products, menus, operating hours)
// consulted by the step handlers.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/store"
)

// ErrNotFound is returned by Get when the requested key does not exist.
var ErrNotFound = errors.New("catalog: key not found")

// ConfigStore is the read/write interface for the runtime configuration
// table. Implementations must be safe for concurrent use.
type ConfigStore interface {
	// Get returns the value associated with key. Returns ErrNotFound when the
	// key has not been set.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, creating or overwriting the entry and
	// recording the current UTC timestamp in updated_at.
	Set(ctx context.Context, key string, value string) error

	// Delete removes key from the store. It is a no-op (no error) when the
	// key does not exist.
	Delete(ctx context.Context, key string) error

	// List returns a snapshot of all key/value pairs currently in the store.
	// An empty map (not nil) is returned when no entries are present.
	List(ctx context.Context) (map[string]string, error)
}

// sqliteConfigStore is the SQLite-backed implementation of ConfigStore.
type sqliteConfigStore struct {
	db *store.Store
}

// NewConfigStore creates a ConfigStore backed by the application database.
// The migration that creates the config table must have been applied before
// NewConfigStore is called (guaranteed by store.New running all migrations
// on startup).
func NewConfigStore(db *store.Store) ConfigStore {
	return &sqliteConfigStore{db: db}
}

func (s *sqliteConfigStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT value FROM config WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("catalog: get %q: %w", key, err)
	}
	return value, nil
}

func (s *sqliteConfigStore) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("catalog: set %q: %w", key, err)
	}
	return nil
}

func (s *sqliteConfigStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.DB().ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("catalog: delete %q: %w", key, err)
	}
	return nil
}

func (s *sqliteConfigStore) List(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("catalog: list scan: %w", err)
		}
		result[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list rows: %w", err)
	}
	return result, nil
}

// Thresholds keys, with defaults matching the confidence-gating policy.
const (
	KeyHighConfidenceThreshold = "detection.high_confidence_threshold"
	KeyMidConfidenceThreshold  = "detection.mid_confidence_threshold"
	KeyVerbalizerTone          = "verbalizer.tone"
	KeyDetectionMode           = "detection.mode"
	KeyHilAllLLMReplies        = "hil.all_llm_replies"
)

// Thresholds is a resolved snapshot of the confidence-gating config, read
// once per message via GetFloat/GetBool convenience helpers below.
type Thresholds struct {
	HighConfidence float64
	MidConfidence  float64
}

// DefaultThresholds matches the classifier's compiled-in defaults, used when
// the config table has no override row.
func DefaultThresholds() Thresholds {
	return Thresholds{HighConfidence: 0.85, MidConfidence: 0.5}
}

// LoadThresholds resolves Thresholds from cs, falling back to
// DefaultThresholds for any key that is unset or unparsable.
func LoadThresholds(ctx context.Context, cs ConfigStore) Thresholds {
	d := DefaultThresholds()
	if v, err := cs.Get(ctx, KeyHighConfidenceThreshold); err == nil {
		if f, perr := parseFloat(v); perr == nil {
			d.HighConfidence = f
		}
	}
	if v, err := cs.Get(ctx, KeyMidConfidenceThreshold); err == nil {
		if f, perr := parseFloat(v); perr == nil {
			d.MidConfidence = f
		}
	}
	return d
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}
