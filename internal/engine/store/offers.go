package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OfferVersion is a single immutable snapshot of a ComposeOffer call — the
// offer-versioning-as-first-class-rows supplement: each revision is written
// once and never mutated, enabling offer-history inspection instead of a
// bare counter.
type OfferVersion struct {
	ID        int64
	EventID   string
	Sequence  int
	Hash      string // SHA-256 hex of BlobJSON
	BlobJSON  string
	CreatedAt time.Time
}

// CreateOfferVersion inserts a new immutable offer_versions row and bumps
// the parent event's offer_sequence to match.
func (s *Store) CreateOfferVersion(ctx context.Context, v *OfferVersion) error {
	v.CreatedAt = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO offer_versions (event_id, sequence, hash, blob_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, v.EventID, v.Sequence, v.Hash, v.BlobJSON, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert offer_version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE events SET offer_sequence = ?, updated_at = ? WHERE event_id = ?
	`, v.Sequence, time.Now(), v.EventID)
	if err != nil {
		return fmt.Errorf("update event offer_sequence: %w", err)
	}

	return tx.Commit()
}

// NextOfferSequence returns the next sequence number (max + 1) for an
// event's offer history. Returns 1 if the event has no offer versions yet.
func (s *Store) NextOfferSequence(ctx context.Context, eventID string) (int, error) {
	var maxSeq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM offer_versions WHERE event_id = ?`, eventID,
	).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("query max offer sequence: %w", err)
	}
	if !maxSeq.Valid {
		return 1, nil
	}
	return int(maxSeq.Int64) + 1, nil
}

// GetOfferVersion retrieves a specific offer version for an event.
func (s *Store) GetOfferVersion(ctx context.Context, eventID string, sequence int) (*OfferVersion, error) {
	v := &OfferVersion{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, sequence, hash, blob_json, created_at
		FROM offer_versions
		WHERE event_id = ? AND sequence = ?
	`, eventID, sequence).Scan(&v.ID, &v.EventID, &v.Sequence, &v.Hash, &v.BlobJSON, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("offer version %d not found for event %q", sequence, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("query offer_version: %w", err)
	}
	return v, nil
}

// ListOfferVersions returns all versions for an event, newest first — the
// backing query for `eventengine offers diff`.
func (s *Store) ListOfferVersions(ctx context.Context, eventID string) ([]*OfferVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, sequence, hash, blob_json, created_at
		FROM offer_versions
		WHERE event_id = ?
		ORDER BY sequence DESC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query offer_versions: %w", err)
	}
	defer rows.Close()

	var versions []*OfferVersion
	for rows.Next() {
		v := &OfferVersion{}
		if err := rows.Scan(&v.ID, &v.EventID, &v.Sequence, &v.Hash, &v.BlobJSON, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan offer_version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offer_versions: %w", err)
	}
	return versions, nil
}
