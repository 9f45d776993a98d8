package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shiftline/attend/internal/model"
)

// LastFullSyncAt returns the timestamp of the last successful full
// synchronization. The checkpoint is seeded at first open, so a value
// always exists.
func (s *Store) LastFullSyncAt(ctx context.Context) (time.Time, error) {
	var ns int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_full_sync_at FROM sync_checkpoint WHERE id = 1
	`).Scan(&ns)
	if err != nil {
		return time.Time{}, fmt.Errorf("read checkpoint: %w", err)
	}
	return time.Unix(0, ns), nil
}

// RecordFullSync advances the checkpoint. The stored value is
// monotonically non-decreasing: an out-of-order call with an older
// timestamp leaves the checkpoint unchanged.
func (s *Store) RecordFullSync(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_checkpoint (id, last_full_sync_at)
		VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE
		SET last_full_sync_at = MAX(last_full_sync_at, excluded.last_full_sync_at)
	`, at.UnixNano())
	if err != nil {
		return fmt.Errorf("record full sync: %w", err)
	}
	return nil
}

// UpsertEntityState stores the resolved canonical payload for an entity.
func (s *Store) UpsertEntityState(ctx context.Context, entityType model.EntityType, entityID string, payload []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_states (entity_type, entity_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE
		SET payload = excluded.payload, updated_at = excluded.updated_at
	`, string(entityType), entityID, string(payload), at.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert entity state: %w", err)
	}
	return nil
}

// GetEntityState returns the stored payload for an entity, or nil if
// no resolved state exists yet.
func (s *Store) GetEntityState(ctx context.Context, entityType model.EntityType, entityID string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM entity_states WHERE entity_type = ? AND entity_id = ?
	`, string(entityType), entityID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity state: %w", err)
	}
	return []byte(payload), nil
}
