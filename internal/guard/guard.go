// Package guard tracks elapsed time since the last successful full
// synchronization against the enforced offline ceiling.
//
// The guard only reports the boolean fact; whether to block features on
// a stale window is the calling layer's policy decision. Record
// creation never fails on an exceeded limit - data is never discarded.
package guard

import (
	"context"
	"time"
)

// DefaultOfflineLimit is the enforced offline window.
const DefaultOfflineLimit = 168 * time.Hour

// Checkpoint is the persistence surface the guard needs. Implemented by
// *store.Store.
type Checkpoint interface {
	LastFullSyncAt(ctx context.Context) (time.Time, error)
	RecordFullSync(ctx context.Context, at time.Time) error
}

// Guard reports whether the offline window has been exceeded.
type Guard struct {
	checkpoint Checkpoint
	limit      time.Duration
}

// New creates a guard over a checkpoint store. A non-positive limit
// falls back to DefaultOfflineLimit.
func New(checkpoint Checkpoint, limit time.Duration) *Guard {
	if limit <= 0 {
		limit = DefaultOfflineLimit
	}
	return &Guard{checkpoint: checkpoint, limit: limit}
}

// IsOfflineLimitExceeded reports whether more than the configured limit
// has elapsed since the last successful full sync. Exactly at the limit
// is not yet exceeded.
func (g *Guard) IsOfflineLimitExceeded(ctx context.Context, now time.Time) (bool, error) {
	last, err := g.checkpoint.LastFullSyncAt(ctx)
	if err != nil {
		return false, err
	}
	return now.Sub(last) > g.limit, nil
}

// RecordSuccessfulSync advances the checkpoint. The stored timestamp is
// monotonically non-decreasing (enforced by the checkpoint store).
func (g *Guard) RecordSuccessfulSync(ctx context.Context, now time.Time) error {
	return g.checkpoint.RecordFullSync(ctx, now)
}

// Limit returns the configured offline ceiling.
func (g *Guard) Limit() time.Duration { return g.limit }
