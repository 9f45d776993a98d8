// Package engine wires the attendance-integrity components into the
// public surface hosts embed: token submission, sync status queries,
// the offline-limit fact, and drain control.
package engine

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shiftline/attend/internal/config"
	"github.com/shiftline/attend/internal/guard"
	"github.com/shiftline/attend/internal/model"
	"github.com/shiftline/attend/internal/queue"
	"github.com/shiftline/attend/internal/record"
	"github.com/shiftline/attend/internal/store"
	"github.com/shiftline/attend/internal/token"
)

// Engine is the host-facing facade. All dependencies are explicit: the
// validator takes its nonce ledger, the scheduler its queue and
// transport - no ambient global state.
type Engine struct {
	store     *store.Store
	validator *token.Validator
	machine   *record.Machine
	queue     *queue.Queue
	scheduler *Scheduler
	guard     *guard.Guard
}

// New assembles an engine from its store, issuer public key, remote
// transport, and configuration. leaves may be nil when no
// leave-management collaborator exists.
//
// Startup recovers operations stranded InProgress by a crash or a
// cancelled drain.
func New(ctx context.Context, st *store.Store, issuerKey ed25519.PublicKey, transport Transport, cfg *config.Config, leaves record.LeaveChecker) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	q, err := queue.New(ctx, st,
		queue.WithBackoff(cfg.Sync.BackoffBase.Duration, cfg.Sync.BackoffCap.Duration),
		queue.WithMaxAttempts(cfg.Sync.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("init queue: %w", err)
	}
	if _, err := q.RecoverInFlight(ctx); err != nil {
		return nil, fmt.Errorf("recover in-flight operations: %w", err)
	}

	g := guard.New(st, cfg.OfflineLimit.Duration)

	validator := token.NewValidator(issuerKey, st,
		token.WithValidityWindow(cfg.ValidityWindow.Duration),
		token.WithSkewTolerance(cfg.ClockSkewTolerance.Duration),
		token.WithNonceSafetyMargin(cfg.NonceSafetyMargin.Duration),
	)

	machine := record.NewMachine(st, q, &cfg.Attendance, leaves, g)

	scheduler := NewScheduler(st, q, transport, g,
		WithBatchSize(cfg.Sync.BatchSize),
		WithDrainInterval(cfg.Sync.DrainInterval.Duration),
	)

	return &Engine{
		store:     st,
		validator: validator,
		machine:   machine,
		queue:     q,
		scheduler: scheduler,
		guard:     g,
	}, nil
}

// SubmitToken validates a wire-form token and creates the attendance
// record for it. Validation failures come back as *token.ValidationError
// with a structured code; the caller must request a fresh token.
func (e *Engine) SubmitToken(ctx context.Context, raw, employeeID string, now time.Time) (record.CreateResult, error) {
	validated, err := e.validator.Validate(ctx, raw, now)
	if err != nil {
		return record.CreateResult{}, err
	}
	return e.machine.CreateFromToken(ctx, validated, employeeID, now)
}

// RecordCheckout stamps a checkout on an existing record, applying the
// half-day reclassification rule.
func (e *Engine) RecordCheckout(ctx context.Context, recordID string, checkoutAt time.Time) (model.AttendanceRecord, error) {
	return e.machine.RecordCheckout(ctx, recordID, checkoutAt)
}

// GetSyncStatus reports the sync lifecycle state of an entity: the
// record's own status for attendance records, otherwise derived from
// its latest queued operation.
func (e *Engine) GetSyncStatus(ctx context.Context, entityID string) (model.SyncStatus, error) {
	if status, err := e.store.GetRecordSyncStatus(ctx, entityID); err == nil {
		return status, nil
	}

	op, err := e.store.LatestOperationForEntity(ctx, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("entity %s has no record or queued operation", entityID)
	}
	if err != nil {
		return "", err
	}
	return op.Status.DerivedSyncStatus(), nil
}

// IsOfflineLimitExceeded reports whether the enforced offline window has
// elapsed since the last successful full sync. Advisory: gating features
// on it is the host's policy decision.
func (e *Engine) IsOfflineLimitExceeded(ctx context.Context, now time.Time) (bool, error) {
	return e.guard.IsOfflineLimitExceeded(ctx, now)
}

// TriggerDrain requests a drain from the scheduler's Run loop.
func (e *Engine) TriggerDrain() {
	e.scheduler.TriggerDrain()
}

// Drain runs one synchronous drain. Exposed for hosts that manage their
// own scheduling instead of starting Run.
func (e *Engine) Drain(ctx context.Context, now time.Time) (DrainResult, error) {
	return e.scheduler.Drain(ctx, now)
}

// Run starts the scheduler loop; see Scheduler.Run.
func (e *Engine) Run(ctx context.Context) error {
	return e.scheduler.Run(ctx)
}

// PruneNonces removes ledger entries past any possible validity window.
func (e *Engine) PruneNonces(ctx context.Context, now time.Time) (int64, error) {
	return e.store.PruneNonces(ctx, now)
}

// Queue exposes the sync queue for inspection tooling.
func (e *Engine) Queue() *queue.Queue { return e.queue }
