// Package queue implements the durable, priority-ordered sync operation
// queue: pending local mutations awaiting transmission to the remote
// system, with exponential backoff across restarts.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiftline/attend/internal/model"
)

// Default retry parameters. Overridable via options.
const (
	DefaultBackoffBase = 30 * time.Second
	DefaultBackoffCap  = time.Hour
	DefaultMaxAttempts = 8
)

// Queue layers ordering, coalescing, and retry policy over the durable
// sync_operations table. All mutations go through the store in single
// transactions; the queue itself holds no operation state in memory
// beyond the seq clock.
type Queue struct {
	store       Store
	clock       *Clock
	backoffBase time.Duration
	backoffCap  time.Duration
	maxAttempts int
}

// Store is the persistence surface the queue needs. Implemented by
// *store.Store; narrowed to an interface so tests can observe calls.
type Store interface {
	EnqueueOperation(ctx context.Context, op model.SyncOperation) error
	GetOperation(ctx context.Context, id string) (model.SyncOperation, error)
	ListOperationsByStatus(ctx context.Context, status model.OperationStatus) ([]model.SyncOperation, error)
	CountOperationsByStatus(ctx context.Context, status model.OperationStatus) (int64, error)
	TransitionOperationStatus(ctx context.Context, id string, from, to model.OperationStatus) (bool, error)
	RecordOperationAttempt(ctx context.Context, id string, attempts int, at time.Time, status model.OperationStatus, reason string) (bool, error)
	RecoverInFlight(ctx context.Context) (int64, error)
	MaxOperationSeq(ctx context.Context) (int64, error)
}

// Option configures a Queue.
type Option func(*Queue)

// WithBackoff overrides the exponential backoff base and cap.
func WithBackoff(base, cap time.Duration) Option {
	return func(q *Queue) {
		q.backoffBase = base
		q.backoffCap = cap
	}
}

// WithMaxAttempts overrides the attempt ceiling after which an
// operation is reported as terminally failed.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) { q.maxAttempts = n }
}

// New creates a queue over the given store, seeding the seq clock from
// the highest persisted sequence number.
func New(ctx context.Context, s Store, opts ...Option) (*Queue, error) {
	maxSeq, err := s.MaxOperationSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed queue clock: %w", err)
	}

	q := &Queue{
		store:       s,
		clock:       NewClockAt(maxSeq),
		backoffBase: DefaultBackoffBase,
		backoffCap:  DefaultBackoffCap,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Prepare stamps a caller-built operation with identity, sequence, and
// initial lifecycle state. It does not persist: the caller either hands
// the prepared operation to Enqueue or co-locates it with a record
// write in one store transaction.
func (q *Queue) Prepare(now time.Time, op model.SyncOperation) model.SyncOperation {
	op.ID = uuid.Must(uuid.NewV7()).String()
	op.Seq = q.clock.Next()
	op.CreatedAt = now
	op.Status = model.OpPending
	op.AttemptCount = 0
	op.LastAttemptedAt = time.Time{}
	op.ErrorMessage = ""
	return op
}

// Enqueue prepares and durably inserts an operation, coalescing against
// any active operation for the same entity.
func (q *Queue) Enqueue(ctx context.Context, now time.Time, op model.SyncOperation) (model.SyncOperation, error) {
	prepared := q.Prepare(now, op)
	if err := q.store.EnqueueOperation(ctx, prepared); err != nil {
		return model.SyncOperation{}, err
	}
	slog.Debug("operation enqueued",
		"operation_id", prepared.ID,
		"entity_id", prepared.EntityID,
		"entity_type", prepared.EntityType,
		"operation_type", prepared.OperationType,
		"priority", prepared.Priority,
		"seq", prepared.Seq,
	)
	return prepared, nil
}

// PeekBatchByPriority returns up to limit pending operations in drain
// order (strict priority, then FIFO by seq), skipping operations still
// inside their backoff window at the given instant.
func (q *Queue) PeekBatchByPriority(ctx context.Context, now time.Time, limit int) ([]model.SyncOperation, error) {
	pending, err := q.store.ListOperationsByStatus(ctx, model.OpPending)
	if err != nil {
		return nil, err
	}

	batch := make([]model.SyncOperation, 0, limit)
	for _, op := range pending {
		if len(batch) == limit {
			break
		}
		if q.eligible(op, now) {
			batch = append(batch, op)
		}
	}
	return batch, nil
}

// eligible reports whether an operation's backoff window has elapsed.
func (q *Queue) eligible(op model.SyncOperation, now time.Time) bool {
	if op.AttemptCount == 0 || op.LastAttemptedAt.IsZero() {
		return true
	}
	return !now.Before(op.LastAttemptedAt.Add(q.Backoff(op.AttemptCount)))
}

// Backoff returns the wait after the given number of failed attempts:
// base doubled per attempt, capped. Pure function of the persisted
// attempt count so eligibility survives restarts unchanged.
func (q *Queue) Backoff(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	// Shifts past 62 bits overflow; by then the cap has long applied.
	if attempts > 40 {
		return q.backoffCap
	}
	d := q.backoffBase << (attempts - 1)
	if d <= 0 || d > q.backoffCap {
		return q.backoffCap
	}
	return d
}

// MarkInProgress claims a pending operation for transmission. A false
// return means the claim lost: the operation was superseded or resolved
// between peek and claim, and must not be pushed.
func (q *Queue) MarkInProgress(ctx context.Context, id string) (bool, error) {
	return q.store.TransitionOperationStatus(ctx, id, model.OpPending, model.OpInProgress)
}

// MarkCompleted records remote acceptance of an in-flight operation. A
// false return means a superseding enqueue reclaimed the row mid-push;
// it stays Pending so the refreshed payload is still delivered.
func (q *Queue) MarkCompleted(ctx context.Context, id string) (bool, error) {
	completed, err := q.store.TransitionOperationStatus(ctx, id, model.OpInProgress, model.OpCompleted)
	if err != nil {
		return false, err
	}
	if !completed {
		slog.Debug("operation superseded mid-push, completion discarded", "operation_id", id)
	}
	return completed, nil
}

// MarkFailed records a transient transmission failure. The operation
// returns to Pending behind its backoff window until the configured
// attempt ceiling, after which it becomes terminally Failed - reported,
// never silently discarded. Returns whether the failure was terminal.
// A superseded operation keeps its fresh attempt state untouched.
func (q *Queue) MarkFailed(ctx context.Context, id string, now time.Time, reason string) (terminal bool, err error) {
	op, err := q.store.GetOperation(ctx, id)
	if err != nil {
		return false, err
	}

	attempts := op.AttemptCount + 1
	status := model.OpPending
	if attempts >= q.maxAttempts {
		status = model.OpFailed
		terminal = true
	}

	applied, err := q.store.RecordOperationAttempt(ctx, id, attempts, now, status, reason)
	if err != nil {
		return false, err
	}
	if !applied {
		slog.Debug("operation superseded mid-push, failure discarded", "operation_id", id)
		return false, nil
	}

	if terminal {
		slog.Warn("operation terminally failed, manual intervention required",
			"operation_id", id,
			"entity_id", op.EntityID,
			"entity_type", op.EntityType,
			"attempts", attempts,
			"reason", reason,
		)
	} else {
		slog.Debug("operation attempt failed",
			"operation_id", id,
			"attempts", attempts,
			"next_eligible_in", q.Backoff(attempts),
			"reason", reason,
		)
	}
	return terminal, nil
}

// MarkRejected records a remote business-rule rejection: terminally
// Failed regardless of attempt count, surfaced for manual intervention.
// Reports whether the rejection applied; a superseded operation stays
// Pending, since the verdict concerned a payload that no longer exists.
func (q *Queue) MarkRejected(ctx context.Context, id string, now time.Time, reason string) (bool, error) {
	op, err := q.store.GetOperation(ctx, id)
	if err != nil {
		return false, err
	}
	applied, err := q.store.RecordOperationAttempt(ctx, id, op.AttemptCount+1, now, model.OpFailed, reason)
	if err != nil {
		return false, err
	}
	if !applied {
		slog.Debug("operation superseded mid-push, rejection discarded", "operation_id", id)
		return false, nil
	}
	slog.Warn("operation rejected by remote",
		"operation_id", id,
		"entity_id", op.EntityID,
		"entity_type", op.EntityType,
		"reason", reason,
	)
	return true, nil
}

// RecoverInFlight returns crash- or cancel-stranded InProgress
// operations to Pending. Called once at startup.
func (q *Queue) RecoverInFlight(ctx context.Context) (int64, error) {
	recovered, err := q.store.RecoverInFlight(ctx)
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		slog.Info("recovered in-flight operations", "count", recovered)
	}
	return recovered, nil
}

// PendingCount returns the number of Pending operations, including
// those inside a backoff window.
func (q *Queue) PendingCount(ctx context.Context) (int64, error) {
	return q.store.CountOperationsByStatus(ctx, model.OpPending)
}

// InFlightCount returns the number of InProgress operations. Nonzero
// outside a running drain means operations were stranded by a cancelled
// or crashed run and still await recovery.
func (q *Queue) InFlightCount(ctx context.Context) (int64, error) {
	return q.store.CountOperationsByStatus(ctx, model.OpInProgress)
}

// FailedCount returns the number of terminally failed operations.
func (q *Queue) FailedCount(ctx context.Context) (int64, error) {
	return q.store.CountOperationsByStatus(ctx, model.OpFailed)
}

// MaxAttempts returns the configured attempt ceiling.
func (q *Queue) MaxAttempts() int { return q.maxAttempts }
