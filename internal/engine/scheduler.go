package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shiftline/attend/internal/guard"
	"github.com/shiftline/attend/internal/model"
	"github.com/shiftline/attend/internal/queue"
	"github.com/shiftline/attend/internal/resolve"
	"github.com/shiftline/attend/internal/store"
)

// DefaultDrainInterval is the periodic drain cadence for Run.
const DefaultDrainInterval = 5 * time.Minute

// DefaultBatchSize bounds how many operations one peek returns.
const DefaultBatchSize = 32

// DrainOutcome is the terminal state of one drain run.
type DrainOutcome int

const (
	// DrainSkipped means another drain held the run-lock; nothing ran.
	DrainSkipped DrainOutcome = iota + 1

	// DrainIdle means the queue fully drained with no failures left.
	DrainIdle

	// DrainIdleWithFailures means the drain finished but operations
	// remain pending behind backoff or terminally failed.
	DrainIdleWithFailures

	// DrainCancelled means the caller cancelled mid-drain; in-flight
	// operations stay InProgress and are recovered at next startup.
	DrainCancelled
)

func (o DrainOutcome) String() string {
	switch o {
	case DrainSkipped:
		return "Skipped"
	case DrainIdle:
		return "Idle"
	case DrainIdleWithFailures:
		return "IdleWithFailures"
	case DrainCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// DrainResult summarizes one drain run.
type DrainResult struct {
	Outcome   DrainOutcome
	Completed int
	Transient int
	Rejected  int
}

// Scheduler orchestrates queue draining when connectivity is available.
//
// Per run the state machine is Idle → Draining → (Idle |
// Idle-with-Failures). Two drains never run concurrently: the run-lock
// makes a second Drain call a no-op reporting DrainSkipped.
type Scheduler struct {
	store      *store.Store
	queue      *queue.Queue
	transport  Transport
	guard      *guard.Guard
	strategies resolve.Table
	batchSize  int
	interval   time.Duration

	runLock sync.Mutex
	trigger chan struct{} // buffered(1), coalesces trigger bursts
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithBatchSize overrides how many operations one peek returns.
func WithBatchSize(n int) SchedulerOption {
	return func(s *Scheduler) { s.batchSize = n }
}

// WithDrainInterval overrides the periodic drain cadence for Run.
func WithDrainInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = d }
}

// WithStrategies overrides the per-entity-type resolution strategies.
func WithStrategies(t resolve.Table) SchedulerOption {
	return func(s *Scheduler) { s.strategies = t }
}

// NewScheduler creates a scheduler over the queue and remote transport.
func NewScheduler(st *store.Store, q *queue.Queue, transport Transport, g *guard.Guard, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:      st,
		queue:      q,
		transport:  transport,
		guard:      g,
		strategies: resolve.DefaultTable(),
		batchSize:  DefaultBatchSize,
		interval:   DefaultDrainInterval,
		trigger:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TriggerDrain requests a drain from the Run loop. Safe from any
// goroutine; bursts coalesce into one pending trigger.
func (s *Scheduler) TriggerDrain() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run is the host-controlled scheduler loop: it drains on connectivity
// triggers and on a periodic timer until the context is cancelled. No
// background work happens unless the host starts this loop.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping: context cancelled")
			return ctx.Err()
		case <-s.trigger:
		case <-ticker.C:
		}

		if _, err := s.Drain(ctx, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("drain failed", "error", err)
		}
	}
}

// Drain processes all eligible pending operations in priority-then-FIFO
// order. Operations that fail transiently gain backoff and are not
// retried within the same run. The sync checkpoint advances only on a
// clean full drain: nothing Pending and nothing stranded InProgress.
//
// Cancellation leaves the in-flight operation InProgress; it is
// recovered to Pending at next startup if no completion was recorded.
func (s *Scheduler) Drain(ctx context.Context, now time.Time) (DrainResult, error) {
	if !s.runLock.TryLock() {
		return DrainResult{Outcome: DrainSkipped}, nil
	}
	defer s.runLock.Unlock()

	slog.Info("drain starting")
	var res DrainResult

	for {
		if err := ctx.Err(); err != nil {
			res.Outcome = DrainCancelled
			return res, err
		}

		batch, err := s.queue.PeekBatchByPriority(ctx, now, s.batchSize)
		if err != nil {
			return res, err
		}
		if len(batch) == 0 {
			break
		}

		for _, op := range batch {
			if err := s.processOperation(ctx, op, now, &res); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					res.Outcome = DrainCancelled
					slog.Info("drain cancelled, in-flight operations remain in progress")
					return res, err
				}
				return res, err
			}
		}
	}

	pending, err := s.queue.PendingCount(ctx)
	if err != nil {
		return res, err
	}
	inFlight, err := s.queue.InFlightCount(ctx)
	if err != nil {
		return res, err
	}
	failed, err := s.queue.FailedCount(ctx)
	if err != nil {
		return res, err
	}

	// InProgress operations here were stranded by an earlier cancelled
	// run; they are unsynced and retryable, so the checkpoint must not
	// pretend they reached the remote.
	if pending == 0 && inFlight == 0 {
		if err := s.guard.RecordSuccessfulSync(ctx, now); err != nil {
			return res, err
		}
	}

	if pending == 0 && inFlight == 0 && failed == 0 {
		res.Outcome = DrainIdle
	} else {
		res.Outcome = DrainIdleWithFailures
	}

	slog.Info("drain finished",
		"outcome", res.Outcome,
		"completed", res.Completed,
		"transient", res.Transient,
		"rejected", res.Rejected,
		"pending", pending,
		"in_flight", inFlight,
		"failed", failed,
	)
	return res, nil
}

// processOperation pushes one operation and applies the remote verdict.
// A concurrent enqueue may supersede the operation at any point: a lost
// claim skips the push, and a verdict that lands after a supersede is
// discarded so the refreshed payload stays queued.
func (s *Scheduler) processOperation(ctx context.Context, op model.SyncOperation, now time.Time, res *DrainResult) error {
	claimed, err := s.queue.MarkInProgress(ctx, op.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	// Re-read after the claim: a supersede between peek and claim
	// refreshed the payload while the row was still Pending.
	op, err = s.store.GetOperation(ctx, op.ID)
	if err != nil {
		return err
	}

	result, err := s.transport.Push(ctx, op.OperationType, op.EntityType, op.Payload)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Cancelled mid-flight: the operation stays InProgress until
		// startup recovery, per the crash/cancel contract.
		return ctxErr
	}
	if err != nil {
		result.Status = RemoteTransientFailure
		if result.Reason == "" {
			result.Reason = err.Error()
		}
	}

	switch result.Status {
	case RemoteAccepted:
		if len(result.Canonical) > 0 {
			if err := s.applyCanonical(ctx, op, result.Canonical, now); err != nil {
				return err
			}
		}
		completed, err := s.queue.MarkCompleted(ctx, op.ID)
		if err != nil {
			return err
		}
		if !completed {
			return nil
		}
		if op.EntityType == model.EntityAttendance {
			if err := s.store.SetRecordSyncStatus(ctx, op.EntityID, model.SyncSynced); err != nil {
				return err
			}
		}
		res.Completed++

	case RemoteRejected:
		rejected, err := s.queue.MarkRejected(ctx, op.ID, now, result.Reason)
		if err != nil {
			return err
		}
		if !rejected {
			return nil
		}
		if op.EntityType == model.EntityAttendance {
			if err := s.store.SetRecordSyncStatus(ctx, op.EntityID, model.SyncFailed); err != nil {
				return err
			}
		}
		res.Rejected++

	default:
		terminal, err := s.queue.MarkFailed(ctx, op.ID, now, result.Reason)
		if err != nil {
			return err
		}
		if terminal && op.EntityType == model.EntityAttendance {
			if err := s.store.SetRecordSyncStatus(ctx, op.EntityID, model.SyncFailed); err != nil {
				return err
			}
		}
		res.Transient++
	}
	return nil
}

// applyCanonical resolves the remote canonical payload against the local
// version and persists the merged state.
func (s *Scheduler) applyCanonical(ctx context.Context, op model.SyncOperation, canonical []byte, now time.Time) error {
	remoteDoc, err := resolve.DecodeDocument(canonical)
	if err != nil {
		// Structurally incompatible canonical payloads are a contract
		// violation upstream; keep the raw payload rather than dropping it.
		slog.Warn("canonical payload is not a document, storing raw",
			"operation_id", op.ID,
			"entity_id", op.EntityID,
			"error", err,
		)
		return s.store.UpsertEntityState(ctx, op.EntityType, op.EntityID, canonical, now)
	}

	localDoc := remoteDoc
	localPayload, err := s.store.GetEntityState(ctx, op.EntityType, op.EntityID)
	if err != nil {
		return err
	}
	if localPayload == nil {
		localPayload = op.Payload
	}
	if len(localPayload) > 0 {
		if d, err := resolve.DecodeDocument(localPayload); err == nil {
			localDoc = d
		}
	}

	merged := resolve.Resolve(localDoc, remoteDoc, s.strategies.For(op.EntityType))
	payload, err := resolve.MarshalDocument(merged)
	if err != nil {
		return fmt.Errorf("marshal resolved document: %w", err)
	}
	return s.store.UpsertEntityState(ctx, op.EntityType, op.EntityID, payload, now)
}
