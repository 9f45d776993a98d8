// Package record implements the attendance record state machine: record
// creation from validated tokens, deterministic status classification,
// and checkout reclassification.
package record

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiftline/attend/internal/config"
	"github.com/shiftline/attend/internal/guard"
	"github.com/shiftline/attend/internal/model"
	"github.com/shiftline/attend/internal/queue"
	"github.com/shiftline/attend/internal/store"
	"github.com/shiftline/attend/internal/token"
)

// LeaveChecker is the leave-management collaborator. An approved leave
// for the employee on the capture date overrides time-based
// classification.
type LeaveChecker interface {
	HasApprovedLeave(ctx context.Context, employeeID string, day time.Time) (bool, error)
}

// CreateResult is the outcome of record creation. StaleWindow is the
// advisory offline-limit flag: the record was created and queued
// regardless, but the calling layer may want to block features that
// require a fresher sync.
type CreateResult struct {
	Record      model.AttendanceRecord
	StaleWindow bool
}

// Machine owns the attendance records it creates and drives their
// lifecycle: Pending at creation, Synced on confirmed remote
// acceptance, Failed after exhausted retries (still queued for
// resolution, never dropped).
type Machine struct {
	store  *store.Store
	queue  *queue.Queue
	policy *config.AttendancePolicy
	leaves LeaveChecker
	guard  *guard.Guard
}

// NewMachine creates a record machine. leaves may be nil when no
// leave-management collaborator is wired; the override is then skipped.
func NewMachine(s *store.Store, q *queue.Queue, policy *config.AttendancePolicy, leaves LeaveChecker, g *guard.Guard) *Machine {
	return &Machine{
		store:  s,
		queue:  q,
		policy: policy,
		leaves: leaves,
		guard:  g,
	}
}

// CreateFromToken creates a Pending attendance record from a validated
// token and enqueues its High-priority sync operation in the same
// store transaction.
//
// The validated proof must come from the token validator: the zero
// value fails with TOKEN_NOT_VALIDATED, which is a contract violation
// in the calling path, not a user condition.
func (m *Machine) CreateFromToken(ctx context.Context, validated token.Validated, employeeID string, capturedAt time.Time) (CreateResult, error) {
	if !validated.Valid() {
		return CreateResult{}, &token.ValidationError{
			Code:    token.ErrCodeTokenNotValidated,
			Message: "record creation requires a token that passed validation",
		}
	}
	tok := validated.Token()

	status, err := m.classify(ctx, employeeID, tok.LocationID, capturedAt)
	if err != nil {
		return CreateResult{}, err
	}

	rec := model.AttendanceRecord{
		ID:         uuid.Must(uuid.NewV7()).String(),
		EmployeeID: employeeID,
		LocationID: tok.LocationID,
		CapturedAt: capturedAt,
		Status:     status,
		SyncStatus: model.SyncPending,
		TokenID:    tok.ID,
	}

	payload, err := MarshalRecordDocument(rec, capturedAt)
	if err != nil {
		return CreateResult{}, fmt.Errorf("marshal record payload: %w", err)
	}

	op := m.queue.Prepare(capturedAt, model.SyncOperation{
		EntityID:      rec.ID,
		EntityType:    model.EntityAttendance,
		OperationType: model.OpCreate,
		Priority:      model.PriorityHigh,
		Payload:       payload,
	})

	if err := m.store.CreateRecordWithOperation(ctx, rec, op); err != nil {
		return CreateResult{}, fmt.Errorf("create record: %w", err)
	}

	stale, err := m.guard.IsOfflineLimitExceeded(ctx, capturedAt)
	if err != nil {
		return CreateResult{}, err
	}

	slog.Info("attendance record created",
		"record_id", rec.ID,
		"employee_id", employeeID,
		"location_id", rec.LocationID,
		"status", rec.Status,
		"stale_window", stale,
	)
	return CreateResult{Record: rec, StaleWindow: stale}, nil
}

// classify derives the attendance status from capture time relative to
// the location's expected-time policy. An approved leave takes
// precedence over the time-based rules.
func (m *Machine) classify(ctx context.Context, employeeID, locationID string, capturedAt time.Time) (model.Status, error) {
	if m.leaves != nil {
		onLeave, err := m.leaves.HasApprovedLeave(ctx, employeeID, capturedAt)
		if err != nil {
			return "", fmt.Errorf("check approved leave: %w", err)
		}
		if onLeave {
			return model.StatusApprovedLeave, nil
		}
	}

	expectedStart, err := m.policy.ExpectedStartAt(locationID, capturedAt)
	if err != nil {
		return "", err
	}
	lp := m.policy.For(locationID)

	delta := capturedAt.Sub(expectedStart)
	switch {
	case delta <= lp.GraceWindow.Duration:
		return model.StatusOnTime, nil
	case delta <= lp.LateCutoff.Duration:
		return model.StatusLate, nil
	default:
		return model.StatusAbsent, nil
	}
}

// RecordCheckout stamps the checkout time and applies the symmetric
// checkout-delta rule: leaving earlier than the policy's half-day
// cutoff before the expected end reclassifies the record to HalfDay.
// The record returns to Pending sync status and an Update operation is
// enqueued in the same transaction.
func (m *Machine) RecordCheckout(ctx context.Context, recordID string, checkoutAt time.Time) (model.AttendanceRecord, error) {
	rec, err := m.store.GetRecord(ctx, recordID)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	if !rec.CheckedOutAt.IsZero() {
		return model.AttendanceRecord{}, fmt.Errorf("record %s already checked out", recordID)
	}

	expectedEnd, err := m.policy.ExpectedEndAt(rec.LocationID, checkoutAt)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	lp := m.policy.For(rec.LocationID)

	rec.CheckedOutAt = checkoutAt
	if earlyBy := expectedEnd.Sub(checkoutAt); earlyBy > lp.HalfDayCutoff.Duration {
		switch rec.Status {
		case model.StatusOnTime, model.StatusLate:
			rec.Status = model.StatusHalfDay
		}
	}
	rec.SyncStatus = model.SyncPending

	payload, err := MarshalRecordDocument(rec, checkoutAt)
	if err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("marshal record payload: %w", err)
	}

	op := m.queue.Prepare(checkoutAt, model.SyncOperation{
		EntityID:      rec.ID,
		EntityType:    model.EntityAttendance,
		OperationType: model.OpUpdate,
		Priority:      model.PriorityHigh,
		Payload:       payload,
	})

	if err := m.store.UpdateRecordWithOperation(ctx, rec, op); err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("record checkout: %w", err)
	}

	slog.Info("checkout recorded",
		"record_id", rec.ID,
		"status", rec.Status,
		"checked_out_at", checkoutAt,
	)
	return rec, nil
}

// Requeue returns a Failed record's sync status to Pending and enqueues
// a fresh operation for it. The attendance status classification
// computed at creation is never changed.
func (m *Machine) Requeue(ctx context.Context, recordID string, now time.Time) error {
	rec, err := m.store.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.SyncStatus != model.SyncFailed {
		return fmt.Errorf("record %s is %s, only Failed records can be re-queued", recordID, rec.SyncStatus)
	}

	rec.SyncStatus = model.SyncPending
	payload, err := MarshalRecordDocument(rec, now)
	if err != nil {
		return fmt.Errorf("marshal record payload: %w", err)
	}

	opType := model.OpCreate
	if !rec.CheckedOutAt.IsZero() {
		opType = model.OpUpdate
	}
	op := m.queue.Prepare(now, model.SyncOperation{
		EntityID:      rec.ID,
		EntityType:    model.EntityAttendance,
		OperationType: opType,
		Priority:      model.PriorityHigh,
		Payload:       payload,
	})
	return m.store.UpdateRecordWithOperation(ctx, rec, op)
}
