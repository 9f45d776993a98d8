package record

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftline/attend/internal/config"
	"github.com/shiftline/attend/internal/guard"
	"github.com/shiftline/attend/internal/model"
	"github.com/shiftline/attend/internal/queue"
	"github.com/shiftline/attend/internal/store"
	"github.com/shiftline/attend/internal/token"
)

// fakeLeaves is a LeaveChecker with a fixed answer.
type fakeLeaves struct {
	onLeave bool
}

func (f *fakeLeaves) HasApprovedLeave(context.Context, string, time.Time) (bool, error) {
	return f.onLeave, nil
}

type machineFixture struct {
	machine *Machine
	store   *store.Store
	issuer  *token.Issuer
	valid   *token.Validator
}

func createTestMachine(t *testing.T, leaves LeaveChecker) *machineFixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	q, err := queue.New(context.Background(), s)
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cfg := config.Default()
	g := guard.New(s, cfg.OfflineLimit.Duration)

	return &machineFixture{
		machine: NewMachine(s, q, &cfg.Attendance, leaves, g),
		store:   s,
		issuer:  token.NewIssuer(priv),
		valid:   token.NewValidator(pub, s),
	}
}

// mintValidated issues a fresh token and runs it through full
// validation at its issuance instant.
func (f *machineFixture) mintValidated(t *testing.T, locationID string, at time.Time) token.Validated {
	t.Helper()
	tok, err := f.issuer.Issue(locationID, at)
	require.NoError(t, err)
	validated, err := f.valid.Validate(context.Background(), token.Encode(tok), at)
	require.NoError(t, err)
	return validated
}

// at places a wall-clock time on tomorrow's date, keeping classification
// deterministic while staying near the store's seeded sync checkpoint.
func at(hour, min int) time.Time {
	d := time.Now().UTC().AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, time.UTC)
}

func TestCreateFromToken_Classification(t *testing.T) {
	// Default policy: start 09:00, grace 5m, late cutoff 15m.
	tests := []struct {
		name       string
		capturedAt time.Time
		want       model.Status
	}{
		{"within grace", at(9, 3), model.StatusOnTime},
		{"exactly at grace boundary", at(9, 5), model.StatusOnTime},
		{"past grace", at(9, 6), model.StatusLate},
		{"exactly at late cutoff", at(9, 15), model.StatusLate},
		{"past late cutoff", at(9, 16), model.StatusAbsent},
		{"very late", at(9, 40), model.StatusAbsent},
		{"before expected start", at(8, 30), model.StatusOnTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := createTestMachine(t, nil)
			validated := f.mintValidated(t, "loc-hq", tt.capturedAt)

			result, err := f.machine.CreateFromToken(context.Background(), validated, "emp-1", tt.capturedAt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Record.Status)
			assert.Equal(t, model.SyncPending, result.Record.SyncStatus)
		})
	}
}

func TestCreateFromToken_ApprovedLeaveOverrides(t *testing.T) {
	f := createTestMachine(t, &fakeLeaves{onLeave: true})

	// 40 minutes past expected start would otherwise classify Absent.
	capturedAt := at(9, 40)
	validated := f.mintValidated(t, "loc-hq", capturedAt)

	result, err := f.machine.CreateFromToken(context.Background(), validated, "emp-1", capturedAt)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApprovedLeave, result.Record.Status)
}

func TestCreateFromToken_QueuesHighPriorityCreate(t *testing.T) {
	f := createTestMachine(t, nil)
	ctx := context.Background()
	capturedAt := at(9, 3)

	validated := f.mintValidated(t, "loc-hq", capturedAt)
	result, err := f.machine.CreateFromToken(ctx, validated, "emp-1", capturedAt)
	require.NoError(t, err)

	pending, err := f.store.ListOperationsByStatus(ctx, model.OpPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	op := pending[0]
	assert.Equal(t, result.Record.ID, op.EntityID)
	assert.Equal(t, model.EntityAttendance, op.EntityType)
	assert.Equal(t, model.OpCreate, op.OperationType)
	assert.Equal(t, model.PriorityHigh, op.Priority)
	assert.NotEmpty(t, op.Payload)
}

func TestCreateFromToken_RequiresValidation(t *testing.T) {
	f := createTestMachine(t, nil)

	_, err := f.machine.CreateFromToken(context.Background(), token.Validated{}, "emp-1", at(9, 0))
	require.Error(t, err)
	assert.Equal(t, token.ErrCodeTokenNotValidated, token.CodeOf(err))
}

func TestCreateFromToken_TokenBacksSingleRecord(t *testing.T) {
	f := createTestMachine(t, nil)
	ctx := context.Background()
	capturedAt := at(9, 3)

	validated := f.mintValidated(t, "loc-hq", capturedAt)
	_, err := f.machine.CreateFromToken(ctx, validated, "emp-1", capturedAt)
	require.NoError(t, err)

	// Reusing the same proof hits the token_id unique constraint.
	_, err = f.machine.CreateFromToken(ctx, validated, "emp-2", capturedAt)
	require.Error(t, err)
}

func TestRecordCheckout_EarlyLeaveReclassifiesHalfDay(t *testing.T) {
	f := createTestMachine(t, nil)
	ctx := context.Background()
	capturedAt := at(9, 3)

	validated := f.mintValidated(t, "loc-hq", capturedAt)
	result, err := f.machine.CreateFromToken(ctx, validated, "emp-1", capturedAt)
	require.NoError(t, err)

	// Expected end 17:00, half-day cutoff 4h: leaving 12:30 is 4h30m early.
	rec, err := f.machine.RecordCheckout(ctx, result.Record.ID, at(12, 30))
	require.NoError(t, err)
	assert.Equal(t, model.StatusHalfDay, rec.Status)
	assert.Equal(t, model.SyncPending, rec.SyncStatus)
	assert.False(t, rec.CheckedOutAt.IsZero())

	// The checkout update coalesces into the still-pending create.
	pending, err := f.store.ListOperationsByStatus(ctx, model.OpPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.OpCreate, pending[0].OperationType)
}

func TestRecordCheckout_FullDayKeepsStatus(t *testing.T) {
	f := createTestMachine(t, nil)
	ctx := context.Background()
	capturedAt := at(9, 10) // Late

	validated := f.mintValidated(t, "loc-hq", capturedAt)
	result, err := f.machine.CreateFromToken(ctx, validated, "emp-1", capturedAt)
	require.NoError(t, err)
	require.Equal(t, model.StatusLate, result.Record.Status)

	rec, err := f.machine.RecordCheckout(ctx, result.Record.ID, at(17, 5))
	require.NoError(t, err)
	assert.Equal(t, model.StatusLate, rec.Status)
}

func TestRecordCheckout_AbsentNeverBecomesHalfDay(t *testing.T) {
	f := createTestMachine(t, nil)
	ctx := context.Background()
	capturedAt := at(9, 40) // Absent

	validated := f.mintValidated(t, "loc-hq", capturedAt)
	result, err := f.machine.CreateFromToken(ctx, validated, "emp-1", capturedAt)
	require.NoError(t, err)

	rec, err := f.machine.RecordCheckout(ctx, result.Record.ID, at(12, 0))
	require.NoError(t, err)
	assert.Equal(t, model.StatusAbsent, rec.Status)
}

func TestRecordCheckout_AlreadyCheckedOut(t *testing.T) {
	f := createTestMachine(t, nil)
	ctx := context.Background()
	capturedAt := at(9, 3)

	validated := f.mintValidated(t, "loc-hq", capturedAt)
	result, err := f.machine.CreateFromToken(ctx, validated, "emp-1", capturedAt)
	require.NoError(t, err)

	_, err = f.machine.RecordCheckout(ctx, result.Record.ID, at(17, 0))
	require.NoError(t, err)

	_, err = f.machine.RecordCheckout(ctx, result.Record.ID, at(17, 30))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already checked out")
}

func TestRequeue_FailedRecordReturnsToPending(t *testing.T) {
	f := createTestMachine(t, nil)
	ctx := context.Background()
	capturedAt := at(9, 3)

	validated := f.mintValidated(t, "loc-hq", capturedAt)
	result, err := f.machine.CreateFromToken(ctx, validated, "emp-1", capturedAt)
	require.NoError(t, err)
	recID := result.Record.ID

	// Simulate exhausted retries: operation and record both Failed.
	pending, err := f.store.ListOperationsByStatus(ctx, model.OpPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, f.store.SetOperationStatus(ctx, pending[0].ID, model.OpFailed))
	require.NoError(t, f.store.SetRecordSyncStatus(ctx, recID, model.SyncFailed))

	require.NoError(t, f.machine.Requeue(ctx, recID, capturedAt.Add(time.Hour)))

	status, err := f.store.GetRecordSyncStatus(ctx, recID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncPending, status)

	pending, err = f.store.ListOperationsByStatus(ctx, model.OpPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, recID, pending[0].EntityID)
	assert.Zero(t, pending[0].AttemptCount)
}

func TestRequeue_RejectsNonFailedRecord(t *testing.T) {
	f := createTestMachine(t, nil)
	ctx := context.Background()
	capturedAt := at(9, 3)

	validated := f.mintValidated(t, "loc-hq", capturedAt)
	result, err := f.machine.CreateFromToken(ctx, validated, "emp-1", capturedAt)
	require.NoError(t, err)

	err = f.machine.Requeue(ctx, result.Record.ID, capturedAt.Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only Failed records")
}
