package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shiftline/attend/internal/model"
)

// EnqueueOperation inserts a sync operation, coalescing against any
// existing active operation for the same (entityID, entityType) pair.
func (s *Store) EnqueueOperation(ctx context.Context, op model.SyncOperation) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return enqueueOperationTx(tx, op)
	})
}

// enqueueOperationTx coalesces-or-inserts inside an existing transaction.
//
// At most one active (Pending or InProgress) operation exists per
// entity. A superseding operation takes over the existing row in place:
// the row keeps its id, seq, and created_at (queue position is
// preserved, so repeated edits cannot starve an entity; the stable id
// keeps a scheduler mid-push holding a valid handle) and the attempt
// counters reset, since the new mutation has never been tried. An
// InProgress row returns to Pending: the refreshed payload still needs
// delivery regardless of how the in-flight push ends.
//
// Operation-type collapse rules:
//   - Delete always supersedes any prior Create/Update.
//   - Update over a pending Create stays Create: the remote has never
//     seen the entity, so the refreshed payload must still create it.
//   - Anything else takes the incoming operation type.
func enqueueOperationTx(tx *sql.Tx, op model.SyncOperation) error {
	var (
		existingID   string
		existingType string
	)
	err := tx.QueryRow(`
		SELECT id, operation_type FROM sync_operations
		WHERE entity_id = ? AND entity_type = ? AND status IN ('Pending', 'InProgress')
	`, op.EntityID, string(op.EntityType)).Scan(&existingID, &existingType)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := tx.Exec(`
			INSERT INTO sync_operations
			(id, entity_id, entity_type, operation_type, priority, payload, seq, created_at, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'Pending')
		`,
			op.ID,
			op.EntityID,
			string(op.EntityType),
			string(op.OperationType),
			int(op.Priority),
			string(op.Payload),
			op.Seq,
			op.CreatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("enqueue operation: insert: %w", err)
		}
		return nil

	case err != nil:
		return fmt.Errorf("enqueue operation: lookup active: %w", err)
	}

	opType := string(op.OperationType)
	if op.OperationType != model.OpDelete && existingType == string(model.OpCreate) {
		opType = string(model.OpCreate)
	}

	_, err = tx.Exec(`
		UPDATE sync_operations
		SET operation_type = ?, priority = ?, payload = ?,
		    attempt_count = 0, last_attempted_at = NULL,
		    status = 'Pending', error_message = ''
		WHERE id = ?
	`, opType, int(op.Priority), string(op.Payload), existingID)
	if err != nil {
		return fmt.Errorf("enqueue operation: supersede %s: %w", existingID, err)
	}
	return nil
}

// GetOperation loads a sync operation by ID.
func (s *Store) GetOperation(ctx context.Context, id string) (model.SyncOperation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, entity_type, operation_type, priority, payload,
		       seq, created_at, last_attempted_at, attempt_count, status, error_message
		FROM sync_operations WHERE id = ?
	`, id)
	return scanOperation(row)
}

// ListOperationsByStatus returns operations in drain order:
// strict priority first, FIFO by seq within a priority.
func (s *Store) ListOperationsByStatus(ctx context.Context, status model.OperationStatus) ([]model.SyncOperation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, entity_type, operation_type, priority, payload,
		       seq, created_at, last_attempted_at, attempt_count, status, error_message
		FROM sync_operations
		WHERE status = ?
		ORDER BY priority ASC, seq ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var ops []model.SyncOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// CountOperationsByStatus returns the number of operations in a state.
func (s *Store) CountOperationsByStatus(ctx context.Context, status model.OperationStatus) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sync_operations WHERE status = ?
	`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count operations: %w", err)
	}
	return count, nil
}

// SetOperationStatus moves an operation to a new lifecycle state.
func (s *Store) SetOperationStatus(ctx context.Context, id string, status model.OperationStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_operations SET status = ? WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("set operation status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set operation status: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("set operation status: operation %s not found", id)
	}
	return nil
}

// TransitionOperationStatus moves an operation between lifecycle states
// only if it is still in the expected one. Reports whether the
// transition applied; a false return means the operation was superseded
// or completed by another caller in the meantime.
func (s *Store) TransitionOperationStatus(ctx context.Context, id string, from, to model.OperationStatus) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_operations SET status = ? WHERE id = ? AND status = ?
	`, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition operation status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition operation status: rows affected: %w", err)
	}
	return rows > 0, nil
}

// RecordOperationAttempt persists the outcome of a transmission attempt
// on an in-flight operation: the bumped attempt count, the attempt
// timestamp that gates backoff eligibility, the resulting status, and
// the failure reason. The update only applies while the operation is
// still InProgress; a false return means a superseding enqueue took the
// row over mid-push and the verdict belongs to a stale payload.
func (s *Store) RecordOperationAttempt(ctx context.Context, id string, attempts int, at time.Time, status model.OperationStatus, reason string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_operations
		SET attempt_count = ?, last_attempted_at = ?, status = ?, error_message = ?
		WHERE id = ? AND status = 'InProgress'
	`, attempts, at.UnixNano(), string(status), reason, id)
	if err != nil {
		return false, fmt.Errorf("record operation attempt: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record operation attempt: rows affected: %w", err)
	}
	return rows > 0, nil
}

// RecoverInFlight returns InProgress operations to Pending. Called at
// startup: an operation left InProgress by a cancelled or crashed drain
// has no recorded completion and must become eligible again.
func (s *Store) RecoverInFlight(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_operations SET status = 'Pending' WHERE status = 'InProgress'
	`)
	if err != nil {
		return 0, fmt.Errorf("recover in-flight: %w", err)
	}
	return result.RowsAffected()
}

// LatestOperationForEntity returns the entity's most recent operation
// by seq. Per entity the seq only grows across operation lifecycles
// (coalescing keeps the active row's seq, and a new row only appears
// once no active one exists), so the highest seq is the current
// lifecycle operation.
func (s *Store) LatestOperationForEntity(ctx context.Context, entityID string) (model.SyncOperation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, entity_type, operation_type, priority, payload,
		       seq, created_at, last_attempted_at, attempt_count, status, error_message
		FROM sync_operations
		WHERE entity_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, entityID)
	return scanOperation(row)
}

// MaxOperationSeq returns the highest assigned sequence number, for
// seeding the queue's clock after restart.
func (s *Store) MaxOperationSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM sync_operations`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max operation seq: %w", err)
	}
	return seq.Int64, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (model.SyncOperation, error) {
	var (
		op            model.SyncOperation
		entityType    string
		operationType string
		priority      int
		payload       sql.NullString
		createdAt     int64
		lastAttempted sql.NullInt64
		status        string
	)
	err := row.Scan(&op.ID, &op.EntityID, &entityType, &operationType, &priority,
		&payload, &op.Seq, &createdAt, &lastAttempted, &op.AttemptCount, &status, &op.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncOperation{}, fmt.Errorf("operation not found: %w", err)
	}
	if err != nil {
		return model.SyncOperation{}, fmt.Errorf("scan operation: %w", err)
	}

	op.EntityType = model.EntityType(entityType)
	op.OperationType = model.OperationType(operationType)
	op.Priority = model.Priority(priority)
	if payload.Valid && payload.String != "" {
		op.Payload = []byte(payload.String)
	}
	op.CreatedAt = time.Unix(0, createdAt)
	op.LastAttemptedAt = timeOrZero(lastAttempted)
	op.Status = model.OperationStatus(status)
	return op, nil
}
