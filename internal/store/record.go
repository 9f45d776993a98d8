package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shiftline/attend/internal/model"
)

// CreateRecordWithOperation writes an attendance record and its sync
// operation in one transaction: a crash between the two writes can
// never leave a record permanently un-queued.
func (s *Store) CreateRecordWithOperation(ctx context.Context, rec model.AttendanceRecord, op model.SyncOperation) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO attendance_records
			(id, employee_id, location_id, captured_at, checked_out_at, status, sync_status, token_id, note)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID,
			rec.EmployeeID,
			rec.LocationID,
			rec.CapturedAt.UnixNano(),
			nanosOrNull(rec.CheckedOutAt),
			string(rec.Status),
			string(rec.SyncStatus),
			rec.TokenID,
			rec.Note,
		)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		return enqueueOperationTx(tx, op)
	})
}

// UpdateRecordWithOperation rewrites a record's classification fields
// and enqueues the corresponding sync operation in one transaction.
// Used by checkout reclassification.
func (s *Store) UpdateRecordWithOperation(ctx context.Context, rec model.AttendanceRecord, op model.SyncOperation) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE attendance_records
			SET checked_out_at = ?, status = ?, sync_status = ?, note = ?
			WHERE id = ?
		`,
			nanosOrNull(rec.CheckedOutAt),
			string(rec.Status),
			string(rec.SyncStatus),
			rec.Note,
			rec.ID,
		)
		if err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update record: rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("update record: record %s not found", rec.ID)
		}
		return enqueueOperationTx(tx, op)
	})
}

// GetRecord loads an attendance record by ID.
func (s *Store) GetRecord(ctx context.Context, id string) (model.AttendanceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, employee_id, location_id, captured_at, checked_out_at,
		       status, sync_status, token_id, note
		FROM attendance_records WHERE id = ?
	`, id)
	return scanRecord(row)
}

// GetRecordSyncStatus returns only the sync status of a record.
func (s *Store) GetRecordSyncStatus(ctx context.Context, id string) (model.SyncStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT sync_status FROM attendance_records WHERE id = ?
	`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("record %s not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("get record sync status: %w", err)
	}
	return model.SyncStatus(status), nil
}

// SetRecordSyncStatus moves a record between sync lifecycle states.
// The attendance status classification is never touched here.
func (s *Store) SetRecordSyncStatus(ctx context.Context, id string, status model.SyncStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE attendance_records SET sync_status = ? WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("set record sync status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set record sync status: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("set record sync status: record %s not found", id)
	}
	return nil
}

// ListUnsyncedRecords returns records still awaiting remote acceptance,
// oldest first. Used for startup reconciliation and reporting.
func (s *Store) ListUnsyncedRecords(ctx context.Context) ([]model.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, location_id, captured_at, checked_out_at,
		       status, sync_status, token_id, note
		FROM attendance_records
		WHERE sync_status != 'Synced'
		ORDER BY captured_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list unsynced records: %w", err)
	}
	defer rows.Close()

	var recs []model.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRecord(row rowScanner) (model.AttendanceRecord, error) {
	var (
		rec        model.AttendanceRecord
		capturedAt int64
		checkedOut sql.NullInt64
		status     string
		syncStatus string
	)
	err := row.Scan(&rec.ID, &rec.EmployeeID, &rec.LocationID, &capturedAt,
		&checkedOut, &status, &syncStatus, &rec.TokenID, &rec.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AttendanceRecord{}, fmt.Errorf("record not found: %w", err)
	}
	if err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("scan record: %w", err)
	}

	rec.CapturedAt = time.Unix(0, capturedAt)
	rec.CheckedOutAt = timeOrZero(checkedOut)
	rec.Status = model.Status(status)
	rec.SyncStatus = model.SyncStatus(syncStatus)
	return rec, nil
}
