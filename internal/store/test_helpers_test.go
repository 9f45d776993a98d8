package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shiftline/attend/internal/model"
)

// createTestStore creates a file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestOperation creates a sync operation with minimal required fields.
func createTestOperation(id, entityID string, opType model.OperationType, priority model.Priority, seq int64) model.SyncOperation {
	return model.SyncOperation{
		ID:            id,
		EntityID:      entityID,
		EntityType:    model.EntityAttendance,
		OperationType: opType,
		Priority:      priority,
		Payload:       []byte(`{"k":"v"}`),
		Seq:           seq,
		CreatedAt:     time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Second),
		Status:        model.OpPending,
	}
}

// createTestRecord creates an attendance record with minimal required fields.
func createTestRecord(id, tokenID string) model.AttendanceRecord {
	return model.AttendanceRecord{
		ID:         id,
		EmployeeID: "emp-1",
		LocationID: "loc-hq",
		CapturedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Status:     model.StatusOnTime,
		SyncStatus: model.SyncPending,
		TokenID:    tokenID,
	}
}
