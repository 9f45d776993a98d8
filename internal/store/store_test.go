package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"nonces", "attendance_records", "sync_operations", "sync_checkpoint", "entity_states"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_SeedsCheckpoint(t *testing.T) {
	before := time.Now()
	s := createTestStore(t)
	after := time.Now()

	last, err := s.LastFullSyncAt(context.Background())
	if err != nil {
		t.Fatalf("LastFullSyncAt() failed: %v", err)
	}
	if last.Before(before) || last.After(after) {
		t.Errorf("seeded checkpoint %v not between %v and %v", last, before, after)
	}
}

func TestOpen_CheckpointSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	// Ahead of the seeded value so the monotonic checkpoint advances.
	stamp := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := s1.RecordFullSync(ctx, stamp); err != nil {
		t.Fatalf("RecordFullSync() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	last, err := s2.LastFullSyncAt(ctx)
	if err != nil {
		t.Fatalf("LastFullSyncAt() failed: %v", err)
	}
	if !last.Equal(stamp) {
		t.Errorf("checkpoint after reopen = %v, want %v (reopen must not reseed)", last, stamp)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}
	_ = s.Close()
}
