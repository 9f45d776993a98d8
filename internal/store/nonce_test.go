package store

import (
	"context"
	"testing"
	"time"
)

func TestConsumeNonce_FirstUse(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inserted, err := s.ConsumeNonce(ctx, "nonce-1", time.Now().Add(20*time.Minute))
	if err != nil {
		t.Fatalf("ConsumeNonce() failed: %v", err)
	}
	if !inserted {
		t.Error("first consume should report inserted=true")
	}
}

func TestConsumeNonce_SecondUseIsReplay(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	expiry := time.Now().Add(20 * time.Minute)

	if _, err := s.ConsumeNonce(ctx, "nonce-1", expiry); err != nil {
		t.Fatalf("first ConsumeNonce() failed: %v", err)
	}

	inserted, err := s.ConsumeNonce(ctx, "nonce-1", expiry)
	if err != nil {
		t.Fatalf("second ConsumeNonce() failed: %v", err)
	}
	if inserted {
		t.Error("second consume of the same nonce should report inserted=false")
	}
}

func TestConsumeNonce_DistinctNonces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	expiry := time.Now().Add(20 * time.Minute)

	for _, n := range []string{"a", "b", "c"} {
		inserted, err := s.ConsumeNonce(ctx, n, expiry)
		if err != nil {
			t.Fatalf("ConsumeNonce(%q) failed: %v", n, err)
		}
		if !inserted {
			t.Errorf("distinct nonce %q should insert", n)
		}
	}

	count, err := s.NonceCount(ctx)
	if err != nil {
		t.Fatalf("NonceCount() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("NonceCount() = %d, want 3", count)
	}
}

func TestPruneNonces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	// One expired, one on the boundary, one still live.
	mustConsume(t, s, "expired", now.Add(-time.Minute))
	mustConsume(t, s, "boundary", now)
	mustConsume(t, s, "live", now.Add(time.Minute))

	pruned, err := s.PruneNonces(ctx, now)
	if err != nil {
		t.Fatalf("PruneNonces() failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("PruneNonces() = %d, want 1 (boundary entry must survive)", pruned)
	}

	// Pruned entries are gone from the ledger, so their nonce would
	// insert again. Live entries still report replays.
	inserted, err := s.ConsumeNonce(ctx, "live", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ConsumeNonce() failed: %v", err)
	}
	if inserted {
		t.Error("live nonce should still be present after prune")
	}
}

func TestPruneNonces_EmptyLedger(t *testing.T) {
	s := createTestStore(t)

	pruned, err := s.PruneNonces(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("PruneNonces() failed: %v", err)
	}
	if pruned != 0 {
		t.Errorf("PruneNonces() on empty ledger = %d, want 0", pruned)
	}
}

func mustConsume(t *testing.T, s *Store, nonce string, expiresAt time.Time) {
	t.Helper()
	inserted, err := s.ConsumeNonce(context.Background(), nonce, expiresAt)
	if err != nil {
		t.Fatalf("ConsumeNonce(%q) failed: %v", nonce, err)
	}
	if !inserted {
		t.Fatalf("ConsumeNonce(%q) unexpectedly reported replay", nonce)
	}
}
