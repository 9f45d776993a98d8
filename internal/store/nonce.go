package store

import (
	"context"
	"fmt"
	"time"
)

// ConsumeNonce atomically records a token nonce in the ledger.
// Returns inserted=false if the nonce was already present, which the
// validator reports as a replay.
//
// The single INSERT ... ON CONFLICT DO NOTHING is the atomic
// check-and-record: under concurrent validation of the same token,
// exactly one caller observes inserted=true.
func (s *Store) ConsumeNonce(ctx context.Context, nonce string, expiresAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO nonces (nonce, expires_at)
		VALUES (?, ?)
		ON CONFLICT(nonce) DO NOTHING
	`, nonce, expiresAt.UnixNano())
	if err != nil {
		return false, fmt.Errorf("consume nonce: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume nonce: rows affected: %w", err)
	}
	return rows > 0, nil
}

// PruneNonces deletes ledger entries whose retention expired before now.
// An entry is only removable once provably past any possible validity
// window (the validator stamps expiry as window + safety margin), which
// bounds ledger growth without opening a replay hole.
func (s *Store) PruneNonces(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM nonces WHERE expires_at < ?
	`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune nonces: %w", err)
	}
	return result.RowsAffected()
}

// NonceCount returns the number of ledger entries. Used for monitoring
// and tests.
func (s *Store) NonceCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nonces`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count nonces: %w", err)
	}
	return count, nil
}
