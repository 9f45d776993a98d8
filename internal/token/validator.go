package token

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"time"
)

// Default validation parameters. All are overridable via options.
const (
	DefaultValidityWindow    = 15 * time.Minute
	DefaultSkewTolerance     = 2 * time.Minute
	DefaultNonceSafetyMargin = 5 * time.Minute
)

// NonceLedger is the durable set of consumed token nonces.
//
// ConsumeNonce must atomically record the nonce and report whether it
// was newly inserted: false means the nonce was already present and the
// token is a replay. The check-and-record must be a single atomic
// operation so two concurrent validations of the same token cannot both
// succeed.
type NonceLedger interface {
	ConsumeNonce(ctx context.Context, nonce string, expiresAt time.Time) (inserted bool, err error)
}

// Validated is proof that a token passed full validation. Only the
// Validator can produce a non-zero Validated value; downstream code
// (the record machine) rejects the zero value with TOKEN_NOT_VALIDATED.
type Validated struct {
	tok Token
	ok  bool
}

// Token returns the validated token.
func (v Validated) Token() Token { return v.tok }

// Valid reports whether this value was produced by a successful
// validation (the zero value reports false).
func (v Validated) Valid() bool { return v.ok }

// Validator checks signature, validity window, and replay status of
// attendance tokens. Validation is a pure function of (token, now,
// ledger state); the only side effect is the explicit ledger write on
// success.
type Validator struct {
	pub    ed25519.PublicKey
	ledger NonceLedger
	window time.Duration
	skew   time.Duration
	margin time.Duration
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithValidityWindow overrides the token validity window.
func WithValidityWindow(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.window = d }
}

// WithSkewTolerance overrides the accepted forward clock skew.
func WithSkewTolerance(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.skew = d }
}

// WithNonceSafetyMargin overrides the extra retention added to ledger
// entries past the validity window.
func WithNonceSafetyMargin(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.margin = d }
}

// NewValidator creates a validator for tokens signed by the given key.
func NewValidator(pub ed25519.PublicKey, ledger NonceLedger, opts ...ValidatorOption) *Validator {
	v := &Validator{
		pub:    pub,
		ledger: ledger,
		window: DefaultValidityWindow,
		skew:   DefaultSkewTolerance,
		margin: DefaultNonceSafetyMargin,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate decodes and fully validates a wire-form token at the given
// instant. Check order: structure, signature, validity window, replay.
//
// The window boundary is inclusive: a token validated exactly
// validityWindow after issuance is still accepted. Issuance timestamps
// in the future are rejected as EXPIRED once they exceed the skew
// tolerance.
//
// On success the nonce is recorded in the ledger with an expiry of
// issuedAt + window + margin, after which it may be pruned: by then no
// clock within tolerance can still consider the token valid.
func (v *Validator) Validate(ctx context.Context, raw string, now time.Time) (Validated, error) {
	t, err := Decode(raw)
	if err != nil {
		return Validated{}, err
	}

	if !Verify(v.pub, t) {
		return Validated{}, newValidationError(ErrCodeInvalidSignature, t.ID,
			"signature does not verify under issuer key")
	}

	if t.IssuedAt.After(now.Add(v.skew)) {
		return Validated{}, newValidationError(ErrCodeExpired, t.ID,
			"issued in the future (issued=%s, now=%s)",
			t.IssuedAt.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	if now.Sub(t.IssuedAt) > v.window {
		return Validated{}, newValidationError(ErrCodeExpired, t.ID,
			"outside validity window (issued=%s, window=%s)",
			t.IssuedAt.Format(time.RFC3339), v.window)
	}

	inserted, err := v.ledger.ConsumeNonce(ctx, t.Nonce, t.IssuedAt.Add(v.window+v.margin))
	if err != nil {
		return Validated{}, err
	}
	if !inserted {
		return Validated{}, newValidationError(ErrCodeReplayDetected, t.ID,
			"nonce already consumed")
	}

	slog.Debug("token validated",
		"token_id", t.ID,
		"location_id", t.LocationID,
		"issued_at", t.IssuedAt,
	)
	return Validated{tok: t, ok: true}, nil
}

// Window returns the configured validity window.
func (v *Validator) Window() time.Duration { return v.window }
