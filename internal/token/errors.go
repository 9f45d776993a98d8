package token

import (
	"errors"
	"fmt"
)

// ValidationErrorCode categorizes token validation failures.
type ValidationErrorCode string

const (
	// ErrCodeMalformedToken indicates the wire string could not be decoded.
	ErrCodeMalformedToken ValidationErrorCode = "MALFORMED_TOKEN"

	// ErrCodeInvalidSignature indicates signature verification failed.
	ErrCodeInvalidSignature ValidationErrorCode = "INVALID_SIGNATURE"

	// ErrCodeExpired indicates the token fell outside the validity window,
	// including issuance timestamps in the future beyond skew tolerance.
	ErrCodeExpired ValidationErrorCode = "EXPIRED"

	// ErrCodeReplayDetected indicates the token's nonce was already consumed.
	ErrCodeReplayDetected ValidationErrorCode = "REPLAY_DETECTED"

	// ErrCodeTokenNotValidated indicates a caller tried to create a record
	// from a token that never passed validation. This is a contract
	// violation in the calling code, not a user-facing condition.
	ErrCodeTokenNotValidated ValidationErrorCode = "TOKEN_NOT_VALIDATED"
)

// ValidationError is a token validation failure with a structured code.
// All validation failures are non-retriable: the caller must request a
// fresh token from the signer.
type ValidationError struct {
	Code    ValidationErrorCode
	Message string
	TokenID string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.TokenID != "" {
		return fmt.Sprintf("%s: %s (token=%s)", e.Code, e.Message, e.TokenID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the validation code from an error chain.
// Returns "" if the error is not a ValidationError.
func CodeOf(err error) ValidationErrorCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// IsReplay reports whether the error is a replay rejection.
func IsReplay(err error) bool {
	return CodeOf(err) == ErrCodeReplayDetected
}

// IsExpired reports whether the error is a validity-window rejection.
func IsExpired(err error) bool {
	return CodeOf(err) == ErrCodeExpired
}

func newValidationError(code ValidationErrorCode, tokenID, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		TokenID: tokenID,
	}
}
