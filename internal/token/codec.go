// Package token implements the attendance token wire codec, the issuing
// signer, and the replay-safe validator.
//
// A token is a short-lived signed credential proving presence at a
// location at issuance time. The wire form is a five-field delimited
// string produced by an external signer and consumed exactly once.
package token

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// fieldCount is the exact number of '|'-separated fields on the wire.
const fieldCount = 5

// Token is a decoded attendance token. Immutable after issuance; the
// signature covers (ID, LocationID, IssuedAt, Nonce).
type Token struct {
	ID         string
	LocationID string
	IssuedAt   time.Time
	Nonce      string
	Signature  []byte
}

// Encode renders the token in wire form:
//
//	id|locationId|issuedAtRFC3339|nonce|signatureBase64
//
// Field values must not contain the '|' delimiter; Issue generates
// delimiter-free identifiers and nonces.
func Encode(t Token) string {
	return strings.Join([]string{
		t.ID,
		t.LocationID,
		t.IssuedAt.UTC().Format(time.RFC3339),
		t.Nonce,
		base64.StdEncoding.EncodeToString(t.Signature),
	}, "|")
}

// Decode parses a wire-form token. Any structural problem (wrong field
// count, empty fields, bad timestamp, bad base64) is a MALFORMED_TOKEN
// validation error.
func Decode(raw string) (Token, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != fieldCount {
		return Token{}, newValidationError(ErrCodeMalformedToken, "",
			"expected %d fields, got %d", fieldCount, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return Token{}, newValidationError(ErrCodeMalformedToken, "",
				"empty field at position %d", i)
		}
	}

	issuedAt, err := time.Parse(time.RFC3339, parts[2])
	if err != nil {
		return Token{}, newValidationError(ErrCodeMalformedToken, parts[0],
			"invalid issued-at timestamp: %v", err)
	}

	sig, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return Token{}, newValidationError(ErrCodeMalformedToken, parts[0],
			"invalid signature encoding: %v", err)
	}

	return Token{
		ID:         parts[0],
		LocationID: parts[1],
		IssuedAt:   issuedAt,
		Nonce:      parts[3],
		Signature:  sig,
	}, nil
}

// signingPayload is the byte string the signature covers. It reuses the
// wire field order minus the signature so signer and verifier cannot
// disagree on serialization.
func signingPayload(id, locationID string, issuedAt time.Time, nonce string) []byte {
	return fmt.Appendf(nil, "%s|%s|%s|%s", id, locationID, issuedAt.UTC().Format(time.RFC3339), nonce)
}
