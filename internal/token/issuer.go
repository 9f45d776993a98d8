package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"time"

	"github.com/google/uuid"
)

// nonceBytes is the size of the random nonce. 16 bytes of entropy is
// far past collision range for a ledger bounded by the validity window.
const nonceBytes = 16

// Issuer signs attendance tokens under an ed25519 private key. In
// production the issuer runs on the kiosk/terminal displaying tokens;
// the engine only verifies. It lives here so the CLI and tests can mint
// real tokens against a validator.
type Issuer struct {
	priv ed25519.PrivateKey
}

// NewIssuer creates an issuer from an ed25519 private key.
func NewIssuer(priv ed25519.PrivateKey) *Issuer {
	return &Issuer{priv: priv}
}

// Issue mints a signed token for a location at the given instant.
// The token ID is a time-sortable UUIDv7; the nonce is fresh randomness,
// unique per issuance and never reused.
func (i *Issuer) Issue(locationID string, issuedAt time.Time) (Token, error) {
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return Token{}, fmt.Errorf("generate nonce: %w", err)
	}

	t := Token{
		ID:         uuid.Must(uuid.NewV7()).String(),
		LocationID: locationID,
		IssuedAt:   issuedAt.UTC(),
		Nonce:      hex.EncodeToString(nonce),
	}
	t.Signature = ed25519.Sign(i.priv, signingPayload(t.ID, t.LocationID, t.IssuedAt, t.Nonce))
	return t, nil
}

// Verify checks the token signature against the issuer's public key.
func Verify(pub ed25519.PublicKey, t Token) bool {
	return ed25519.Verify(pub, signingPayload(t.ID, t.LocationID, t.IssuedAt, t.Nonce), t.Signature)
}
