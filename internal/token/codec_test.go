package token

import (
	"crypto/ed25519"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_Roundtrip(t *testing.T) {
	issued := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	tok := Token{
		ID:         "tok-1",
		LocationID: "loc-hq",
		IssuedAt:   issued,
		Nonce:      "abcdef0123456789",
		Signature:  []byte{0x01, 0x02, 0x03},
	}

	wire := Encode(tok)
	assert.Equal(t, 5, len(strings.Split(wire, "|")))

	got, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.Equal(t, tok.LocationID, got.LocationID)
	assert.True(t, got.IssuedAt.Equal(issued))
	assert.Equal(t, tok.Nonce, got.Nonce)
	assert.Equal(t, tok.Signature, got.Signature)
}

func TestEncode_NormalizesToUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	tok := Token{
		ID:         "tok-1",
		LocationID: "loc-hq",
		IssuedAt:   time.Date(2026, 3, 14, 4, 30, 0, 0, est),
		Nonce:      "n",
		Signature:  []byte{0xff},
	}

	wire := Encode(tok)
	assert.Contains(t, wire, "2026-03-14T09:30:00Z")
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty string", ""},
		{"too few fields", "id|loc|2026-03-14T09:30:00Z|nonce"},
		{"too many fields", "id|loc|2026-03-14T09:30:00Z|nonce|c2ln|extra"},
		{"empty field", "id||2026-03-14T09:30:00Z|nonce|c2ln"},
		{"bad timestamp", "id|loc|not-a-time|nonce|c2ln"},
		{"bad base64", "id|loc|2026-03-14T09:30:00Z|nonce|%%%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			require.Error(t, err)
			assert.Equal(t, ErrCodeMalformedToken, CodeOf(err))
		})
	}
}

func TestIssueVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	issuer := NewIssuer(priv)
	tok, err := issuer.Issue("loc-hq", time.Now())
	require.NoError(t, err)

	assert.NotEmpty(t, tok.ID)
	assert.NotEmpty(t, tok.Nonce)
	assert.True(t, Verify(pub, tok))

	// A decoded copy verifies the same way.
	decoded, err := Decode(Encode(tok))
	require.NoError(t, err)
	assert.True(t, Verify(pub, decoded))
}

func TestVerify_RejectsTampering(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	tok, err := NewIssuer(priv).Issue("loc-hq", time.Now())
	require.NoError(t, err)

	tampered := tok
	tampered.LocationID = "loc-other"
	assert.False(t, Verify(pub, tampered))

	tampered = tok
	tampered.IssuedAt = tok.IssuedAt.Add(time.Hour)
	assert.False(t, Verify(pub, tampered))

	tampered = tok
	tampered.Nonce = "forged"
	assert.False(t, Verify(pub, tampered))
}

func TestIssue_UniqueNonces(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	issuer := NewIssuer(priv)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := issuer.Issue("loc-hq", time.Now())
		require.NoError(t, err)
		assert.False(t, seen[tok.Nonce], "nonce reused")
		seen[tok.Nonce] = true
	}
}
