package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	msg := []byte("judgment payload")
	sig, err := Sign(kp.Secret, msg)
	require.NoError(t, err)

	require.Equal(t, Valid, Verify(kp.Public, msg, sig))
	require.Equal(t, Invalid, Verify(kp.Public, []byte("tampered"), sig))
}

func TestVerifyNeverPanicsOnMalformedInput(t *testing.T) {
	require.Equal(t, Invalid, Verify(nil, []byte("x"), nil))
	require.Equal(t, Invalid, Verify([]byte{1, 2, 3}, []byte("x"), []byte{4, 5}))
}

func TestIDFromPubkeyDeterministic(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	id1 := IDFromPubkey(kp.Public)
	id2 := IDFromPubkey(kp.Public)
	require.Equal(t, id1, id2)
	require.Len(t, id1, 64)
}

func TestFormatParsePubkeyRoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	s := FormatPubkey(kp.Public)
	parsed, err := ParsePubkey(s)
	require.NoError(t, err)
	require.Equal(t, kp.Public, parsed)
}

func TestParsePubkeyRejectsMalformed(t *testing.T) {
	_, err := ParsePubkey("not-a-key")
	require.Error(t, err)

	_, err = ParsePubkey("ed25519:zz")
	require.Error(t, err)
}
