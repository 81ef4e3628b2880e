package wire

import (
	"testing"
	"time"

	"github.com/judgenet/node/crypto"
	"github.com/stretchr/testify/require"
)

type votePayload struct {
	Slot     uint64 `json:"slot"`
	Hash     string `json:"hash"`
	Decision string `json:"decision"`
}

func TestRoundTripParseSerialize(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	now := time.Now()
	msg, err := Sign(KindVote, kp.Public, kp.Secret, votePayload{Slot: 7, Hash: "aa", Decision: "Approve"})
	require.NoError(t, err)
	require.Equal(t, crypto.Valid, Verify(msg))

	frame, err := Encode(msg, now)
	require.NoError(t, err)

	got, err := Decode(frame, now, 0)
	require.NoError(t, err)
	require.Equal(t, msg, got)
	require.Equal(t, crypto.Valid, Verify(got))
}

func TestTamperedPayloadFailsChecksum(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	now := time.Now()
	msg, err := Sign(KindVote, kp.Public, kp.Secret, votePayload{Slot: 7, Hash: "aa", Decision: "Approve"})
	require.NoError(t, err)

	frame, err := Encode(msg, now)
	require.NoError(t, err)

	tampered := append([]byte(nil), frame...)
	// flip a byte inside the JSON body, away from the quotes/braces edges
	for i := len(tampered)/2 - 5; i < len(tampered); i++ {
		if tampered[i] != '"' && tampered[i] != '{' && tampered[i] != '}' {
			tampered[i] ^= 0xFF
			break
		}
	}

	_, err = Decode(tampered, now, 0)
	require.Error(t, err)
}

func TestTamperedSignatureFailsVerify(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	msg, err := Sign(KindVote, kp.Public, kp.Secret, votePayload{Slot: 7, Hash: "aa", Decision: "Approve"})
	require.NoError(t, err)

	msg.Sig = msg.Sig[:len(msg.Sig)-2] + "00"
	require.Equal(t, crypto.Invalid, Verify(msg))
}

func TestStaleTimestampRejected(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	msg, err := Sign(KindHeartbeat, kp.Public, kp.Secret, struct{}{})
	require.NoError(t, err)

	past := time.Now().Add(-10 * time.Minute)
	frame, err := Encode(msg, past)
	require.NoError(t, err)

	_, err = Decode(frame, time.Now(), 5*time.Minute)
	require.Error(t, err)
}

func TestOversizedFrameRejected(t *testing.T) {
	big := make([]byte, MaxFrameSize+1)
	_, err := Parse(big, time.Now(), 0)
	require.Error(t, err)
}
