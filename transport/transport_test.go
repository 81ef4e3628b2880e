package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/judgenet/node/crypto"
	"github.com/judgenet/node/wire"
	"github.com/stretchr/testify/require"
)

func TestVerifyHandshakeAcceptsFreshSignedIdentity(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	now := time.Now()
	payload := identityPayload{NodeID: crypto.IDFromPubkey(kp.Public), Timestamp: now.UnixMilli()}
	msg, err := wire.Sign(wire.KindIdentity, kp.Public, kp.Secret, payload)
	require.NoError(t, err)

	require.NoError(t, VerifyHandshake(msg, now))
}

func TestVerifyHandshakeRejectsStaleTimestamp(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	old := time.Now().Add(-5 * time.Minute)
	payload := identityPayload{NodeID: crypto.IDFromPubkey(kp.Public), Timestamp: old.UnixMilli()}
	msg, err := wire.Sign(wire.KindIdentity, kp.Public, kp.Secret, payload)
	require.NoError(t, err)

	require.Error(t, VerifyHandshake(msg, time.Now()))
}

func TestVerifyHandshakeRejectsMismatchedNodeID(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	now := time.Now()
	payload := identityPayload{NodeID: "not-the-real-id", Timestamp: now.UnixMilli()}
	msg, err := wire.Sign(wire.KindIdentity, kp.Public, kp.Secret, payload)
	require.NoError(t, err)

	require.Error(t, VerifyHandshake(msg, now))
}

// TestDialAndServeCompleteHandshake spins up a real websocket server
// and dials it, checking both sides register each other as a peer
// under the other's public key.
func TestDialAndServeCompleteHandshake(t *testing.T) {
	serverKP, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	clientKP, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	serverConnected := make(chan string, 1)
	server := NewManager(serverKP, func(string, []byte) {}, func(pubkeyHex, _ string, connected bool) {
		if connected {
			serverConnected <- pubkeyHex
		}
	}, nil)
	clientConnected := make(chan string, 1)
	client := NewManager(clientKP, func(string, []byte) {}, func(pubkeyHex, _ string, connected bool) {
		if connected {
			clientConnected <- pubkeyHex
		}
	}, nil)
	defer server.Stop()
	defer client.Stop()

	ts := httptest.NewServer(server)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	require.NoError(t, client.Dial(wsURL))

	select {
	case got := <-serverConnected:
		require.Equal(t, crypto.HexEncode(clientKP.Public), got)
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the client connect")
	}
	select {
	case got := <-clientConnected:
		require.Equal(t, crypto.HexEncode(serverKP.Public), got)
	case <-time.After(2 * time.Second):
		t.Fatal("client never observed the server connect")
	}
}
