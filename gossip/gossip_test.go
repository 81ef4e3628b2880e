package gossip

import (
	"testing"
	"time"

	"github.com/judgenet/node/crypto"
	"github.com/judgenet/node/wire"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent map[string]int
}

func (f *fakeSender) Send(peer string, frame []byte) error {
	if f.sent == nil {
		f.sent = map[string]int{}
	}
	f.sent[peer]++
	return nil
}

type fakePeers struct{ peers []string }

func (f fakePeers) Peers() []string { return f.peers }

func signedHeartbeat(t *testing.T) wire.Message {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	m, err := wire.Sign(wire.KindHeartbeat, kp.Public, kp.Secret, struct{ At int64 }{At: 1})
	require.NoError(t, err)
	return m
}

func TestHandleInboundDedupsAndRebroadcastsExcludingSender(t *testing.T) {
	sender := &fakeSender{}
	peers := fakePeers{peers: []string{"a", "b", "c"}}
	o := NewOverlay(sender, peers, nil)

	msg := signedHeartbeat(t)
	now := time.Now()

	fresh, err := o.HandleInbound("a", msg, now)
	require.NoError(t, err)
	require.True(t, fresh)
	require.Equal(t, 1, sender.sent["b"])
	require.Equal(t, 1, sender.sent["c"])
	require.Zero(t, sender.sent["a"], "must not echo back to the sender")

	fresh2, err := o.HandleInbound("b", msg, now)
	require.NoError(t, err)
	require.False(t, fresh2, "duplicate within the dedup window must be dropped")
	require.Equal(t, 1, sender.sent["b"], "a duplicate must not trigger another rebroadcast")
}

func TestHandleInboundRejectsBadSignature(t *testing.T) {
	o := NewOverlay(&fakeSender{}, fakePeers{}, nil)
	msg := signedHeartbeat(t)
	msg.Sig = "00"

	_, err := o.HandleInbound("a", msg, time.Now())
	require.Error(t, err)
}

func TestBroadcastMarksSeenToSuppressLoopback(t *testing.T) {
	sender := &fakeSender{}
	peers := fakePeers{peers: []string{"a", "b"}}
	o := NewOverlay(sender, peers, nil)

	msg := signedHeartbeat(t)
	require.NoError(t, o.Broadcast(msg, time.Now()))
	require.Equal(t, 1, sender.sent["a"])

	fresh, err := o.HandleInbound("a", msg, time.Now())
	require.NoError(t, err)
	require.False(t, fresh, "a message we originated must be recognized as already-seen on loopback")
}
