package node

import (
	"testing"
	"time"

	"github.com/judgenet/node/consensus"
	"github.com/judgenet/node/crypto"
	"github.com/judgenet/node/internal/event"
	"github.com/judgenet/node/store"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	n := New(Config{
		Keypair:       kp,
		SlotDuration:  10 * time.Millisecond,
		FinalityDepth: 3,
		Backend:       store.NewMemoryBackend(),
	})
	t.Cleanup(n.Stop)
	return n
}

func TestStartTransitionsOfflineToSyncing(t *testing.T) {
	n := newTestNode(t)
	require.Equal(t, StateOffline, n.Status().State)
	require.NoError(t, n.Start())
	require.Equal(t, StateSyncing, n.Status().State)
}

func TestAddValidatorPromotesSelfToParticipatingOnceOnline(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.Start())

	n.mu.Lock()
	n.state = StateOnline
	n.mu.Unlock()

	self := crypto.HexEncode(n.cfg.Keypair.Public)
	n.AddValidator(consensus.Validator{PublicKeyHex: self, Weight: 100})
	require.Equal(t, StateParticipating, n.Status().State)
}

func TestSubmitJudgmentOverflowDropsNewestAndCounts(t *testing.T) {
	n := newTestNode(t)
	// Do not Start(): the buffered channel exists regardless, and this
	// isolates the back-pressure behavior from the propose/drain loop.
	for i := 0; i < judgmentBufferCap; i++ {
		n.SubmitJudgment([]byte("payload"))
	}
	require.Len(t, n.judgments, judgmentBufferCap)

	n.SubmitJudgment([]byte("overflow"))
	n.mu.RLock()
	dropped := n.droppedCount
	n.mu.RUnlock()
	require.Equal(t, 1, dropped)
	require.Len(t, n.judgments, judgmentBufferCap, "the buffer must stay at capacity, not grow")
}

func TestSubscribeReceivesMetricsReportedEvents(t *testing.T) {
	n := newTestNode(t)
	n.cfg.HeartbeatPeriod = 5 * time.Millisecond
	require.NoError(t, n.Start())

	received := make(chan struct{}, 1)
	n.Subscribe(event.MetricsReported, func(ev event.Event) {
		select {
		case received <- struct{}{}:
		default:
		}
	})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one metrics:reported event")
	}
}
