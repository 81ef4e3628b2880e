package consensus

import (
	"testing"
	"time"

	"github.com/judgenet/node/internal/event"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, self string) *Engine {
	t.Helper()
	e := NewEngine(EngineConfig{SelfPublicKeyHex: self, FinalityDepth: 3, ForkRetention: 100})
	t.Cleanup(e.Stop)
	return e
}

// TestThreeNodeFinality is scenario S1: three validators {100,60,40};
// node1 proposes at slot 1 with one judgment, node2+node3 approve;
// approveWeight=200/200=1.0 >= 0.618 -> Confirmed; three more
// Confirmed-and-chained slots later -> Finalized.
func TestThreeNodeFinality(t *testing.T) {
	e := newTestEngine(t, "node1")
	e.AddValidator(Validator{PublicKeyHex: "node1", Weight: 100})
	e.AddValidator(Validator{PublicKeyHex: "node2", Weight: 60})
	e.AddValidator(Validator{PublicKeyHex: "node3", Weight: 40})

	var confirmedCount, finalizedCount int
	e.cfg.Bus.Subscribe(event.BlockConfirmed, func(ev event.Event) { confirmedCount++ })
	e.cfg.Bus.Subscribe(event.BlockFinalized, func(ev event.Event) { finalizedCount++ })

	now := time.Now()
	res := e.Propose(1, GenesisHash, []Judgment{{ID: "j1", Payload: []byte("x"), ProducedAt: now}}, now)
	require.NoError(t, res.Err)
	b1 := res.Block

	require.NoError(t, e.HandleVote(Vote{Voter: "node2", BlockHash: b1.Hash, Decision: Approve, Slot: 1}))
	blk, ok := e.BlockAt(1, b1.Hash)
	require.True(t, ok)
	require.Equal(t, StatusConfirmed, blk.Status, "node1(self)+node2 = 160/200 already crosses 0.618")

	require.NoError(t, e.HandleVote(Vote{Voter: "node3", BlockHash: b1.Hash, Decision: Approve, Slot: 1}))
	require.Equal(t, 1, confirmedCount)

	prev := b1.Hash
	for slot := uint64(2); slot <= 4; slot++ {
		r := e.Propose(slot, prev, nil, now)
		require.NoError(t, r.Err)
		require.NoError(t, e.HandleVote(Vote{Voter: "node2", BlockHash: r.Block.Hash, Decision: Approve, Slot: slot}))
		require.NoError(t, e.HandleVote(Vote{Voter: "node3", BlockHash: r.Block.Hash, Decision: Approve, Slot: slot}))
		prev = r.Block.Hash
	}

	blk, ok = e.BlockAt(1, b1.Hash)
	require.True(t, ok)
	require.Equal(t, StatusFinalized, blk.Status)
	require.Equal(t, 1, finalizedCount)
}

// TestEquivocation is scenario S2: node1 proposes B1 and B2 at the
// same slot=5; both marked Rejected, penalty applied once, event
// emitted exactly once per offense.
func TestEquivocation(t *testing.T) {
	e := newTestEngine(t, "observer")
	e.AddValidator(Validator{PublicKeyHex: "node1", Weight: 100})
	e.AddValidator(Validator{PublicKeyHex: "observer", Weight: 60})

	var equivocations int
	e.cfg.Bus.Subscribe(event.EquivocationDetected, func(ev event.Event) { equivocations++ })

	now := time.Now()
	b1 := Block{Slot: 5, PrevHash: GenesisHash, Proposer: "node1", Timestamp: now, Judgments: []Judgment{{ID: "a"}}}
	b1.MerkleRoot = MerkleRootOf(b1.Judgments)
	b1.Hash = HashBlock(b1)

	b2 := Block{Slot: 5, PrevHash: GenesisHash, Proposer: "node1", Timestamp: now, Judgments: []Judgment{{ID: "b"}}}
	b2.MerkleRoot = MerkleRootOf(b2.Judgments)
	b2.Hash = HashBlock(b2)
	require.NotEqual(t, b1.Hash, b2.Hash)

	err1 := e.HandleProposal(b1, now)
	require.NoError(t, err1)

	err2 := e.HandleProposal(b2, now)
	require.Error(t, err2)

	got1, ok := e.BlockAt(5, b1.Hash)
	require.True(t, ok)
	require.Equal(t, StatusRejected, got1.Status)

	got2, ok := e.BlockAt(5, b2.Hash)
	require.True(t, ok)
	require.Equal(t, StatusRejected, got2.Status)

	require.Equal(t, 1, equivocations)
	require.Zero(t, e.weightOf("node1"), "equivocating proposer's effective weight must be zeroed by the penalty")
}

// TestForkDetectionAndReorgRecommendation is scenario S3: from slot 10,
// node1+node2 (eScore 50+40=90) sign Ha; node3 (eScore 60) signs Hb;
// local node is on Hb. Expect fork:detected, heaviest=Ha,
// recommendation=REORG_NEEDED, and the highest-E-Score peer on Ha
// (node1, 50) is the resolution target.
func TestForkDetectionAndReorgRecommendation(t *testing.T) {
	e := newTestEngine(t, "local")
	var hashA, hashB [32]byte
	hashA[0] = 0xAA
	hashB[0] = 0xBB

	// local node believes hashB is its own chain at slot 10
	now := time.Now()
	localBlock := Block{Slot: 10, PrevHash: GenesisHash, Proposer: "local", Timestamp: now}
	localBlock.MerkleRoot = MerkleRootOf(nil)
	localBlock.Hash = hashB
	e.storeBlockForTest(localBlock, StatusConfirmed)

	var forkEvents int
	var lastRec string
	var lastHeaviest [32]byte
	e.cfg.Bus.Subscribe(event.ForkDetected, func(ev event.Event) {
		forkEvents++
		lastRec = ev.Fork.Recommendation
		lastHeaviest = ev.Fork.Heaviest
	})

	results := e.HandleForkReport("node1", []SlotHashReport{{Slot: 10, Hash: hashA}}, 50)
	require.Empty(t, results, "only one branch reported so far")

	results = e.HandleForkReport("node2", []SlotHashReport{{Slot: 10, Hash: hashA}}, 40)
	require.Empty(t, results, "still only one distinct hash (Ha) reported")

	results = e.HandleForkReport("node3", []SlotHashReport{{Slot: 10, Hash: hashB}}, 60)
	require.Len(t, results, 1)
	require.Equal(t, hashA, results[0].Heaviest, "Ha has 90 reporting weight vs Hb's 60")
	require.Equal(t, ReorgNeeded, results[0].Recommendation)
	require.Equal(t, 1, forkEvents)
	require.Equal(t, string(ReorgNeeded), lastRec)
	require.Equal(t, hashA, lastHeaviest)

	peer, ok := e.TryStartForkResolution(10, hashA, func(p string) (float64, bool) {
		switch p {
		case "node1":
			return 50, true
		case "node2":
			return 40, true
		}
		return 0, false
	})
	require.True(t, ok)
	require.Equal(t, "node1", peer)

	_, again := e.TryStartForkResolution(10, hashA, func(string) (float64, bool) { return 0, false })
	require.False(t, again, "resolutionInProgress must prevent a duplicate request")

	e.MarkForkResolved(10)
	peer2, ok2 := e.TryStartForkResolution(10, hashA, func(p string) (float64, bool) {
		if p == "node1" {
			return 50, true
		}
		return 0, false
	})
	require.True(t, ok2)
	require.Equal(t, "node1", peer2)
}

// storeBlockForTest is a test-only helper to seed a block directly.
func (e *Engine) storeBlockForTest(b Block, status Status) {
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		b.Status = status
		e.storeBlock(b)
	})
	<-done
}

func TestThermoEfficiencyCappedAtInversePhi(t *testing.T) {
	e := newTestEngine(t, "n")
	e.Observe(1, 1000, 0.1) // Work heavily dominates Heat
	snap := e.ThermoSnapshot()
	require.LessOrEqual(t, snap.Efficiency(), 0.6180339887498949+1e-9)
}

func TestMerkleRootDeterministic(t *testing.T) {
	js := []Judgment{{ID: "a", Payload: []byte("1")}, {ID: "b", Payload: []byte("2")}, {ID: "c", Payload: []byte("3")}}
	r1 := MerkleRootOf(js)
	r2 := MerkleRootOf(js)
	require.Equal(t, r1, r2)

	swapped := []Judgment{js[1], js[0], js[2]}
	r3 := MerkleRootOf(swapped)
	require.NotEqual(t, r1, r3, "order must affect the root")
}
