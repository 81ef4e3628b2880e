package store

import (
	"testing"

	"github.com/judgenet/node/consensus"
	"github.com/stretchr/testify/require"
)

func mkBlock(slot uint64, prev [32]byte) consensus.Block {
	b := consensus.Block{Slot: slot, PrevHash: prev, Proposer: "p"}
	b.MerkleRoot = consensus.MerkleRootOf(nil)
	b.Hash = consensus.HashBlock(b)
	return b
}

func TestAppendEnforcesSlotAndHashChaining(t *testing.T) {
	c := NewChain()
	b1 := mkBlock(1, consensus.GenesisHash)
	require.NoError(t, c.Append(b1))

	b2 := mkBlock(2, b1.Hash)
	require.NoError(t, c.Append(b2))

	bad := mkBlock(2, b1.Hash)
	require.Error(t, c.Append(bad), "slot must strictly increase")

	var wrongPrev [32]byte
	wrongPrev[0] = 1
	badHash := mkBlock(3, wrongPrev)
	require.Error(t, c.Append(badHash), "prev_hash must match current head")

	require.NoError(t, c.Verify())
}

func TestSnapshotRoundTripsThroughMemoryBackend(t *testing.T) {
	c := NewChain()
	b1 := mkBlock(1, consensus.GenesisHash)
	require.NoError(t, c.Append(b1))

	backend := NewMemoryBackend()
	snap := c.Snapshot(map[string]consensus.Validator{"v1": {PublicKeyHex: "v1", Weight: 10}})
	require.NoError(t, backend.Save(snap))

	got, ok, err := backend.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, snap.LastSlot, got.LastSlot)
	require.Len(t, got.Chain, 1)

	restored := NewChain()
	restored.Restore(got)
	head, ok := restored.Head()
	require.True(t, ok)
	require.Equal(t, b1.Hash, head.Hash)
}

func TestRemoteBackendIsAnUnimplementedStub(t *testing.T) {
	backend := NewRemoteBackend("https://example.invalid/snapshots")
	_, _, err := backend.Load()
	require.Error(t, err)
	require.Error(t, backend.Save(Snapshot{}))
}
