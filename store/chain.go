// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store holds the append-only chain of blocks this node has
// accepted and the pluggable Backend used to persist/restore it across
// restarts.
package store

import (
	"sync"

	"github.com/judgenet/node/consensus"
	"github.com/judgenet/node/internal/jerr"
)

// highWaterMark is the block count above which compactIfNeeded trims
// the oldest half, provided every trimmed block is Finalized.
const highWaterMark = 10_000

// Chain is an append-only, slot-ordered store of accepted blocks. It
// enforces the two structural invariants the consensus engine itself
// does not: each new block's prev_hash must match the current head's
// hash, and slots must be strictly increasing.
type Chain struct {
	mu     sync.RWMutex
	blocks []consensus.Block
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Append validates b against the current head before storing it.
func (c *Chain) Append(b consensus.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) > 0 {
		head := c.blocks[len(c.blocks)-1]
		if b.Slot <= head.Slot {
			return jerr.New(jerr.SlotMismatch, "block slot does not exceed current head slot")
		}
		if b.PrevHash != head.Hash {
			return jerr.New(jerr.ChainIntegrityViolation, "block prev_hash does not match current head hash")
		}
	} else if b.PrevHash != consensus.GenesisHash {
		return jerr.New(jerr.ChainIntegrityViolation, "first block must chain from genesis-zero")
	}

	c.blocks = append(c.blocks, b)
	c.compactIfNeeded()
	return nil
}

// Head returns the most recently appended block.
func (c *Chain) Head() (consensus.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return consensus.Block{}, false
	}
	return c.blocks[len(c.blocks)-1], true
}

// BySlot returns the block at slot, if the chain still retains it.
func (c *Chain) BySlot(slot uint64) (consensus.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.blocks {
		if b.Slot == slot {
			return b, true
		}
	}
	return consensus.Block{}, false
}

// Recent returns the last n blocks, oldest first.
func (c *Chain) Recent(n int) []consensus.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n > len(c.blocks) {
		n = len(c.blocks)
	}
	out := make([]consensus.Block, n)
	copy(out, c.blocks[len(c.blocks)-n:])
	return out
}

// Verify walks the whole retained chain checking the prev-hash and
// slot-monotonic invariants, for startup/catchup validation.
func (c *Chain) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := 1; i < len(c.blocks); i++ {
		prev, cur := c.blocks[i-1], c.blocks[i]
		if cur.Slot <= prev.Slot {
			return jerr.New(jerr.SlotMismatch, "retained chain is not slot-monotonic")
		}
		if cur.PrevHash != prev.Hash {
			return jerr.New(jerr.ChainIntegrityViolation, "retained chain has a broken hash link")
		}
	}
	return nil
}

// compactIfNeeded drops the oldest half of the chain once it exceeds
// highWaterMark entries, but only if every block being dropped is
// Finalized — an unfinalized block must never be compacted away.
func (c *Chain) compactIfNeeded() {
	if len(c.blocks) <= highWaterMark {
		return
	}
	cut := len(c.blocks) / 2
	for i := 0; i < cut; i++ {
		if c.blocks[i].Status != consensus.StatusFinalized {
			return
		}
	}
	c.blocks = append([]consensus.Block(nil), c.blocks[cut:]...)
}

// Snapshot returns the persisted-state view of the chain, for a
// Backend to serialize.
func (c *Chain) Snapshot(validators map[string]consensus.Validator) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{
		ValidatorTable: make(map[string]consensus.Validator, len(validators)),
		Chain:          append([]consensus.Block(nil), c.blocks...),
	}
	for k, v := range validators {
		snap.ValidatorTable[k] = v
	}
	if len(c.blocks) > 0 {
		snap.LastSlot = c.blocks[len(c.blocks)-1].Slot
	}
	return snap
}

// Restore replaces the chain's contents with snap's chain, without
// re-validating invariants (the snapshot is trusted to have been
// written by this same chain's own Verify-passing state).
func (c *Chain) Restore(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = append([]consensus.Block(nil), snap.Chain...)
}
