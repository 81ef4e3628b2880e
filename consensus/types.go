// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensus implements the BFT engine: block proposal,
// weighted vote tallying, confirmation, finality, fork detection and
// the cognitive-thermodynamic signal layer.
package consensus

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/judgenet/node/crypto"
	"github.com/judgenet/node/internal/phi"
)

// Judgment is opaque to consensus: it is packed into blocks and
// propagated, never inspected.
type Judgment struct {
	ID         string    `json:"id"`
	Payload    []byte    `json:"payload"`
	ProducedAt time.Time `json:"produced_at"`
}

// Status is a block's forward-only lifecycle state, with Rejected as
// the sink state for the two off-ramps (equivocation, timeout).
type Status string

const (
	StatusProposed  Status = "Proposed"
	StatusConfirmed Status = "Confirmed"
	StatusFinalized Status = "Finalized"
	StatusRejected  Status = "Rejected"
)

// GenesisHash is the all-zero prev_hash accepted only for slot 0.
var GenesisHash [32]byte

// Block is the unit of agreement for one slot.
type Block struct {
	Slot       uint64     `json:"slot"`
	PrevHash   [32]byte   `json:"prev_hash"`
	Proposer   string     `json:"proposer"` // hex pubkey
	Timestamp  time.Time  `json:"timestamp"`
	Judgments  []Judgment `json:"judgments"`
	MerkleRoot [32]byte   `json:"merkle_root"`
	Hash       [32]byte   `json:"hash"`

	Status        Status `json:"status"`
	Confirmations int    `json:"confirmations"`
}

const (
	leafDomain  = "judgenet-merkle-leaf-v1"
	nodeDomain  = "judgenet-merkle-node-v1"
	blockDomain = "judgenet-block-hash-v1"
)

// MerkleRootOf computes a binary Merkle root over judgments in array
// order: leaves are SHA-256(leafDomain ‖ id ‖ payload), internal nodes
// are SHA-256(nodeDomain ‖ left ‖ right), and an odd trailing leaf is
// duplicated. An empty judgment list roots to SHA-256(leafDomain).
func MerkleRootOf(judgments []Judgment) [32]byte {
	if len(judgments) == 0 {
		return crypto.HashConcat([]byte(leafDomain))
	}

	level := make([][32]byte, len(judgments))
	for i, j := range judgments {
		level[i] = crypto.HashConcat([]byte(leafDomain), []byte(j.ID), j.Payload)
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, len(level)/2)
		for i := 0; i < len(next); i++ {
			next[i] = crypto.HashConcat([]byte(nodeDomain), level[2*i][:], level[2*i+1][:])
		}
		level = next
	}
	return level[0]
}

// HashBlock computes the canonical block hash over every other field
// in fixed order: slot ‖ prev_hash ‖ proposer ‖ timestamp_ms ‖
// merkle_root, domain-separated.
func HashBlock(b Block) [32]byte {
	var slotBytes, tsBytes [8]byte
	binary.BigEndian.PutUint64(slotBytes[:], b.Slot)
	binary.BigEndian.PutUint64(tsBytes[:], uint64(b.Timestamp.UnixMilli()))
	return crypto.HashConcat(
		[]byte(blockDomain),
		slotBytes[:],
		b.PrevHash[:],
		[]byte(b.Proposer),
		tsBytes[:],
		b.MerkleRoot[:],
	)
}

// Decision is a vote's outcome.
type Decision string

const (
	Approve Decision = "Approve"
	Reject  Decision = "Reject"
)

// Vote is one validator's signed opinion on a block at a slot.
type Vote struct {
	Voter     string   `json:"voter"` // hex pubkey
	BlockHash [32]byte `json:"block_hash"`
	Decision  Decision `json:"decision"`
	Slot      uint64   `json:"slot"`
	Signature []byte   `json:"signature"`
}

// Validator is the local, eventually-consistent view of one
// validator's standing.
type Validator struct {
	PublicKeyHex string
	EScore       float64 // [0,100]
	Burned       uint64
	Uptime       float64 // [0,1]
	Weight       uint64
	Penalized    uint64 // cumulative weight deduction from equivocation
}

// weightBurnCap and weightUptimeFloor pin the open question "exact
// form of the vote-weight function": weight is deterministic and
// monotone non-decreasing in e_score, burned, and uptime.
const (
	weightBurnCap    = 1_000_000.0
	weightUptimeFloor = 0.5
)

// ComputeWeight derives a validator's voting weight from its E-Score,
// burned amount, and uptime ratio. It is deterministic and
// non-decreasing in each argument independently:
//
//	weight = round( eScore * burnFactor(burned) * uptimeFactor(uptime) )
//	burnFactor(burned)   = 1 + log1p(burned)/log1p(weightBurnCap)   ∈ [1,2]
//	uptimeFactor(uptime) = weightUptimeFloor + (1-weightUptimeFloor)*uptime ∈ [0.5,1]
func ComputeWeight(eScore float64, burned uint64, uptime float64) uint64 {
	if eScore < 0 {
		eScore = 0
	}
	if eScore > 100 {
		eScore = 100
	}
	if uptime < 0 {
		uptime = 0
	}
	if uptime > 1 {
		uptime = 1
	}

	burnFactor := 1 + math.Log1p(float64(burned))/math.Log1p(weightBurnCap)
	uptimeFactor := weightUptimeFloor + (1-weightUptimeFloor)*uptime

	w := eScore * burnFactor * uptimeFactor
	if w < 0 {
		w = 0
	}
	return uint64(math.Round(w))
}

// EffectiveWeight is a validator's weight after equivocation
// penalties, floored at zero.
func (v Validator) EffectiveWeight() uint64 {
	if v.Penalized >= v.Weight {
		return 0
	}
	return v.Weight - v.Penalized
}

// QuorumMet reports whether approveWeight/totalWeight >= φ⁻¹.
func QuorumMet(approveWeight, totalWeight uint64) bool {
	return phi.MeetsQuorum(approveWeight, totalWeight)
}
