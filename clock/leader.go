package clock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/judgenet/node/crypto"
)

// ErrNoValidators is returned when the leader schedule has nothing to
// draw from.
var ErrNoValidators = errors.New("clock: no validators in schedule")

// WeightedValidator is the minimal view the leader schedule needs: an
// identity and a weight. consensus.Validator satisfies this shape.
type WeightedValidator struct {
	PublicKeyHex string
	Weight       uint64
}

// stableSalt domain-separates the leader draw from any other hashed
// value derived from a slot number.
const stableSalt = "judgenet-leader-schedule-v1"

// SelectLeader deterministically draws a leader for slot from
// validators, weighted by Weight: draw a uniform 64-bit value seeded
// by (slot, stableSalt), and return the validator whose cumulative
// weight (in ascending-pubkey-hex order, for a stable tie-break) first
// reaches the draw. The long-run share of leaderships for v converges
// to Weight(v)/Σ Weight.
func SelectLeader(slot Slot, validators []WeightedValidator) (string, error) {
	if len(validators) == 0 {
		return "", ErrNoValidators
	}

	sorted := make([]WeightedValidator, len(validators))
	copy(sorted, validators)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PublicKeyHex < sorted[j].PublicKeyHex
	})

	var total uint64
	for _, v := range sorted {
		total += v.Weight
	}
	if total == 0 {
		return "", ErrNoValidators
	}

	draw := seededDraw(slot) % total

	var cumulative uint64
	for _, v := range sorted {
		cumulative += v.Weight
		if draw < cumulative {
			return v.PublicKeyHex, nil
		}
	}
	// unreachable unless weights overflow; fall back to the last
	// validator in sort order for determinism.
	return sorted[len(sorted)-1].PublicKeyHex, nil
}

// seededDraw derives a uniform uint64 from (slot, stableSalt).
func seededDraw(slot Slot) uint64 {
	var slotBytes [8]byte
	binary.BigEndian.PutUint64(slotBytes[:], uint64(slot))
	sum := crypto.HashConcat([]byte(stableSalt), slotBytes[:])
	return binary.BigEndian.Uint64(sum[:8])
}

// IsLeader reports whether candidate is the expected leader for slot.
func IsLeader(slot Slot, validators []WeightedValidator, candidatePubkeyHex string) (bool, error) {
	leader, err := SelectLeader(slot, validators)
	if err != nil {
		return false, err
	}
	return leader == candidatePubkeyHex, nil
}

// Describe is a debugging helper returning a human string for logs.
func Describe(slot Slot, leader string) string {
	return fmt.Sprintf("slot=%d leader=%s", slot, leader)
}
