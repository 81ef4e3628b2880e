package clock

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlotClockMonotoneAndBackwardJumpIgnored(t *testing.T) {
	genesis := time.Unix(0, 0)
	vc := NewVirtual(genesis)
	sc := NewSlotClock(genesis, 400*time.Millisecond, vc)

	require.Equal(t, Slot(0), sc.Current())

	vc.Advance(1200 * time.Millisecond)
	require.Equal(t, Slot(3), sc.Current())

	var driftFrom, driftTo Slot
	sc.OnDrift(func(from, to Slot) { driftFrom, driftTo = from, to })

	vc.Set(genesis) // clock jumps backward
	require.Equal(t, Slot(3), sc.Current(), "backward jump must be ignored, staying monotone")
	require.Equal(t, Slot(3), driftFrom)
	require.Equal(t, Slot(0), driftTo)
}

func TestSelectLeaderDeterministic(t *testing.T) {
	validators := []WeightedValidator{
		{PublicKeyHex: "aa", Weight: 100},
		{PublicKeyHex: "bb", Weight: 60},
		{PublicKeyHex: "cc", Weight: 40},
	}

	l1, err := SelectLeader(42, validators)
	require.NoError(t, err)
	l2, err := SelectLeader(42, validators)
	require.NoError(t, err)
	require.Equal(t, l1, l2)
}

func TestSelectLeaderLongRunFairness(t *testing.T) {
	validators := []WeightedValidator{
		{PublicKeyHex: "a", Weight: 100},
		{PublicKeyHex: "b", Weight: 60},
		{PublicKeyHex: "c", Weight: 40},
	}
	const k = 10000
	counts := map[string]int{}
	for s := Slot(0); s < k; s++ {
		leader, err := SelectLeader(s, validators)
		require.NoError(t, err)
		counts[leader]++
	}

	expected := map[string]float64{"a": 0.5, "b": 0.3, "c": 0.2}
	for id, want := range expected {
		got := float64(counts[id]) / float64(k)
		require.InDelta(t, want, got, 0.02, "leader share for %s", id)
	}
}

func TestSelectLeaderNoValidators(t *testing.T) {
	_, err := SelectLeader(1, nil)
	require.ErrorIs(t, err, ErrNoValidators)
}

func TestSeededDrawIsUniformish(t *testing.T) {
	// sanity check there's no gross modular bias for a small weight set
	validators := []WeightedValidator{{PublicKeyHex: "x", Weight: 1}, {PublicKeyHex: "y", Weight: 1}}
	counts := map[string]int{}
	for s := Slot(0); s < 2000; s++ {
		l, err := SelectLeader(s, validators)
		require.NoError(t, err)
		counts[l]++
	}
	ratio := float64(counts["x"]) / 2000
	require.True(t, math.Abs(ratio-0.5) < 0.05)
}
