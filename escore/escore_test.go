package escore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScoreInBoundsAndMemoized(t *testing.T) {
	now := time.Now()
	c := NewCounters(now.Add(-365 * 24 * time.Hour))

	score := c.Score(now)
	require.GreaterOrEqual(t, score, 0.0)
	require.LessOrEqual(t, score, 100.0)

	c.BurnEvent(5000)
	score2 := c.Score(now)
	require.NotEqual(t, score, score2, "mutation must invalidate the memoized score")

	score3 := c.Score(now)
	require.Equal(t, score2, score3, "unchanged counters must return the cached value")
}

func TestScoreMonotoneInEachCounter(t *testing.T) {
	now := time.Now()
	c := NewCounters(now.Add(-30 * 24 * time.Hour))
	base := c.Score(now)

	c.BuildEvent()
	afterBuild := c.Score(now)
	require.GreaterOrEqual(t, afterBuild, base)

	c.BlockFinalized(now)
	afterBlock := c.Score(now)
	require.GreaterOrEqual(t, afterBlock, afterBuild)

	c.SetUptimeRatio(1.0)
	afterUptime := c.Score(now)
	require.GreaterOrEqual(t, afterUptime, afterBlock)
}

func TestScoreNeverExceedsCapEvenWithExtremeCounters(t *testing.T) {
	now := time.Now()
	c := NewCounters(now.Add(-10000 * 24 * time.Hour))
	c.BurnEvent(1 << 40)
	for i := 0; i < 10000; i++ {
		c.BuildEvent()
		c.BlockFinalized(now)
	}
	c.ReportReferral(10000)
	c.ReportHold(1<<40, now.Add(-10000*24*time.Hour))
	c.SetUptimeRatio(1.0)

	require.LessOrEqual(t, c.Score(now), 100.0)
}

func TestProviderPeerScoreUnknownUntilHeartbeat(t *testing.T) {
	p := NewProvider(NewCounters(time.Now()), nil)

	_, ok := p.PeerScore("deadbeef")
	require.False(t, ok)

	p.RecordPeerHeartbeatScore("deadbeef", 42)
	v, ok := p.PeerScore("deadbeef")
	require.True(t, ok)
	require.Equal(t, 42.0, v)
}
