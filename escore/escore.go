// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package escore computes a node's reputation score from seven
// weighted, normalized dimensions: HOLD, BURN, USE, BUILD, RUN, REFER,
// TIME. The aggregate feeds validator weight (see consensus.ComputeWeight).
//
// The source left the per-dimension coefficients and the exact weight
// assignment across all seven dimensions unspecified (only four
// weight values — φ, φ⁻¹, 1, φ⁻² — were given for seven slots). This
// implementation pins a concrete, documented choice (see
// dimensionWeights): the four weights repeat in dimension-declaration
// order.
package escore

import (
	"math"
	"sync"
	"time"

	"github.com/judgenet/node/internal/phi"
)

// Counters holds the raw, monotone event-feed state for one node.
// Every mutating method invalidates the memoized score.
type Counters struct {
	mu sync.Mutex

	TotalJudgments  uint64
	AgreementCount  uint64
	BlocksProcessed uint64
	TotalBurned     uint64
	Commits         uint64
	LastHeartbeat   time.Time
	AccountCreated  time.Time

	// Stubbed social/graph counters feeding REFER; no external social
	// graph integration exists in this repo, so these are fed only by
	// ReportReferral.
	ActiveReferrals uint64

	// Stubbed hold counters feeding HOLD; no external ledger balance
	// integration exists in this repo, so these are fed only by
	// ReportHold.
	HeldAmount   uint64
	HeldSince    time.Time
	UptimeRatio  float64 // in [0,1], fed only by SetUptimeRatio

	dirty bool
	cache float64
}

// NewCounters creates a fresh counter set with accountCreated as the
// node's account-age anchor.
func NewCounters(accountCreated time.Time) *Counters {
	return &Counters{AccountCreated: accountCreated, dirty: true}
}

// --- event feed -----------------------------------------------------

// JudgmentMatchesConsensus records that a locally-produced judgment
// matched the confirmed chain.
func (c *Counters) JudgmentMatchesConsensus() {
	c.mutate(func() {
		c.TotalJudgments++
		c.AgreementCount++
	})
}

// JudgmentDiverged records a locally-produced judgment that did NOT
// match the confirmed chain.
func (c *Counters) JudgmentDiverged() {
	c.mutate(func() { c.TotalJudgments++ })
}

// BlockFinalized records a finalized block produced (or contributed
// to) by this node, and refreshes the heartbeat.
func (c *Counters) BlockFinalized(at time.Time) {
	c.mutate(func() {
		c.BlocksProcessed++
		c.LastHeartbeat = at
	})
}

// Heartbeat refreshes liveness without affecting blocksProcessed.
func (c *Counters) Heartbeat(at time.Time) {
	c.mutate(func() { c.LastHeartbeat = at })
}

// BurnEvent records burned amount.
func (c *Counters) BurnEvent(amount uint64) {
	c.mutate(func() { c.TotalBurned += amount })
}

// BuildEvent records a build/commit event.
func (c *Counters) BuildEvent() {
	c.mutate(func() { c.Commits++ })
}

// ReportReferral records an active referral (stubbed social/graph feed).
func (c *Counters) ReportReferral(delta uint64) {
	c.mutate(func() { c.ActiveReferrals += delta })
}

// ReportHold records held amount/duration (stubbed hold feed).
func (c *Counters) ReportHold(amount uint64, since time.Time) {
	c.mutate(func() {
		c.HeldAmount = amount
		c.HeldSince = since
	})
}

// SetUptimeRatio feeds the orchestrator's observed connection uptime.
func (c *Counters) SetUptimeRatio(r float64) {
	c.mutate(func() {
		if r < 0 {
			r = 0
		}
		if r > 1 {
			r = 1
		}
		c.UptimeRatio = r
	})
}

func (c *Counters) mutate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
	c.dirty = true
}

// --- dimension scores, each normalized to [0,100] --------------------

const (
	holdCapAmountDays = 1_000_000.0 // HOLD normalizer: amount*days saturating at this product
	burnCap           = 1_000_000.0 // BURN normalizer: total burned saturating at this amount
	useRateCap        = 5.0         // USE normalizer: judgments/day saturating at this rate
	buildCommitsCap   = 200.0       // BUILD normalizer: commits saturating at this count
	runBlocksCap      = 1000.0      // RUN normalizer: blocks produced saturating at this count
	referCap          = 25.0        // REFER normalizer: active referrals saturating at this count
	timeCapDays       = 3650.0      // TIME normalizer: account age saturating at ~10 years
)

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func logRatio(numerator, cap float64) float64 {
	if numerator <= 0 {
		return 0
	}
	return clamp100(100 * math.Log1p(numerator) / math.Log1p(cap))
}

func (c *Counters) holdScore(now time.Time) float64 {
	if c.HeldAmount == 0 || c.HeldSince.IsZero() {
		return 0
	}
	days := now.Sub(c.HeldSince).Hours() / 24
	if days < 0 {
		days = 0
	}
	product := float64(c.HeldAmount) * days
	return logRatio(product, holdCapAmountDays)
}

func (c *Counters) burnScore() float64 {
	return logRatio(float64(c.TotalBurned), burnCap)
}

func (c *Counters) useScore(now time.Time) float64 {
	ageDays := now.Sub(c.AccountCreated).Hours() / 24
	if ageDays < 1 {
		ageDays = 1
	}
	rate := float64(c.TotalJudgments) / ageDays
	return clamp100(100 * rate / useRateCap)
}

func (c *Counters) buildScore() float64 {
	return clamp100(100 * float64(c.Commits) / buildCommitsCap)
}

func (c *Counters) runScore() float64 {
	uptimeHalf := clamp100(100*c.UptimeRatio) / 2
	blocksHalf := clamp100(100*float64(c.BlocksProcessed)/runBlocksCap) / 2
	return uptimeHalf + blocksHalf
}

func (c *Counters) referScore() float64 {
	return clamp100(100 * float64(c.ActiveReferrals) / referCap)
}

func (c *Counters) timeScore(now time.Time) float64 {
	ageDays := now.Sub(c.AccountCreated).Hours() / 24
	return logRatio(ageDays, timeCapDays)
}

// dimensionWeights pins the open question: the four weights from the
// spec (φ, φ⁻¹, 1, φ⁻²) repeat across the seven dimensions in
// declaration order (HOLD, BURN, USE, BUILD, RUN, REFER, TIME).
var dimensionWeights = [7]float64{
	phi.Phi, phi.Inverse, 1, phi.InverseSquare,
	phi.Phi, phi.Inverse, 1,
}

// Score computes the memoized, clamped aggregate E-Score in [0,100].
func (c *Counters) Score(now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return c.cache
	}

	dims := [7]float64{
		c.holdScore(now),
		c.burnScore(),
		c.useScore(now),
		c.buildScore(),
		c.runScore(),
		c.referScore(),
		c.timeScore(now),
	}

	var weighted, totalWeight float64
	for i, d := range dims {
		w := dimensionWeights[i]
		weighted += w * d
		totalWeight += w
	}

	score := clamp100(weighted / totalWeight)
	c.cache = score
	c.dirty = false
	return score
}
