package consensus

import (
	"sort"
	"sync"

	"github.com/judgenet/node/internal/set"
)

// Recommendation is the fork detector's advice for a slot.
type Recommendation string

const (
	Stay         Recommendation = "STAY"
	ReorgNeeded  Recommendation = "REORG_NEEDED"
)

// branch accumulates the reporting peers and total E-Score weight
// observed for one (slot, hash) pair.
type branch struct {
	peers          set.Set[string]
	totalReporting float64
}

// ForkDetector tracks, per slot, every distinct block hash reported by
// peers and computes the heaviest branch. It never mutates consensus
// block/vote state directly — it only emits recommendations that the
// Engine acts on.
type ForkDetector struct {
	mu sync.Mutex

	bySlot              map[uint64]map[[32]byte]*branch
	detected            map[uint64]bool // slot -> already emitted fork:detected
	resolutionInProgress map[uint64]bool
	forksResolved        int

	lastFinalizedSlot uint64
	retention         uint64
}

// NewForkDetector builds a detector retaining fork entries for
// retention slots behind the last finalized slot.
func NewForkDetector(retention uint64) *ForkDetector {
	return &ForkDetector{
		bySlot:               make(map[uint64]map[[32]byte]*branch),
		detected:             make(map[uint64]bool),
		resolutionInProgress: make(map[uint64]bool),
		retention:            retention,
	}
}

// SlotHashReport is one (slot, hash) observation from a peer.
type SlotHashReport struct {
	Slot uint64
	Hash [32]byte
}

// CheckResult is returned per distinct slot touched by a
// CheckForForks call.
type CheckResult struct {
	Slot           uint64
	FirstDetection bool
	Heaviest       [32]byte
	Recommendation Recommendation
}

// CheckForForks folds reports from fromPeer (weighted by peerEScore)
// into the fork map and returns one CheckResult per slot that now
// holds >=2 distinct hashes, alongside whether localHash (the node's
// own hash at that slot, via localHashAt) matches the heaviest branch.
func (d *ForkDetector) CheckForForks(fromPeer string, reports []SlotHashReport, peerEScore float64, localHashAt func(slot uint64) ([32]byte, bool)) []CheckResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	var results []CheckResult
	touched := map[uint64]bool{}
	for _, r := range reports {
		slotMap, ok := d.bySlot[r.Slot]
		if !ok {
			slotMap = make(map[[32]byte]*branch)
			d.bySlot[r.Slot] = slotMap
		}
		b, ok := slotMap[r.Hash]
		if !ok {
			b = &branch{peers: set.NewSet[string](1)}
			slotMap[r.Hash] = b
		}
		if !b.peers.Contains(fromPeer) {
			b.peers.Add(fromPeer)
			b.totalReporting += peerEScore
		}
		touched[r.Slot] = true
	}

	for slot := range touched {
		slotMap := d.bySlot[slot]
		if len(slotMap) < 2 {
			continue
		}
		heaviest := heaviestHash(slotMap)
		first := !d.detected[slot]
		if first {
			d.detected[slot] = true
		}

		rec := ReorgNeeded
		if local, ok := localHashAt(slot); ok && local == heaviest {
			rec = Stay
		}

		results = append(results, CheckResult{
			Slot:           slot,
			FirstDetection: first,
			Heaviest:       heaviest,
			Recommendation: rec,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Slot < results[j].Slot })
	return results
}

// heaviestHash returns the hash with the greatest totalReporting,
// breaking ties by lexicographically smaller hash.
func heaviestHash(slotMap map[[32]byte]*branch) [32]byte {
	var best [32]byte
	var bestWeight float64
	first := true
	for h, b := range slotMap {
		if first || b.totalReporting > bestWeight ||
			(b.totalReporting == bestWeight && lessHash(h, best)) {
			best = h
			bestWeight = b.totalReporting
			first = false
		}
	}
	return best
}

func lessHash(a, b [32]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// HeaviestPeerOnBranch returns the highest-E-Score peer that reported
// hash for slot, for routing a FORK_RESOLUTION_REQUEST. peerScore
// looks up a peer's current E-Score hint.
func (d *ForkDetector) HeaviestPeerOnBranch(slot uint64, hash [32]byte, peerScore func(pubkeyHex string) (float64, bool)) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slotMap, ok := d.bySlot[slot]
	if !ok {
		return "", false
	}
	b, ok := slotMap[hash]
	if !ok {
		return "", false
	}

	var best string
	var bestScore float64
	found := false
	for _, p := range b.peers.List() {
		score, ok := peerScore(p)
		if !ok {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = p, score, true
		}
	}
	return best, found
}

// MarkResolutionInProgress sets the flag preventing duplicate
// FORK_RESOLUTION_REQUESTs for slot.
func (d *ForkDetector) MarkResolutionInProgress(slot uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolutionInProgress[slot] {
		return false
	}
	d.resolutionInProgress[slot] = true
	return true
}

// MarkForkResolved clears the in-progress flag and counts the
// resolution.
func (d *ForkDetector) MarkForkResolved(slot uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.resolutionInProgress, slot)
	d.forksResolved++
}

// ForksResolved returns the running count of resolved forks.
func (d *ForkDetector) ForksResolved() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.forksResolved
}

// Sweep removes fork entries older than lastFinalizedSlot - retention,
// and updates the last-finalized slot watermark.
func (d *ForkDetector) Sweep(lastFinalizedSlot uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFinalizedSlot = lastFinalizedSlot
	if lastFinalizedSlot < d.retention {
		return
	}
	floor := lastFinalizedSlot - d.retention
	for slot := range d.bySlot {
		if slot < floor {
			delete(d.bySlot, slot)
			delete(d.detected, slot)
			delete(d.resolutionInProgress, slot)
		}
	}
}
