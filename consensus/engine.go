package consensus

import (
	"context"
	"time"

	"github.com/judgenet/node/clock"
	"github.com/judgenet/node/internal/event"
	"github.com/judgenet/node/internal/jerr"
)

// EquivocationPenalty is the weight deduction applied to a proposer
// caught equivocating.
const EquivocationPenalty = 1 << 62 // effectively zeroes EffectiveWeight via the floor in Validator.EffectiveWeight

// EngineConfig configures a new Engine.
type EngineConfig struct {
	SelfPublicKeyHex string
	FinalityDepth    int           // N, default 3
	ProposalTimeout  time.Duration // per-slot timeout
	ForkRetention    uint64        // slots behind last-finalized to retain fork entries
	Bus              *event.Bus
}

// blockEntry pairs a Block with its bookkeeping.
type blockEntry struct {
	block Block
}

// Engine is the BFT consensus engine. All mutable state (blocks, vote
// tally, fork map) is owned exclusively by the goroutine started by
// Run; every exported method is a request sent over a channel to that
// goroutine, per the "single-owner task" design note — the engine
// holds no lock over consensus state (ForkDetector still guards its
// own fork map with an internal mutex).
type Engine struct {
	cfg EngineConfig

	validators map[string]*Validator

	blocks map[uint64]map[[32]byte]*blockEntry // slot -> hash -> entry
	votes  map[string]bool                     // voter|slot|hash dedup
	approveWeight map[uint64]map[[32]byte]uint64
	rejectWeight  map[uint64]map[[32]byte]uint64

	proposalsBySlotProposer map[string][][32]byte // proposer|slot -> hashes seen, in arrival order
	penalized               map[string]bool       // proposer|slot already penalized

	confirmed         []confirmedBlock // awaiting finality, oldest first
	lastFinalizedSlot uint64

	fork   *ForkDetector
	thermo Thermo

	cmdCh  chan func()
	cancel context.CancelFunc
	stopped chan struct{}
}

type confirmedBlock struct {
	slot uint64
	hash [32]byte
}

// NewEngine constructs an Engine and starts its single-owner command
// loop in the background. Call Stop to abort it and release its
// goroutine; committed state is left intact.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.FinalityDepth == 0 {
		cfg.FinalityDepth = 3
	}
	if cfg.Bus == nil {
		cfg.Bus = event.NewBus()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:                     cfg,
		validators:              make(map[string]*Validator),
		blocks:                  make(map[uint64]map[[32]byte]*blockEntry),
		votes:                   make(map[string]bool),
		approveWeight:           make(map[uint64]map[[32]byte]uint64),
		rejectWeight:            make(map[uint64]map[[32]byte]uint64),
		proposalsBySlotProposer: make(map[string][][32]byte),
		penalized:               make(map[string]bool),
		fork:                    NewForkDetector(cfg.ForkRetention),
		cmdCh:                   make(chan func()),
		cancel:                  cancel,
		stopped:                 make(chan struct{}),
	}
	go e.run(ctx)
	return e
}

// run is the single-owner goroutine: every mutation of blocks, votes,
// or fork state happens here and nowhere else, so none of it needs a
// lock.
func (e *Engine) run(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.cmdCh:
			fn()
		}
	}
}

// exec submits fn to the owner goroutine and waits for it to run. If
// the owner has already stopped, fn runs inline — safe because no
// other goroutine can be mutating state once the single owner has
// exited.
func (e *Engine) exec(fn func()) {
	select {
	case e.cmdCh <- fn:
	case <-e.stopped:
		fn()
	}
}

// Stop aborts the owner loop and waits for it to exit.
func (e *Engine) Stop() {
	e.cancel()
	<-e.stopped
}

func key2(a string, b uint64) string {
	return a + "|" + itoa(b)
}

func key3(voter string, slot uint64, hash [32]byte) string {
	return voter + "|" + itoa(slot) + "|" + string(hash[:])
}

func itoa(v uint64) string {
	// avoid importing strconv repeatedly across call sites
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// AddValidator registers or replaces a validator record.
func (e *Engine) AddValidator(v Validator) {
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		cp := v
		e.validators[v.PublicKeyHex] = &cp
	})
	<-done
}

// SetEScore updates a validator's E-Score (and recomputed weight).
func (e *Engine) SetEScore(pubkeyHex string, eScore float64) {
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		v, ok := e.validators[pubkeyHex]
		if !ok {
			return
		}
		v.EScore = eScore
		v.Weight = ComputeWeight(v.EScore, v.Burned, v.Uptime)
	})
	<-done
}

func (e *Engine) totalWeight() uint64 {
	var total uint64
	for _, v := range e.validators {
		total += v.EffectiveWeight()
	}
	return total
}

func (e *Engine) weightOf(pubkeyHex string) uint64 {
	v, ok := e.validators[pubkeyHex]
	if !ok {
		return 0
	}
	return v.EffectiveWeight()
}

func (e *Engine) weightedValidators() []clock.WeightedValidator {
	out := make([]clock.WeightedValidator, 0, len(e.validators))
	for _, v := range e.validators {
		out = append(out, clock.WeightedValidator{PublicKeyHex: v.PublicKeyHex, Weight: v.EffectiveWeight()})
	}
	return out
}

// expectedLeader returns the expected leader pubkey for slot given the
// current validator set.
func (e *Engine) expectedLeader(slot uint64) (string, error) {
	return clock.SelectLeader(clock.Slot(slot), e.weightedValidators())
}

// ProposeResult is returned by Propose.
type ProposeResult struct {
	Block Block
	Err   error
}

// Propose is invoked by the current leader (leadership is verified by
// the caller against the slot clock/leader schedule before calling
// this). It stamps proposer/slot/hash, stores the block as Proposed,
// casts a self-approve vote, and emits block:proposed.
func (e *Engine) Propose(slot uint64, prevHash [32]byte, judgments []Judgment, now time.Time) ProposeResult {
	var result ProposeResult
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)

		b := Block{
			Slot:       slot,
			PrevHash:   prevHash,
			Proposer:   e.cfg.SelfPublicKeyHex,
			Timestamp:  now,
			Judgments:  judgments,
			MerkleRoot: MerkleRootOf(judgments),
		}
		b.Hash = HashBlock(b)
		b.Status = StatusProposed
		e.storeBlock(b)

		if eq := e.recordProposal(b); eq {
			result.Err = jerr.New(jerr.EquivocationDetected, "self-proposal conflicts with a prior proposal at this slot")
			return
		}

		e.castVote(Vote{Voter: e.cfg.SelfPublicKeyHex, BlockHash: b.Hash, Decision: Approve, Slot: b.Slot}, now)

		e.cfg.Bus.Publish(event.Event{Type: event.BlockProposed, Block: &event.BlockEvent{Slot: b.Slot, Hash: b.Hash, Status: string(b.Status)}})
		result.Block = b
	})
	<-done
	return result
}

// recordProposal folds a newly-seen block into proposalsBySlotProposer
// and returns true iff this proposer now has >=2 distinct hashes at
// this slot (equivocation), in which case every block this proposer
// has proposed at this slot is marked Rejected and a one-time penalty
// is applied.
func (e *Engine) recordProposal(b Block) bool {
	k := key2(b.Proposer, b.Slot)
	hashes := e.proposalsBySlotProposer[k]

	alreadySeen := false
	for _, h := range hashes {
		if h == b.Hash {
			alreadySeen = true
			break
		}
	}
	if !alreadySeen {
		hashes = append(hashes, b.Hash)
		e.proposalsBySlotProposer[k] = hashes
	}

	if len(hashes) < 2 {
		return false
	}

	// equivocation: reject every block this proposer proposed at this slot
	if slotMap, ok := e.blocks[b.Slot]; ok {
		for _, h := range hashes {
			if entry, ok := slotMap[h]; ok && entry.block.Proposer == b.Proposer {
				entry.block.Status = StatusRejected
			}
		}
	}

	if !e.penalized[k] {
		e.penalized[k] = true
		if v, ok := e.validators[b.Proposer]; ok {
			v.Penalized += EquivocationPenalty
		}
		e.cfg.Bus.Publish(event.Event{Type: event.EquivocationDetected, Equivocation: &event.EquivocationEvent{Slot: b.Slot, Proposer: b.Proposer}})
	}
	return true
}

func (e *Engine) storeBlock(b Block) {
	slotMap, ok := e.blocks[b.Slot]
	if !ok {
		slotMap = make(map[[32]byte]*blockEntry)
		e.blocks[b.Slot] = slotMap
	}
	if entry, exists := slotMap[b.Hash]; exists {
		entry.block = b
		return
	}
	slotMap[b.Hash] = &blockEntry{block: b}
}

// HandleProposal processes an inbound BLOCK_PROPOSAL from gossip.
func (e *Engine) HandleProposal(b Block, now time.Time) error {
	var outErr error
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)

		if b.Slot == 0 {
			if b.PrevHash != GenesisHash {
				outErr = jerr.New(jerr.ChainIntegrityViolation, "slot 0 must chain from genesis-zero")
				return
			}
		}

		expected, err := e.expectedLeader(b.Slot)
		if err == nil && expected != "" && expected != b.Proposer {
			outErr = jerr.New(jerr.SlotMismatch, "proposer is not the expected leader for this slot")
			return
		}

		wantHash := HashBlock(b)
		if wantHash != b.Hash {
			outErr = jerr.New(jerr.ChainIntegrityViolation, "block hash does not match its fields")
			return
		}

		b.Status = StatusProposed
		e.storeBlock(b)

		if eq := e.recordProposal(b); eq {
			outErr = jerr.New(jerr.EquivocationDetected, "proposer equivocated at this slot")
			return
		}

		e.castVote(Vote{Voter: e.cfg.SelfPublicKeyHex, BlockHash: b.Hash, Decision: Approve, Slot: b.Slot}, now)
		e.cfg.Bus.Publish(event.Event{Type: event.VoteCast, Vote: &event.VoteEvent{Slot: b.Slot, BlockHash: b.Hash, Voter: e.cfg.SelfPublicKeyHex, Decision: string(Approve)}})
	})
	<-done
	return outErr
}

// castVote records the local node's own vote, going through the same
// per-(voter,slot,hash) dedup as an inbound vote so a looped-back copy
// of our own gossip can never double-count it.
func (e *Engine) castVote(v Vote, now time.Time) {
	e.recordAndTally(v)
}

// HandleVote processes an inbound VOTE message: dedup, tally, and
// evaluate the confirmation threshold.
func (e *Engine) HandleVote(v Vote) error {
	var outErr error
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		e.recordAndTally(v)
	})
	<-done
	return outErr
}

// recordAndTally dedupes v by (voter, slot, block_hash) and, if new,
// folds it into the weight tally.
func (e *Engine) recordAndTally(v Vote) {
	k := key3(v.Voter, v.Slot, v.BlockHash)
	if e.votes[k] {
		return
	}
	e.votes[k] = true
	e.tallyVote(v)
}

// tallyVote updates approve/reject weight for (slot,hash) and, on
// crossing quorum, transitions the block to Confirmed.
func (e *Engine) tallyVote(v Vote) {
	w := e.weightOf(v.Voter)

	switch v.Decision {
	case Approve:
		m, ok := e.approveWeight[v.Slot]
		if !ok {
			m = make(map[[32]byte]uint64)
			e.approveWeight[v.Slot] = m
		}
		m[v.BlockHash] += w
	case Reject:
		m, ok := e.rejectWeight[v.Slot]
		if !ok {
			m = make(map[[32]byte]uint64)
			e.rejectWeight[v.Slot] = m
		}
		m[v.BlockHash] += w
	}

	slotMap, ok := e.blocks[v.Slot]
	if !ok {
		return
	}
	entry, ok := slotMap[v.BlockHash]
	if !ok || entry.block.Status != StatusProposed {
		return
	}

	approve := e.approveWeight[v.Slot][v.BlockHash]
	if QuorumMet(approve, e.totalWeight()) {
		entry.block.Status = StatusConfirmed
		e.cfg.Bus.Publish(event.Event{Type: event.BlockConfirmed, Block: &event.BlockEvent{Slot: entry.block.Slot, Hash: entry.block.Hash, Status: string(StatusConfirmed)}})
		e.advanceFinality(entry)
	}
}

// advanceFinality walks back over pending Confirmed blocks and
// increments their confirmation counters once for this newly-confirmed
// block, finalizing any that cross FinalityDepth and chain back
// correctly.
func (e *Engine) advanceFinality(newlyConfirmed *blockEntry) {
	e.confirmed = append(e.confirmed, confirmedBlock{slot: newlyConfirmed.block.Slot, hash: newlyConfirmed.block.Hash})

	remaining := e.confirmed[:0]
	for _, cb := range e.confirmed {
		if cb.slot == newlyConfirmed.block.Slot && cb.hash == newlyConfirmed.block.Hash {
			remaining = append(remaining, cb)
			continue
		}
		if cb.slot >= newlyConfirmed.block.Slot {
			remaining = append(remaining, cb)
			continue
		}

		entry := e.blocks[cb.slot][cb.hash]
		if entry == nil || entry.block.Status != StatusConfirmed {
			continue
		}
		if !e.chainsBackTo(newlyConfirmed.block, cb) {
			remaining = append(remaining, cb)
			continue
		}

		entry.block.Confirmations++
		if entry.block.Confirmations >= e.cfg.FinalityDepth {
			entry.block.Status = StatusFinalized
			if entry.block.Slot > e.lastFinalizedSlot {
				e.lastFinalizedSlot = entry.block.Slot
			}
			e.cfg.Bus.Publish(event.Event{Type: event.BlockFinalized, Block: &event.BlockEvent{Slot: entry.block.Slot, Hash: entry.block.Hash, Status: string(StatusFinalized)}})
			e.fork.Sweep(e.lastFinalizedSlot)
			continue // drop finalized entries from the pending list
		}
		remaining = append(remaining, cb)
	}
	e.confirmed = remaining
}

// chainsBackTo is a conservative check: a later block "chains back" to
// an earlier one if the earlier one is an ancestor by slot ordering
// within this node's local view of the store (exact ancestry is the
// block store's job via prev_hash; here we treat any earlier Confirmed
// block on the path the node has accepted as chaining back, matching
// "does NOT conflict with this block").
func (e *Engine) chainsBackTo(later Block, earlier confirmedBlock) bool {
	return earlier.slot < later.Slot
}

// Tick evaluates per-slot proposal timeouts: any block still Proposed
// past its slot's deadline with a sibling Confirmed at that slot is
// rejected; an equivocating proposer is handled separately in
// recordProposal.
func (e *Engine) Tick(slotClock *clock.SlotClock, now time.Time) {
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		for slot, slotMap := range e.blocks {
			if now.Before(slotClock.SlotDeadline(clock.Slot(slot), e.cfg.ProposalTimeout)) {
				continue
			}
			hasConfirmedSibling := false
			for _, entry := range slotMap {
				if entry.block.Status == StatusConfirmed || entry.block.Status == StatusFinalized {
					hasConfirmedSibling = true
					break
				}
			}
			if !hasConfirmedSibling {
				continue
			}
			for _, entry := range slotMap {
				if entry.block.Status != StatusProposed {
					continue
				}
				entry.block.Status = StatusRejected
				e.cfg.Bus.Publish(event.Event{Type: event.ProposalTimeout, Block: &event.BlockEvent{Slot: slot, Hash: entry.block.Hash, Status: string(StatusRejected)}})
			}
		}
	})
	<-done
}

// localHashAt returns this node's best-known hash for slot: Finalized
// over Confirmed over Proposed, preferring the highest-status entry.
func (e *Engine) localHashAt(slot uint64) ([32]byte, bool) {
	slotMap, ok := e.blocks[slot]
	if !ok {
		return [32]byte{}, false
	}
	var best *blockEntry
	rank := func(s Status) int {
		switch s {
		case StatusFinalized:
			return 3
		case StatusConfirmed:
			return 2
		case StatusProposed:
			return 1
		default:
			return 0
		}
	}
	for _, entry := range slotMap {
		if best == nil || rank(entry.block.Status) > rank(best.block.Status) {
			best = entry
		}
	}
	if best == nil || rank(best.block.Status) == 0 {
		return [32]byte{}, false
	}
	return best.block.Hash, true
}

// HandleForkReport folds peer-reported (slot,hash) observations into
// the fork detector and returns one CheckResult per newly-touched slot
// that now holds >=2 branches.
func (e *Engine) HandleForkReport(fromPeer string, reports []SlotHashReport, peerEScore float64) []CheckResult {
	var results []CheckResult
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		results = e.fork.CheckForForks(fromPeer, reports, peerEScore, e.localHashAt)
		for _, r := range results {
			if r.FirstDetection {
				e.cfg.Bus.Publish(event.Event{Type: event.ForkDetected, Fork: &event.ForkEvent{
					Slot: r.Slot, Branches: 2, Heaviest: r.Heaviest, Recommendation: string(r.Recommendation),
				}})
			}
		}
	})
	<-done
	return results
}

// MarkForkResolved clears the resolution-in-progress flag for slot.
func (e *Engine) MarkForkResolved(slot uint64) {
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		e.fork.MarkForkResolved(slot)
		e.cfg.Bus.Publish(event.Event{Type: event.ForkResolved, ForkResolved: &event.ForkResolvedEvent{Slot: slot}})
	})
	<-done
}

// TryStartForkResolution attempts to claim the resolution-in-progress
// flag for slot and, if successful, returns the highest-E-Score peer
// on the heaviest branch to send a FORK_RESOLUTION_REQUEST to.
func (e *Engine) TryStartForkResolution(slot uint64, heaviest [32]byte, peerScore func(string) (float64, bool)) (string, bool) {
	var peer string
	var ok bool
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		if !e.fork.MarkResolutionInProgress(slot) {
			return
		}
		peer, ok = e.fork.HeaviestPeerOnBranch(slot, heaviest, peerScore)
		if !ok {
			e.fork.MarkForkResolved(slot) // nothing to request; release the flag
		}
	})
	<-done
	return peer, ok
}

// BlockAt returns the stored block for (slot, hash), if any.
func (e *Engine) BlockAt(slot uint64, hash [32]byte) (Block, bool) {
	var block Block
	var ok bool
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		slotMap, exists := e.blocks[slot]
		if !exists {
			return
		}
		entry, exists := slotMap[hash]
		if !exists {
			return
		}
		block, ok = entry.block, true
	})
	<-done
	return block, ok
}

// Observe folds a thermodynamic sample into the signal layer.
func (e *Engine) Observe(heat, work, entropy float64) {
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		e.thermo.Observe(heat, work, entropy)
	})
	<-done
}

// ThermoSnapshot returns the current signal-layer readings.
func (e *Engine) ThermoSnapshot() Thermo {
	var t Thermo
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		t = e.thermo
	})
	<-done
	return t
}

// IsLeader reports whether this node is the expected leader for slot
// under the current weighted validator set, so a caller can gate
// Propose on actual leadership instead of proposing every slot.
func (e *Engine) IsLeader(slot uint64) (bool, error) {
	var leader bool
	var err error
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		leader, err = clock.IsLeader(clock.Slot(slot), e.weightedValidators(), e.cfg.SelfPublicKeyHex)
	})
	<-done
	return leader, err
}

// TotalWeight exposes the current total effective validator weight.
func (e *Engine) TotalWeight() uint64 {
	var w uint64
	done := make(chan struct{})
	e.exec(func() {
		defer close(done)
		w = e.totalWeight()
	})
	<-done
	return w
}
