// Package event defines the fixed payload records for every event kind
// the node can emit, and a typed bus that replaces the "dynamic event
// handlers with ad-hoc payloads" pattern: each event kind carries a
// dedicated record, not a dictionary.
package event

import (
	"sync"
	"time"
)

// Type identifies an event kind in the embedder API.
type Type string

const (
	BlockProposed   Type = "block:proposed"
	BlockConfirmed  Type = "block:confirmed"
	BlockFinalized  Type = "block:finalized"
	VoteCast        Type = "vote:cast"
	ProposalTimeout Type = "proposal:timeout"
	ForkDetected    Type = "fork:detected"
	ForkResolved    Type = "fork:resolved"
	PeerConnected   Type = "peer:connected"
	PeerIdentified  Type = "peer:identified"
	PeerReconnecting Type = "peer:reconnecting"
	PeerDisconnected Type = "peer:disconnected"
	MetricsReported Type = "metrics:reported"
	EquivocationDetected Type = "equivocation_detected"
)

// BlockEvent carries block-lifecycle transitions.
type BlockEvent struct {
	Slot   uint64
	Hash   [32]byte
	Status string
}

// VoteEvent carries a cast vote.
type VoteEvent struct {
	Slot      uint64
	BlockHash [32]byte
	Voter     string
	Decision  string
}

// ForkEvent carries fork-detector output.
type ForkEvent struct {
	Slot           uint64
	Branches       int
	Heaviest       [32]byte
	Recommendation string
}

// ForkResolvedEvent marks a resolution completing.
type ForkResolvedEvent struct {
	Slot uint64
}

// PeerEvent carries peer lifecycle transitions.
type PeerEvent struct {
	PublicKeyHex string
	Address      string
}

// MetricsEvent is a coarse periodic snapshot.
type MetricsEvent struct {
	At       time.Time
	Peers    int
	Slot     uint64
	EScore   float64
}

// EquivocationEvent names the offending proposer.
type EquivocationEvent struct {
	Slot     uint64
	Proposer string
}

// Event is a typed envelope: exactly one of its payload fields is set,
// matching Type.
type Event struct {
	Type Type

	Block        *BlockEvent
	Vote         *VoteEvent
	Fork         *ForkEvent
	ForkResolved *ForkResolvedEvent
	Peer         *PeerEvent
	Metrics      *MetricsEvent
	Equivocation *EquivocationEvent
}

// Handler receives events of the Type it subscribed to.
type Handler func(Event)

// Unsubscribe removes a previously-registered handler.
type Unsubscribe func()

// Bus is a node.Node-owned event bus — never a package-level
// singleton. Subscribers register via Subscribe, returning an
// Unsubscribe handle.
type Bus struct {
	mu       sync.Mutex
	handlers map[Type][]*subscription
	nextID   uint64
}

type subscription struct {
	id uint64
	fn Handler
}

// NewBus creates an empty, ready-to-use Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]*subscription)}
}

// Subscribe registers fn for events of kind t.
func (b *Bus) Subscribe(t Type, fn Handler) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	sub := &subscription{id: id, fn: fn}
	b.handlers[t] = append(b.handlers[t], sub)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[t]
		for i, s := range subs {
			if s.id == id {
				b.handlers[t] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every handler subscribed to ev.Type.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	handlers := append([]*subscription(nil), b.handlers[ev.Type]...)
	b.mu.Unlock()
	for _, s := range handlers {
		s.fn(ev)
	}
}
