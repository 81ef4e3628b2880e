package escore

import (
	"sync"
	"time"
)

// Provider answers "what is this node's E-Score" for self, and
// "what is the last-known E-Score hint" for peers. Peer scores are
// never computed locally — they arrive via peer heartbeats (see the
// gossip overlay's peer-info design) and are simply cached here.
type Provider struct {
	self *Counters
	now  func() time.Time

	mu    sync.RWMutex
	hints map[string]float64 // pubkey hex -> last heartbeat-reported score
}

// NewProvider builds a Provider backed by self's own counters. now
// defaults to time.Now if nil, for test injection.
func NewProvider(self *Counters, now func() time.Time) *Provider {
	if now == nil {
		now = time.Now
	}
	return &Provider{self: self, now: now, hints: make(map[string]float64)}
}

// Self returns this node's own, locally-computed E-Score.
func (p *Provider) Self() float64 {
	return p.self.Score(p.now())
}

// PeerScore returns (score, true) if a heartbeat hint exists for
// pubkeyHex, or (0, false) — "unknown" — otherwise.
func (p *Provider) PeerScore(pubkeyHex string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.hints[pubkeyHex]
	return v, ok
}

// RecordPeerHeartbeatScore updates the cached hint for a peer, fed by
// that peer's HEARTBEAT message.
func (p *Provider) RecordPeerHeartbeatScore(pubkeyHex string, score float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hints[pubkeyHex] = score
}
