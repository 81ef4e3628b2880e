// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/judgenet/node/crypto"
	"github.com/judgenet/node/internal/jerr"
	"github.com/judgenet/node/wire"
)

const (
	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 60 * time.Second
)

func decodeJSON(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

var dialer = websocket.Dialer{HandshakeTimeout: 10 * time.Second}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  int(wire.MaxFrameSize),
	WriteBufferSize: int(wire.MaxFrameSize),
}

// Manager owns every live Peer session, accepts inbound connections,
// dials seed peers, and keeps reconnecting a dropped seed peer with
// exponential backoff and jitter, capped at reconnectMaxDelay.
type Manager struct {
	self crypto.Keypair

	mu    sync.RWMutex
	peers map[string]*Peer // keyed by public key hex

	onFrame func(fromPeer string, frame []byte)
	onPeer  func(pubkeyHex, address string, connected bool)

	heartbeatScore func() float64

	stopped chan struct{}
	stopOnce sync.Once
}

// NewManager constructs a Manager identified by self. onFrame is
// invoked with the raw bytes of every inbound frame (decoding is left
// to the callee); onPeer reports
// connect/disconnect transitions. heartbeatScore, if non-nil, is
// sampled on every outgoing heartbeat to carry this node's current
// E-Score to its peers; pass nil to omit the score (defaults to 0).
func NewManager(self crypto.Keypair, onFrame func(string, []byte), onPeer func(string, string, bool), heartbeatScore func() float64) *Manager {
	return &Manager{
		self:           self,
		peers:          make(map[string]*Peer),
		onFrame:        onFrame,
		onPeer:         onPeer,
		heartbeatScore: heartbeatScore,
		stopped:        make(chan struct{}),
	}
}

// buildHeartbeatFrame signs and encodes a HEARTBEAT message carrying
// this node's current E-Score, for use as a Peer's buildHeartbeat
// callback.
func (m *Manager) buildHeartbeatFrame(now time.Time) ([]byte, error) {
	score := 0.0
	if m.heartbeatScore != nil {
		score = m.heartbeatScore()
	}
	msg, err := wire.Sign(wire.KindHeartbeat, m.self.Public, m.self.Secret, heartbeatPayload{EScore: score})
	if err != nil {
		return nil, err
	}
	return wire.Encode(msg, now)
}

// Peers lists the public key hex of every currently-connected peer,
// satisfying gossip.PeerLister.
func (m *Manager) Peers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.peers))
	for k := range m.peers {
		out = append(out, k)
	}
	return out
}

// Send enqueues frame for delivery to peerPubkeyHex, satisfying
// gossip.Sender.
func (m *Manager) Send(peerPubkeyHex string, frame []byte) error {
	m.mu.RLock()
	p, ok := m.peers[peerPubkeyHex]
	m.mu.RUnlock()
	if !ok {
		return jerr.New(jerr.PeerUnreachable, "no active session for peer "+peerPubkeyHex)
	}
	p.Enqueue(frame)
	return nil
}

// ServeHTTP upgrades an inbound connection to a websocket and performs
// the identity handshake as the accepting side.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.adopt(conn, r.RemoteAddr, false)
}

// Dial opens a session to address and performs the identity handshake
// as the initiating side. On success the peer is registered and its
// loops are running; on failure the caller (typically a seed-peer
// supervisor) decides whether to retry.
func (m *Manager) Dial(address string) error {
	conn, _, err := dialer.Dial(address, nil)
	if err != nil {
		return jerr.Wrap(jerr.PeerUnreachable, "dial "+address, err)
	}
	return m.adopt(conn, address, true)
}

func (m *Manager) adopt(conn *websocket.Conn, address string, initiator bool) error {
	now := time.Now()
	if initiator {
		if err := m.sendIdentity(conn, now); err != nil {
			_ = conn.Close()
			return err
		}
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return jerr.Wrap(jerr.HandshakeFailed, "read identity frame", err)
	}
	msg, err := wire.Decode(data, now, wire.DefaultMaxSkew)
	if err != nil || msg.Kind != wire.KindIdentity {
		_ = conn.Close()
		return jerr.New(jerr.HandshakeFailed, "expected an IDENTITY frame")
	}
	if err := VerifyHandshake(msg, now); err != nil {
		_ = conn.Close()
		return err
	}

	if !initiator {
		if err := m.sendIdentity(conn, now); err != nil {
			_ = conn.Close()
			return err
		}
	}

	peer := newPeer(conn, address, func(frame []byte) {
		if m.onFrame != nil {
			m.onFrame(msg.Sender, frame)
		}
	}, func() {
		m.mu.Lock()
		delete(m.peers, msg.Sender)
		m.mu.Unlock()
		if m.onPeer != nil {
			m.onPeer(msg.Sender, address, false)
		}
	}, m.buildHeartbeatFrame)
	peer.PublicKeyHex = msg.Sender

	m.mu.Lock()
	m.peers[msg.Sender] = peer
	m.mu.Unlock()
	if m.onPeer != nil {
		m.onPeer(msg.Sender, address, true)
	}
	return nil
}

func (m *Manager) sendIdentity(conn *websocket.Conn, now time.Time) error {
	payload := identityPayload{NodeID: crypto.IDFromPubkey(m.self.Public), Timestamp: now.UnixMilli()}
	msg, err := wire.Sign(wire.KindIdentity, m.self.Public, m.self.Secret, payload)
	if err != nil {
		return err
	}
	frame, err := wire.Encode(msg, now)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(now.Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return jerr.Wrap(jerr.HandshakeFailed, "write identity frame", err)
	}
	return nil
}

// SuperviseSeed keeps address connected: on disconnect (or initial
// dial failure) it retries with exponential backoff plus jitter,
// capped at reconnectMaxDelay, until Stop is called.
func (m *Manager) SuperviseSeed(address string) {
	delay := reconnectBaseDelay
	for {
		select {
		case <-m.stopped:
			return
		default:
		}

		err := m.Dial(address)
		if err == nil {
			delay = reconnectBaseDelay
			m.waitWhileConnected(address)
			continue
		}

		jitter := time.Duration(rand.Int63n(int64(delay) + 1))
		wait := delay + jitter
		if wait > reconnectMaxDelay {
			wait = reconnectMaxDelay
		}
		select {
		case <-m.stopped:
			return
		case <-time.After(wait):
		}
		if delay < reconnectMaxDelay {
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
		}
	}
}

// waitWhileConnected blocks until the session to address drops or
// Stop is called, polling lightly since sessions notify disconnect
// asynchronously via onPeer rather than a per-address channel.
func (m *Manager) waitWhileConnected(address string) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopped:
			return
		case <-ticker.C:
			if !m.hasSessionFor(address) {
				return
			}
		}
	}
}

func (m *Manager) hasSessionFor(address string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.peers {
		if p.Address == address {
			return true
		}
	}
	return false
}

// Stop closes every session and halts any seed-peer supervisors.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopped) })
	// Collect under the lock, close outside it: each Peer's disconnect
	// callback takes m.mu itself to remove the session.
	m.mu.RLock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.RUnlock()
	for _, p := range peers {
		p.Close()
	}
}
