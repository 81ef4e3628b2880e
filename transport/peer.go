// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport runs one session per peer over a websocket
// connection: an Ed25519 identity handshake, a read loop that decodes
// inbound frames, a write loop draining a bounded outbound queue, and
// a heartbeat that detects a silent peer.
package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/judgenet/node/crypto"
	"github.com/judgenet/node/internal/jerr"
	"github.com/judgenet/node/wire"
)

const (
	// outboundQueueCap is the bounded mailbox size; once full, the
	// oldest pending frame is dropped to make room for the newest.
	outboundQueueCap = 256

	// handshakeReplayWindow bounds how stale an IDENTITY message's
	// timestamp may be, tighter than the general wire skew tolerance
	// since a handshake is a one-shot, replay-sensitive exchange.
	handshakeReplayWindow = 60 * time.Second

	heartbeatInterval = 10 * time.Second
	heartbeatTimeout  = 3 * heartbeatInterval

	readTimeout  = heartbeatTimeout
	writeTimeout = 10 * time.Second
)

// identityPayload is the IDENTITY message body.
type identityPayload struct {
	NodeID    string `json:"node_id"`
	Timestamp int64  `json:"timestamp"`
}

// heartbeatPayload is the HEARTBEAT message body: a liveness signal
// that doubles as the carrier for a peer's latest self-reported
// E-Score, per the escore.Provider peer-hint design.
type heartbeatPayload struct {
	EScore float64 `json:"e_score"`
}

// Peer is one established session with a remote node.
type Peer struct {
	conn *websocket.Conn

	PublicKeyHex string
	Address      string

	mu      sync.Mutex
	pending [][]byte
	notify  chan struct{}

	lastSeen   time.Time
	lastSeenMu sync.RWMutex

	die     chan struct{}
	dieOnce sync.Once

	onFrame        func(frame []byte)
	onDisconnected func()
	buildHeartbeat func(now time.Time) ([]byte, error)
}

// newPeer wraps an already-connected websocket session and starts its
// read/write loops. The caller must complete the identity handshake
// before relying on PublicKeyHex. buildHeartbeat, if non-nil, is called
// every heartbeatInterval to produce a signed HEARTBEAT frame; if nil,
// an unsigned websocket ping is sent instead.
func newPeer(conn *websocket.Conn, address string, onFrame func([]byte), onDisconnected func(), buildHeartbeat func(time.Time) ([]byte, error)) *Peer {
	p := &Peer{
		conn:           conn,
		Address:        address,
		notify:         make(chan struct{}, 1),
		die:            make(chan struct{}),
		onFrame:        onFrame,
		onDisconnected: onDisconnected,
		buildHeartbeat: buildHeartbeat,
	}
	p.touch(time.Now())
	conn.SetReadLimit(int64(wire.MaxFrameSize))
	go p.readLoop()
	go p.writeLoop()
	return p
}

func (p *Peer) touch(now time.Time) {
	p.lastSeenMu.Lock()
	p.lastSeen = now
	p.lastSeenMu.Unlock()
}

// LastSeen returns the last time a frame (including a heartbeat) was
// received from this peer.
func (p *Peer) LastSeen() time.Time {
	p.lastSeenMu.RLock()
	defer p.lastSeenMu.RUnlock()
	return p.lastSeen
}

// Stale reports whether this peer has been silent past heartbeatTimeout.
func (p *Peer) Stale(now time.Time) bool {
	return now.Sub(p.LastSeen()) > heartbeatTimeout
}

// Enqueue appends frame to the outbound mailbox, dropping the oldest
// pending frame first if the mailbox is already full.
func (p *Peer) Enqueue(frame []byte) {
	p.mu.Lock()
	if len(p.pending) >= outboundQueueCap {
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, frame)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Close terminates the session exactly once.
func (p *Peer) Close() {
	p.dieOnce.Do(func() {
		_ = p.conn.Close()
		close(p.die)
		if p.onDisconnected != nil {
			p.onDisconnected()
		}
	})
}

func (p *Peer) readLoop() {
	defer p.Close()
	for {
		select {
		case <-p.die:
			return
		default:
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		p.touch(time.Now())
		if p.onFrame != nil {
			p.onFrame(data)
		}
	}
}

func (p *Peer) writeLoop() {
	defer p.Close()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.die:
			return
		case <-ticker.C:
			p.flushHeartbeat()
		case <-p.notify:
			p.flushPending()
		}
	}
}

func (p *Peer) flushPending() {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, frame := range batch {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

// flushHeartbeat sends a signed HEARTBEAT frame as an ordinary text
// message, so it arrives through the same readLoop/onFrame path as
// every other message and touches lastSeen like any other traffic —
// an unsigned websocket ping is invisible to that path, since gorilla's
// default ping handler answers it without surfacing it to ReadMessage.
func (p *Peer) flushHeartbeat() {
	if p.buildHeartbeat == nil {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = p.conn.WriteMessage(websocket.PingMessage, nil)
		return
	}
	frame, err := p.buildHeartbeat(time.Now())
	if err != nil {
		return
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = p.conn.WriteMessage(websocket.TextMessage, frame)
}

// VerifyHandshake checks an inbound IDENTITY message: signature valid,
// timestamp within the replay window, and the claimed node_id matches
// the hash of the sender's public key.
func VerifyHandshake(m wire.Message, now time.Time) error {
	if wire.Verify(m) != crypto.Valid {
		return jerr.New(jerr.HandshakeFailed, "identity message failed signature verification")
	}
	pub, err := crypto.HexDecode(m.Sender)
	if err != nil {
		return jerr.New(jerr.HandshakeFailed, "malformed sender public key")
	}

	var payload identityPayload
	if err := decodeJSON(m.Payload, &payload); err != nil {
		return jerr.New(jerr.HandshakeFailed, "malformed identity payload")
	}
	ts := time.UnixMilli(payload.Timestamp)
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > handshakeReplayWindow {
		return jerr.New(jerr.StaleOrSkewedTimestamp, "identity handshake timestamp outside replay window")
	}
	if payload.NodeID != crypto.IDFromPubkey(pub) {
		return jerr.New(jerr.UnknownSender, "claimed node_id does not match sender public key")
	}
	return nil
}
