// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gossip implements the limited-flood broadcast overlay: every
// inbound message is signature-checked, deduped against a short TTL
// window, and re-broadcast to every other known peer.
package gossip

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/judgenet/node/crypto"
	"github.com/judgenet/node/internal/jerr"
	"github.com/judgenet/node/wire"
)

// dedupTTL is the window a message id is remembered for, matching the
// "message_id -> first-seen timestamp, sized for a 60 s gossip window"
// requirement.
const dedupTTL = 60 * time.Second

const dedupCapacity = 4096

// Sender delivers an already-encoded frame to a single peer.
type Sender interface {
	Send(peerPubkeyHex string, frame []byte) error
}

// PeerLister exposes the current gossip fan-out set.
type PeerLister interface {
	Peers() []string
}

// Overlay is the broadcast layer. It holds no peer connections itself;
// it is handed a Sender/PeerLister (the transport layer, §C3) and only
// does dedup + verify + fan-out.
type Overlay struct {
	seen   *lru.LRU[string, struct{}]
	sender Sender
	peers  PeerLister
	onDrop func(reason string)
}

// NewOverlay builds an Overlay backed by sender/peers for delivery.
// onDrop, if non-nil, is called with a short reason whenever an
// inbound or outbound message is discarded (for metrics).
func NewOverlay(sender Sender, peers PeerLister, onDrop func(reason string)) *Overlay {
	return &Overlay{
		seen:   lru.NewLRU[string, struct{}](dedupCapacity, nil, dedupTTL),
		sender: sender,
		peers:  peers,
		onDrop: onDrop,
	}
}

func (o *Overlay) drop(reason string) {
	if o.onDrop != nil {
		o.onDrop(reason)
	}
}

// HandleInbound verifies msg's signature, and if it is new (not seen
// in the last dedupTTL window), re-broadcasts it to every peer other
// than fromPeer and returns true so the caller can dispatch it locally.
// A duplicate or invalid message is dropped and returns false.
func (o *Overlay) HandleInbound(fromPeer string, msg wire.Message, now time.Time) (bool, error) {
	if wire.Verify(msg) != crypto.Valid {
		o.drop("bad_signature")
		return false, jerr.New(jerr.BadSignature, "gossip message failed signature verification")
	}

	id := msg.ID()
	if _, ok := o.seen.Get(id); ok {
		o.drop("duplicate")
		return false, nil
	}
	o.seen.Add(id, struct{}{})

	frame, err := wire.Encode(msg, now)
	if err != nil {
		return true, err
	}
	o.rebroadcast(fromPeer, frame)
	return true, nil
}

// Broadcast sends a locally-originated message to every known peer and
// marks it seen so a looped-back copy from gossip never re-delivers.
func (o *Overlay) Broadcast(msg wire.Message, now time.Time) error {
	o.seen.Add(msg.ID(), struct{}{})
	frame, err := wire.Encode(msg, now)
	if err != nil {
		return err
	}
	o.rebroadcast("", frame)
	return nil
}

func (o *Overlay) rebroadcast(exclude string, frame []byte) {
	for _, p := range o.peers.Peers() {
		if p == exclude {
			continue
		}
		if err := o.sender.Send(p, frame); err != nil {
			o.drop("send_failed")
		}
	}
}
