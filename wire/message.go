package wire

import (
	"encoding/json"
	"time"

	"github.com/judgenet/node/crypto"
	"github.com/judgenet/node/internal/jerr"
)

// Kind is the payload_kind enum carried in every signed message.
type Kind string

const (
	KindIdentity                Kind = "IDENTITY"
	KindHeartbeat                Kind = "HEARTBEAT"
	KindPeerList                 Kind = "PEER_LIST"
	KindJudgment                 Kind = "JUDGMENT"
	KindBlockProposal             Kind = "BLOCK_PROPOSAL"
	KindVote                     Kind = "VOTE"
	KindBlockFinal                Kind = "BLOCK_FINAL"
	KindForkResolutionRequest     Kind = "FORK_RESOLUTION_REQUEST"
	KindForkResolutionResponse    Kind = "FORK_RESOLUTION_RESPONSE"
	KindCatchupRequest            Kind = "CATCHUP_REQUEST"
	KindCatchupResponse           Kind = "CATCHUP_RESPONSE"
)

// Message is a signed message: an envelope payload (`d`) plus sender
// identity and signature. sender/sig are hex strings per the wire
// frame spec.
type Message struct {
	Kind    Kind            `json:"kind"`
	Sender  string          `json:"sender"`
	Sig     string          `json:"sig"`
	Payload json.RawMessage `json:"payload"`
}

// signingBytes is the canonical, fixed-order byte concatenation signed
// over: no self-describing format, per the crypto primitives'
// canonical-hashing convention.
func signingBytes(kind Kind, sender string, payload []byte) []byte {
	buf := make([]byte, 0, len(kind)+1+len(sender)+1+len(payload))
	buf = append(buf, kind...)
	buf = append(buf, '|')
	buf = append(buf, sender...)
	buf = append(buf, '|')
	buf = append(buf, payload...)
	return buf
}

// Sign builds a signed Message from a payload struct, marshaling it
// and signing the canonical bytes with secret.
func Sign(kind Kind, pub, secret []byte, payload any) (Message, error) {
	pb, err := json.Marshal(payload)
	if err != nil {
		return Message{}, jerr.Wrap(jerr.BadFrame, "marshal payload", err)
	}
	senderHex := crypto.HexEncode(pub)
	sig, err := crypto.Sign(secret, signingBytes(kind, senderHex, pb))
	if err != nil {
		return Message{}, jerr.Wrap(jerr.BadSignature, "sign message", err)
	}
	return Message{
		Kind:    kind,
		Sender:  senderHex,
		Sig:     crypto.HexEncode(sig),
		Payload: pb,
	}, nil
}

// Verify checks a Message's signature against its embedded sender.
func Verify(m Message) crypto.Verdict {
	pub, err := crypto.HexDecode(m.Sender)
	if err != nil {
		return crypto.Invalid
	}
	sig, err := crypto.HexDecode(m.Sig)
	if err != nil {
		return crypto.Invalid
	}
	return crypto.Verify(pub, signingBytes(m.Kind, m.Sender, m.Payload), sig)
}

// ID is the gossip dedup id: hash(sender_pub ‖ payload_bytes).
func (m Message) ID() string {
	pub, err := crypto.HexDecode(m.Sender)
	if err != nil {
		pub = nil
	}
	sum := crypto.HashConcat(pub, m.Payload)
	return crypto.HexEncode(sum[:])
}

// Encode serializes m as an envelope-ready frame, signed bytes already
// baked in via Sign.
func Encode(m Message, now time.Time) ([]byte, error) {
	d, err := json.Marshal(m)
	if err != nil {
		return nil, jerr.Wrap(jerr.BadFrame, "marshal message", err)
	}
	return Serialize(d, now)
}

// Decode parses a raw frame into a Message, checking envelope validity
// but NOT the signature — callers must call Verify separately (the
// gossip layer does this before dedup, per the gossip overlay design).
func Decode(raw []byte, now time.Time, maxSkew time.Duration) (Message, error) {
	d, err := Parse(raw, now, maxSkew)
	if err != nil {
		return Message{}, err
	}
	var m Message
	if err := json.Unmarshal(d, &m); err != nil {
		return Message{}, jerr.Wrap(jerr.BadFrame, "malformed message", err)
	}
	return m, nil
}
