// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire implements the frame envelope and compact codec that
// every peer-to-peer message travels in: {v, t, d, c}. See
// codec/codec.go in the teacher repo for the JSON-versioned-codec
// shape this generalizes.
package wire

import (
	"encoding/json"
	"time"

	"github.com/judgenet/node/crypto"
	"github.com/judgenet/node/internal/jerr"
)

// CurrentVersion is the only accepted envelope version.
const CurrentVersion = 1

// MaxFrameSize caps a serialized envelope at 1 MiB.
const MaxFrameSize = 1 << 20

// DefaultMaxSkew is the allowed drift between a sender's timestamp and
// the receiver's clock.
const DefaultMaxSkew = 5 * time.Minute

// Envelope is the wire frame. Field names are lowercase single letters
// on the wire to match the bit-exact frame spec.
type Envelope struct {
	V uint8           `json:"v"`
	T int64           `json:"t"`
	D json.RawMessage `json:"d"`
	C string          `json:"c"`
}

// checksum8 returns the 8 lowercase hex char checksum of payload.
func checksum8(payload []byte) string {
	sum := crypto.HashPayload(payload)
	return crypto.HexEncode(sum[:])[:8]
}

// Serialize wraps payload (already-marshaled `d` bytes) into a
// checksummed, timestamped envelope and marshals it.
func Serialize(payload []byte, now time.Time) ([]byte, error) {
	env := Envelope{
		V: CurrentVersion,
		T: now.UnixMilli(),
		D: json.RawMessage(payload),
		C: checksum8(payload),
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, jerr.Wrap(jerr.BadFrame, "marshal envelope", err)
	}
	if len(b) > MaxFrameSize {
		return nil, jerr.New(jerr.BadFrame, "frame exceeds max size")
	}
	return b, nil
}

// Parse validates and unwraps a raw frame, returning the inner `d`
// payload bytes. now and maxSkew gate the timestamp check; pass
// maxSkew<=0 to use DefaultMaxSkew.
func Parse(raw []byte, now time.Time, maxSkew time.Duration) (json.RawMessage, error) {
	if len(raw) > MaxFrameSize {
		return nil, jerr.New(jerr.BadFrame, "frame exceeds max size")
	}
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, jerr.Wrap(jerr.BadFrame, "malformed envelope", err)
	}
	if env.V != CurrentVersion {
		return nil, jerr.New(jerr.BadFrame, "unsupported version")
	}
	if len(env.D) == 0 || env.C == "" {
		return nil, jerr.New(jerr.BadFrame, "missing required field")
	}

	sent := time.UnixMilli(env.T)
	skew := now.Sub(sent)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return nil, jerr.New(jerr.StaleOrSkewedTimestamp, "timestamp outside allowed skew")
	}

	if checksum8(env.D) != env.C {
		return nil, jerr.New(jerr.BadFrame, "checksum_mismatch")
	}

	return env.D, nil
}
