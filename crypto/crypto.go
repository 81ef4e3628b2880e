// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package crypto provides the node's signing primitives: Ed25519
// keypairs, SHA-256 hashing, and node-id derivation. Every function
// here is pure — no I/O, no global state.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// PublicKeySize and SecretKeySize match crypto/ed25519.
const (
	PublicKeySize = ed25519.PublicKeySize
	SecretKeySize = ed25519.PrivateKeySize
	SignatureSize = ed25519.SignatureSize
	HashSize      = sha256.Size
)

// idSalt domain-separates node-id derivation from any other use of
// SHA-256 over a public key.
var idSalt = []byte("judgenet-node-id-v1")

// ErrInvalidKeySize is returned by Sign and ParsePubkey when a key
// isn't the expected Ed25519 length (Verify reports Invalid instead).
var ErrInvalidKeySize = errors.New("crypto: invalid key size")

// Keypair is an Ed25519 identity. Secret is held only in process;
// persisting it is the caller's (external keystore's) job.
type Keypair struct {
	Public ed25519.PublicKey
	Secret ed25519.PrivateKey
}

// GenerateKeypair creates a fresh Ed25519 keypair.
func GenerateKeypair() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Public: pub, Secret: priv}, nil
}

// Sign signs bytes with secret, returning the raw 64-byte signature.
func Sign(secret ed25519.PrivateKey, msg []byte) ([]byte, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	return ed25519.Sign(secret, msg), nil
}

// Verdict is the outcome of a signature check. verify never panics or
// errors on malformed input — it reports Invalid instead.
type Verdict bool

const (
	Invalid Verdict = false
	Valid   Verdict = true
)

// Verify checks sig over msg under public. Malformed keys or
// signatures yield Invalid, never an error.
func Verify(public ed25519.PublicKey, msg, sig []byte) Verdict {
	if len(public) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return Invalid
	}
	return Verdict(ed25519.Verify(public, msg, sig))
}

// HashPayload returns the canonical 32-byte SHA-256 digest of bytes.
func HashPayload(b []byte) [HashSize]byte {
	return sha256.Sum256(b)
}

// HashConcat hashes the concatenation of parts in order, with no
// separator — callers that need domain separation should pass a fixed
// tag as the first part.
func HashConcat(parts ...[]byte) [HashSize]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// IDFromPubkey derives the canonical node_id: hex(SHA-256(salt ‖ pub)).
func IDFromPubkey(pub ed25519.PublicKey) string {
	sum := HashConcat(idSalt, pub)
	return hex.EncodeToString(sum[:])
}

// FormatPubkey renders a public key the way it appears on the wire:
// "ed25519:<hex>".
func FormatPubkey(pub ed25519.PublicKey) string {
	return "ed25519:" + hex.EncodeToString(pub)
}

// ParsePubkey is the inverse of FormatPubkey.
func ParsePubkey(s string) (ed25519.PublicKey, error) {
	const prefix = "ed25519:"
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return nil, errors.New("crypto: malformed pubkey string")
	}
	b, err := hex.DecodeString(s[len(prefix):])
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, ErrInvalidKeySize
	}
	return ed25519.PublicKey(b), nil
}

// HexEncode/HexDecode are the hex codec used wherever the wire format
// calls for a hex string (checksums, hashes, signatures).
func HexEncode(b []byte) string { return hex.EncodeToString(b) }

func HexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }
