// Package jerr defines the closed set of error kinds the node reports
// across its embedder boundary. Every error surfaced to a caller wraps
// one of these kinds so callers can dispatch on errors.Is without
// string matching.
package jerr

import "errors"

// Kind is one of the testable error kinds from the error handling design.
type Kind string

const (
	BadFrame               Kind = "bad_frame"
	BadSignature           Kind = "bad_signature"
	StaleOrSkewedTimestamp Kind = "stale_or_skewed_timestamp"
	UnknownSender          Kind = "unknown_sender"
	HandshakeFailed        Kind = "handshake_failed"
	PeerUnreachable        Kind = "peer_unreachable"
	PeerOverloadDrop       Kind = "peer_overload_drop"
	ChainIntegrityViolation Kind = "chain_integrity_violation"
	SlotMismatch           Kind = "slot_mismatch"
	EquivocationDetected   Kind = "equivocation_detected"
	ProposalTimeout        Kind = "proposal_timeout"
	ForkUnresolvable       Kind = "fork_unresolvable"
	ValidatorUnknown       Kind = "validator_unknown"
	StoreBackendUnavailable Kind = "store_backend_unavailable"
	Cancelled              Kind = "cancelled"
)

// sentinel is the base error each Kind wraps, so errors.Is(err, ForKind(k))
// works regardless of the human-readable context glued on by New.
type sentinel struct{ kind Kind }

func (s *sentinel) Error() string { return string(s.kind) }

var sentinels = map[Kind]*sentinel{}

func init() {
	for _, k := range []Kind{
		BadFrame, BadSignature, StaleOrSkewedTimestamp, UnknownSender,
		HandshakeFailed, PeerUnreachable, PeerOverloadDrop,
		ChainIntegrityViolation, SlotMismatch, EquivocationDetected,
		ProposalTimeout, ForkUnresolvable, ValidatorUnknown,
		StoreBackendUnavailable, Cancelled,
	} {
		sentinels[k] = &sentinel{kind: k}
	}
}

// ForKind returns the sentinel error for kind, suitable for errors.Is.
func ForKind(kind Kind) error { return sentinels[kind] }

// wrapped carries human-facing context (e.g. slot/peer) alongside kind.
type wrapped struct {
	kind    Kind
	context string
	cause   error
}

func (w *wrapped) Error() string {
	if w.context == "" {
		return string(w.kind)
	}
	return string(w.kind) + ": " + w.context
}

func (w *wrapped) Unwrap() error {
	if w.cause != nil {
		return w.cause
	}
	return sentinels[w.kind]
}

func (w *wrapped) Is(target error) bool { return target == sentinels[w.kind] }

// New builds an error of kind with a human message containing the
// kind and slot/peer context, per the error handling design's
// "structured event + a human message" rule.
func New(kind Kind, context string) error {
	return &wrapped{kind: kind, context: context}
}

// Wrap attaches kind to an underlying cause, preserving it for Unwrap.
func Wrap(kind Kind, context string, cause error) error {
	return &wrapped{kind: kind, context: context, cause: cause}
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, sentinels[kind])
}
