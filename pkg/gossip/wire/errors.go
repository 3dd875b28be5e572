// Package wire implements the gossip relay's wire protocol: frame
// length-prefixing and message encoding/decoding for both the local API
// port and the peer port.
package wire

import "fmt"

// ErrKind classifies a protocol error. All kinds are session-fatal: the
// session that produced one tears itself down (see pkg/gossip/peer and
// pkg/gossip/apisession).
type ErrKind int

const (
	// ErrMalformedFrame is returned when a frame's declared size is out
	// of the bounds its role allows, or a payload is too short for the
	// fields of its message type.
	ErrMalformedFrame ErrKind = iota
	// ErrUnexpectedForState is returned when a message arrives that the
	// session's current state does not accept.
	ErrUnexpectedForState
	// ErrHandshakeTimeout is returned when a dialer's challenge deadline
	// passes before PEER_VERIFY arrives.
	ErrHandshakeTimeout
	// ErrWeakProofOfWork is returned when a PEER_VERIFY's nonce
	// does not meet the configured difficulty.
	ErrWeakProofOfWork
	// ErrUnauthorizedValidator is returned when a GOSSIP_VALIDATION
	// arrives from a session not in the awaiting set.
	ErrUnauthorizedValidator
	// ErrUnknownType is returned for a frame type not recognized by the
	// session's role.
	ErrUnknownType
	// ErrIO wraps a stream I/O failure while reading or writing a frame
	// (including the stream ending partway through a frame).
	ErrIO
)

func (k ErrKind) String() string {
	switch k {
	case ErrMalformedFrame:
		return "malformed_frame"
	case ErrUnexpectedForState:
		return "unexpected_for_state"
	case ErrHandshakeTimeout:
		return "handshake_timeout"
	case ErrWeakProofOfWork:
		return "weak_proof_of_work"
	case ErrUnauthorizedValidator:
		return "unauthorized_validator"
	case ErrUnknownType:
		return "unknown_type"
	case ErrIO:
		return "io_error"
	default:
		return "unknown"
	}
}

// ProtocolError is a session-fatal error tagged with its ErrKind so
// callers can log and tear down without string matching.
type ProtocolError struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError builds a ProtocolError, optionally wrapping a cause.
func NewProtocolError(kind ErrKind, msg string, cause error) *ProtocolError {
	return &ProtocolError{Kind: kind, Msg: msg, Err: cause}
}
