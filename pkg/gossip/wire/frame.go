package wire

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Role distinguishes the minimum frame size a session enforces: the API
// port requires room for at least a message id/reserved+data_type-shaped
// payload, the peer port only the bare type field.
type Role int

const (
	// RolePeer is a remote peer session; minimum frame size 4.
	RolePeer Role = iota
	// RoleAPI is a local API client session; minimum frame size 8.
	RoleAPI
)

func (r Role) minSize() uint16 {
	if r == RoleAPI {
		return 8
	}
	return 4
}

// MaxFrameSize is the largest frame size a size:u16-be header can express.
const MaxFrameSize = 65535

// Frame is a decoded `size || type || payload` unit, with size already
// validated and stripped.
type Frame struct {
	Type    uint16
	Payload []byte
}

// ReadFrame reads exactly one frame from r, enforcing the role's minimum
// frame size and the protocol maximum. Any short read or bound violation
// is session-fatal per spec: there is no resynchronization.
func ReadFrame(r io.Reader, role Role) (*Frame, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:2]); err != nil {
		return nil, NewProtocolError(ErrIO, "reading frame size", err)
	}
	size := binary.BigEndian.Uint16(head[:2])
	if size < role.minSize() {
		return nil, NewProtocolError(ErrMalformedFrame, "frame smaller than minimum for role", nil)
	}
	if size > MaxFrameSize {
		return nil, NewProtocolError(ErrMalformedFrame, "frame larger than maximum", nil)
	}

	rest := make([]byte, int(size)-2)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, NewProtocolError(ErrIO, "reading frame body", err)
	}

	typ := binary.BigEndian.Uint16(rest[:2])
	return &Frame{Type: typ, Payload: rest[2:]}, nil
}

// WriteFrame writes `size || type || payload` as a single write-and-flush,
// so a partial frame is never left sitting in the buffer.
func WriteFrame(w *bufio.Writer, typ uint16, payload []byte) error {
	size := uint16(4 + len(payload))
	var head [4]byte
	binary.BigEndian.PutUint16(head[0:2], size)
	binary.BigEndian.PutUint16(head[2:4], typ)

	if _, err := w.Write(head[:]); err != nil {
		return NewProtocolError(ErrIO, "writing frame header", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return NewProtocolError(ErrIO, "writing frame payload", err)
		}
	}
	if err := w.Flush(); err != nil {
		return NewProtocolError(ErrIO, "flushing frame", err)
	}
	return nil
}
