package peer

import (
	"go.uber.org/zap"

	"github.com/voidphone/gossip/pkg/gossip/wire"
)

// Run drives the session's read loop until a protocol or I/O error
// occurs, then tears the session down. Inbound processing is strictly
// sequential: one message is handled to completion before the next is
// read.
func (s *Session) Run() {
	defer s.Close()
	for {
		f, err := wire.ReadFrame(s.conn, wire.RolePeer)
		if err != nil {
			s.log.Debug("peer session ending on read error", zap.Error(err))
			return
		}
		if err := s.dispatch(f); err != nil {
			s.log.Warn("peer session ending", zap.Error(err))
			return
		}
	}
}

func (s *Session) dispatch(f *wire.Frame) error {
	st := s.State()

	switch f.Type {
	case wire.PeerInit:
		if s.role != Listener || st != AwaitInit {
			return wire.NewProtocolError(wire.ErrUnexpectedForState, "unexpected PEER_INIT", nil)
		}
		return s.handlePeerInit(f.Payload)
	case wire.PeerVerify:
		if s.role != Dialer || st != AwaitVerify {
			return wire.NewProtocolError(wire.ErrUnexpectedForState, "unexpected PEER_VERIFY", nil)
		}
		return s.handlePeerVerify(f.Payload)
	case wire.PeerOK:
		if s.role != Listener || st != AwaitOk {
			return wire.NewProtocolError(wire.ErrUnexpectedForState, "unexpected PEER_OK", nil)
		}
		return s.handlePeerOK()
	case wire.PeerAnnounce:
		if st != Validated {
			return wire.NewProtocolError(wire.ErrUnexpectedForState, "PEER_ANNOUNCE before validation", nil)
		}
		return s.handlePeerAnnounce(f.Payload)
	case wire.PeerDiscover:
		if st != Validated {
			return wire.NewProtocolError(wire.ErrUnexpectedForState, "PEER_DISCOVER before validation", nil)
		}
		return s.handlePeerDiscover()
	case wire.PeerBroadcast:
		if st != Validated {
			return wire.NewProtocolError(wire.ErrUnexpectedForState, "PEER_BROADCAST before validation", nil)
		}
		return s.handlePeerBroadcast(f.Payload)
	default:
		return wire.NewProtocolError(wire.ErrUnknownType, "unknown peer message type", nil)
	}
}
