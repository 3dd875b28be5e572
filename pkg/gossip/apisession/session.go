// Package apisession implements the local API-client session handler:
// GOSSIP_ANNOUNCE, GOSSIP_NOTIFY, and GOSSIP_VALIDATION.
package apisession

import (
	"bufio"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voidphone/gossip/internal/metrics"
	"github.com/voidphone/gossip/pkg/gossip/peer"
	"github.com/voidphone/gossip/pkg/gossip/state"
	"github.com/voidphone/gossip/pkg/gossip/wire"
)

// Session is one local API client's connection handler.
type Session struct {
	id   string
	conn net.Conn

	node *state.Node
	log  *zap.Logger

	writeMu   sync.Mutex
	w         *bufio.Writer
	closeOnce sync.Once
}

// New wraps conn as an API session, registering it with node. The
// caller must run the returned session's Run method.
func New(conn net.Conn, node *state.Node, log *zap.Logger) *Session {
	s := &Session{
		id:   uuid.NewString(),
		conn: conn,
		node: node,
		w:    bufio.NewWriter(conn),
		log:  log.With(zap.String("api_addr", conn.RemoteAddr().String())),
	}
	node.RegisterAPISession(s)
	return s
}

// ID satisfies state.APISession.
func (s *Session) ID() string { return s.id }

// SendNotification satisfies state.APISession: writes a
// GOSSIP_NOTIFICATION.
func (s *Session) SendNotification(n *wire.Notification) error {
	return s.writeFrame(wire.GossipNotification, n.Encode())
}

func (s *Session) writeFrame(typ uint16, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wire.WriteFrame(s.w, typ, payload)
}

// Close tears the session down: unregisters from node state, then
// closes the underlying stream. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.node.UnregisterAPISession(s)
		_ = s.conn.Close()
	})
}

// Run drives the session's read loop until a protocol or I/O error
// occurs, then tears the session down.
func (s *Session) Run() {
	defer s.Close()
	for {
		f, err := wire.ReadFrame(s.conn, wire.RoleAPI)
		if err != nil {
			s.log.Debug("api session ending on read error", zap.Error(err))
			return
		}
		if err := s.dispatch(f); err != nil {
			s.log.Warn("api session ending", zap.Error(err))
			return
		}
	}
}

func (s *Session) dispatch(f *wire.Frame) error {
	switch f.Type {
	case wire.GossipAnnounce:
		return s.handleAnnounce(f.Payload)
	case wire.GossipNotify:
		return s.handleNotify(f.Payload)
	case wire.GossipValidation:
		return s.handleValidation(f.Payload)
	default:
		return wire.NewProtocolError(wire.ErrUnknownType, "unknown api message type", nil)
	}
}

// handleAnnounce handles GOSSIP_ANNOUNCE: locally originated announces
// bypass dedup and pending-validation tracking entirely, a deliberate
// trust choice for same-host clients, and are fanned out immediately.
func (s *Session) handleAnnounce(payload []byte) error {
	a, err := wire.DecodeAnnounce(payload)
	if err != nil {
		return wire.NewProtocolError(wire.ErrMalformedFrame, "decoding GOSSIP_ANNOUNCE", err)
	}

	notification := &wire.Notification{MessageID: 0, DataType: a.DataType, Data: a.Data}
	for _, sub := range s.node.SubscribersSnapshot(a.DataType, s) {
		if err := sub.SendNotification(notification); err != nil {
			s.log.Warn("failed to deliver locally originated notification", zap.String("session", sub.ID()), zap.Error(err))
		}
	}

	peer.FanOutAnnounce(s.node, s.log, a.TTL, a.DataType, a.Data, nil)
	return nil
}

func (s *Session) handleNotify(payload []byte) error {
	n, err := wire.DecodeNotify(payload)
	if err != nil {
		return wire.NewProtocolError(wire.ErrMalformedFrame, "decoding GOSSIP_NOTIFY", err)
	}
	s.node.Subscribe(s, n.DataType)
	return nil
}

// handleValidation handles GOSSIP_VALIDATION: an invalid vote evicts
// the pending message's source peer; the last valid vote fans the
// message back out to every verified peer except the source.
func (s *Session) handleValidation(payload []byte) error {
	v, err := wire.DecodeValidation(payload)
	if err != nil {
		return wire.NewProtocolError(wire.ErrMalformedFrame, "decoding GOSSIP_VALIDATION", err)
	}

	awaited, found := s.node.IsAwaiting(v.MessageID, s)
	if !found {
		s.log.Debug("validation for unknown or already-resolved message id", zap.Uint16("message_id", v.MessageID))
		return nil
	}
	if !awaited {
		return wire.NewProtocolError(wire.ErrUnauthorizedValidator, "validation from a session not awaited on this message", nil)
	}

	if !v.Valid() {
		if popped, found := s.node.PopPending(v.MessageID); found {
			metrics.PeerEvictions.WithLabelValues("invalid_validation").Inc()
			popped.Source.Close()
		}
		return nil
	}

	pv, becameEmpty, found := s.node.RemoveAwaiting(v.MessageID, s)
	if !found || !becameEmpty {
		return nil
	}
	peer.FanOutAnnounce(s.node, s.log, pv.TTL, pv.DataType, pv.Data, pv.Source)
	return nil
}
