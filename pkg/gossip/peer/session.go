// Package peer implements one state machine per remote peer connection:
// the admission handshake, then announce/discover dispatch once
// validated.
package peer

import (
	"bufio"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voidphone/gossip/pkg/gossip/state"
	"github.com/voidphone/gossip/pkg/gossip/wire"
)

// Role is which side of the handshake a session plays.
type Role int

const (
	// Dialer is the outbound, challenging role.
	Dialer Role = iota
	// Listener is the inbound, proving role.
	Listener
)

// SessionState is the handshake/post-handshake state machine position.
type SessionState int

const (
	AwaitInit SessionState = iota
	AwaitVerify
	AwaitOk
	Validated
	Closed
)

// Config carries the node-wide settings a peer session needs: the
// challenge timeout and difficulty, and this node's own advertised
// p2p address.
type Config struct {
	ChallengeTimeout    time.Duration
	ChallengeDifficulty int
	OwnP2PAddress       string // host:port this node advertises as its listening address
	OwnListeningPort    uint16
}

// DiscoveryHooks lets the discovery component be notified of events a
// peer session observes without this package importing discovery
// (which in turn dials peers and so must import this one).
type DiscoveryHooks interface {
	// DialNewPeer is invoked for each addr:port learned from a
	// PEER_BROADCAST that isn't already known.
	DialNewPeer(addr string)
}

// Session is one peer connection's state machine.
type Session struct {
	id   string
	conn net.Conn
	w    *bufio.Writer

	node  *state.Node
	cfg   Config
	log   *zap.Logger
	hooks DiscoveryHooks

	role Role

	remoteAddr          string
	remoteEphemeralPort uint16

	mu                      sync.Mutex
	st                      SessionState
	advertisedListeningPort uint16
	challengeSent           *uint64
	challengeDeadline       time.Time
	validated               bool

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// ID satisfies state.PeerSession.
func (s *Session) ID() string { return s.id }

// RemoteAddr satisfies state.PeerSession: the remote's IP/host, without
// port.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// RemoteEphemeralPort satisfies state.PeerSession.
func (s *Session) RemoteEphemeralPort() uint16 { return s.remoteEphemeralPort }

// AdvertisedListeningPort satisfies state.PeerSession.
func (s *Session) AdvertisedListeningPort() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertisedListeningPort
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// SendAnnounce satisfies state.PeerSession: writes a PEER_ANNOUNCE.
func (s *Session) SendAnnounce(a *wire.Announce) error {
	return s.writeFrame(wire.PeerAnnounce, a.Encode())
}

// SendDiscover writes a PEER_DISCOVER (no payload).
func (s *Session) SendDiscover() error {
	return s.writeFrame(wire.PeerDiscover, nil)
}

func (s *Session) writeFrame(typ uint16, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wire.WriteFrame(s.w, typ, payload)
}

// Close tears the session down: removes it from every registry, then
// releases the underlying stream. It is idempotent and safe to call on
// an already-closed session, since a session can end up referenced as
// a pending validation's source after it has already closed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(Closed)
		s.node.RemovePeer(s)
		_ = s.conn.Close()
	})
}

func newSession(conn net.Conn, role Role, node *state.Node, cfg Config, log *zap.Logger, hooks DiscoveryHooks) *Session {
	host, portStr, _ := net.SplitHostPort(conn.RemoteAddr().String())
	var ephemeral uint16
	if p, err := parsePort(portStr); err == nil {
		ephemeral = p
	}

	s := &Session{
		id:                  uuid.NewString(),
		conn:                conn,
		w:                   bufio.NewWriter(conn),
		node:                node,
		cfg:                 cfg,
		log:                 log.With(zap.String("peer_addr", conn.RemoteAddr().String())),
		hooks:               hooks,
		role:                role,
		remoteAddr:          host,
		remoteEphemeralPort: ephemeral,
	}
	if role == Listener {
		s.st = AwaitInit
	} else {
		s.st = AwaitVerify
	}
	return s
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
