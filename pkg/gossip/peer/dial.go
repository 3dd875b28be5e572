package peer

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/voidphone/gossip/pkg/gossip/pow"
	"github.com/voidphone/gossip/pkg/gossip/state"
	"github.com/voidphone/gossip/pkg/gossip/wire"
)

// Dial opens an outbound connection to addr, registers it as an
// unverified peer in the dialer role, and sends PEER_INIT. The caller
// must run the returned session's Run method (in its own goroutine) to
// drive the rest of the handshake.
func Dial(addr string, node *state.Node, cfg Config, log *zap.Logger, hooks DiscoveryHooks) (*Session, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}

	s := newSession(conn, Dialer, node, cfg, log, hooks)
	// We dialed this address, so we already know its listening port:
	// it's non-null from the moment the session is created.
	if _, portStr, splitErr := net.SplitHostPort(addr); splitErr == nil {
		if p, parseErr := parsePort(portStr); parseErr == nil {
			s.mu.Lock()
			s.advertisedListeningPort = p
			s.mu.Unlock()
		}
	}

	node.AddUnverified(s)

	challenge, err := pow.RandomChallenge()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.mu.Lock()
	s.challengeSent = &challenge
	s.challengeDeadline = time.Now().Add(s.cfg.ChallengeTimeout)
	s.mu.Unlock()

	if err := s.writeFrame(wire.PeerInit, (&wire.Init{Challenge: challenge}).Encode()); err != nil {
		s.Close()
		return nil, err
	}
	s.log.Info("dialed peer, sent PEER_INIT")
	return s, nil
}

// Accept wraps an inbound connection as a listener-role session,
// registering it as unverified. The caller must run the returned
// session's Run method.
func Accept(conn net.Conn, node *state.Node, cfg Config, log *zap.Logger, hooks DiscoveryHooks) *Session {
	s := newSession(conn, Listener, node, cfg, log, hooks)
	node.AddUnverified(s)
	s.log.Info("accepted inbound peer connection")
	return s
}
