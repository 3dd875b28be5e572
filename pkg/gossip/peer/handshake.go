package peer

import (
	"time"

	"go.uber.org/zap"

	"github.com/voidphone/gossip/pkg/gossip/pow"
	"github.com/voidphone/gossip/pkg/gossip/wire"
)

// handlePeerInit is the listener's reaction to PEER_INIT: it is the
// prover, and must solve the proof of work over the received challenge
// and its own advertised listening port, then send PEER_VERIFY.
func (s *Session) handlePeerInit(payload []byte) error {
	init, err := wire.DecodeInit(payload)
	if err != nil {
		return wire.NewProtocolError(wire.ErrMalformedFrame, "decoding PEER_INIT", err)
	}

	nonce := pow.Solve(init.Challenge, s.cfg.OwnListeningPort, s.cfg.ChallengeDifficulty)

	s.mu.Lock()
	s.advertisedListeningPort = s.cfg.OwnListeningPort
	s.st = AwaitOk
	s.mu.Unlock()

	verify := &wire.Verify{ListeningPort: s.cfg.OwnListeningPort, Nonce: nonce}
	if err := s.writeFrame(wire.PeerVerify, verify.Encode()); err != nil {
		return err
	}
	s.log.Info("solved proof of work, sent PEER_VERIFY")
	return nil
}

// handlePeerVerify is the dialer's reaction to PEER_VERIFY: verify the
// deadline and the proof of work, then admit the peer.
func (s *Session) handlePeerVerify(payload []byte) error {
	verify, err := wire.DecodeVerify(payload)
	if err != nil {
		return wire.NewProtocolError(wire.ErrMalformedFrame, "decoding PEER_VERIFY", err)
	}

	s.mu.Lock()
	challenge := s.challengeSent
	deadline := s.challengeDeadline
	s.mu.Unlock()

	if challenge == nil {
		return wire.NewProtocolError(wire.ErrUnexpectedForState, "PEER_VERIFY with no outstanding challenge", nil)
	}
	if time.Now().After(deadline) {
		return wire.NewProtocolError(wire.ErrHandshakeTimeout, "PEER_VERIFY after challenge deadline", nil)
	}
	if !pow.Verify(*challenge, verify.Nonce, verify.ListeningPort, s.cfg.ChallengeDifficulty) {
		return wire.NewProtocolError(wire.ErrWeakProofOfWork, "proof of work below required difficulty", nil)
	}

	s.mu.Lock()
	s.advertisedListeningPort = verify.ListeningPort
	s.validated = true
	s.st = Validated
	s.mu.Unlock()

	s.node.MoveToVerified(s)

	if err := s.writeFrame(wire.PeerOK, nil); err != nil {
		return err
	}
	s.log.Info("peer admitted", zap.Uint16("listening_port", verify.ListeningPort))
	return nil
}

// handlePeerOK is the listener's reaction to PEER_OK: admit the peer.
// Rejected if this session was itself the challenger (challenge_sent
// non-nil), which only happens for a dialer-role session that should
// never receive this message.
func (s *Session) handlePeerOK() error {
	s.mu.Lock()
	wasChallenger := s.challengeSent != nil
	s.mu.Unlock()
	if wasChallenger {
		return wire.NewProtocolError(wire.ErrUnexpectedForState, "PEER_OK received by the challenger", nil)
	}

	s.mu.Lock()
	s.validated = true
	s.st = Validated
	s.mu.Unlock()

	s.node.MoveToVerified(s)
	s.log.Info("peer admitted")
	return nil
}
