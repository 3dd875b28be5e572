// Package discovery drives the peer-discovery loop: a one-shot
// bootstrap dial at startup followed by periodic PEER_DISCOVER fan-out
// while the verified set is below degree.
package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voidphone/gossip/pkg/gossip/peer"
	"github.com/voidphone/gossip/pkg/gossip/state"
)

// Dialer is the subset of peer.Dial this package needs, so tests can
// substitute a fake without opening real sockets.
type Dialer interface {
	Dial(addr string) error
}

// Loop owns the periodic discovery ticker and the bootstrap dial.
type Loop struct {
	node     *state.Node
	dialer   Dialer
	cooldown time.Duration
	degree   int
	log      *zap.Logger
}

// New builds a discovery Loop from the `discovery_cooldown` and
// `degree` configuration values.
func New(node *state.Node, dialer Dialer, cooldown time.Duration, degree int, log *zap.Logger) *Loop {
	return &Loop{
		node:     node,
		dialer:   dialer,
		cooldown: cooldown,
		degree:   degree,
		log:      log,
	}
}

// Run performs the one-shot bootstrap dial (if bootstrapAddr is
// non-empty), then runs the periodic discovery round every cooldown
// until ctx is cancelled.
func (l *Loop) Run(ctx context.Context, bootstrapAddr string) {
	if bootstrapAddr != "" {
		if err := l.dialer.Dial(bootstrapAddr); err != nil {
			l.log.Warn("bootstrap dial failed", zap.String("addr", bootstrapAddr), zap.Error(err))
		}
	}

	ticker := time.NewTicker(l.cooldown)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.round()
		}
	}
}

// round sends PEER_DISCOVER to every verified peer concurrently, but
// only when the verified set has room to grow; a full verified set
// never needs more candidates.
func (l *Loop) round() {
	if l.node.VerifiedCount() >= l.degree {
		return
	}

	peers := l.node.VerifiedPeers()
	var wg sync.WaitGroup
	for _, p := range peers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.SendDiscover(); err != nil {
				l.log.Warn("discover send failed", zap.String("peer", p.ID()), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

// peerDialer adapts peer.Dial into the Dialer interface New expects,
// wiring newly discovered addresses straight into the peer session
// machinery. It also guards PEER_BROADCAST-triggered dials against
// redialing an address within the same cooldown window (see
// dedupe.go).
type peerDialer struct {
	node   *state.Node
	cfg    peer.Config
	log    *zap.Logger
	run    func(s *peer.Session)
	offers *recentOffers
}

// NewPeerDialer builds the production Dialer used by cmd/gossipd: each
// dial spawns the session's Run loop in its own goroutine.
func NewPeerDialer(node *state.Node, cfg peer.Config, cooldown time.Duration, log *zap.Logger) *peerDialer {
	return &peerDialer{
		node:   node,
		cfg:    cfg,
		log:    log,
		run:    func(s *peer.Session) { s.Run() },
		offers: newRecentOffers(cooldown),
	}
}

// DialNewPeer satisfies peer.DiscoveryHooks: a session handling
// PEER_BROADCAST calls this for each newly learned address not already
// matching an existing peer. A second broadcast naming the same
// address within the cooldown window (e.g. two peers answering
// PEER_DISCOVER with overlapping lists in the same round) is skipped
// rather than opening a second redundant outbound dial.
func (d *peerDialer) DialNewPeer(addr string) {
	if d.offers.seenRecently(addr) {
		return
	}
	if err := d.Dial(addr); err != nil {
		d.log.Warn("broadcast-triggered dial failed", zap.String("addr", addr), zap.Error(err))
	}
}

// Dial satisfies the Dialer interface used by Loop.
func (d *peerDialer) Dial(addr string) error {
	s, err := peer.Dial(addr, d.node, d.cfg, d.log, d)
	if err != nil {
		return err
	}
	go d.run(s)
	return nil
}
