// Package server orchestrates every module of a gossip relay node:
// the peer listener, the API listener, and the discovery loop, all
// sharing one state.Node.
package server

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voidphone/gossip/internal/gconfig"
	"github.com/voidphone/gossip/pkg/gossip/apisession"
	"github.com/voidphone/gossip/pkg/gossip/discovery"
	"github.com/voidphone/gossip/pkg/gossip/peer"
	"github.com/voidphone/gossip/pkg/gossip/state"
)

// Server is a running gossip relay node.
type Server struct {
	cfg *gconfig.Config
	log *zap.Logger

	node       *state.Node
	peerCfg    peer.Config
	discovery  *discovery.Loop
	peerDialer interface {
		Dial(addr string) error
		DialNewPeer(addr string)
	}

	peerLn net.Listener
	apiLn  net.Listener
}

// New builds a Server from a validated configuration.
func New(cfg *gconfig.Config, log *zap.Logger) *Server {
	node := state.NewNode(cfg.Gossip.Degree, cfg.Gossip.CacheSize)

	peerCfg := peer.Config{
		ChallengeTimeout:    time.Duration(cfg.Gossip.ChallengeTimeout) * time.Second,
		ChallengeDifficulty: cfg.Gossip.ChallengeDifficulty,
		OwnP2PAddress:       cfg.Gossip.P2PAddress,
	}
	if _, portStr, err := net.SplitHostPort(cfg.Gossip.P2PAddress); err == nil {
		if p, err := parsePort(portStr); err == nil {
			peerCfg.OwnListeningPort = p
		}
	}

	dialer := discovery.NewPeerDialer(node, peerCfg, time.Duration(cfg.Gossip.DiscoveryCooldown)*time.Second, log)
	loop := discovery.New(node, dialer, time.Duration(cfg.Gossip.DiscoveryCooldown)*time.Second, cfg.Gossip.Degree, log)

	return &Server{
		cfg:        cfg,
		log:        log,
		node:       node,
		peerCfg:    peerCfg,
		discovery:  loop,
		peerDialer: dialer,
	}
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	return uint16(v), err
}

// Run binds both listeners, starts the discovery loop, and blocks
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	peerLn, err := net.Listen("tcp", s.cfg.Gossip.P2PAddress)
	if err != nil {
		return err
	}
	s.peerLn = peerLn

	apiLn, err := net.Listen("tcp", s.cfg.Gossip.APIAddress)
	if err != nil {
		_ = peerLn.Close()
		return err
	}
	s.apiLn = apiLn

	s.log.Info("gossip node starting",
		zap.String("p2p_address", s.cfg.Gossip.P2PAddress),
		zap.String("api_address", s.cfg.Gossip.APIAddress),
		zap.Int("degree", s.cfg.Gossip.Degree),
		zap.Int("cache_size", s.cfg.Gossip.CacheSize),
	)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		s.discovery.Run(ctx, s.cfg.Gossip.Bootstrapper)
	}()
	go func() {
		defer wg.Done()
		s.acceptPeers(ctx)
	}()
	go func() {
		defer wg.Done()
		s.acceptAPI(ctx)
	}()

	<-ctx.Done()
	_ = s.peerLn.Close()
	_ = s.apiLn.Close()
	wg.Wait()
	return nil
}

func (s *Server) acceptPeers(ctx context.Context) {
	for {
		conn, err := s.peerLn.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("peer accept failed", zap.Error(err))
			continue
		}
		sess := peer.Accept(conn, s.node, s.peerCfg, s.log, s.peerDialer)
		go sess.Run()
	}
}

func (s *Server) acceptAPI(ctx context.Context) {
	for {
		conn, err := s.apiLn.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("api accept failed", zap.Error(err))
			continue
		}
		sess := apisession.New(conn, s.node, s.log)
		go sess.Run()
	}
}
