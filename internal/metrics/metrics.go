// Package metrics registers this node's Prometheus gauges/counters and
// serves them over HTTP: package-level collector vars, registered once
// in init().
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	VerifiedPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gossip",
		Name:      "verified_peers",
		Help:      "Current number of verified peer connections.",
	})
	UnverifiedPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gossip",
		Name:      "unverified_peers",
		Help:      "Current number of in-handshake peer connections.",
	})
	APISessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gossip",
		Name:      "api_sessions",
		Help:      "Current number of connected API client sessions.",
	})
	AnnouncesFlooded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gossip",
		Name:      "announces_flooded_total",
		Help:      "Total PEER_ANNOUNCE messages flooded to the mesh, by origin.",
	}, []string{"origin"})
	AnnouncesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gossip",
		Name:      "announces_dropped_total",
		Help:      "Total PEER_ANNOUNCE messages dropped, by reason.",
	}, []string{"reason"})
	PeerEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gossip",
		Name:      "peer_evictions_total",
		Help:      "Total peer sessions torn down, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		VerifiedPeers,
		UnverifiedPeers,
		APISessions,
		AnnouncesFlooded,
		AnnouncesDropped,
		PeerEvictions,
	)
}

// Serve binds a /metrics endpoint at addr and runs until ctx is
// cancelled. Empty addr disables the endpoint entirely.
func Serve(ctx context.Context, addr string, log *zap.Logger) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("metrics server exited", zap.Error(err))
			return err
		}
		return nil
	}
}
