package peer

import (
	"go.uber.org/zap"

	"github.com/voidphone/gossip/internal/metrics"
	"github.com/voidphone/gossip/pkg/gossip/state"
	"github.com/voidphone/gossip/pkg/gossip/wire"
)

// handlePeerAnnounce handles dedup, subscriber fan-out, and
// pending-validation bookkeeping for a flooded announce.
func (s *Session) handlePeerAnnounce(payload []byte) error {
	a, err := wire.DecodeAnnounce(payload)
	if err != nil {
		return wire.NewProtocolError(wire.ErrMalformedFrame, "decoding PEER_ANNOUNCE", err)
	}

	subs := s.node.SubscribersSnapshot(a.DataType, nil)
	if len(subs) == 0 {
		s.log.Debug("dropping announce, no subscribers", zap.Uint16("data_type", a.DataType))
		metrics.AnnouncesDropped.WithLabelValues("no_subscribers").Inc()
		return nil
	}

	if s.node.CheckAndMarkSeen(a.FingerprintTail()) {
		s.log.Debug("dropping duplicate announce", zap.Uint16("data_type", a.DataType))
		metrics.AnnouncesDropped.WithLabelValues("duplicate").Inc()
		return nil
	}

	id, err := s.node.NewMessageID()
	if err != nil {
		return wire.NewProtocolError(wire.ErrIO, "allocating message id", err)
	}

	if a.TTL != 1 {
		ttl := a.TTL
		if ttl > 1 {
			ttl--
		}
		awaiting := make(map[string]state.APISession, len(subs))
		for _, sub := range subs {
			awaiting[sub.ID()] = sub
		}
		s.node.AddPending(id, &state.PendingValidation{
			TTL:      ttl,
			DataType: a.DataType,
			Data:     a.Data,
			Source:   s,
			Awaiting: awaiting,
		})
	}

	notification := &wire.Notification{MessageID: id, DataType: a.DataType, Data: a.Data}
	for _, sub := range subs {
		if err := sub.SendNotification(notification); err != nil {
			s.log.Warn("failed to deliver notification", zap.String("session", sub.ID()), zap.Error(err))
		}
	}
	return nil
}

// FanOutAnnounce re-floods a PEER_ANNOUNCE to every verified peer except
// except (the original source, or nil for locally originated
// announces). Write failures to individual peers are logged and do not
// abort the fan-out.
func FanOutAnnounce(node *state.Node, log *zap.Logger, ttl uint8, dataType uint16, data []byte, except state.PeerSession) {
	origin := "relayed"
	if except == nil {
		origin = "local"
	}
	a := &wire.Announce{TTL: ttl, DataType: dataType, Data: data}
	for _, p := range node.VerifiedPeers() {
		if except != nil && p.ID() == except.ID() {
			continue
		}
		if err := p.SendAnnounce(a); err != nil {
			log.Warn("failed to flood announce to peer", zap.String("peer", p.ID()), zap.Error(err))
			continue
		}
		metrics.AnnouncesFlooded.WithLabelValues(origin).Inc()
	}
}
