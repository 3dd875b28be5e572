package peer

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/voidphone/gossip/pkg/gossip/wire"
)

// handlePeerDiscover replies with a comma-separated address list of
// every verified peer other than the requester, excluding by (addr,
// advertised_listening_port). Sends nothing if the list would be
// empty.
func (s *Session) handlePeerDiscover() error {
	var addrs []string
	reqAddr, reqPort := s.RemoteAddr(), s.AdvertisedListeningPort()
	for _, p := range s.node.VerifiedPeers() {
		if p.ID() == s.ID() || (p.RemoteAddr() == reqAddr && p.AdvertisedListeningPort() == reqPort) {
			continue
		}
		addrs = append(addrs, p.RemoteAddr()+":"+strconv.Itoa(int(p.AdvertisedListeningPort())))
	}
	if len(addrs) == 0 {
		return nil
	}
	b := &wire.Broadcast{Addresses: addrs}
	return s.writeFrame(wire.PeerBroadcast, b.Encode())
}

// handlePeerBroadcast dials each address not already known and not
// ourself as a new outbound peer.
func (s *Session) handlePeerBroadcast(payload []byte) error {
	b, err := wire.DecodeBroadcast(payload)
	if err != nil {
		return wire.NewProtocolError(wire.ErrMalformedFrame, "decoding PEER_BROADCAST", err)
	}

	for _, entry := range b.Addresses {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == s.cfg.OwnP2PAddress {
			continue
		}

		addr, portStr, err := splitHostPortLenient(entry)
		if err != nil {
			s.log.Debug("ignoring malformed broadcast entry", zap.String("entry", entry), zap.Error(err))
			continue
		}
		port, err := parsePort(portStr)
		if err != nil {
			s.log.Debug("ignoring malformed broadcast entry", zap.String("entry", entry), zap.Error(err))
			continue
		}
		if s.node.PeerExists(addr, port) {
			continue
		}

		s.hooks.DialNewPeer(entry)
	}
	return nil
}

func splitHostPortLenient(entry string) (host, port string, err error) {
	idx := strings.LastIndex(entry, ":")
	if idx < 0 {
		return "", "", wire.NewProtocolError(wire.ErrMalformedFrame, "broadcast entry missing port", nil)
	}
	return entry[:idx], entry[idx+1:], nil
}
