package state

import "github.com/voidphone/gossip/pkg/gossip/wire"

// APISession is the subset of a local API client session's behavior the
// node state needs: an identity, a way to push a notification, and a
// way to tear the session down. pkg/gossip/apisession.Session satisfies
// this.
type APISession interface {
	ID() string
	SendNotification(n *wire.Notification) error
	Close()
}

// PeerSession is the subset of a remote peer session's behavior the node
// state needs. pkg/gossip/peer.Session satisfies this.
type PeerSession interface {
	ID() string
	RemoteAddr() string
	AdvertisedListeningPort() uint16
	RemoteEphemeralPort() uint16
	SendAnnounce(a *wire.Announce) error
	SendDiscover() error
	Close()
}
