package peer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voidphone/gossip/pkg/gossip/state"
	"github.com/voidphone/gossip/pkg/gossip/wire"
)

type fakeAPI struct {
	id   string
	sent []*wire.Notification
}

func (f *fakeAPI) ID() string { return f.id }
func (f *fakeAPI) SendNotification(n *wire.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}
func (f *fakeAPI) Close() {}

// TestDuplicateAnnounceDropped: a second PEER_ANNOUNCE carrying the
// same (data_type, data) is dropped before a message id is allocated,
// so the subscriber only ever sees one notification.
func TestDuplicateAnnounceDropped(t *testing.T) {
	log := zaptest.NewLogger(t)
	node := state.NewNode(4, 8)

	sub := &fakeAPI{id: "sub"}
	node.Subscribe(sub, 1337)

	aConn, bConn := tcpPipe(t)
	defer aConn.Close()
	defer bConn.Close()
	s := newSession(bConn, Listener, node, testConfig(7002), log, &noopHooks{})
	s.setState(Validated)

	a := &wire.Announce{TTL: 4, DataType: 1337, Data: []byte("X")}
	require.NoError(t, s.handlePeerAnnounce(a.Encode()))
	require.NoError(t, s.handlePeerAnnounce(a.Encode()))

	require.Len(t, sub.sent, 1)
}

type fakeVerifiedPeer struct {
	id        string
	announced []*wire.Announce
}

func (f *fakeVerifiedPeer) ID() string                      { return f.id }
func (f *fakeVerifiedPeer) RemoteAddr() string               { return "10.0.0.9" }
func (f *fakeVerifiedPeer) AdvertisedListeningPort() uint16 { return 9000 }
func (f *fakeVerifiedPeer) RemoteEphemeralPort() uint16     { return 9000 }
func (f *fakeVerifiedPeer) SendDiscover() error             { return nil }
func (f *fakeVerifiedPeer) Close()                          {}
func (f *fakeVerifiedPeer) SendAnnounce(a *wire.Announce) error {
	f.announced = append(f.announced, a)
	return nil
}

// TestFanOutAnnounceExcludesSourceAndKeepsTTL: every verified peer
// except the source gets the announce with the TTL passed in, unchanged;
// the per-hop decrement happens earlier, in handlePeerAnnounce.
func TestFanOutAnnounceExcludesSourceAndKeepsTTL(t *testing.T) {
	log := zaptest.NewLogger(t)
	node := state.NewNode(4, 8)

	src := &fakeVerifiedPeer{id: "source"}
	other1 := &fakeVerifiedPeer{id: "other1"}
	other2 := &fakeVerifiedPeer{id: "other2"}
	node.AddUnverified(src)
	node.MoveToVerified(src)
	node.AddUnverified(other1)
	node.MoveToVerified(other1)
	node.AddUnverified(other2)
	node.MoveToVerified(other2)

	FanOutAnnounce(node, log, 3, 1337, []byte("deadbeef"), src)

	require.Empty(t, src.announced)
	require.Len(t, other1.announced, 1)
	require.Equal(t, uint8(3), other1.announced[0].TTL)
	require.Len(t, other2.announced, 1)
}
