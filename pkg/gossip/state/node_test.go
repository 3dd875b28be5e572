package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voidphone/gossip/pkg/gossip/wire"
)

type fakeAPI struct {
	id     string
	closed bool
	sent   []*wire.Notification
}

func (f *fakeAPI) ID() string { return f.id }
func (f *fakeAPI) SendNotification(n *wire.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}
func (f *fakeAPI) Close() { f.closed = true }

type fakePeer struct {
	id        string
	addr      string
	advPort   uint16
	ephPort   uint16
	closed    bool
	announced []*wire.Announce
}

func (f *fakePeer) ID() string                          { return f.id }
func (f *fakePeer) RemoteAddr() string                  { return f.addr }
func (f *fakePeer) AdvertisedListeningPort() uint16     { return f.advPort }
func (f *fakePeer) RemoteEphemeralPort() uint16         { return f.ephPort }
func (f *fakePeer) SendAnnounce(a *wire.Announce) error { f.announced = append(f.announced, a); return nil }
func (f *fakePeer) SendDiscover() error                 { return nil }
func (f *fakePeer) Close()                              { f.closed = true }

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id, addr: "10.0.0.1", advPort: 1000}
}

func TestVerifiedAndUnverifiedBounded(t *testing.T) {
	n := NewNode(2, 8)
	p1, p2, p3 := newFakePeer("p1"), newFakePeer("p2"), newFakePeer("p3")

	n.AddUnverified(p1)
	n.AddUnverified(p2)
	n.AddUnverified(p3) // overflow: p1 evicted

	require.Equal(t, 2, n.UnverifiedCount())
	require.True(t, p1.closed)
	require.False(t, p2.closed)
}

func TestMoveToVerifiedEvictsOldest(t *testing.T) {
	n := NewNode(2, 8)
	p1, p2, p3 := newFakePeer("p1"), newFakePeer("p2"), newFakePeer("p3")

	n.AddUnverified(p1)
	n.MoveToVerified(p1)
	n.AddUnverified(p2)
	n.MoveToVerified(p2)
	require.Equal(t, 0, n.UnverifiedCount())
	require.Equal(t, 2, n.VerifiedCount())

	n.AddUnverified(p3)
	n.MoveToVerified(p3) // overflow: p1 evicted from verified

	require.Equal(t, 2, n.VerifiedCount())
	require.True(t, p1.closed)
	ids := []string{}
	for _, p := range n.VerifiedPeers() {
		ids = append(ids, p.ID())
	}
	require.ElementsMatch(t, []string{"p2", "p3"}, ids)
}

func TestPeerAppearsInAtMostOneSet(t *testing.T) {
	n := NewNode(4, 8)
	p := newFakePeer("p1")
	n.AddUnverified(p)
	n.MoveToVerified(p)

	require.Equal(t, 0, n.UnverifiedCount())
	require.Equal(t, 1, n.VerifiedCount())
}

func TestRemovePeerSymmetric(t *testing.T) {
	n := NewNode(4, 8)
	p := newFakePeer("p1")
	n.AddUnverified(p)
	n.RemovePeer(p) // should remove cleanly even though never verified
	require.Equal(t, 0, n.UnverifiedCount())
	require.Equal(t, 0, n.VerifiedCount())

	// Removing again (e.g. a dangling source reference) must be a no-op,
	// not a panic.
	require.NotPanics(t, func() { n.RemovePeer(p) })
}

func TestSubscribeIdempotent(t *testing.T) {
	n := NewNode(4, 8)
	s := &fakeAPI{id: "s1"}
	n.RegisterAPISession(s)
	for i := 0; i < 3; i++ {
		n.Subscribe(s, 1337)
	}
	subs := n.SubscribersSnapshot(1337, nil)
	require.Len(t, subs, 1)
}

func TestUnregisterAPISessionRemovesFromSubscriptions(t *testing.T) {
	n := NewNode(4, 8)
	s1 := &fakeAPI{id: "s1"}
	s2 := &fakeAPI{id: "s2"}
	n.RegisterAPISession(s1)
	n.RegisterAPISession(s2)
	n.Subscribe(s1, 1)
	n.Subscribe(s2, 1)

	n.UnregisterAPISession(s1)

	subs := n.SubscribersSnapshot(1, nil)
	require.Len(t, subs, 1)
	require.Equal(t, "s2", subs[0].ID())
}

func TestDedupDropsRepeat(t *testing.T) {
	n := NewNode(4, 8)
	tail := []byte("hello")
	require.False(t, n.CheckAndMarkSeen(tail))
	require.True(t, n.CheckAndMarkSeen(tail))
}

func TestPendingAwaitingNeverEmptyUntilPopped(t *testing.T) {
	n := NewNode(4, 8)
	s1 := &fakeAPI{id: "s1"}
	s2 := &fakeAPI{id: "s2"}
	pv := &PendingValidation{
		TTL: 4, DataType: 1, Data: []byte("x"),
		Awaiting: map[string]APISession{"s1": s1, "s2": s2},
	}
	n.AddPending(1, pv)

	_, empty, found := n.RemoveAwaiting(1, s1)
	require.True(t, found)
	require.False(t, empty)
	got, stillThere := n.GetPending(1)
	require.True(t, stillThere)
	require.Len(t, got.Awaiting, 1)

	_, empty, found = n.RemoveAwaiting(1, s2)
	require.True(t, found)
	require.True(t, empty)
	_, stillThere = n.GetPending(1)
	require.False(t, stillThere)
}

func TestNewMessageIDNeverZeroAndUnique(t *testing.T) {
	n := NewNode(4, 8)
	seen := map[uint16]bool{}
	for i := 0; i < 200; i++ {
		id, err := n.NewMessageID()
		require.NoError(t, err)
		require.NotZero(t, id)
		n.AddPending(id, &PendingValidation{Awaiting: map[string]APISession{"x": &fakeAPI{id: fmt.Sprintf("x%d", i)}}})
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestPeerExistsChecksBothSets(t *testing.T) {
	n := NewNode(4, 8)
	p := newFakePeer("p1")
	p.addr = "1.2.3.4"
	p.advPort = 9001
	n.AddUnverified(p)
	require.True(t, n.PeerExists("1.2.3.4", 9001))
	require.False(t, n.PeerExists("1.2.3.4", 9002))
	require.False(t, n.PeerExists("9.9.9.9", 9001))
}
