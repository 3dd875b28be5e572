package apisession

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voidphone/gossip/pkg/gossip/state"
	"github.com/voidphone/gossip/pkg/gossip/wire"
)

func bufWriter(conn net.Conn) *bufio.Writer {
	return bufio.NewWriter(conn)
}

func tcpPipe(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server = <-acceptCh
	return client, server
}

type fakePeer struct {
	id     string
	closed bool
}

func (f *fakePeer) ID() string                          { return f.id }
func (f *fakePeer) RemoteAddr() string                  { return "10.0.0.1" }
func (f *fakePeer) AdvertisedListeningPort() uint16     { return 1000 }
func (f *fakePeer) RemoteEphemeralPort() uint16         { return 1000 }
func (f *fakePeer) SendAnnounce(a *wire.Announce) error { return nil }
func (f *fakePeer) SendDiscover() error                 { return nil }
func (f *fakePeer) Close()                              { f.closed = true }

func readNotification(t *testing.T, conn net.Conn) *wire.Notification {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := wire.ReadFrame(conn, wire.RoleAPI)
	require.NoError(t, err)
	require.Equal(t, wire.GossipNotification, f.Type)
	n, err := wire.DecodeNotification(f.Payload)
	require.NoError(t, err)
	return n
}

// TestNotifySubscribesThenAnnounceNotifies: two clients notify; the
// test then records a pending validation the way a peer announce would
// and sends both subscribers a notification with that shared message
// id. Two valid votes resolve the entry without closing the source.
func TestNotifySubscribesThenAnnounceNotifies(t *testing.T) {
	log := zaptest.NewLogger(t)
	node := state.NewNode(4, 8)

	c1Conn, s1Conn := tcpPipe(t)
	c2Conn, s2Conn := tcpPipe(t)
	s1 := New(s1Conn, node, log)
	s2 := New(s2Conn, node, log)
	go s1.Run()
	go s2.Run()

	require.NoError(t, wire.WriteFrame(bufWriter(c1Conn), wire.GossipNotify, (&wire.Notify{DataType: 1337}).Encode()))
	require.NoError(t, wire.WriteFrame(bufWriter(c2Conn), wire.GossipNotify, (&wire.Notify{DataType: 1337}).Encode()))

	require.Eventually(t, func() bool {
		return len(node.SubscribersSnapshot(1337, nil)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	src := &fakePeer{id: "P"}
	subs := node.SubscribersSnapshot(1337, nil)
	pendingID, err := node.NewMessageID()
	require.NoError(t, err)
	awaiting := map[string]state.APISession{}
	for _, sub := range subs {
		awaiting[sub.ID()] = sub
	}
	node.AddPending(pendingID, &state.PendingValidation{
		TTL: 4, DataType: 1337, Data: []byte("deadbeef"), Source: src, Awaiting: awaiting,
	})
	for _, sub := range subs {
		require.NoError(t, sub.SendNotification(&wire.Notification{MessageID: pendingID, DataType: 1337, Data: []byte("deadbeef")}))
	}

	n1 := readNotification(t, c1Conn)
	n2 := readNotification(t, c2Conn)
	require.Equal(t, pendingID, n1.MessageID)
	require.Equal(t, pendingID, n2.MessageID)

	require.NoError(t, wire.WriteFrame(bufWriter(c1Conn), wire.GossipValidation, (&wire.Validation{MessageID: pendingID, Flags: 1}).Encode()))
	require.NoError(t, wire.WriteFrame(bufWriter(c2Conn), wire.GossipValidation, (&wire.Validation{MessageID: pendingID, Flags: 1}).Encode()))

	require.Eventually(t, func() bool {
		_, found := node.GetPending(pendingID)
		return !found
	}, 2*time.Second, 10*time.Millisecond)
	require.False(t, src.closed)
}

// TestInvalidValidationEvictsSource: a single invalid vote pops the
// pending entry and closes the source peer.
func TestInvalidValidationEvictsSource(t *testing.T) {
	log := zaptest.NewLogger(t)
	node := state.NewNode(4, 8)

	cConn, sConn := tcpPipe(t)
	s := New(sConn, node, log)
	go s.Run()

	require.NoError(t, wire.WriteFrame(bufWriter(cConn), wire.GossipNotify, (&wire.Notify{DataType: 1}).Encode()))
	require.Eventually(t, func() bool {
		return len(node.SubscribersSnapshot(1, nil)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	src := &fakePeer{id: "P"}
	id, err := node.NewMessageID()
	require.NoError(t, err)
	node.AddPending(id, &state.PendingValidation{
		TTL: 4, DataType: 1, Data: []byte("x"), Source: src,
		Awaiting: map[string]state.APISession{s.ID(): s},
	})

	require.NoError(t, wire.WriteFrame(bufWriter(cConn), wire.GossipValidation, (&wire.Validation{MessageID: id, Flags: 0}).Encode()))

	require.Eventually(t, func() bool {
		return src.closed
	}, 2*time.Second, 10*time.Millisecond)
	_, found := node.GetPending(id)
	require.False(t, found)
}

// TestNotifyIdempotent: repeated GOSSIP_NOTIFY for the same data type
// leaves exactly one subscriber entry.
func TestNotifyIdempotent(t *testing.T) {
	log := zaptest.NewLogger(t)
	node := state.NewNode(4, 8)
	cConn, sConn := tcpPipe(t)
	s := New(sConn, node, log)
	go s.Run()

	for i := 0; i < 3; i++ {
		require.NoError(t, wire.WriteFrame(bufWriter(cConn), wire.GossipNotify, (&wire.Notify{DataType: 42}).Encode()))
	}

	require.Eventually(t, func() bool {
		return len(node.SubscribersSnapshot(42, nil)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
