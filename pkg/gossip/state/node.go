// Package state holds the node-wide registries a gossip relay node
// shares across every peer and API session: the verified/unverified
// peer sets, subscriptions, the dedup cache, and pending validations.
//
// Lock order is fixed and must be respected by every caller that needs
// more than one guard at a time:
//
//	unverified_peers -> verified_peers -> subscriptions -> pending_validations -> cache -> api_sessions
package state

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/voidphone/gossip/internal/metrics"
)

// Node is the process-wide shared state of a gossip relay node.
type Node struct {
	unverifiedMu sync.Mutex
	unverified   *peerFIFO

	verifiedMu sync.Mutex
	verified   *peerFIFO

	subsMu        sync.Mutex
	subscriptions map[uint16]map[string]APISession // data_type -> session id -> session

	pendingMu sync.Mutex
	pending   map[uint16]*PendingValidation

	cache *dedupCache

	apiMu   sync.Mutex
	apiByID map[string]APISession
}

// NewNode builds a Node with the given peer-degree and dedup-cache
// capacities.
func NewNode(degree, cacheSize int) *Node {
	return &Node{
		unverified:    newPeerFIFO(degree),
		verified:      newPeerFIFO(degree),
		subscriptions: make(map[uint16]map[string]APISession),
		pending:       make(map[uint16]*PendingValidation),
		cache:         newDedupCache(cacheSize),
		apiByID:       make(map[string]APISession),
	}
}

// --- API sessions & subscriptions ---

// RegisterAPISession adds s to the active API-session set.
func (n *Node) RegisterAPISession(s APISession) {
	n.apiMu.Lock()
	n.apiByID[s.ID()] = s
	count := len(n.apiByID)
	n.apiMu.Unlock()
	metrics.APISessions.Set(float64(count))
}

// UnregisterAPISession removes s from the active set and from every
// subscription: a subscription entry always implies an active session.
func (n *Node) UnregisterAPISession(s APISession) {
	n.subsMu.Lock()
	for dt, subs := range n.subscriptions {
		delete(subs, s.ID())
		if len(subs) == 0 {
			delete(n.subscriptions, dt)
		}
	}
	n.subsMu.Unlock()

	n.apiMu.Lock()
	delete(n.apiByID, s.ID())
	count := len(n.apiByID)
	n.apiMu.Unlock()
	metrics.APISessions.Set(float64(count))
}

// Subscribe adds s to subscriptions[dataType]. Idempotent: subscribing
// the same session to the same data type more than once is a no-op.
func (n *Node) Subscribe(s APISession, dataType uint16) {
	n.subsMu.Lock()
	defer n.subsMu.Unlock()
	subs, ok := n.subscriptions[dataType]
	if !ok {
		subs = make(map[string]APISession)
		n.subscriptions[dataType] = subs
	}
	subs[s.ID()] = s
}

// SubscribersSnapshot returns a copy of the current subscribers of
// dataType, excluding exclude if non-nil. A nil/empty return means "no
// subscribers".
func (n *Node) SubscribersSnapshot(dataType uint16, exclude APISession) []APISession {
	n.subsMu.Lock()
	defer n.subsMu.Unlock()
	subs, ok := n.subscriptions[dataType]
	if !ok {
		return nil
	}
	out := make([]APISession, 0, len(subs))
	for id, s := range subs {
		if exclude != nil && id == exclude.ID() {
			continue
		}
		out = append(out, s)
	}
	return out
}

// --- Peer registries ---

// AddUnverified inserts p into the unverified set, evicting and closing
// the oldest member on overflow.
func (n *Node) AddUnverified(p PeerSession) {
	n.unverifiedMu.Lock()
	evicted := n.unverified.push(p)
	count := n.unverified.len()
	n.unverifiedMu.Unlock()
	metrics.UnverifiedPeers.Set(float64(count))
	if evicted != nil {
		metrics.PeerEvictions.WithLabelValues("unverified_capacity").Inc()
		evicted.Close()
	}
}

// MoveToVerified atomically moves p from unverified to verified,
// evicting and closing the oldest verified peer on overflow. Locks are
// taken in the fixed order, unverified before verified.
func (n *Node) MoveToVerified(p PeerSession) {
	n.unverifiedMu.Lock()
	n.unverified.remove(p)
	uCount := n.unverified.len()
	n.unverifiedMu.Unlock()
	metrics.UnverifiedPeers.Set(float64(uCount))

	n.verifiedMu.Lock()
	evicted := n.verified.push(p)
	vCount := n.verified.len()
	n.verifiedMu.Unlock()
	metrics.VerifiedPeers.Set(float64(vCount))

	if evicted != nil {
		metrics.PeerEvictions.WithLabelValues("verified_capacity").Inc()
		evicted.Close()
	}
}

// RemovePeer removes p from both registries unconditionally and
// symmetrically: it tolerates p being in neither or either, rather than
// assuming the caller already knows which set p currently belongs to.
func (n *Node) RemovePeer(p PeerSession) {
	n.unverifiedMu.Lock()
	n.unverified.remove(p)
	uCount := n.unverified.len()
	n.unverifiedMu.Unlock()

	n.verifiedMu.Lock()
	n.verified.remove(p)
	vCount := n.verified.len()
	n.verifiedMu.Unlock()

	metrics.UnverifiedPeers.Set(float64(uCount))
	metrics.VerifiedPeers.Set(float64(vCount))
}

// VerifiedPeers returns a snapshot of the verified set.
func (n *Node) VerifiedPeers() []PeerSession {
	n.verifiedMu.Lock()
	defer n.verifiedMu.Unlock()
	return n.verified.snapshot()
}

// VerifiedCount returns the current size of the verified set.
func (n *Node) VerifiedCount() int {
	n.verifiedMu.Lock()
	defer n.verifiedMu.Unlock()
	return n.verified.len()
}

// UnverifiedCount returns the current size of the unverified set.
func (n *Node) UnverifiedCount() int {
	n.unverifiedMu.Lock()
	defer n.unverifiedMu.Unlock()
	return n.unverified.len()
}

// PeerExists reports whether addr:port already matches a member of
// either registry, locking both sets in the fixed order.
func (n *Node) PeerExists(addr string, port uint16) bool {
	n.unverifiedMu.Lock()
	inUnverified := n.unverified.matches(addr, port)
	n.unverifiedMu.Unlock()
	if inUnverified {
		return true
	}

	n.verifiedMu.Lock()
	defer n.verifiedMu.Unlock()
	return n.verified.matches(addr, port)
}

// --- Dedup cache ---

// CheckAndMarkSeen hashes headerTail and reports whether it was already
// in the dedup cache, adding it if not.
func (n *Node) CheckAndMarkSeen(headerTail []byte) (alreadySeen bool) {
	fp := Fingerprint(headerTail)
	return n.cache.checkAndAdd(fp)
}

// --- Pending validations ---

// NewMessageID allocates a random 16-bit id in [1, 2^16-1] not
// currently in use, re-rolling on collision.
func (n *Node) NewMessageID() (uint16, error) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	for i := 0; i < 1000; i++ {
		id, err := randomNonZeroU16()
		if err != nil {
			return 0, err
		}
		if _, taken := n.pending[id]; !taken {
			return id, nil
		}
	}
	return 0, fmt.Errorf("could not allocate a free message id")
}

func randomNonZeroU16() (uint16, error) {
	var b [2]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		v := binary.BigEndian.Uint16(b[:])
		if v != 0 {
			return v, nil
		}
	}
}

// AddPending records a new pending validation entry. Callers must have
// obtained the message id from NewMessageID (or otherwise ensured no
// collision) under the same critical section; AddPending re-takes the
// lock itself, so it is only safe to call once per id.
func (n *Node) AddPending(id uint16, pv *PendingValidation) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	n.pending[id] = pv
}

// GetPending looks up a pending validation by message id. The returned
// *PendingValidation shares its Awaiting map with the node's internal
// state; callers must not read Awaiting directly (use IsAwaiting) since
// RemoveAwaiting/PopPending mutate it under pendingMu.
func (n *Node) GetPending(id uint16) (*PendingValidation, bool) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	pv, ok := n.pending[id]
	return pv, ok
}

// IsAwaiting reports whether s is a validator still awaited on message
// id, taking pendingMu so the check is consistent with concurrent
// RemoveAwaiting/PopPending calls.
func (n *Node) IsAwaiting(id uint16, s APISession) (awaited bool, found bool) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	pv, ok := n.pending[id]
	if !ok {
		return false, false
	}
	_, awaited = pv.Awaiting[s.ID()]
	return awaited, true
}

// PopPending removes and returns a pending validation entry, if present.
func (n *Node) PopPending(id uint16) (*PendingValidation, bool) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	pv, ok := n.pending[id]
	if ok {
		delete(n.pending, id)
	}
	return pv, ok
}

// RemoveAwaiting drops s from pending[id].Awaiting. It reports whether
// the entry existed and whether, after removal, Awaiting became empty
// -- in which case the entry is popped atomically with this call, so
// the last vote to arrive is the one that triggers delivery.
func (n *Node) RemoveAwaiting(id uint16, s APISession) (pv *PendingValidation, becameEmpty bool, found bool) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	entry, ok := n.pending[id]
	if !ok {
		return nil, false, false
	}
	delete(entry.Awaiting, s.ID())
	if len(entry.Awaiting) == 0 {
		delete(n.pending, id)
		return entry, true, true
	}
	return entry, false, true
}
