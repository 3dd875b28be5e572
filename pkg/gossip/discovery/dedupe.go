package discovery

import (
	"sync"
	"time"

	"github.com/twmb/murmur3"
)

// recentOffers is a small time-bounded guard against redialing an
// address that a peer offered to this node via PEER_BROADCAST moments
// earlier. It is not a correctness requirement -- the duplicate
// check that actually prevents double connections is PeerExists
// against the live registries -- it only avoids a burst of redundant
// dials when several peers ask for PEER_DISCOVER in the same round and
// get overlapping answers.
type recentOffers struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[uint64]time.Time
}

func newRecentOffers(ttl time.Duration) *recentOffers {
	return &recentOffers{ttl: ttl, m: make(map[uint64]time.Time)}
}

func addrHash(addr string) uint64 {
	return murmur3.StringSum64(addr)
}

// seenRecently reports whether addr was recorded within ttl, and
// records it now regardless.
func (r *recentOffers) seenRecently(addr string) bool {
	h := addrHash(addr)
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.m[h]; ok && now.Sub(t) < r.ttl {
		r.m[h] = now
		return true
	}
	r.m[h] = now

	for k, t := range r.m {
		if now.Sub(t) >= r.ttl {
			delete(r.m, k)
		}
	}
	return false
}
