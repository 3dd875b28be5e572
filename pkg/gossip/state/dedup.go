package state

import (
	"crypto/sha1" //nolint:gosec // fingerprinting, not a security boundary.
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// FingerprintSize is the length in bytes of a dedup fingerprint
// (a SHA-1 digest).
const FingerprintSize = sha1.Size

// Fingerprint hashes the announce header-tail (`data_type || data`).
func Fingerprint(headerTail []byte) [FingerprintSize]byte {
	return sha1.Sum(headerTail) //nolint:gosec
}

// dedupCache is a bounded FIFO of fingerprints with O(1) membership,
// realized as an LRU of the configured cache_size: since entries are
// only ever inserted (never touched again), LRU eviction order is
// exactly FIFO eviction order, and the library gives us a synchronized,
// capacity-bounded set for free rather than a hand-rolled deque+set
// pair.
type dedupCache struct {
	mu sync.Mutex
	c  *lru.Cache
}

func newDedupCache(capacity int) *dedupCache {
	c, err := lru.New(capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, which is a
		// configuration bug the caller should have already rejected.
		panic(err)
	}
	return &dedupCache{c: c}
}

// checkAndAdd reports whether fp was already present and, if not, adds
// it. The check and the insert happen atomically under the cache's own
// lock, so two concurrent callers can never both observe "not seen".
func (d *dedupCache) checkAndAdd(fp [FingerprintSize]byte) (alreadySeen bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c.Contains(fp) {
		return true
	}
	d.c.Add(fp, struct{}{})
	return false
}
