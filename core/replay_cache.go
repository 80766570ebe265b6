package core

// replay_cache.go – bounded LRU over recently verified message hashes. The
// cache key is SHA-256 over sender bytes and payload, so identical content
// from the same sender verifies at most once within the window.

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultReplayWindow is the replay cache capacity.
const DefaultReplayWindow = 1024

// ReplayCache remembers recently verified message content hashes.
type ReplayCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, struct{}]
}

// NewReplayCache builds a cache holding capacity hashes; capacity <= 0 uses
// the default window.
func NewReplayCache(capacity int) *ReplayCache {
	if capacity <= 0 {
		capacity = DefaultReplayWindow
	}
	c, err := lru.New[string, struct{}](capacity)
	if err != nil {
		// lru.New only fails on non-positive sizes, which are normalized above.
		panic(err)
	}
	return &ReplayCache{cache: c}
}

// Check records the content hash of (sender, payload) and fails with
// ErrDuplicateMessage when it was already seen inside the window. The lock
// is held only for the lookup and insert.
func (r *ReplayCache) Check(sender DID, payload []byte) error {
	h := sha256.New()
	h.Write([]byte(sender.String()))
	h.Write(payload)
	key := hex.EncodeToString(h.Sum(nil))

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.cache.Get(key); seen {
		return fmt.Errorf("%w: content hash %s", ErrDuplicateMessage, key[:16])
	}
	r.cache.Add(key, struct{}{})
	return nil
}

// Len reports how many hashes the window currently holds.
func (r *ReplayCache) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}
