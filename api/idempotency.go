package api

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// sweepThreshold bounds the cache size before expired entries are swept.
const sweepThreshold = 1024

// Fingerprint derives the idempotency key for a request from its method,
// full URL, and body hash.
func Fingerprint(method, url string, body []byte) string {
	bodySum := sha256.Sum256(body)

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write([]byte(url))
	h.Write([]byte{'|'})
	h.Write(bodySum[:])
	return hex.EncodeToString(h.Sum(nil))
}

type cachedResponse struct {
	body     []byte
	storedAt time.Time
}

// IdempotencyCache memoizes successful responses so a repeated mutating
// request can be answered without reaching the server.
type IdempotencyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedResponse
	now     func() time.Time
}

// NewIdempotencyCache creates a cache whose entries expire after ttl.
func NewIdempotencyCache(ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{
		ttl:     ttl,
		entries: make(map[string]cachedResponse),
		now:     time.Now,
	}
}

// Get returns the cached response for key if present and unexpired.
func (c *IdempotencyCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.body, true
}

// Put stores a response under key.
func (c *IdempotencyCache) Put(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= sweepThreshold {
		c.sweepLocked()
	}
	c.entries[key] = cachedResponse{body: body, storedAt: c.now()}
}

// Len returns the number of stored entries, expired or not.
func (c *IdempotencyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *IdempotencyCache) sweepLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
}
