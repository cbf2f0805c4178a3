// Package keycache caches password-derived keys so repeated derivations for
// the same (password, salt) skip PBKDF2. A Cache is constructed explicitly and
// injected where it is needed; there is no package-level instance.
package keycache

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/cryptox"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL      = 30 * time.Minute
	DefaultCapacity = 100
)

// Options configures a Cache. Zero values select the defaults.
type Options struct {
	TTL        time.Duration
	Capacity   int
	Iterations int
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

type deriveFunc func(password, salt []byte, iterations int) (*cryptox.Key, error)

// Cache is an LRU of derived keys with per-entry expiry. Entries are keyed by a
// keyed BLAKE3 fingerprint of the inputs, so passwords are never held as map
// keys. Callers always receive clones; the cached copy is disposed on eviction.
type Cache struct {
	mu         sync.Mutex
	lru        *expirable.LRU[string, *cryptox.Key]
	fpKey      []byte
	iterations int
	derive     deriveFunc
	// flights collapses concurrent misses for one fingerprint into a single
	// derivation.
	flights singleflight.Group

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New builds a Cache.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Iterations <= 0 {
		opts.Iterations = cryptox.DefaultIterations
	}

	c := &Cache{
		fpKey:      common.GenerateRandByteArray(32),
		iterations: opts.Iterations,
		derive:     cryptox.DeriveFromPassword,
	}
	c.lru = expirable.NewLRU[string, *cryptox.Key](opts.Capacity, c.onEvict, opts.TTL)
	return c
}

func (c *Cache) onEvict(_ string, k *cryptox.Key) {
	c.evictions.Add(1)
	k.Dispose()
}

func (c *Cache) fingerprint(password, salt []byte) (string, error) {
	h, err := blake3.NewKeyed(c.fpKey)
	if err != nil {
		return "", fmt.Errorf("keycache: fingerprint: %w", err)
	}
	var hdr [16]byte
	binary.BigEndian.PutUint64(hdr[:8], uint64(c.iterations))
	binary.BigEndian.PutUint64(hdr[8:], uint64(len(password)))
	_, _ = h.Write(hdr[:])
	_, _ = h.Write(password)
	_, _ = h.Write(salt)
	return string(h.Sum(nil)), nil
}

// lookup returns a clone of a live cached key.
func (c *Cache) lookup(id string) (*cryptox.Key, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k, ok := c.lru.Get(id)
	if !ok {
		return nil, false
	}
	clone, err := k.Clone()
	if err != nil {
		c.lru.Remove(id)
		return nil, false
	}
	return clone, true
}

func (c *Cache) insert(id string, k *cryptox.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lru.Peek(id); ok {
		// another caller derived the same key first
		k.Dispose()
		return
	}
	// an expired entry still in the map is removed so it gets disposed
	c.lru.Remove(id)
	c.lru.Add(id, k)
}

func (c *Cache) cached(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lru.Peek(id)
	return ok
}

// Derive returns the key for (password, salt), deriving and caching it on a
// miss. Concurrent misses for the same inputs wait for one derivation. The
// returned key belongs to the caller, who should Dispose it.
func (c *Cache) Derive(password, salt []byte) (*cryptox.Key, error) {
	id, err := c.fingerprint(password, salt)
	if err != nil {
		return nil, err
	}

	if k, ok := c.lookup(id); ok {
		c.hits.Add(1)
		return k, nil
	}
	c.misses.Add(1)

	_, err, _ = c.flights.Do(id, func() (any, error) {
		if c.cached(id) {
			return nil, nil
		}
		key, err := c.derive(password, salt, c.iterations)
		if err != nil {
			return nil, err
		}
		c.insert(id, key)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if k, ok := c.lookup(id); ok {
		return k, nil
	}
	// evicted before it could be copied out, only possible under heavy churn
	return c.derive(password, salt, c.iterations)
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.lru.Len(),
	}
}

// Purge evicts and disposes every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
