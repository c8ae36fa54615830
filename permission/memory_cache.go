package permission

import (
	"context"
	"strconv"
	"sync"
	"time"
)

const defaultMemoryCacheEntries = 100_000

// MemoryCacheConfig configures [NewMemoryCache].
type MemoryCacheConfig struct {
	TTL        time.Duration
	MaxEntries int
	Now        func() time.Time
}

type memoryEntry struct {
	allowed   bool
	expiresAt time.Time
}

// MemoryCache is a process-local decision cache. It stamps entries with the
// same global and per-user generations as [RedisCache], so invalidation is
// an increment and a decision computed before it is never served after it.
// Use it only when a single instance serves a user base.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	global  uint64
	users   map[string]uint64
	entries map[string]memoryEntry
}

// NewMemoryCache returns an empty cache. Zero fields select [DefaultCacheTTL],
// a 100k entry bound and time.Now.
func NewMemoryCache(cfg MemoryCacheConfig) *MemoryCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMemoryCacheEntries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MemoryCache{
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        cfg.Now,
		users:      make(map[string]uint64),
		entries:    make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Get(_ context.Context, userID string, key Key) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{UserID: userID, Key: key, Stamp: c.stampLocked(userID)}
	k := memoryKey(entry)
	v, ok := c.entries[k]
	if !ok {
		return entry, nil
	}
	if !c.now().Before(v.expiresAt) {
		delete(c.entries, k)
		return entry, nil
	}
	entry.Hit = true
	entry.Allowed = v.allowed
	return entry, nil
}

func (c *MemoryCache) Set(_ context.Context, entry Entry, allowed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Invalidated since the lookup.
	if entry.Stamp == "" || entry.Stamp != c.stampLocked(entry.UserID) {
		return nil
	}
	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[memoryKey(entry)] = memoryEntry{allowed: allowed, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) InvalidateUsers(_ context.Context, userIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		c.users[id]++
	}
	return nil
}

func (c *MemoryCache) InvalidateAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global++
	// Every stamp changed, so nothing stored is reachable.
	c.entries = make(map[string]memoryEntry)
	return nil
}

// Len reports the number of stored entries, including expired ones not yet
// evicted.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) stampLocked(userID string) string {
	return strconv.FormatUint(c.global, 10) + ":" + strconv.FormatUint(c.users[userID], 10)
}

// evictLocked drops expired entries, or everything when none had expired.
func (c *MemoryCache) evictLocked() {
	now := c.now()
	for k, v := range c.entries {
		if !now.Before(v.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[string]memoryEntry)
	}
}

func memoryKey(e Entry) string {
	return e.Stamp + ":" + e.UserID + ":" + e.Key.String()
}
