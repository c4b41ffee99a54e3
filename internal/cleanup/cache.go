// internal/cleanup/cache.go

// Package cleanup holds a time-bounded mapping from guild to a pending
// message-deletion handle. It guarantees at most one live entry per guild and
// that a superseded handle is handed back exactly once, so stale UI messages
// are deleted exactly once.
package cleanup

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long an entry lives before best-effort eviction.
const DefaultTTL = 5 * time.Minute

// Handle identifies a deletable UI artifact (channel + message).
type Handle struct {
	ChannelID string
	MessageID string
}

type entry struct {
	handle    Handle
	createdAt time.Time
}

// Cache is the cleanup cache. Eviction is asynchronous and never blocks Put
// or Remove; evicted handles are emitted on Evictions for out-of-band delete.
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry

	evictions chan Eviction
}

// Eviction carries an expired handle to whoever deletes the message.
type Eviction struct {
	GuildID string
	Handle  Handle
}

// New builds a cache with the given TTL (DefaultTTL when zero) and starts the
// janitor, which runs until ctx is done.
func New(ctx context.Context, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:       ttl,
		entries:   make(map[string]entry),
		evictions: make(chan Eviction, 16),
	}
	go c.janitor(ctx)
	return c
}

// Evictions is the stream of expired handles. Best-effort: when nobody
// listens, expired handles are dropped rather than blocking eviction.
func (c *Cache) Evictions() <-chan Eviction { return c.evictions }

// Put stores the guild's pending handle, overwriting any existing entry.
// The superseded handle, if any, is returned exactly once for the caller to
// delete out-of-band.
func (c *Cache) Put(guildID string, h Handle) (prev Handle, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, existed := c.entries[guildID]
	c.entries[guildID] = entry{handle: h, createdAt: time.Now()}
	if !existed {
		return Handle{}, false
	}
	return old.handle, true
}

// Remove returns and clears the guild's entry, if present.
func (c *Cache) Remove(guildID string) (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[guildID]
	if !ok {
		return Handle{}, false
	}
	delete(c.entries, guildID)
	return e.handle, true
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// janitor evicts expired entries on a timer until ctx is done.
func (c *Cache) janitor(ctx context.Context) {
	interval := c.ttl / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.evictExpired(now)
		}
	}
}

func (c *Cache) evictExpired(now time.Time) {
	c.mu.Lock()
	var expired []Eviction
	for guildID, e := range c.entries {
		if now.Sub(e.createdAt) >= c.ttl {
			delete(c.entries, guildID)
			expired = append(expired, Eviction{GuildID: guildID, Handle: e.handle})
		}
	}
	c.mu.Unlock()

	for _, ev := range expired {
		select {
		case c.evictions <- ev:
		default:
		}
	}
}
