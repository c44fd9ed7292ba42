package auth

import (
	"context"
	"sync"
	"time"
)

// Cache maps an email to a cached principal with a short time-to-live.
// It is a performance optimisation in front of the user store, never the
// source of truth: a lookup miss (including expiry) simply means the caller
// goes to the store. Implementations must be safe for concurrent use.
//
// Entries must be invalidated or overwritten whenever the underlying
// principal mutates, otherwise stale credentials are served for up to the
// TTL window.
type Cache interface {
	// Get returns the cached principal for the email, if present and unexpired.
	// There is no implicit store fallback; that is the caller's responsibility.
	Get(ctx context.Context, email string) (*Principal, bool)

	// Put stores the principal, overwriting any existing entry.
	Put(ctx context.Context, email string, principal *Principal, ttl time.Duration)

	// Invalidate removes the entry immediately.
	Invalidate(ctx context.Context, email string)
}

// MemoryCache is an in-process Cache backed by a mutex-guarded map.
// Entries expire lazily on lookup; no background sweep is required.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	principal Principal
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-process identity cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryCacheEntry),
	}
}

// Get returns a copy of the cached principal if present and unexpired.
// Expired entries are removed on lookup and treated as absent.
func (c *MemoryCache) Get(_ context.Context, email string) (*Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[email]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, email)
		return nil, false
	}

	p := entry.principal // copy so callers can't mutate the cached record
	return &p, true
}

// Put overwrites any existing entry for the email.
func (c *MemoryCache) Put(_ context.Context, email string, principal *Principal, ttl time.Duration) {
	if principal == nil || ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[email] = memoryCacheEntry{
		principal: *principal,
		expiresAt: time.Now().Add(ttl),
	}
}

// Invalidate removes the entry for the email immediately.
func (c *MemoryCache) Invalidate(_ context.Context, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, email)
}
