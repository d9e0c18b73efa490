package github

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Source lists merged pull requests in a date range.
type Source interface {
	MergedPullRequests(ctx context.Context, since, until time.Time) ([]PullRequest, error)
}

// Backend stores cache entries. Implementations must be safe for
// concurrent use.
type Backend interface {
	Get(key string) (value []byte, storedAt time.Time, ok bool, err error)
	Put(key string, value []byte, storedAt time.Time) error
}

// Cache is a Source that remembers results per date range for a TTL.
type Cache struct {
	src       Source
	backend   Backend
	ttl       time.Duration
	now       func() time.Time
	namespace string
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets how long entries stay fresh. Zero disables caching.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithNamespace separates entries for different repositories.
func WithNamespace(ns string) CacheOption {
	return func(c *Cache) { c.namespace = ns }
}

// NewCache wraps src. A nil backend keeps entries in memory.
func NewCache(src Source, backend Backend, opts ...CacheOption) *Cache {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	c := &Cache{src: src, backend: backend, ttl: time.Hour, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MergedPullRequests returns cached results when fresh, otherwise fetches
// from the wrapped source and stores the result.
func (c *Cache) MergedPullRequests(ctx context.Context, since, until time.Time) ([]PullRequest, error) {
	key := fmt.Sprintf("github:prs:%s:%s:%s", c.namespace, since.Format(time.DateOnly), until.Format(time.DateOnly))

	if c.ttl > 0 {
		if data, at, ok, err := c.backend.Get(key); err == nil && ok && c.now().Sub(at) < c.ttl {
			var prs []PullRequest
			if json.Unmarshal(data, &prs) == nil {
				return prs, nil
			}
		}
	}

	prs, err := c.src.MergedPullRequests(ctx, since, until)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		if data, err := json.Marshal(prs); err == nil {
			_ = c.backend.Put(key, data, c.now())
		}
	}
	return prs, nil
}

// MemoryBackend is an in-process Backend.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value []byte
	at    time.Time
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

// Get implements Backend.
func (m *MemoryBackend) Get(key string) ([]byte, time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e.value, e.at, ok, nil
}

// Put implements Backend.
func (m *MemoryBackend) Put(key string, value []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, at: at}
	return nil
}
