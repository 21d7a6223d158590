package cache

import (
	"sync"
	"time"
)

// LatestKey is the alias under which the most recent snapshot is cached.
// It is only written through SetLatest.
const LatestKey = "latest"

// Snapshot is a cached snapshot body and the key it was stored under.
type Snapshot struct {
	Key  string
	Body []byte

	// CapturedMs orders snapshots for SetLatest.
	CapturedMs int64
}

// entry holds a cached snapshot with its creation timestamp.
type entry struct {
	snapshot  *Snapshot
	createdAt time.Time
}

// Cache is an in-memory cache of persisted snapshots.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a Cache holding at most maxEntries snapshots for up to ttl.
// A background goroutine evicts expired entries until Close is called.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Get returns the cached snapshot for key if present and not expired.
func (c *Cache) Get(key string) (*Snapshot, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.expired(e) {
		return nil, false
	}
	return e.snapshot, true
}

// Set stores a snapshot. If the cache is at capacity, the oldest entry is
// evicted to make room.
func (c *Cache) Set(key string, snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, snap)
}

// SetLatest stores snap under LatestKey unless a newer snapshot is already
// cached there. It reports whether snap was stored.
func (c *Cache) SetLatest(snap *Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.store[LatestKey]; ok && !c.expired(cur) && cur.snapshot.CapturedMs > snap.CapturedMs {
		return false
	}
	c.setLocked(LatestKey, snap)
	return true
}

func (c *Cache) setLocked(key string, snap *Snapshot) {
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var (
			oldestKey string
			oldest    time.Time
		)
		for k, e := range c.store {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.store, oldestKey)
	}

	c.store[key] = &entry{snapshot: snap, createdAt: c.now()}
}

// Delete drops key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

// Len returns the number of cached entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) expired(e *entry) bool {
	return c.ttl > 0 && c.now().Sub(e.createdAt) > c.ttl
}

// cleanupLoop evicts expired entries every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if c.expired(e) {
			delete(c.store, k)
		}
	}
}
