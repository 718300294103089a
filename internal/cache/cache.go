package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/dreamware/quorum/internal/cluster"
)

// Defaults.
const (
	DefaultRefreshTTL    = 60 * time.Second
	DefaultSweepInterval = 1 * time.Second
)

// PeerFetchFunc asks one peer for its locally cached value. found is
// false when the peer has no live entry; err means the peer could not be
// asked at all.
type PeerFetchFunc func(ctx context.Context, peer cluster.NodeInfo, key string) (value []byte, found bool, err error)

// Options tunes the cache. Zero values take the defaults.
type Options struct {
	// Capacity bounds the number of entries; 0 means unbounded. When the
	// bound is hit, the least-recently-used entry is evicted.
	Capacity int
	// RefreshTTL is assigned to entries stored from a peer hit.
	RefreshTTL time.Duration
	// SweepInterval is how often the janitor removes expired entries.
	SweepInterval time.Duration
	// Peers supplies the live peers to consult on a local miss. May be
	// nil for a standalone cache.
	Peers func() []cluster.NodeInfo
	// Fetch performs the peer lookup. May be nil for a standalone cache.
	Fetch PeerFetchFunc
}

func (o Options) withDefaults() Options {
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = DefaultRefreshTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	return o
}

// entry is one cached value. elem points at its LRU list node; the list
// front is most recently used.
type entry struct {
	key      string
	value    []byte
	ttl      time.Duration
	storedAt time.Time
	elem     *list.Element
}

// Cache is the local store plus the pull-through peer path.
// Thread-safe: all methods may be called concurrently. Peer fetches run
// outside the lock.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // of string keys, front = most recent
	opts    Options
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cache.
func New(opts Options) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		entries: make(map[string]*entry),
		lru:     list.New(),
		opts:    opts.withDefaults(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetClock overrides the cache's time source. Tests only.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Put stores a value locally with the given TTL. A non-positive ttl
// stores nothing (the entry would be born expired).
func (c *Cache) Put(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, value, ttl)
}

func (c *Cache) putLocked(key string, value []byte, ttl time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)

	if e, ok := c.entries[key]; ok {
		e.value = stored
		e.ttl = ttl
		e.storedAt = c.now()
		c.lru.MoveToFront(e.elem)
		return
	}

	if c.opts.Capacity > 0 && len(c.entries) >= c.opts.Capacity {
		c.evictOldestLocked()
	}

	e := &entry{key: key, value: stored, ttl: ttl, storedAt: c.now()}
	e.elem = c.lru.PushFront(key)
	c.entries[key] = e
}

// Get returns the value for key. Local live hit: returned directly (and
// counted as a use for LRU). Local expired hit: evicted, treated as a
// miss. Local miss: each live peer is asked in turn; the first hit is
// stored locally under the refresh TTL and returned.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Sub(e.storedAt) <= e.ttl {
			c.lru.MoveToFront(e.elem)
			value := make([]byte, len(e.value))
			copy(value, e.value)
			c.mu.Unlock()
			return value, true
		}
		c.removeLocked(key)
	}
	peersFn, fetch := c.opts.Peers, c.opts.Fetch
	c.mu.Unlock()

	if peersFn == nil || fetch == nil {
		return nil, false
	}

	// Pull-through: consult peers outside the lock so a slow peer never
	// blocks local traffic.
	for _, peer := range peersFn() {
		value, found, err := fetch(ctx, peer, key)
		if err != nil || !found {
			continue
		}
		c.mu.Lock()
		c.putLocked(key, value, c.opts.RefreshTTL)
		c.mu.Unlock()
		return value, true
	}
	return nil, false
}

// GetLocal returns the value for key from the local store only, never
// consulting peers. This is the handler peers hit for their pull-through
// fetches; going to peers from here would let lookups ricochet around
// the cluster.
func (c *Cache) GetLocal(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > e.ttl {
		c.removeLocked(key)
		return nil, false
	}
	c.lru.MoveToFront(e.elem)
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, true
}

// Remove deletes a key from the local store only.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Clear empties the local store only.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.lru.Init()
}

// Len returns the number of physically present entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Start runs the janitor sweep until ctx (or Stop) cancels it. Run as
// `go cache.Start(ctx)`.
func (c *Cache) Start(ctx context.Context) {
	c.wg.Add(1)
	defer c.wg.Done()

	if ctx == nil {
		ctx = c.ctx
	}

	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// Stop cancels the janitor and waits for it.
func (c *Cache) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Sweep physically removes every expired entry. Exported so tests can
// force a deterministic sweep.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.Sub(e.storedAt) > e.ttl {
			c.removeLocked(key)
		}
	}
}

func (c *Cache) removeLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.lru.Remove(e.elem)
	delete(c.entries, key)
}

// evictOldestLocked drops the least-recently-used entry.
func (c *Cache) evictOldestLocked() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	c.removeLocked(back.Value.(string))
}
