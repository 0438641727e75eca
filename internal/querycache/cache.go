package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Freshness defaults.
const (
	// StaleTimeLeads is the freshness window for lead listings and records.
	StaleTimeLeads = 5 * time.Minute
	// StaleTimeStats is the freshness window for aggregate statistics.
	StaleTimeStats = 2 * time.Minute
	// GCTime is how long an entry may go unobserved before eviction.
	GCTime = 10 * time.Minute

	gcInterval = time.Minute
)

// Loader fetches fresh data for a key.
type Loader func(ctx context.Context) (any, error)

// EntityContainer is implemented by cached values that hold patchable
// entities, so speculative edits can be merged in place.
type EntityContainer interface {
	PatchEntity(id int64, fields map[string]any) bool
	FindEntity(id int64) (any, bool)
}

// Entry is a read-only snapshot of a cache entry.
type Entry struct {
	Key        Key
	Data       any
	FetchedAt  time.Time
	StaleAfter time.Time
	InFlight   bool
}

type entry struct {
	key        Key
	data       any
	has        bool
	fetchedAt  time.Time
	staleAfter time.Time
	inFlight   bool
	observers  int
	idleSince  time.Time
}

// Cache is a keyed, TTL-aware store of fetched server objects. Its own fetch
// path is the only mutator of server-confirmed data; speculative overlays
// arrive through ApplyLocalEdit and never touch the freshness stamps.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	flight   singleflight.Group
	gcTime   time.Duration
	now      func() time.Time
	onCommit func(data any)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the cache's clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithGCTime overrides the unobserved-entry eviction window.
func WithGCTime(d time.Duration) Option {
	return func(c *Cache) { c.gcTime = d }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		gcTime:  GCTime,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetOnCommit registers fn, invoked with an entry's data each time a fetch
// commits it. A fresh server copy replaces the entry's data wholesale, so
// any speculative overlay must be restored on top of it; the optimistic
// coordinator registers the hook that does so. The hook runs under the
// cache lock and must not call back into the cache.
func (c *Cache) SetOnCommit(fn func(data any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommit = fn
}

// Get returns a snapshot of the entry for key, if one exists.
func (c *Cache) Get(key Key) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.ID()]
	if !ok || !e.has {
		return nil, false
	}
	return &Entry{
		Key:        e.key,
		Data:       e.data,
		FetchedAt:  e.fetchedAt,
		StaleAfter: e.staleAfter,
		InFlight:   e.inFlight,
	}, true
}

// Fetch returns the cached data for key, invoking loader as needed. A fresh
// entry is returned as-is. A stale entry is returned immediately while a
// background revalidation runs. A miss blocks until the loader settles.
// Concurrent fetches of the same key share a single loader invocation. On
// loader failure existing data is left untouched and the error goes to the
// callers that were waiting on it.
func (c *Cache) Fetch(ctx context.Context, key Key, staleTime time.Duration, loader Loader) (any, error) {
	id := key.ID()
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: key, idleSince: now}
		c.entries[id] = e
	}
	e.idleSince = now

	if e.has && now.Before(e.staleAfter) {
		data := e.data
		c.mu.Unlock()
		return data, nil
	}

	hasStale := e.has
	staleData := e.data
	e.inFlight = true
	c.mu.Unlock()

	// The loader runs detached from any single caller's context: a caller
	// abandoning the wait must not cancel a flight other callers share, and
	// a completed flight is discarded only if the entry was evicted.
	loaderCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(id, func() (any, error) {
		data, err := loader(loaderCtx)
		c.finishFetch(id, staleTime, data, err)
		return data, err
	})

	if hasStale {
		go func() {
			res := <-ch
			if res.Err != nil {
				log.Debug().Err(res.Err).Str("key", id).Msg("background revalidation failed")
			}
		}()
		return staleData, nil
	}

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// finishFetch records a flight's outcome. A failure keeps any existing data;
// a success that lands after eviction is discarded.
func (c *Cache) finishFetch(id string, staleTime time.Duration, data any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		log.Debug().Str("key", id).Msg("fetch completed after eviction, discarding")
		return
	}

	e.inFlight = false
	if err != nil {
		return
	}

	now := c.now()
	e.data = data
	e.has = true
	e.fetchedAt = now
	e.staleAfter = now.Add(staleTime)

	if c.onCommit != nil {
		c.onCommit(data)
	}
}

// Invalidate marks every entry matching the predicate stale immediately.
// Data is not evicted; the next Fetch re-runs its loader.
func (c *Cache) Invalidate(pred func(Key) bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if pred(e.key) {
			e.staleAfter = now
		}
	}
}

// ApplyLocalEdit merges fields into the entity within the entry at key,
// without touching the freshness stamps. Returns false when the entry or
// entity is absent.
func (c *Cache) ApplyLocalEdit(key Key, entityID int64, fields map[string]any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.ID()]
	if !ok || !e.has {
		return false
	}
	container, ok := e.data.(EntityContainer)
	if !ok {
		return false
	}
	return container.PatchEntity(entityID, fields)
}

// ApplyLocalEditAll merges fields into the entity in every entry that holds
// it, and returns how many entries were patched.
func (c *Cache) ApplyLocalEditAll(entityID int64, fields map[string]any) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	patched := 0
	for _, e := range c.entries {
		if !e.has {
			continue
		}
		if container, ok := e.data.(EntityContainer); ok {
			if container.PatchEntity(entityID, fields) {
				patched++
			}
		}
	}
	return patched
}

// Find returns an entity from any cached entry that holds it.
func (c *Cache) Find(entityID int64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if !e.has {
			continue
		}
		if container, ok := e.data.(EntityContainer); ok {
			if v, ok := container.FindEntity(entityID); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// Observe registers an active observer for key, creating the entry if
// needed. The returned release function is idempotent.
func (c *Cache) Observe(key Key) func() {
	id := key.ID()

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: key, idleSince: c.now()}
		c.entries[id] = e
	}
	e.observers++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if e, ok := c.entries[id]; ok {
				e.observers--
				if e.observers <= 0 {
					e.observers = 0
					e.idleSince = c.now()
				}
			}
		})
	}
}

// Start runs the garbage collection loop until ctx is cancelled.
func (c *Cache) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sweep evicts entries that have had zero observers for longer than the GC
// window. Observed entries are never evicted, stale or not.
func (c *Cache) Sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, e := range c.entries {
		if e.observers > 0 || e.inFlight {
			continue
		}
		if now.Sub(e.idleSince) > c.gcTime {
			delete(c.entries, id)
			log.Debug().Str("key", id).Msg("evicted cache entry")
		}
	}
}

// Len returns the number of entries, for tests and debugging.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
