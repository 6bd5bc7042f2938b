// Package cache implements the caching facade: get-or-compute with mtime
// validation, single-flight per key, and dependency-aware invalidation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
	"go.trai.ch/zerr"
)

// Cache coordinates entry lookup, validation, computation, and invalidation.
// A per-key mutex guarantees a given key is computed at most once at a time;
// concurrent gets for the same key serialize, with later arrivals served
// from the entry the first one stored.
type Cache struct {
	store    ports.EntryStore
	resolver ports.WatchResolver
	sink     ports.EventSink
	tracer   ports.Tracer
	logger   ports.Logger
	graph    *domain.Graph
	watches  map[string][]string
	groups   map[string][]string

	guard sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a cache facade over the given store and resolver. The graph
// and watch sets come from validated configuration and are never mutated.
func New(cfg *domain.Config, store ports.EntryStore, resolver ports.WatchResolver, sink ports.EventSink, tracer ports.Tracer, logger ports.Logger) *Cache {
	return &Cache{
		store:    store,
		resolver: resolver,
		sink:     sink,
		tracer:   tracer,
		logger:   logger,
		graph:    cfg.Graph,
		watches:  cfg.Watches(),
		groups:   cfg.Groups(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex for a key, creating it on first use. The guard
// is held only for the map access, never across a computation.
func (c *Cache) keyLock(key string) *sync.Mutex {
	c.guard.Lock()
	defer c.guard.Unlock()

	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}

// Get returns the value for a key, computing it if the stored entry is
// absent, stale against the watched paths, or force is set. recomputed
// reports whether a computation ran. A failed computation leaves any
// previous entry in place so readers keep the last known good value.
func (c *Cache) Get(ctx context.Context, compute ports.Computable, force bool) (value json.RawMessage, recomputed bool, err error) {
	key := compute.Key()
	if !c.graph.Has(key) {
		return nil, false, zerr.With(domain.ErrUnknownKey, "key", key)
	}

	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	maxMtime, err := c.resolver.MaxMtime(c.watches[key])
	if err != nil {
		return nil, false, zerr.Wrap(err, "resolve watch mtimes")
	}

	entry, err := c.store.Get(key)
	if err != nil {
		return nil, false, err
	}

	if entry != nil && !force && entry.ValidAgainst(maxMtime) {
		c.sink.Publish(domain.EventCacheHit, key, entry.Value, domain.WithMeta(map[string]any{
			"computedAt": entry.ComputedAt.Unix(),
		}))
		return entry.Value, false, nil
	}

	reason := domain.MissAbsent
	switch {
	case force:
		reason = domain.MissForced
	case entry != nil:
		reason = domain.MissExpired
	}
	c.sink.Publish(domain.EventCacheMiss, key, nil, domain.WithMeta(map[string]any{
		"reason": string(reason),
	}))

	spanCtx, span := c.tracer.Start(ctx, "cache.compute")
	span.SetAttribute("cache.key", key)
	span.SetAttribute("cache.miss_reason", string(reason))
	defer span.End()

	started := time.Now()
	value, err = compute.Compute(spanCtx)
	elapsed := time.Since(started)

	if err != nil {
		span.RecordError(err)
		c.sink.Publish(domain.EventCacheError, key, nil, domain.WithError(err), domain.WithDuration(elapsed))
		c.logger.Error(zerr.With(zerr.Wrap(err, "probe computation failed"), "key", key))
		return nil, false, zerr.Wrap(err, fmt.Sprintf("compute %q", key))
	}

	fresh := domain.Entry{
		Key:         key,
		Value:       value,
		ComputedAt:  started,
		SourceMtime: maxMtime,
		Elapsed:     elapsed,
	}
	if putErr := c.store.Put(fresh); putErr != nil {
		c.logger.Error(zerr.With(putErr, "key", key))
	}

	c.sink.Publish(domain.EventCacheDone, key, value, domain.WithDuration(elapsed))
	return value, true, nil
}

// Invalidate removes the entry for a single key and publishes cache:bust.
// Invalidating a key with no stored entry still publishes, so observers see
// every bust request.
func (c *Cache) Invalidate(key string) error {
	if !c.graph.Has(key) {
		return zerr.With(domain.ErrUnknownKey, "key", key)
	}
	c.bust(key, nil)
	return nil
}

// InvalidateCascade removes the entry for a key and every key reachable from
// it in the dependency graph. Returns the busted keys in deterministic order.
func (c *Cache) InvalidateCascade(origin string) ([]string, error) {
	if !c.graph.Has(origin) {
		return nil, zerr.With(domain.ErrUnknownKey, "key", origin)
	}
	return c.cascade([]string{origin}, map[string]any{"cascade": true, "origin": origin}), nil
}

// InvalidateGroup resolves the group to its member keys and busts each
// member together with everything reachable from it. Scope busts go through
// the same cascade primitive as single-key busts, so dependents of group
// members are invalidated too.
func (c *Cache) InvalidateGroup(group string) ([]string, error) {
	keys, ok := c.groups[group]
	if !ok {
		return nil, zerr.With(domain.ErrGroupNotFound, "group", group)
	}
	return c.cascade(keys, map[string]any{"group": group}), nil
}

// InvalidateAll busts every key in the graph.
func (c *Cache) InvalidateAll() []string {
	return c.cascade(c.graph.Keys(), map[string]any{"all": true})
}

// cascade busts the union of everything reachable from the origins, each key
// at most once, in sorted order.
func (c *Cache) cascade(origins []string, meta map[string]any) []string {
	visited := make(map[string]bool)
	for _, origin := range origins {
		for _, key := range c.graph.Reachable(origin) {
			visited[key] = true
		}
	}

	busted := make([]string, 0, len(visited))
	for key := range visited {
		busted = append(busted, key)
	}
	sort.Strings(busted)
	for _, key := range busted {
		c.bust(key, meta)
	}
	return busted
}

// bust removes the stored entry and publishes cache:bust. A failed delete is
// logged but the event still goes out: the entry is logically gone once the
// bust is decided, and a lingering document row is repaired by the next Put.
func (c *Cache) bust(key string, meta map[string]any) {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := c.store.Delete(key); err != nil {
		c.logger.Error(zerr.With(zerr.Wrap(err, "delete entry"), "key", key))
	}

	opts := []domain.EventOption{}
	if meta != nil {
		opts = append(opts, domain.WithMeta(meta))
	}
	c.sink.Publish(domain.EventCacheBust, key, nil, opts...)
}

// Snapshot returns every stored entry that is still valid against its
// watched paths, keyed by cache key. Stale entries are omitted rather than
// deleted; a later get or the staleness watcher handles them.
func (c *Cache) Snapshot() (map[string]json.RawMessage, error) {
	entries, err := c.store.Entries()
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]json.RawMessage, len(entries))
	for _, entry := range entries {
		maxMtime, err := c.resolver.MaxMtime(c.watches[entry.Key])
		if err != nil {
			return nil, zerr.Wrap(err, "resolve watch mtimes")
		}
		if entry.ValidAgainst(maxMtime) {
			snapshot[entry.Key] = entry.Value
		}
	}
	return snapshot, nil
}
