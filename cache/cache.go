package cache

import (
	"context"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jcailloux/relais-core/entity"
	"github.com/jcailloux/relais-core/querykey"
	"github.com/jcailloux/relais-core/reactor"
	"github.com/joeycumines/logiface"
)

// Cache is the per-reactor artifact store from spec.md 4.9. All exported
// methods are safe to call from any goroutine; the actual artifact
// production a miss triggers runs as a reactor.Task on rt's loop thread,
// like every suspension point elsewhere in this module.
type Cache[T any] struct {
	rt       *reactor.Context
	log      *logiface.Logger[logiface.Event]
	capacity int
	sizeFn   SizeFunc[T]

	mu        sync.Mutex
	used      int
	entries   map[uint64]*cacheEntry[T]
	probation *lru.LRU[uint64, *cacheEntry[T]]
	protected *lru.LRU[uint64, *cacheEntry[T]]
	ghosts    *lru.LRU[uint64, *ghostRecord]
	tagIndex  map[string]map[uint64]struct{}
	inflight  map[uint64]*inflightEntry[T]
}

// New builds a Cache with the given total-byte capacity and ghost-set
// size. sizeFn defaults to the artifact's binary view length when nil.
func New[T any](rt *reactor.Context, capacity, ghostCapacity int, sizeFn SizeFunc[T], log *logiface.Logger[logiface.Event]) *Cache[T] {
	if sizeFn == nil {
		sizeFn = func(w *entity.Wrapper[T]) int { return len(w.Binary()) }
	}
	if ghostCapacity <= 0 {
		ghostCapacity = 1
	}
	c := &Cache[T]{
		rt:       rt,
		log:      log,
		capacity: capacity,
		sizeFn:   sizeFn,
		entries:  make(map[uint64]*cacheEntry[T]),
		tagIndex: make(map[string]map[uint64]struct{}),
		inflight: make(map[uint64]*inflightEntry[T]),
	}
	// probation/protected are never bounded by entry count, only by the
	// total-byte budget this Cache enforces itself; math.MaxInt32 is
	// effectively "unbounded" for simplelru's own size check.
	c.probation, _ = lru.NewLRU[uint64, *cacheEntry[T]](math.MaxInt32, nil)
	c.protected, _ = lru.NewLRU[uint64, *cacheEntry[T]](math.MaxInt32, nil)
	c.ghosts, _ = lru.NewLRU[uint64, *ghostRecord](ghostCapacity, nil)
	return c
}

// GetOrProduce implements spec.md 4.9.1: a cache hit returns immediately;
// a miss with an in-flight producer attaches to it; otherwise exactly one
// producer Task is spawned and shared by every caller that arrives while
// it runs.
func (c *Cache[T]) GetOrProduce(key querykey.QueryCacheKey, tags []string, producer Producer[T]) *reactor.Task[*entity.Wrapper[T]] {
	return reactor.New(func(ctx context.Context, rt *reactor.Context, resolve func(*entity.Wrapper[T], error)) {
		c.mu.Lock()
		if e, ok := c.entries[key.Hash]; ok && e.key.Equal(key) {
			c.touch(e)
			w := e.artifact
			c.mu.Unlock()
			resolve(w, nil)
			return
		}

		if infl, ok := c.inflight[key.Hash]; ok && infl.key.Equal(key) {
			task := infl.task
			c.mu.Unlock()
			task.Run(ctx, rt, resolve)
			return
		}

		// a miss against a known ghost counts toward its admission bias,
		// per spec.md 4.9.2 ("incremented on each miss whose fingerprint
		// matches a ghost").
		if g, ok := c.ghosts.Get(key.Hash); ok {
			g.hits++
		}

		task := producer()
		infl := &inflightEntry[T]{key: key, task: task, tags: tags}
		c.inflight[key.Hash] = infl
		c.mu.Unlock()

		// a dedicated subscription that always runs, regardless of
		// whether the caller that spawned the producer later cancels —
		// spec.md 5: "the producer continues if any other waiter
		// remains, otherwise it is allowed to complete and populate the
		// cache (no poisoning)."
		task.Run(context.Background(), rt, func(w *entity.Wrapper[T], err error) {
			c.onProducerSettled(key, infl, w, err)
		})
		task.Run(ctx, rt, resolve)
	})
}

func (c *Cache[T]) onProducerSettled(key querykey.QueryCacheKey, infl *inflightEntry[T], w *entity.Wrapper[T], err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key.Hash)
	if err != nil {
		return
	}
	if infl.invalidated {
		logEvent(c.log, "cache: producer settled after tag invalidation, artifact not inserted")
		return
	}
	c.insert(key, infl.tags, w)
}

// touch records an access: a probation entry graduates to protected, a
// protected entry just refreshes its recency.
func (c *Cache[T]) touch(e *cacheEntry[T]) {
	if e.segment == segmentProbation {
		c.probation.Remove(e.key.Hash)
		e.segment = segmentProtected
		c.protected.Add(e.key.Hash, e)
		return
	}
	c.protected.Get(e.key.Hash)
}

func (c *Cache[T]) insert(key querykey.QueryCacheKey, tags []string, w *entity.Wrapper[T]) {
	size := c.sizeFn(w)
	for c.used+size > c.capacity && c.evictOne() {
	}

	seg := segmentProbation
	if g, ok := c.ghosts.Peek(key.Hash); ok && g.hits >= 2 {
		seg = segmentProtected
	}

	e := &cacheEntry[T]{key: key, artifact: w, tags: tags, size: size, segment: seg}
	c.entries[key.Hash] = e
	c.used += size
	if seg == segmentProtected {
		c.protected.Add(key.Hash, e)
	} else {
		c.probation.Add(key.Hash, e)
	}
	for _, tag := range tags {
		set, ok := c.tagIndex[tag]
		if !ok {
			set = make(map[uint64]struct{})
			c.tagIndex[tag] = set
		}
		set[key.Hash] = struct{}{}
	}
}

// evictOne takes from the tail of probation first, then protected, per
// spec.md 4.9.2. It reports false when both segments are empty.
func (c *Cache[T]) evictOne() bool {
	if hash, e, ok := c.probation.RemoveOldest(); ok {
		c.retireEntry(hash, e)
		return true
	}
	if hash, e, ok := c.protected.RemoveOldest(); ok {
		c.retireEntry(hash, e)
		return true
	}
	return false
}

// retireEntry removes e from the main index and tag index, drops the
// cache's hold on its artifact, and leaves a ghost record behind.
func (c *Cache[T]) retireEntry(hash uint64, e *cacheEntry[T]) {
	delete(c.entries, hash)
	c.used -= e.size
	c.untag(hash, e.tags)
	e.artifact.ReleaseCaches()

	rec, ok := c.ghosts.Get(hash)
	if !ok {
		rec = &ghostRecord{}
	}
	c.ghosts.Add(hash, rec)
}

func (c *Cache[T]) untag(hash uint64, tags []string) {
	for _, tag := range tags {
		set, ok := c.tagIndex[tag]
		if !ok {
			continue
		}
		delete(set, hash)
		if len(set) == 0 {
			delete(c.tagIndex, tag)
		}
	}
}

// InvalidateTag implements spec.md 4.9.3: every CacheEntry carrying tag is
// removed from the main index and left behind as a ghost, in
// O(#entries-with-tag) via the secondary tag index. Any producer currently
// in flight whose declared tags include tag is marked so its eventual
// success does not populate the cache.
func (c *Cache[T]) InvalidateTag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hashes, ok := c.tagIndex[tag]; ok {
		for hash := range hashes {
			e, ok := c.entries[hash]
			if !ok {
				continue
			}
			delete(c.entries, hash)
			c.used -= e.size
			c.untag(hash, e.tags)
			e.artifact.ReleaseCaches()
			if e.segment == segmentProbation {
				c.probation.Remove(hash)
			} else {
				c.protected.Remove(hash)
			}
			rec, ok := c.ghosts.Get(hash)
			if !ok {
				rec = &ghostRecord{}
			}
			c.ghosts.Add(hash, rec)
		}
		delete(c.tagIndex, tag)
	}

	for _, infl := range c.inflight {
		for _, t := range infl.tags {
			if t == tag {
				infl.invalidated = true
				break
			}
		}
	}
}

// Len reports the number of entries currently held (probation + protected).
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Used reports the total byte weight of entries currently held.
func (c *Cache[T]) Used() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// GhostHits reports the current hit counter for a ghost fingerprint, or
// (0, false) if it has no ghost record.
func (c *Cache[T]) GhostHits(hash uint64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.ghosts.Peek(hash)
	if !ok {
		return 0, false
	}
	return g.hits, true
}
