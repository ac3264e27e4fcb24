package sqlite

import (
	"context"
	"sync"

	"github.com/couchcryptid/nutrient-calc/internal/domain"
	"github.com/couchcryptid/nutrient-calc/internal/observability"
)

// Repository is the full sample store surface.
type Repository interface {
	domain.SampleStore
	Put(ctx context.Context, sample domain.Sample) error
	List(ctx context.Context) ([]domain.Sample, error)
	Delete(ctx context.Context, name string) error
}

// CachedStore wraps a Repository with an in-memory LRU cache of sample
// lookups. Writes go through to the inner store and invalidate the entry.
type CachedStore struct {
	inner   Repository
	cache   *lruCache
	metrics *observability.Metrics

	// gen is bumped by every write. A value read from inner is only cached if
	// no write happened while it was being read.
	mu  sync.Mutex
	gen uint64
}

// NewCachedStore creates a cache decorator around a sample repository.
func NewCachedStore(inner Repository, maxEntries int, metrics *observability.Metrics) *CachedStore {
	return &CachedStore{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedStore) Sample(ctx context.Context, name string) (domain.Sample, error) {
	if sample, ok := c.cache.get(name); ok {
		c.metrics.SampleCache.WithLabelValues("hit").Inc()
		return cloneSample(sample), nil
	}
	c.metrics.SampleCache.WithLabelValues("miss").Inc()

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	sample, err := c.inner.Sample(ctx, name)
	if err != nil {
		// Misses are not cached so a sample added later is found.
		return sample, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.cache.put(name, cloneSample(sample))
	}
	c.mu.Unlock()
	return sample, nil
}

func (c *CachedStore) Put(ctx context.Context, sample domain.Sample) error {
	err := c.inner.Put(ctx, sample)
	c.invalidate(sample.Name)
	return err
}

func (c *CachedStore) List(ctx context.Context) ([]domain.Sample, error) {
	return c.inner.List(ctx)
}

func (c *CachedStore) Delete(ctx context.Context, name string) error {
	err := c.inner.Delete(ctx, name)
	c.invalidate(name)
	return err
}

// invalidate drops the cached entry after a write. It runs even when the
// write failed, since the inner store may have applied it partially.
func (c *CachedStore) invalidate(name string) {
	c.mu.Lock()
	c.gen++
	c.cache.remove(name)
	c.mu.Unlock()
}

// cloneSample copies the ion map so callers cannot mutate cached entries.
func cloneSample(s domain.Sample) domain.Sample {
	s.Ions = s.Ions.Clone()
	return s
}

// lruCache is a simple thread-safe LRU cache for samples.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.Sample
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Sample{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.unlink(e)
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
