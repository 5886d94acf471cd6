// Package cache implements C3: a string-keyed cache with tag-based bulk
// invalidation and singleflight-style load coalescing, used for event
// listing/detail responses (tags "events", "event:{id}", "listings",
// "analytics") and role-availability counts (tag "event:{id}").
package cache

import (
	"sync"
	"time"
)

type entry struct {
	val  any
	exp  time.Time
	tags []string
}

// Metrics is a point-in-time snapshot of cache effectiveness, exposed to
// Prometheus by the observability package.
type Metrics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// Cache is a mapping from string key to (value, expiresAt, tag-set). The
// zero value is not usable; construct with New.
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]entry

	// tagIndex maps a tag to the set of keys currently carrying it, so
	// InvalidateByTags doesn't need a full scan.
	tagIndex map[string]map[string]struct{}

	// inflight coalesces concurrent GetOrSet misses on the same key so the
	// loader runs at most once per miss.
	inflight map[string]*call

	hits, misses, evictions int64
}

type call struct {
	done chan struct{}
	val  any
	err  error
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Cache{
		ttl:      ttl,
		m:        make(map[string]entry),
		tagIndex: make(map[string]map[string]struct{}),
		inflight: make(map[string]*call),
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache) getLocked(key string) (any, bool) {
	e, ok := c.m[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.exp) {
		c.deleteLocked(key)
		c.evictions++
		c.misses++
		return nil, false
	}
	c.hits++
	return e.val, true
}

// Set stores val under key with the given ttl (0 means the cache default)
// and indexes it under every tag in tags.
func (c *Cache) Set(key string, val any, ttl time.Duration, tags ...string) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, val, ttl, tags)
}

func (c *Cache) setLocked(key string, val any, ttl time.Duration, tags []string) {
	c.m[key] = entry{val: val, exp: time.Now().Add(ttl), tags: tags}
	for _, tag := range tags {
		if c.tagIndex[tag] == nil {
			c.tagIndex[tag] = make(map[string]struct{})
		}
		c.tagIndex[tag][key] = struct{}{}
	}
}

// GetOrSet returns the cached value for key, or invokes loader exactly once
// per miss - concurrent callers for the same key block on the single
// in-flight load rather than each calling loader themselves. A loader error
// is surfaced to every waiter but nothing is cached.
func (c *Cache) GetOrSet(key string, ttl time.Duration, tags []string, loader func() (any, error)) (any, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	if v, ok := c.getLocked(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	if in, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-in.done
		return in.val, in.err
	}
	ca := &call{done: make(chan struct{})}
	c.inflight[key] = ca
	c.mu.Unlock()

	val, err := loader()
	ca.val, ca.err = val, err
	close(ca.done)

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil {
		c.setLocked(key, val, ttl, tags)
	}
	c.mu.Unlock()

	return val, err
}

// InvalidateByTags deletes every entry carrying any of the given tags.
func (c *Cache) InvalidateByTags(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range tags {
		for key := range c.tagIndex[tag] {
			c.deleteLocked(key)
		}
		delete(c.tagIndex, tag)
	}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(key)
}

// deleteLocked removes key from both the value map and every tag index
// bucket it was filed under. Caller must hold c.mu.
func (c *Cache) deleteLocked(key string) {
	e, ok := c.m[key]
	if !ok {
		return
	}
	delete(c.m, key)
	for _, tag := range e.tags {
		if bucket, ok := c.tagIndex[tag]; ok {
			delete(bucket, key)
			if len(bucket) == 0 {
				delete(c.tagIndex, tag)
			}
		}
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]entry)
	c.tagIndex = make(map[string]map[string]struct{})
}

func (c *Cache) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Metrics{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.m),
	}
}
