package cache

import "sync"

// Cache is a generic thread-safe LRU cache with a fixed capacity.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*lruNode[K, V]
	lru      lruList[K, V]
	capacity int
	onEvict  func(K, V)

	hits   uint64
	misses uint64
}

// New creates a cache holding at most capacity entries.
// A capacity below 1 is treated as 1.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	return &Cache[K, V]{
		entries:  make(map[K]*lruNode[K, V]),
		capacity: max(capacity, 1),
	}
}

// OnEvict registers fn to be called, with the lock released, for every entry
// dropped by eviction or Purge.
func (c *Cache[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// Get retrieves a value from the cache.
// Returns (value, true) if found, (zero, false) otherwise.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.lru.moveToFront(node)
	return node.value, true
}

// GetOrCreate returns the cached value or creates, stores and returns it.
// create runs under the lock, so it is called at most once per missing key.
// If create panics nothing is stored and the cache stays usable.
func (c *Cache[K, V]) GetOrCreate(key K, create func() V) V {
	value, evicted, fn := c.getOrCreate(key, create)
	if fn != nil {
		for _, n := range evicted {
			fn(n.key, n.value)
		}
	}
	return value
}

func (c *Cache[K, V]) getOrCreate(key K, create func() V) (V, []*lruNode[K, V], func(K, V)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.entries[key]; ok {
		c.hits++
		c.lru.moveToFront(node)
		return node.value, nil, nil
	}
	c.misses++
	value := create()
	return value, c.insert(key, value), c.onEvict
}

// insert stores a new entry and returns the nodes evicted to make room.
// Caller must hold c.mu.
func (c *Cache[K, V]) insert(key K, value V) []*lruNode[K, V] {
	node := &lruNode[K, V]{key: key, value: value}
	c.entries[key] = node
	c.lru.pushFront(node)

	var evicted []*lruNode[K, V]
	for c.lru.len > c.capacity {
		oldest := c.lru.tail
		c.lru.unlink(oldest)
		delete(c.entries, oldest.key)
		evicted = append(evicted, oldest)
	}
	return evicted
}

// Purge removes every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	var dropped []*lruNode[K, V]
	for n := c.lru.head; n != nil; n = n.next {
		dropped = append(dropped, n)
	}
	c.entries = make(map[K]*lruNode[K, V])
	c.lru = lruList[K, V]{}
	fn := c.onEvict
	c.mu.Unlock()

	if fn != nil {
		for _, n := range dropped {
			fn(n.key, n.value)
		}
	}
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.len
}

// Stats contains cache statistics.
type Stats struct {
	Len      int
	Capacity int
	Hits     uint64
	Misses   uint64
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Len: c.lru.len, Capacity: c.capacity, Hits: c.hits, Misses: c.misses}
}
