package lrucache

import (
	"sync"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// LRUCache is a least-recently-used cache for any type
// that's able to be indexed by DomainHash. It is safe for concurrent use,
// since stores are read by concurrent queries.
type LRUCache struct {
	lock     sync.Mutex
	cache    map[externalapi.DomainHash]interface{}
	capacity int
}

// New creates a new LRUCache
func New(capacity int, preallocate bool) *LRUCache {
	var cache map[externalapi.DomainHash]interface{}
	if preallocate {
		cache = make(map[externalapi.DomainHash]interface{}, capacity+1)
	} else {
		cache = make(map[externalapi.DomainHash]interface{})
	}
	return &LRUCache{
		cache:    cache,
		capacity: capacity,
	}
}

// Add adds an entry to the LRUCache
func (c *LRUCache) Add(key *externalapi.DomainHash, value interface{}) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.cache[*key] = value
	if len(c.cache) > c.capacity {
		c.evictRandom()
	}
}

// Get returns the entry for the given key, or (nil, false) otherwise
func (c *LRUCache) Get(key *externalapi.DomainHash) (interface{}, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	value, ok := c.cache[*key]
	return value, ok
}

// Has returns whether the LRUCache contains the given key
func (c *LRUCache) Has(key *externalapi.DomainHash) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	_, ok := c.cache[*key]
	return ok
}

// Remove removes the entry for the the given key. Does nothing if
// the entry does not exist
func (c *LRUCache) Remove(key *externalapi.DomainHash) {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.cache, *key)
}

func (c *LRUCache) evictRandom() {
	for key := range c.cache {
		delete(c.cache, key)
		return
	}
}
