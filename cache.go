package akapi

import (
	"encoding/json"
	"hash/fnv"
	"sync"
)

// ResultCache stores resolved results by request identity. Entries live
// until deleted; there is no expiry and no size bound.
type ResultCache interface {
	Get(key string) (*Result, bool)
	Put(key string, result *Result)
	Delete(key string)
	Clear()
	Len() int
}

// InMemoryCache is a sharded map safe for concurrent use.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*Result
}

// NewInMemoryCache returns an empty cache.
func NewInMemoryCache() *InMemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*Result),
		}
	}
	return &InMemoryCache{
		shards:    shards,
		numShards: numShards,
	}
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

func (c *InMemoryCache) Get(key string) (*Result, bool) {
	shard := c.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	result, ok := shard.store[key]
	return result, ok
}

// Put stores result, replacing any earlier entry for key.
func (c *InMemoryCache) Put(key string, result *Result) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.store[key] = result
}

func (c *InMemoryCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*Result)
		shard.mu.Unlock()
	}
}

func (c *InMemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

// cloneResult returns a copy that shares no mutable state with r. A json
// Value is rebuilt from the raw body.
func cloneResult(r *Result) *Result {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Body != nil {
		cp.Body = append(json.RawMessage(nil), r.Body...)
		if r.Mode == ReceiveJSON {
			var value any
			if err := json.Unmarshal(cp.Body, &value); err == nil {
				cp.Value = value
			}
		}
	}
	return &cp
}
