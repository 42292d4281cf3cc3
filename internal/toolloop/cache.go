package toolloop

import (
	"container/list"
	"sync"

	"github.com/agentic/runtime/internal/runtime/types"
)

// resultCache is a fixed-capacity LRU keyed on CacheKey(name, args),
// generalized from the teacher's TTL-based DedupeCache (internal/cache/
// dedupe.go) to an eviction-by-recency cache of actual ToolResult values
// rather than a bare seen-before timestamp.
type resultCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type cacheEntry struct {
	key    string
	result types.ToolResult
}

func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &resultCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *resultCache) get(key string) (types.ToolResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return types.ToolResult{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).result, true
}

func (c *resultCache) put(key string, result types.ToolResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).result = result
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, result: result})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}
