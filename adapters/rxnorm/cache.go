package rxnorm

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"faersignal/domain/faers"
	"faersignal/ports"
)

// LRUCache is a bounded, concurrency-safe ports.NameCache.
type LRUCache struct {
	cache *lru.Cache[string, faers.Normalization]
}

var _ ports.NameCache = (*LRUCache)(nil)

// NewLRUCache creates a cache holding at most size names.
func NewLRUCache(size int) (*LRUCache, error) {
	c, err := lru.New[string, faers.Normalization](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create name cache: %w", err)
	}
	return &LRUCache{cache: c}, nil
}

func (c *LRUCache) Get(key string) (faers.Normalization, bool) {
	return c.cache.Get(key)
}

func (c *LRUCache) Add(key string, value faers.Normalization) {
	c.cache.Add(key, value)
}

func (c *LRUCache) Len() int {
	return c.cache.Len()
}
