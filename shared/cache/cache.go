package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a keyed cache whose entries expire after a fixed TTL.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Invalidate(key string)
}

// LRU is a size-bounded Cache backed by an expirable LRU. It is safe for concurrent use.
type LRU[V any] struct {
	lru *expirable.LRU[string, V]
}

var _ Cache[int] = (*LRU[int])(nil)

// NewLRU creates a cache holding at most size entries, each living for ttl.
func NewLRU[V any](size int, ttl time.Duration) *LRU[V] {
	return &LRU[V]{
		lru: expirable.NewLRU[string, V](size, nil, ttl),
	}
}

func (c *LRU[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

func (c *LRU[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

func (c *LRU[V]) Invalidate(key string) {
	c.lru.Remove(key)
}
