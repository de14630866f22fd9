package memory

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultMaxItems = 1000
	DefaultTTL      = 10 * time.Minute
)

type Config struct {
	MaxItems int
	TTL      time.Duration
}

// Cache - in-memory LRU с TTL. Вытеснение по размеру и по времени делает expirable.LRU,
// он же держит свою блокировку.
type Cache[V any] struct {
	lru *expirable.LRU[string, V]
}

func New[V any](cfg Config) *Cache[V] {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return &Cache[V]{
		lru: expirable.NewLRU[string, V](cfg.MaxItems, nil, cfg.TTL),
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

func (c *Cache[V]) Delete(key string) {
	c.lru.Remove(key)
}

func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
