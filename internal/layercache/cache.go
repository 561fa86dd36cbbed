// Package layercache memoizes rendered layer responses. Entries expire on a
// TTL and are purged per layer when a catalog change event arrives; a miss
// is never an error.
package layercache

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ecovector/mosquito-atlas/internal/core/observability"
)

type Cache struct {
	lru *expirable.LRU[string, []byte]
}

func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 128
	}
	return &Cache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Key derives the cache key for a layer and its canonical query text. The
// query text is hashed so arbitrarily long filter combinations stay
// fixed-width.
func Key(layer, canonicalQuery string) string {
	sum := xxhash.Sum64String(canonicalQuery)
	return fmt.Sprintf("%s:q=%016x", layer, sum)
}

func (c *Cache) Get(key string) ([]byte, bool) {
	body, ok := c.lru.Get(key)
	if ok {
		observability.IncLayerCacheHit()
	} else {
		observability.IncLayerCacheMiss()
	}
	return body, ok
}

func (c *Cache) Put(key string, body []byte) {
	c.lru.Add(key, body)
}

// PurgeLayer drops every cached response for the layer.
func (c *Cache) PurgeLayer(layer string) int {
	prefix := layer + ":"
	n := 0
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			if c.lru.Remove(k) {
				n++
			}
		}
	}
	return n
}

// Purge drops everything.
func (c *Cache) Purge() {
	c.lru.Purge()
}
