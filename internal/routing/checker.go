package routing

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const checkerCacheSize = 1024

// Checker runs RouteCheck against a live route tree, remembering results per
// path for a fixed TTL.
type Checker struct {
	routes chi.Routes
	cache  *expirable.LRU[string, bool]
}

// NewChecker builds a Checker. A non-positive ttl disables caching.
func NewChecker(routes chi.Routes, ttl time.Duration) *Checker {
	c := &Checker{routes: routes}
	if ttl > 0 {
		c.cache = expirable.NewLRU[string, bool](checkerCacheSize, nil, ttl)
	}
	return c
}

// Check reports whether path is handled by a mounted route.
func (c *Checker) Check(path string) bool {
	if c.cache != nil {
		if found, ok := c.cache.Get(path); ok {
			return found
		}
	}

	found := RouteCheck(c.routes, path)
	if c.cache != nil {
		c.cache.Add(path, found)
	}
	return found
}

// Purge drops every cached result.
func (c *Checker) Purge() {
	if c.cache != nil {
		c.cache.Purge()
	}
}
