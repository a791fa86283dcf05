package backend

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// VersionCache caches /api/version answers per API base so repeated status
// pings do not hit the service.
type VersionCache struct {
	ttl     time.Duration
	entries *expirable.LRU[string, string]
}

// NewVersionCache creates a cache holding up to size bases for ttl.
// A ttl <= 0 disables caching.
func NewVersionCache(size int, ttl time.Duration) *VersionCache {
	if size <= 0 {
		size = 8
	}
	return &VersionCache{
		ttl:     ttl,
		entries: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// Get returns the cached version for client's base or fetches a fresh one.
func (c *VersionCache) Get(ctx context.Context, client *Client) (string, error) {
	if c.ttl <= 0 {
		return client.Version(ctx)
	}

	key := client.Base()
	if v, ok := c.entries.Get(key); ok {
		return v, nil
	}

	v, err := client.Version(ctx)
	if err != nil {
		return "", err
	}
	c.entries.Add(key, v)
	return v, nil
}

// Invalidate drops the cached version for client's base.
func (c *VersionCache) Invalidate(client *Client) {
	c.entries.Remove(client.Base())
}
