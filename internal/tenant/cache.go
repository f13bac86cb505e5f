package tenant

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"reqsphere.io/internal/auth"
)

// Cache is an in-process L1 cache for subdomain lookups. Entries expire on a
// short TTL so renamed or deleted tenants converge quickly.
type Cache struct {
	c   *ristretto.Cache[string, *auth.Tenant]
	ttl time.Duration
}

// NewCache creates a ristretto-backed subdomain cache holding up to maxItems
// tenants.
func NewCache(maxItems int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, *auth.Tenant]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, ttl: ttl}, nil
}

// Get returns the cached tenant for a subdomain, if present.
func (c *Cache) Get(subdomain string) (*auth.Tenant, bool) {
	return c.c.Get(subdomain)
}

// Set stores a tenant under its subdomain. Each entry costs one unit.
func (c *Cache) Set(subdomain string, t *auth.Tenant) {
	c.c.SetWithTTL(subdomain, t, 1, c.ttl)
}

// Evict removes a subdomain entry, for use after tenant deletion or rename.
func (c *Cache) Evict(subdomain string) {
	c.c.Del(subdomain)
}

// Close releases cache resources.
func (c *Cache) Close() {
	c.c.Close()
}
