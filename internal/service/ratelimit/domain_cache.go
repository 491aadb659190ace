package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// DomainConfigs is the read-only domain configuration collaborator.
type DomainConfigs interface {
	GetDomain(ctx context.Context, domainID string) (*model.Domain, error)
}

const domainCacheSize = 4096

// DomainCache is a cache-aside wrapper with a short TTL. It only saves lookups;
// dropping it at any time is always safe.
type DomainCache struct {
	source DomainConfigs
	cache  *expirable.LRU[string, *model.Domain]
}

func NewDomainCache(source DomainConfigs, ttl time.Duration) *DomainCache {
	return &DomainCache{
		source: source,
		cache:  expirable.NewLRU[string, *model.Domain](domainCacheSize, nil, ttl),
	}
}

func (c *DomainCache) Get(ctx context.Context, domainID string) (*model.Domain, error) {
	// [HOT_PATH]
	if d, ok := c.cache.Get(domainID); ok {
		return d, nil
	}

	d, err := c.source.GetDomain(ctx, domainID)
	if err != nil {
		return nil, fmt.Errorf("domain config %s: %w", domainID, err)
	}
	if d == nil {
		d = &model.Domain{ID: domainID}
	}

	c.cache.Add(domainID, d)
	return d, nil
}

func (c *DomainCache) Invalidate(domainID string) {
	c.cache.Remove(domainID)
}

func (c *DomainCache) Purge() {
	c.cache.Purge()
}
