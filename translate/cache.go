package translate

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedService memoizes successful results of another Service for the
// lifetime of the process. Failures are never cached.
type CachedService struct {
	next  Service
	cache *lru.Cache[string, Result]
}

// NewCachedService wraps next with an LRU cache holding up to size entries.
func NewCachedService(next Service, size int) (*CachedService, error) {
	cache, err := lru.New[string, Result](size)
	if err != nil {
		return nil, err
	}
	return &CachedService{next: next, cache: cache}, nil
}

// Translate implements Service.
func (c *CachedService) Translate(ctx context.Context, text string) (Result, error) {
	if res, ok := c.cache.Get(text); ok {
		return res, nil
	}
	res, err := c.next.Translate(ctx, text)
	if err != nil {
		return Result{}, err
	}
	c.cache.Add(text, res)
	return res, nil
}

// Len returns the number of cached results.
func (c *CachedService) Len() int { return c.cache.Len() }

// Purge drops every cached result.
func (c *CachedService) Purge() { c.cache.Purge() }
