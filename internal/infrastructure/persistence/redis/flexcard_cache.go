package redis

import (
	"context"
	"errors"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/flexcard"
)

// FlexCardCache caches public card views by share code.
type FlexCardCache struct {
	cache *Cache
}

// NewFlexCardCache creates the cache.
func NewFlexCardCache(cache *Cache) *FlexCardCache {
	return &FlexCardCache{cache: cache}
}

// GetFlexCard returns the cached view, or nil on a miss.
func (c *FlexCardCache) GetFlexCard(ctx context.Context, shareCode string) (*flexcard.PublicView, error) {
	var view flexcard.PublicView
	if err := c.cache.Get(ctx, FlexCardKey(shareCode), &view); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &view, nil
}

// SetFlexCard stores the view for ttl.
func (c *FlexCardCache) SetFlexCard(ctx context.Context, view flexcard.PublicView, ttl time.Duration) error {
	return c.cache.Set(ctx, FlexCardKey(view.ShareCode), view, ttl)
}
