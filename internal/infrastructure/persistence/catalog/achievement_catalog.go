// Package catalog keeps an in-process read model of the static achievement
// catalog. The catalog changes only when the seed runs, so every evaluation
// and listing reads from memory and the store is hit once per TTL.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/afterhours/nightlife-core/internal/domain/achievement"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CATALOG - cached read model
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultTTL is how long a loaded view stays fresh.
	DefaultTTL = 5 * time.Minute

	keyAll         = "all"
	keyCategoryFmt = "category:%s"
	cacheSize      = 16
)

// snapshot is one loaded view of the catalog.
type snapshot struct {
	items    []achievement.Achievement
	byID     map[string]achievement.Achievement
	loadedAt time.Time
}

// AchievementCatalog implements achievement.CatalogSource on top of a slower
// source. Concurrent misses collapse into a single load.
type AchievementCatalog struct {
	source achievement.CatalogSource
	cache  *lru.Cache
	group  singleflight.Group
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	version int64
}

// NewAchievementCatalog wraps source. ttl <= 0 selects DefaultTTL.
func NewAchievementCatalog(source achievement.CatalogSource, ttl time.Duration, logger *slog.Logger) (*AchievementCatalog, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to create cache: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AchievementCatalog{
		source: source,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "achievement_catalog"),
	}, nil
}

// ListAchievements returns the whole catalog ordered by requirement then id.
func (c *AchievementCatalog) ListAchievements(ctx context.Context) ([]achievement.Achievement, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return clone(snap.items), nil
}

// ByCategory returns the achievements of one category.
func (c *AchievementCatalog) ByCategory(ctx context.Context, cat achievement.Category) ([]achievement.Achievement, error) {
	if !cat.IsValid() {
		return nil, shared.ErrInvalidCategory
	}

	key := fmt.Sprintf(keyCategoryFmt, cat)
	if v, ok := c.cache.Get(key); ok {
		if snap := v.(*snapshot); c.fresh(snap) {
			return clone(snap.items), nil
		}
	}

	all, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	var items []achievement.Achievement
	for _, a := range all.items {
		if a.Category == cat {
			items = append(items, a)
		}
	}
	c.cache.Add(key, &snapshot{items: items, loadedAt: all.loadedAt})
	return clone(items), nil
}

// Get returns a single achievement by id.
func (c *AchievementCatalog) Get(ctx context.Context, id string) (*achievement.Achievement, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	a, ok := snap.byID[id]
	if !ok {
		return nil, shared.ErrAchievementNotFound
	}
	return &a, nil
}

// Invalidate drops every cached view. The next read reloads.
func (c *AchievementCatalog) Invalidate() {
	c.cache.Purge()
	c.mu.Lock()
	c.version++
	c.mu.Unlock()
}

// Version is incremented on every reload and invalidation.
func (c *AchievementCatalog) Version() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *AchievementCatalog) load(ctx context.Context) (*snapshot, error) {
	if v, ok := c.cache.Get(keyAll); ok {
		if snap := v.(*snapshot); c.fresh(snap) {
			return snap, nil
		}
	}

	v, err, _ := c.group.Do(keyAll, func() (any, error) {
		items, err := c.source.ListAchievements(ctx)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].RequirementValue != items[j].RequirementValue {
				return items[i].RequirementValue < items[j].RequirementValue
			}
			return items[i].ID < items[j].ID
		})

		snap := &snapshot{
			items:    items,
			byID:     make(map[string]achievement.Achievement, len(items)),
			loadedAt: c.now(),
		}
		for _, a := range items {
			snap.byID[a.ID] = a
		}

		// Category views derive from "all" and must not outlive it.
		c.cache.Purge()
		c.cache.Add(keyAll, snap)

		c.mu.Lock()
		c.version++
		c.mu.Unlock()

		c.logger.Debug("catalog loaded", "achievements", len(items))
		return snap, nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: load failed: %w", err)
	}
	return v.(*snapshot), nil
}

func (c *AchievementCatalog) fresh(s *snapshot) bool {
	return c.now().Sub(s.loadedAt) < c.ttl
}

func clone(items []achievement.Achievement) []achievement.Achievement {
	out := make([]achievement.Achievement, len(items))
	copy(out, items)
	return out
}
