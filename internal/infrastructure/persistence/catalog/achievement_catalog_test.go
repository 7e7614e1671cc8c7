package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterhours/nightlife-core/internal/domain/achievement"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

type countingSource struct {
	calls atomic.Int32
	items []achievement.Achievement
	err   error
	delay time.Duration
}

func (s *countingSource) ListAchievements(context.Context) ([]achievement.Achievement, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]achievement.Achievement, len(s.items))
	copy(out, s.items)
	return out, nil
}

func sampleCatalog() []achievement.Achievement {
	return []achievement.Achievement{
		{ID: "night_owl", Name: "Night Owl", Category: achievement.CategoryLegendary, RequirementValue: 50},
		{ID: "first_night", Name: "First Night", Category: achievement.CategoryLoyalty, RequirementValue: 1},
		{ID: "globetrotter", Name: "Globetrotter", Category: achievement.CategoryExplorer, RequirementValue: 5},
	}
}

func TestAchievementCatalog_CachesUntilTTL(t *testing.T) {
	src := &countingSource{items: sampleCatalog()}
	c, err := NewAchievementCatalog(src, time.Minute, nil)
	require.NoError(t, err)

	now := time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	items, err := c.ListAchievements(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "first_night", items[0].ID, "ordered by requirement value")

	_, err = c.ListAchievements(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err = c.ListAchievements(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestAchievementCatalog_ReturnsCopies(t *testing.T) {
	c, err := NewAchievementCatalog(&countingSource{items: sampleCatalog()}, 0, nil)
	require.NoError(t, err)

	items, err := c.ListAchievements(context.Background())
	require.NoError(t, err)
	items[0].Name = "mutated"

	again, err := c.ListAchievements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "First Night", again[0].Name)
}

func TestAchievementCatalog_ConcurrentMissesLoadOnce(t *testing.T) {
	src := &countingSource{items: sampleCatalog(), delay: 50 * time.Millisecond}
	c, err := NewAchievementCatalog(src, time.Minute, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ListAchievements(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestAchievementCatalog_ByCategoryAndGet(t *testing.T) {
	c, err := NewAchievementCatalog(&countingSource{items: sampleCatalog()}, time.Minute, nil)
	require.NoError(t, err)
	ctx := context.Background()

	explorer, err := c.ByCategory(ctx, achievement.CategoryExplorer)
	require.NoError(t, err)
	require.Len(t, explorer, 1)
	assert.Equal(t, "globetrotter", explorer[0].ID)

	_, err = c.ByCategory(ctx, "nope")
	assert.ErrorIs(t, err, shared.ErrInvalidCategory)

	a, err := c.Get(ctx, "night_owl")
	require.NoError(t, err)
	assert.Equal(t, "Night Owl", a.Name)

	_, err = c.Get(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestAchievementCatalog_InvalidateAndErrors(t *testing.T) {
	src := &countingSource{items: sampleCatalog()}
	c, err := NewAchievementCatalog(src, time.Hour, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.ListAchievements(ctx)
	require.NoError(t, err)
	v := c.Version()

	c.Invalidate()
	assert.Greater(t, c.Version(), v)

	src.err = errors.New("db down")
	_, err = c.ListAchievements(ctx)
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, int32(2), src.calls.Load())
}
