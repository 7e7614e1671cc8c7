package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterhours/nightlife-core/internal/domain/achievement"
	"github.com/afterhours/nightlife-core/internal/domain/flexcard"
	"github.com/afterhours/nightlife-core/internal/domain/quest"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
	"github.com/afterhours/nightlife-core/internal/domain/xp"
)

// ── fakes ───────────────────────────────────────────────────────────────────

type stubXPRepo struct {
	xp.Repository
	user    *xp.UserXP
	history []xp.Event
}

func (s stubXPRepo) Get(context.Context, string, time.Time) (*xp.UserXP, error) {
	return s.user, nil
}

func (s stubXPRepo) History(context.Context, string, int) ([]xp.Event, error) {
	return s.history, nil
}

type stubAchievementRepo struct {
	achievement.Repository
	catalog []achievement.Achievement
	earned  []achievement.UserAchievement
}

func (s stubAchievementRepo) ListAchievements(context.Context) ([]achievement.Achievement, error) {
	return s.catalog, nil
}

func (s stubAchievementRepo) ListEarned(context.Context, string) ([]achievement.UserAchievement, error) {
	return s.earned, nil
}

type stubQuestRepo struct {
	quest.Repository
	quests   []quest.PartyQuest
	progress []quest.Progress
}

func (s stubQuestRepo) ListActive(context.Context, time.Time) ([]quest.PartyQuest, error) {
	return s.quests, nil
}

func (s stubQuestRepo) ListProgress(context.Context, string) ([]quest.Progress, error) {
	return s.progress, nil
}

type stubTimelineRepo struct {
	timeline.Repository
	entries []timeline.Entry
}

func (s stubTimelineRepo) ListByUser(context.Context, string) ([]timeline.Entry, error) {
	return s.entries, nil
}

type stubFlexRepo struct {
	flexcard.Repository
	cards map[string]flexcard.FlexCard
	reads int
}

func (s *stubFlexRepo) GetByShareCode(_ context.Context, code string) (*flexcard.FlexCard, error) {
	s.reads++
	c, ok := s.cards[code]
	if !ok {
		return nil, shared.ErrFlexCardNotFound
	}
	return &c, nil
}

type mapCache struct {
	views map[string]flexcard.PublicView
}

func (m *mapCache) GetFlexCard(_ context.Context, code string) (*flexcard.PublicView, error) {
	v, ok := m.views[code]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *mapCache) SetFlexCard(_ context.Context, v flexcard.PublicView, _ time.Duration) error {
	m.views[v.ShareCode] = v
	return nil
}

// ── tests ───────────────────────────────────────────────────────────────────

func TestGetXP(t *testing.T) {
	u := xp.NewUserXP("u1")
	u.Apply(100)
	h := NewGetXPHandler(stubXPRepo{user: u})

	res, err := h.Handle(context.Background(), GetXPQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.XP.CurrentLevel)
	assert.Equal(t, xp.Progress{Current: 50, Needed: 150, Percentage: 33}, res.XP.Progress)
	assert.Equal(t, int64(200), res.XP.NextLevelAt)
	assert.NotNil(t, res.History)

	_, err = h.Handle(context.Background(), GetXPQuery{UserID: " "})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestListAchievements_MasksUnearnedSecrets(t *testing.T) {
	earnedAt := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	repo := stubAchievementRepo{
		catalog: []achievement.Achievement{
			{ID: "a1", Name: "First Night", Category: achievement.CategoryLoyalty, RequirementType: achievement.RequirementEventsAttended, RequirementValue: 1},
			{ID: "a2", Name: "Night Owl", Description: "5am club", Category: achievement.CategoryLegendary, IsSecret: true, RequirementValue: 5},
			{ID: "a3", Name: "Globetrotter", Category: achievement.CategoryExplorer, IsSecret: true, RequirementValue: 3},
		},
		earned: []achievement.UserAchievement{{ID: "ua1", UserID: "u1", AchievementID: "a3", EarnedAt: earnedAt}},
	}
	h := NewListAchievementsHandler(nil, repo)

	res, err := h.Handle(context.Background(), ListAchievementsQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, res.Achievements, 3)
	assert.Equal(t, 1, res.EarnedCount)
	assert.Equal(t, 3, res.TotalCount)

	secret := res.Achievements[1]
	assert.Equal(t, "???", secret.Name)
	assert.Equal(t, "Secret", secret.Description)
	assert.Nil(t, secret.RequirementValue)

	revealed := res.Achievements[2]
	assert.Equal(t, "Globetrotter", revealed.Name)
	assert.True(t, revealed.Earned)

	res, err = h.Handle(context.Background(), ListAchievementsQuery{UserID: "u1", EarnedOnly: true})
	require.NoError(t, err)
	require.Len(t, res.Achievements, 1)

	_, err = h.Handle(context.Background(), ListAchievementsQuery{UserID: "u1", Category: "nope"})
	assert.ErrorIs(t, err, shared.ErrInvalidCategory)
}

func TestListActiveQuests(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	claimedAt := now.Add(-time.Minute)
	repo := stubQuestRepo{
		quests: []quest.PartyQuest{
			{ID: "q1", QuestType: quest.TypeDaily, RequirementValue: 2},
			{ID: "q2", QuestType: quest.TypeWeekly, RequirementValue: 1},
			{ID: "q3", QuestType: quest.TypeWeekly, RequirementValue: 1, ExpiresAt: &past},
			{ID: "q4", QuestType: quest.TypeSpecial, RequirementValue: 1},
		},
		progress: []quest.Progress{
			{QuestID: "q1", Progress: 1},
			{QuestID: "q2", Progress: 1},
			{QuestID: "q4", Progress: 1, ClaimedAt: &claimedAt},
		},
	}
	h := NewListActiveQuestsHandler(repo)

	res, err := h.Handle(context.Background(), ListActiveQuestsQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, res.Quests, 3)
	assert.Equal(t, quest.StateInProgress, res.Quests[0].State)
	assert.Equal(t, 50, res.Quests[0].Percent)
	assert.Equal(t, quest.StateCompleted, res.Quests[1].State)
	assert.Equal(t, quest.StateClaimed, res.Quests[2].State)
	assert.Equal(t, 1, res.Claimable)

	res, err = h.Handle(context.Background(), ListActiveQuestsQuery{UserID: "u1", Type: "weekly"})
	require.NoError(t, err)
	assert.Len(t, res.Quests, 1)
}

func TestGetTimeline_VisibilityAndPaging(t *testing.T) {
	repo := stubTimelineRepo{entries: []timeline.Entry{
		{ID: "e1", UserID: "u1", IsPublic: true},
		{ID: "e2", UserID: "u1"},
		{ID: "e3", UserID: "u1", IsPublic: true},
	}}
	h := NewGetTimelineHandler(repo)
	owner := shared.Actor{UserID: "u1", Roles: []shared.Role{shared.RoleUser}}
	other := shared.Actor{UserID: "u2", Roles: []shared.Role{shared.RoleUser}}

	res, err := h.Handle(context.Background(), GetTimelineQuery{Viewer: owner})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)

	res, err = h.Handle(context.Background(), GetTimelineQuery{Viewer: other, OwnerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	for _, e := range res.Entries {
		assert.True(t, e.IsPublic)
	}

	res, err = h.Handle(context.Background(), GetTimelineQuery{Viewer: owner, Page: shared.NewPagination(2, 2)})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "e3", res.Entries[0].ID)
	assert.False(t, res.HasMore)
}

func TestGetPublicFlexCard(t *testing.T) {
	repo := &stubFlexRepo{cards: map[string]flexcard.FlexCard{
		"public-card-1a2b3c4d":  {ID: "c1", UserID: "u1", ShareCode: "public-card-1a2b3c4d", Title: "3 Nights Out", IsPublic: true},
		"private-card-1a2b3c4d": {ID: "c2", UserID: "u1", ShareCode: "private-card-1a2b3c4d", IsPublic: false},
	}}
	cache := &mapCache{views: map[string]flexcard.PublicView{}}
	h := NewGetPublicFlexCardHandler(repo, cache, 0, nil)
	ctx := context.Background()

	view, err := h.Handle(ctx, "public-card-1a2b3c4d")
	require.NoError(t, err)
	assert.Equal(t, "3 Nights Out", view.Title)

	_, err = h.Handle(ctx, "public-card-1a2b3c4d")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.reads, "second lookup is served from cache")

	_, err = h.Handle(ctx, "private-card-1a2b3c4d")
	assert.ErrorIs(t, err, shared.ErrFlexCardNotFound)
	assert.True(t, shared.IsNotFound(err))
	assert.NotContains(t, cache.views, "private-card-1a2b3c4d")

	_, err = h.Handle(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrFlexCardNotFound)
}
