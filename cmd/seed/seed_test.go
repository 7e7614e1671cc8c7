package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterhours/nightlife-core/internal/domain/achievement"
	"github.com/afterhours/nightlife-core/internal/domain/quest"
)

type fakeStore struct {
	achievements []string
	quests       []string
	failOn       string
}

func (s *fakeStore) UpsertAchievement(_ context.Context, a achievement.Achievement) error {
	if a.ID == s.failOn {
		return errors.New("boom")
	}
	s.achievements = append(s.achievements, a.ID)
	return nil
}

func (s *fakeStore) UpsertQuest(_ context.Context, q quest.PartyQuest) error {
	if q.ID == s.failOn {
		return errors.New("boom")
	}
	s.quests = append(s.quests, q.ID)
	return nil
}

const sample = `
[[achievements]]
id = "first_night"
name = "First Night Out"
xp_reward = 50
category = "explorer"
requirement_type = "events_attended"
requirement_value = 1

[[quests]]
id = "nye"
title = "Countdown"
xp_reward = 500
quest_type = "special"
requirement_type = "events_attended"
requirement_value = 1
expires_at = 2027-01-01T06:00:00Z
`

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.Len(t, f.Achievements, 1)
	assert.Equal(t, achievement.CategoryExplorer, f.Achievements[0].Category)
	assert.Equal(t, achievement.RequirementEventsAttended, f.Achievements[0].RequirementType)

	require.Len(t, f.Quests, 1)
	require.NotNil(t, f.Quests[0].ExpiresAt)
	assert.True(t, f.Quests[0].ExpiresAt.Equal(time.Date(2027, 1, 1, 6, 0, 0, 0, time.UTC)))
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader(`
[[achievements]]
id = "x"
name = "X"
category = "explorer"
requirement_type = "level"
xp_rewrd = 10
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xp_rewrd")
}

func TestParse_SyntaxErrorHasPosition(t *testing.T) {
	_, err := Parse(strings.NewReader("[[achievements]]\nid = \n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	f := &SeedFile{
		Achievements: []achievement.Achievement{
			{ID: "a", Name: "A", Category: "explorer", RequirementType: "level"},
			{ID: "a", Name: "A again", Category: "explorer", RequirementType: "level"},
			{ID: "b", Name: "B", Category: "nope", RequirementType: "vibes"},
		},
		Quests: []quest.PartyQuest{
			{ID: "q", Title: "Q", QuestType: "hourly"},
		},
	}

	err := f.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `duplicate id "a"`)
	assert.Contains(t, msg, `unknown requirement_type "vibes"`)
	assert.Contains(t, msg, `achievements[2] "b"`)
	assert.Contains(t, msg, `quests[0] "q"`)
}

func TestApply(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	store := &fakeStore{}
	a, q, err := f.Apply(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, q)
	assert.Equal(t, []string{"first_night"}, store.achievements)
	assert.Equal(t, []string{"nye"}, store.quests)

	_, _, err = f.Apply(context.Background(), &fakeStore{failOn: "nye"})
	assert.ErrorContains(t, err, `quest "nye"`)
}

func TestShippedCatalogIsValid(t *testing.T) {
	file, err := os.Open("../../seeds/catalog.toml")
	require.NoError(t, err)
	defer file.Close()

	f, err := Parse(file)
	require.NoError(t, err)
	assert.NotEmpty(t, f.Achievements)
	assert.NotEmpty(t, f.Quests)
}
