package notification

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessages_AreValid(t *testing.T) {
	msgs := []Message{
		NewAchievementMessage("a1", "Night Owl", 100),
		NewQuestClaimedMessage("q1", "Three Nights Out", 150),
		NewStreakMilestoneMessage("weekly_streak", 7),
		NewStreakMilestoneMessage("nights_out", 25),
		NewLevelUpMessage(4),
		NewRecapReadyMessage("r1", time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), 3),
	}
	for _, m := range msgs {
		assert.NoError(t, m.Validate(), m.Title)
		assert.Equal(t, string(m.Type), m.Data["type"])
	}
}

func TestMessage_Validate(t *testing.T) {
	assert.Error(t, Message{Title: " "}.Validate())
	assert.Error(t, Message{Title: strings.Repeat("x", 100)}.Validate())
}

func TestStreakMilestoneMessage_Body(t *testing.T) {
	assert.Contains(t, NewStreakMilestoneMessage("nights_out", 10).Body, "10 nights")
	assert.Contains(t, NewStreakMilestoneMessage("weekly_streak", 3).Body, "3 weeks")
}
