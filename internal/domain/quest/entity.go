// Package quest содержит модель квестов и прогресса по ним.
//
// Жизненный цикл прогресса:
//
//	in_progress (progress < requirement)
//	    → completed (progress >= requirement, claimed_at = nil)
//	    → claimed   (claimed_at установлен, терминальное состояние)
package quest

import (
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTY QUEST
// ══════════════════════════════════════════════════════════════════════════════

// Type - периодичность квеста.
type Type string

const (
	TypeDaily   Type = "daily"
	TypeWeekly  Type = "weekly"
	TypeSpecial Type = "special"
)

// IsValid проверяет тип квеста.
func (t Type) IsValid() bool {
	return t == TypeDaily || t == TypeWeekly || t == TypeSpecial
}

// PartyQuest - квест. Создаётся вне ядра (админка или seed).
type PartyQuest struct {
	ID               string     `json:"id" toml:"id"`
	Title            string     `json:"title" toml:"title"`
	Description      string     `json:"description" toml:"description"`
	XPReward         int64      `json:"xp_reward" toml:"xp_reward"`
	QuestType        Type       `json:"quest_type" toml:"quest_type"`
	RequirementType  string     `json:"requirement_type" toml:"requirement_type"`
	RequirementValue int64      `json:"requirement_value" toml:"requirement_value"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty" toml:"expires_at"`
}

// IsExpired - истёк ли квест к моменту now.
func (q PartyQuest) IsExpired(now time.Time) bool {
	return q.ExpiresAt != nil && !now.Before(*q.ExpiresAt)
}

// Validate проверяет квест перед сохранением.
func (q PartyQuest) Validate() error {
	if q.ID == "" || q.Title == "" {
		return shared.NewDomainError("quest", "Validate", shared.ErrEmptyValue, "id and title are required")
	}
	if !q.QuestType.IsValid() {
		return shared.ErrInvalidQuestType
	}
	if q.XPReward < 0 || q.RequirementValue < 0 {
		return shared.NewDomainError("quest", "Validate", shared.ErrNegativeValue, "reward and requirement must be non-negative")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// State - производное состояние прогресса.
type State string

const (
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateClaimed    State = "claimed"
)

// Progress - прогресс пользователя по квесту. Уникален по (user_id, quest_id).
type Progress struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	QuestID     string     `json:"quest_id"`
	Progress    int64      `json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
}

// StateFor выводит состояние из прогресса и требования квеста.
func StateFor(q PartyQuest, p *Progress) State {
	if p == nil {
		return StateInProgress
	}
	if p.ClaimedAt != nil {
		return StateClaimed
	}
	if p.Progress >= q.RequirementValue {
		return StateCompleted
	}
	return StateInProgress
}

// CheckClaim объясняет, почему claim невозможен. nil означает, что claim
// допустим; окончательную проверку делает атомарный UPDATE в хранилище.
func CheckClaim(q *PartyQuest, p *Progress) error {
	switch {
	case q == nil:
		return shared.ErrQuestNotFound
	case p == nil:
		return shared.ErrQuestProgressMissing
	case p.ClaimedAt != nil:
		return shared.ErrQuestAlreadyClaimed
	case p.Progress < q.RequirementValue:
		return shared.ErrQuestNotCompleted
	}
	return nil
}

// Percent - прогресс в процентах, ограничен 100.
func Percent(q PartyQuest, p *Progress) int {
	if p == nil {
		return 0
	}
	if q.RequirementValue <= 0 {
		return 100
	}
	pct := int(p.Progress * 100 / q.RequirementValue)
	if pct > 100 {
		return 100
	}
	return pct
}

// ActiveQuest - квест вместе с прогрессом пользователя.
type ActiveQuest struct {
	Quest    PartyQuest `json:"quest"`
	Progress *Progress  `json:"progress,omitempty"`
	State    State      `json:"state"`
	Percent  int        `json:"percent"`
}

// BuildActive собирает список активных квестов: истёкшие исключаются,
// строки прогресса при этом не удаляются.
func BuildActive(quests []PartyQuest, progress []Progress, now time.Time) []ActiveQuest {
	byQuest := make(map[string]*Progress, len(progress))
	for i := range progress {
		byQuest[progress[i].QuestID] = &progress[i]
	}

	out := make([]ActiveQuest, 0, len(quests))
	for _, q := range quests {
		if q.IsExpired(now) {
			continue
		}
		p := byQuest[q.ID]
		out = append(out, ActiveQuest{
			Quest:    q,
			Progress: p,
			State:    StateFor(q, p),
			Percent:  Percent(q, p),
		})
	}
	return out
}
