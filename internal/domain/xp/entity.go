package xp

import (
	"strings"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════

// XPPerLevelUnit - множитель кривой уровней.
const XPPerLevelUnit = 50

// MaxReasonLength ограничивает текст причины начисления.
const MaxReasonLength = 200

// Threshold возвращает суммарный XP, необходимый для уровня L.
func Threshold(level int) int64 {
	if level <= 0 {
		return 0
	}
	l := int64(level)
	return l * l * XPPerLevelUnit
}

// LevelFor возвращает наибольший L, для которого Threshold(L) <= total.
func LevelFor(total int64) int {
	if total <= 0 {
		return 0
	}
	level := 0
	for Threshold(level+1) <= total {
		level++
	}
	return level
}

// Progress - прогресс до следующего уровня.
type Progress struct {
	Current    int64 `json:"current"`
	Needed     int64 `json:"needed"`
	Percentage int   `json:"percentage"`
}

// ProgressFor вычисляет прогресс для заданного total.
func ProgressFor(total int64) Progress {
	if total < 0 {
		total = 0
	}
	level := LevelFor(total)
	current := total - Threshold(level)
	needed := Threshold(level+1) - Threshold(level)

	pct := int(100 * current / needed)
	if pct > 100 {
		pct = 100
	}
	return Progress{Current: current, Needed: needed, Percentage: pct}
}

// ══════════════════════════════════════════════════════════════════════════════
// USER XP
// ══════════════════════════════════════════════════════════════════════════════

// UserXP - XP пользователя. Создаётся лениво при первом чтении.
type UserXP struct {
	UserID       string    `json:"user_id"`
	TotalXP      int64     `json:"total_xp"`
	CurrentLevel int       `json:"current_level"`
	XPThisWeek   int64     `json:"xp_this_week"`
	XPThisMonth  int64     `json:"xp_this_month"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewUserXP создаёт пустую запись.
func NewUserXP(userID string) *UserXP {
	return &UserXP{UserID: userID}
}

// Apply добавляет amount и пересчитывает уровень. Используется фейками и
// для вычисления ожидаемого состояния; в БД инкремент атомарный.
func (u *UserXP) Apply(amount int64) {
	u.TotalXP += amount
	u.CurrentLevel = LevelFor(u.TotalXP)
}

// Progress возвращает прогресс до следующего уровня.
func (u *UserXP) Progress() Progress {
	return ProgressFor(u.TotalXP)
}

// Award - запрос на начисление XP.
type Award struct {
	UserID string
	Amount int64
	Reason string
}

// Validate проверяет запрос до любых изменений.
func (a Award) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if a.Amount < 0 {
		return shared.ErrNegativeXP
	}
	if len(a.Reason) > MaxReasonLength {
		return shared.ErrXPReasonTooLong
	}
	return nil
}

// Result - результат атомарного начисления.
type Result struct {
	XP       *UserXP
	OldLevel int
}

// LeveledUp сообщает, пересекло ли начисление порог уровня.
func (r Result) LeveledUp() bool {
	return r.XP != nil && r.XP.CurrentLevel > r.OldLevel
}

// Event - запись истории начислений (xp_events).
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Common reasons.
const (
	ReasonQuestClaim  = "quest_claim"
	ReasonAchievement = "achievement"
	ReasonAdmin       = "admin_grant"
)
