package command

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afterhours/nightlife-core/internal/domain/achievement"
	"github.com/afterhours/nightlife-core/internal/domain/flexcard"
	"github.com/afterhours/nightlife-core/internal/domain/quest"
	"github.com/afterhours/nightlife-core/internal/domain/recap"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/streak"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
	"github.com/afterhours/nightlife-core/internal/domain/xp"
)

// memStore is one lock around all tables, so multi-table writes behave like
// a transaction.
type memStore struct {
	mu sync.Mutex

	xp        map[string]*xp.UserXP
	xpEvents  []xp.Event
	catalog   []achievement.Achievement
	earned    map[string]achievement.UserAchievement // user|achievement
	quests    map[string]quest.PartyQuest
	progress  map[string]*quest.Progress // user|quest
	streaks   map[string]streak.UserStreak
	miles     map[string]streak.Milestone // user|type|value
	entries   []timeline.Entry
	cards     map[string]flexcard.FlexCard // share code
	recaps    map[string]recap.WeeklyRecap // user|week
	recapErrs map[string]error             // user -> Insert failure
}

func newMemStore() *memStore {
	return &memStore{
		xp:        map[string]*xp.UserXP{},
		earned:    map[string]achievement.UserAchievement{},
		quests:    map[string]quest.PartyQuest{},
		progress:  map[string]*quest.Progress{},
		streaks:   map[string]streak.UserStreak{},
		miles:     map[string]streak.Milestone{},
		cards:     map[string]flexcard.FlexCard{},
		recaps:    map[string]recap.WeeklyRecap{},
		recapErrs: map[string]error{},
	}
}

func key(parts ...string) string { return strings.Join(parts, "|") }

// addXPLocked must be called with mu held.
func (s *memStore) addXPLocked(userID string, amount int64, reason string, now time.Time) xp.Result {
	u, ok := s.xp[userID]
	if !ok {
		u = xp.NewUserXP(userID)
		s.xp[userID] = u
	}
	old := u.CurrentLevel
	u.Apply(amount)
	u.UpdatedAt = now
	s.xpEvents = append(s.xpEvents, xp.Event{ID: uuid.NewString(), UserID: userID, Amount: amount, Reason: reason, CreatedAt: now})
	cp := *u
	return xp.Result{XP: &cp, OldLevel: old}
}

func (s *memStore) xpAwardCount(userID, reason string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.xpEvents {
		if e.UserID == userID && e.Reason == reason {
			n++
		}
	}
	return n
}

// ── xp ──────────────────────────────────────────────────────────────────────

type memXPRepo struct{ s *memStore }

func (r memXPRepo) Get(_ context.Context, userID string, _ time.Time) (*xp.UserXP, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.xp[userID]
	if !ok {
		return xp.NewUserXP(userID), nil
	}
	cp := *u
	return &cp, nil
}

func (r memXPRepo) AddXP(_ context.Context, a xp.Award, now time.Time) (xp.Result, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.addXPLocked(a.UserID, a.Amount, a.Reason, now), nil
}

func (r memXPRepo) History(_ context.Context, userID string, limit int) ([]xp.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []xp.Event
	for i := len(r.s.xpEvents) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.xpEvents[i].UserID == userID {
			out = append(out, r.s.xpEvents[i])
		}
	}
	return out, nil
}

// ── achievements ────────────────────────────────────────────────────────────

type memAchievementRepo struct{ s *memStore }

func (r memAchievementRepo) ListAchievements(context.Context) ([]achievement.Achievement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Clone(r.s.catalog), nil
}

func (r memAchievementRepo) UpsertAchievement(_ context.Context, a achievement.Achievement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.catalog = append(r.s.catalog, a)
	return nil
}

func (r memAchievementRepo) ListEarned(_ context.Context, userID string) ([]achievement.UserAchievement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []achievement.UserAchievement
	for _, ua := range r.s.earned {
		if ua.UserID == userID {
			out = append(out, ua)
		}
	}
	return out, nil
}

func (r memAchievementRepo) Award(_ context.Context, userID string, a achievement.Achievement, now time.Time) (achievement.UserAchievement, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key(userID, a.ID)
	if ua, ok := r.s.earned[k]; ok {
		return ua, false, nil
	}
	ua := achievement.UserAchievement{ID: uuid.NewString(), UserID: userID, AchievementID: a.ID, EarnedAt: now}
	r.s.earned[k] = ua
	r.s.addXPLocked(userID, a.XPReward, xp.ReasonAchievement, now)
	return ua, true, nil
}

// staleEarnedRepo hides earned rows from ListEarned to simulate two
// evaluations racing on the same snapshot.
type staleEarnedRepo struct{ memAchievementRepo }

func (staleEarnedRepo) ListEarned(context.Context, string) ([]achievement.UserAchievement, error) {
	return nil, nil
}

// ── quests ──────────────────────────────────────────────────────────────────

type memQuestRepo struct{ s *memStore }

func (r memQuestRepo) GetQuest(_ context.Context, id string) (*quest.PartyQuest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q, ok := r.s.quests[id]
	if !ok {
		return nil, shared.ErrQuestNotFound
	}
	return &q, nil
}

func (r memQuestRepo) ListActive(_ context.Context, now time.Time) ([]quest.PartyQuest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []quest.PartyQuest
	for _, q := range r.s.quests {
		if !q.IsExpired(now) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memQuestRepo) UpsertQuest(_ context.Context, q quest.PartyQuest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.quests[q.ID] = q
	return nil
}

func (r memQuestRepo) GetProgress(_ context.Context, userID, questID string) (*quest.Progress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.progress[key(userID, questID)]
	if !ok {
		return nil, shared.ErrQuestProgressMissing
	}
	cp := *p
	return &cp, nil
}

func (r memQuestRepo) ListProgress(_ context.Context, userID string) ([]quest.Progress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []quest.Progress
	for _, p := range r.s.progress {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r memQuestRepo) IncrementProgress(_ context.Context, userID string, q quest.PartyQuest, delta int64, now time.Time) (*quest.Progress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key(userID, q.ID)
	p, ok := r.s.progress[k]
	if !ok {
		p = &quest.Progress{ID: uuid.NewString(), UserID: userID, QuestID: q.ID}
		r.s.progress[k] = p
	}
	p.Progress += delta
	if p.CompletedAt == nil && p.Progress >= q.RequirementValue {
		t := now
		p.CompletedAt = &t
	}
	cp := *p
	return &cp, nil
}

func (r memQuestRepo) Claim(_ context.Context, userID string, q quest.PartyQuest, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.progress[key(userID, q.ID)]
	if !ok || p.ClaimedAt != nil || p.Progress < q.RequirementValue {
		return false, nil
	}
	t := now
	p.ClaimedAt = &t
	r.s.addXPLocked(userID, q.XPReward, xp.ReasonQuestClaim, now)
	return true, nil
}

func (r memQuestRepo) CountClaimed(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, p := range r.s.progress {
		if p.UserID == userID && p.ClaimedAt != nil {
			n++
		}
	}
	return n, nil
}

// ── streaks ─────────────────────────────────────────────────────────────────

type memStreakRepo struct{ s *memStore }

func (r memStreakRepo) Get(_ context.Context, userID string) (*streak.UserStreak, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.streaks[userID]
	if !ok {
		return &streak.UserStreak{UserID: userID}, nil
	}
	return &st, nil
}

func (r memStreakRepo) Upsert(_ context.Context, st streak.UserStreak) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.streaks[st.UserID] = st
	return nil
}

func (r memStreakRepo) RecordMilestone(_ context.Context, m streak.Milestone) (streak.Milestone, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key(m.UserID, m.MilestoneType, strconv.Itoa(m.MilestoneValue))
	if existing, ok := r.s.miles[k]; ok {
		return existing, false, nil
	}
	m.ID = uuid.NewString()
	r.s.miles[k] = m
	return m, true, nil
}

func (r memStreakRepo) ListMilestones(_ context.Context, userID string) ([]streak.Milestone, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []streak.Milestone
	for _, m := range r.s.miles {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r memStreakRepo) MarkNotified(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, m := range r.s.miles {
		if m.ID == id {
			m.Notified = true
			r.s.miles[k] = m
			return nil
		}
	}
	return shared.ErrNotFound
}

// ── timeline ────────────────────────────────────────────────────────────────

type memTimelineRepo struct{ s *memStore }

func (r memTimelineRepo) Append(_ context.Context, e *timeline.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.entries = append(r.s.entries, *e)
	return nil
}

func (r memTimelineRepo) ListByUser(_ context.Context, userID string) ([]timeline.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []timeline.Entry
	for _, e := range r.s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AttendedDate.After(out[j].AttendedDate) })
	return out, nil
}

func (r memTimelineRepo) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]timeline.Entry, error) {
	all, _ := r.ListByUser(ctx, userID)
	var out []timeline.Entry
	for _, e := range all {
		if !e.AttendedDate.Before(from) && !e.AttendedDate.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memTimelineRepo) UpdateOwned(_ context.Context, userID, entryID string, p timeline.Patch) (*timeline.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.entries {
		e := &r.s.entries[i]
		if e.ID == entryID && e.UserID == userID {
			e.Apply(p)
			cp := *e
			return &cp, nil
		}
	}
	return nil, shared.ErrTimelineEntryNotFound
}

func (r memTimelineRepo) UsersActiveSince(_ context.Context, since time.Time) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range r.s.entries {
		if !e.AttendedDate.Before(since) && !seen[e.UserID] {
			seen[e.UserID] = true
			out = append(out, e.UserID)
		}
	}
	return out, nil
}

// ── flex cards ──────────────────────────────────────────────────────────────

type memFlexRepo struct {
	s *memStore
	// collisions forces the first N creates to collide.
	collisions int
}

func (r *memFlexRepo) Create(_ context.Context, c *flexcard.FlexCard) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.collisions > 0 {
		r.collisions--
		return shared.ErrShareCodeCollision
	}
	if _, ok := r.s.cards[c.ShareCode]; ok {
		return shared.ErrShareCodeCollision
	}
	r.s.cards[c.ShareCode] = *c
	return nil
}

func (r *memFlexRepo) GetByShareCode(_ context.Context, code string) (*flexcard.FlexCard, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.cards[code]
	if !ok {
		return nil, shared.ErrFlexCardNotFound
	}
	return &c, nil
}

func (r *memFlexRepo) ListByUser(_ context.Context, userID string) ([]flexcard.FlexCard, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []flexcard.FlexCard
	for _, c := range r.s.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeExporter struct {
	calls int
	err   error
}

func (f *fakeExporter) ExportCard(_ context.Context, v flexcard.PublicView) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://cards.example/" + v.ShareCode + ".json", nil
}

// ── recaps ──────────────────────────────────────────────────────────────────

type memRecapRepo struct{ s *memStore }

func (r memRecapRepo) Exists(_ context.Context, userID string, weekStart time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.recaps[key(userID, weekStart.Format(time.DateOnly))]
	return ok, nil
}

func (r memRecapRepo) Insert(_ context.Context, rc *recap.WeeklyRecap) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.recapErrs[rc.UserID]; err != nil {
		return false, err
	}
	k := key(rc.UserID, rc.WeekStart.Format(time.DateOnly))
	if _, ok := r.s.recaps[k]; ok {
		return false, nil
	}
	r.s.recaps[k] = *rc
	return true, nil
}

func (r memRecapRepo) GetForWeek(_ context.Context, userID string, weekStart time.Time) (*recap.WeeklyRecap, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rc, ok := r.s.recaps[key(userID, weekStart.Format(time.DateOnly))]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &rc, nil
}

func (r memRecapRepo) ListByUser(_ context.Context, userID string, limit int) ([]recap.WeeklyRecap, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []recap.WeeklyRecap
	for _, rc := range r.s.recaps {
		if rc.UserID == userID {
			out = append(out, rc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.After(out[j].WeekStart) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeActivity serves RSVPs and the follow graph.
type fakeActivity struct {
	rsvps     []recap.RSVP
	following map[string][]string
	followers map[string]int64
}

func (f *fakeActivity) ActiveUsers(_ context.Context, w recap.Week) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, rv := range f.rsvps {
		if w.Contains(rv.CreatedAt) && !seen[rv.UserID] {
			seen[rv.UserID] = true
			out = append(out, rv.UserID)
		}
	}
	return out, nil
}

func (f *fakeActivity) RSVPs(_ context.Context, userID string, w recap.Week) ([]recap.RSVP, error) {
	var out []recap.RSVP
	for _, rv := range f.rsvps {
		if rv.UserID == userID && w.Contains(rv.CreatedAt) {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (f *fakeActivity) CoAttendees(_ context.Context, userID string, eventIDs []string) ([]recap.RSVP, error) {
	var out []recap.RSVP
	for _, rv := range f.rsvps {
		if rv.UserID != userID && slices.Contains(eventIDs, rv.EventID) {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (f *fakeActivity) Following(_ context.Context, userID string) ([]string, error) {
	return f.following[userID], nil
}

func (f *fakeActivity) FollowerCount(_ context.Context, userID string) (int64, error) {
	return f.followers[userID], nil
}

// ── ports ───────────────────────────────────────────────────────────────────

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocker) Acquire(_ context.Context, k string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[k] {
		return nil, false, nil
	}
	l.held[k] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, k)
		return nil
	}, true, nil
}

type flagSet map[string]bool

func (f flagSet) IsEnabledForUser(feature, _ string) bool { return f[feature] }

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count(t shared.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")

func fixedClock(t time.Time) Clock { return func() time.Time { return t } }
