package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/afterhours/nightlife-core/internal/domain/recap"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/streak"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE WEEKLY RECAPS COMMAND
// Aggregates the previous completed week per user. Each user is checked and
// written independently, so a crashed or timed-out run resumes safely: users
// that already have a recap are skipped, the rest are processed.
// ══════════════════════════════════════════════════════════════════════════════

// GenerateWeeklyRecapsCommand mirrors the invocation body {userId?, batchMode?}.
type GenerateWeeklyRecapsCommand struct {
	Actor     shared.Actor
	UserID    string
	BatchMode bool
	// Now overrides the clock, mainly for backfills.
	Now time.Time
}

// UserFailure records one user's failed recap.
type UserFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// RecapSummary is the result of a run.
type RecapSummary struct {
	Week       recap.Week    `json:"week"`
	Processed  int           `json:"processed"`
	Successful int           `json:"successful"`
	Skipped    int           `json:"skipped"`
	Failures   []UserFailure `json:"failures"`
	Duration   time.Duration `json:"-"`
}

// RecapConfig tunes the batch.
type RecapConfig struct {
	Concurrency int
	LockTTL     time.Duration
	// UserTimeout bounds one user's aggregation.
	UserTimeout time.Duration
	Location    *time.Location
}

// DefaultRecapConfig returns defaults for the batch.
func DefaultRecapConfig() RecapConfig {
	return RecapConfig{
		Concurrency: 8,
		LockTTL:     30 * time.Minute,
		UserTimeout: 15 * time.Second,
		Location:    time.UTC,
	}
}

// GenerateWeeklyRecapsHandler runs recap generation.
type GenerateWeeklyRecapsHandler struct {
	recapRepo    recap.Repository
	activity     recap.ActivityReader
	timelineRepo timeline.Repository
	streakRepo   streak.Repository
	locker       Locker
	publisher    shared.EventPublisher
	logger       *slog.Logger
	config       RecapConfig
	clock        Clock
}

// NewGenerateWeeklyRecapsHandler creates the handler. locker may be nil.
func NewGenerateWeeklyRecapsHandler(
	recapRepo recap.Repository,
	activity recap.ActivityReader,
	timelineRepo timeline.Repository,
	streakRepo streak.Repository,
	locker Locker,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config RecapConfig,
	clock Clock,
) *GenerateWeeklyRecapsHandler {
	def := DefaultRecapConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.LockTTL <= 0 {
		config.LockTTL = def.LockTTL
	}
	if config.UserTimeout <= 0 {
		config.UserTimeout = def.UserTimeout
	}
	if config.Location == nil {
		config.Location = def.Location
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateWeeklyRecapsHandler{
		recapRepo:    recapRepo,
		activity:     activity,
		timelineRepo: timelineRepo,
		streakRepo:   streakRepo,
		locker:       locker,
		publisher:    publisher,
		logger:       logger.With("component", "weekly_recap"),
		config:       config,
		clock:        clock,
	}
}

// Authorize checks the invocation rules: batch mode or another user's id
// needs a privileged actor.
func Authorize(cmd GenerateWeeklyRecapsCommand) (target string, err error) {
	if cmd.BatchMode {
		if !cmd.Actor.IsPrivileged() {
			return "", shared.ErrRecapForbidden
		}
		return "", nil
	}
	target = cmd.UserID
	if target == "" {
		target = cmd.Actor.UserID.String()
	}
	if _, err := shared.NewUserID(target); err != nil {
		return "", err
	}
	if !cmd.Actor.CanActOn(shared.UserID(target)) {
		return "", shared.ErrRecapForbidden
	}
	return target, nil
}

// Handle runs the recap for one user or, in batch mode, for every user
// active during the week.
func (h *GenerateWeeklyRecapsHandler) Handle(ctx context.Context, cmd GenerateWeeklyRecapsCommand) (*RecapSummary, error) {
	target, err := Authorize(cmd)
	if err != nil {
		return nil, err
	}

	now := cmd.Now
	if now.IsZero() {
		now = h.clock.now()
	}
	week := recap.PreviousWeek(now, h.config.Location)
	started := time.Now()

	var users []string
	if cmd.BatchMode {
		if h.locker != nil {
			release, acquired, err := h.locker.Acquire(ctx, "recap:weekly:"+week.Key(), h.config.LockTTL)
			if err != nil {
				return nil, fmt.Errorf("weekly_recap: failed to acquire lock: %w", err)
			}
			if !acquired {
				return nil, shared.ErrRecapBatchRunning
			}
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					h.logger.Warn("failed to release recap lock", "week_start", week.Key(), "error", err)
				}
			}()
		}

		users, err = h.activity.ActiveUsers(ctx, week)
		if err != nil {
			return nil, fmt.Errorf("weekly_recap: failed to list active users: %w", err)
		}
	} else {
		users = []string{target}
	}

	summary := h.run(ctx, week, users, now)
	summary.Duration = time.Since(started)

	h.logger.Info("weekly recap run finished",
		"week_start", week.Key(),
		"batch", cmd.BatchMode,
		"processed", summary.Processed,
		"successful", summary.Successful,
		"skipped", summary.Skipped,
		"failed", len(summary.Failures),
		"duration", summary.Duration,
	)

	if cmd.BatchMode {
		event := shared.NewRecapBatchCompletedEvent(week.Start, summary.Processed, summary.Successful, summary.Skipped, len(summary.Failures))
		if err := h.publisher.Publish(ctx, event); err != nil {
			h.logger.Warn("failed to publish batch event", "error", err)
		}
	}
	return summary, nil
}

func (h *GenerateWeeklyRecapsHandler) run(ctx context.Context, week recap.Week, users []string, now time.Time) *RecapSummary {
	summary := &RecapSummary{Week: week, Failures: []UserFailure{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(h.config.Concurrency))

	for _, userID := range users {
		if err := sem.Acquire(gctx, 1); err != nil {
			// Context done: remaining users are left for the next run.
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			userCtx, cancel := context.WithTimeout(gctx, h.config.UserTimeout)
			defer cancel()

			inserted, err := h.processUser(userCtx, userID, week, now)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			switch {
			case err != nil:
				summary.Failures = append(summary.Failures, UserFailure{UserID: userID, Error: err.Error()})
				h.logger.Error("recap failed for user", "user_id", userID, "week_start", week.Key(), "error", err)
			case inserted:
				summary.Successful++
			default:
				summary.Skipped++
			}
			// Per-user failures never cancel the group.
			return nil
		})
	}
	_ = g.Wait()
	return summary
}

// processUser checks for an existing recap, aggregates and inserts.
// inserted is false when the recap already existed.
func (h *GenerateWeeklyRecapsHandler) processUser(ctx context.Context, userID string, week recap.Week, now time.Time) (inserted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing user: %v", r)
		}
	}()

	exists, err := h.recapRepo.Exists(ctx, userID, week.Start)
	if err != nil {
		return false, fmt.Errorf("failed to check recap: %w", err)
	}
	if exists {
		return false, nil
	}

	in, err := h.loadInput(ctx, userID, week)
	if err != nil {
		return false, err
	}

	r := recap.Aggregate(in)
	r.ID = uuid.NewString()
	r.CreatedAt = now

	inserted, err = h.recapRepo.Insert(ctx, &r)
	if err != nil {
		return false, fmt.Errorf("failed to insert recap: %w", err)
	}
	if !inserted {
		return false, nil
	}

	event := shared.NewRecapGeneratedEvent(userID, r.ID, week.Start, r.EventsAttended)
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.Warn("failed to publish recap event", "user_id", userID, "error", err)
	}
	return true, nil
}

func (h *GenerateWeeklyRecapsHandler) loadInput(ctx context.Context, userID string, week recap.Week) (recap.Input, error) {
	in := recap.Input{UserID: userID, Week: week}

	rsvps, err := h.activity.RSVPs(ctx, userID, week)
	if err != nil {
		return in, fmt.Errorf("failed to load rsvps: %w", err)
	}
	in.RSVPs = rsvps

	if len(rsvps) > 0 {
		eventIDs := make([]string, 0, len(rsvps))
		for _, rv := range rsvps {
			eventIDs = append(eventIDs, rv.EventID)
		}
		if in.Following, err = h.activity.Following(ctx, userID); err != nil {
			return in, fmt.Errorf("failed to load following: %w", err)
		}
		if len(in.Following) > 0 {
			if in.CoAttendees, err = h.activity.CoAttendees(ctx, userID, eventIDs); err != nil {
				return in, fmt.Errorf("failed to load co-attendees: %w", err)
			}
		}
	}

	if in.Attended, err = h.timelineRepo.ListBetween(ctx, userID, week.Start, week.End); err != nil {
		return in, fmt.Errorf("failed to load timeline: %w", err)
	}

	s, err := h.streakRepo.Get(ctx, userID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return in, fmt.Errorf("failed to load streak: %w", err)
	}
	if s != nil {
		in.StreakAtWeekEnd = s.CurrentStreak
	}
	return in, nil
}
