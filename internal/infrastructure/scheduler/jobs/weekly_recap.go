// Package jobs contains the scheduled jobs of the nightlife core.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/afterhours/nightlife-core/internal/application/command"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY RECAP JOB
// ══════════════════════════════════════════════════════════════════════════════

// RecapRunner runs the recap command.
type RecapRunner interface {
	Handle(ctx context.Context, cmd command.GenerateWeeklyRecapsCommand) (*command.RecapSummary, error)
}

// WeeklyRecapJob runs the recap batch for the previous completed week.
// Another instance holding the batch lock is not a failure: that run is
// simply skipped.
type WeeklyRecapJob struct {
	runner  RecapRunner
	logger  *slog.Logger
	timeout time.Duration

	lastSummary atomic.Pointer[command.RecapSummary]
}

// NewWeeklyRecapJob creates the job. timeout bounds the whole batch.
func NewWeeklyRecapJob(runner RecapRunner, logger *slog.Logger, timeout time.Duration) *WeeklyRecapJob {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &WeeklyRecapJob{
		runner:  runner,
		logger:  logger.With("job", "weekly_recap"),
		timeout: timeout,
	}
}

// Name returns the job name.
func (j *WeeklyRecapJob) Name() string {
	return "weekly_recap"
}

// Description returns a human-readable description.
func (j *WeeklyRecapJob) Description() string {
	return "Generates weekly recaps for every user active in the previous week"
}

// Run executes the batch.
func (j *WeeklyRecapJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	summary, err := j.runner.Handle(ctx, command.GenerateWeeklyRecapsCommand{
		Actor:     shared.SystemActor(),
		BatchMode: true,
	})
	if err != nil {
		if errors.Is(err, shared.ErrRecapBatchRunning) {
			j.logger.Info("recap batch already running elsewhere, skipping")
			return nil
		}
		return fmt.Errorf("weekly recap batch: %w", err)
	}
	j.lastSummary.Store(summary)

	if n := len(summary.Failures); n > 0 {
		return fmt.Errorf("weekly recap batch completed with %d failed users", n)
	}
	return nil
}

// LastSummary returns the summary of the last completed run, or nil.
func (j *WeeklyRecapJob) LastSummary() *command.RecapSummary {
	return j.lastSummary.Load()
}
