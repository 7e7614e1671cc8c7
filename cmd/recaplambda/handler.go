package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/afterhours/nightlife-core/internal/application/command"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// RecapRunner - обработчик команды рекапов.
type RecapRunner interface {
	Handle(ctx context.Context, cmd command.GenerateWeeklyRecapsCommand) (*command.RecapSummary, error)
}

// recapDetail - необязательное тело detail события EventBridge. Пустой
// detail (обычное расписание) запускает батч по всем пользователям.
type recapDetail struct {
	UserID string `json:"userId"`
}

// Handler обрабатывает события EventBridge.
type Handler struct {
	runner RecapRunner

	// drain дожидается асинхронных обработчиков событий (push), чтобы среда
	// Lambda не заморозилась посреди отправки.
	drain func()

	logger *slog.Logger
}

// NewHandler создаёт обработчик. drain может быть nil.
func NewHandler(runner RecapRunner, drain func(), logger *slog.Logger) *Handler {
	if drain == nil {
		drain = func() {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: runner, drain: drain, logger: logger}
}

// Handle запускает рекапы. Неделя считается от времени события, а не от
// момента вызова: повторная доставка того же события пишет ту же неделю.
func (h *Handler) Handle(ctx context.Context, event events.CloudWatchEvent) (*command.RecapSummary, error) {
	var detail recapDetail
	if len(event.Detail) > 0 && string(event.Detail) != "null" {
		if err := json.Unmarshal(event.Detail, &detail); err != nil {
			return nil, fmt.Errorf("invalid event detail: %w", err)
		}
	}

	cmd := command.GenerateWeeklyRecapsCommand{
		Actor:     shared.SystemActor(),
		UserID:    detail.UserID,
		BatchMode: detail.UserID == "",
		Now:       event.Time,
	}

	h.logger.Info("recap invocation",
		"event_id", event.ID,
		"source", event.Source,
		"event_time", event.Time,
		"user_id", detail.UserID,
		"batch", cmd.BatchMode,
	)

	summary, err := h.runner.Handle(ctx, cmd)
	h.drain()
	if err != nil {
		return nil, err
	}

	h.logger.Info("recap invocation finished",
		"week_start", summary.Week.Start,
		"processed", summary.Processed,
		"successful", summary.Successful,
		"skipped", summary.Skipped,
		"failed", len(summary.Failures),
		"duration", summary.Duration.String(),
	)
	return summary, nil
}
