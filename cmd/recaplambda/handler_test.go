package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterhours/nightlife-core/internal/application/command"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

type runnerStub struct {
	got command.GenerateWeeklyRecapsCommand
	err error
}

func (r *runnerStub) Handle(_ context.Context, cmd command.GenerateWeeklyRecapsCommand) (*command.RecapSummary, error) {
	r.got = cmd
	if r.err != nil {
		return nil, r.err
	}
	return &command.RecapSummary{Processed: 3, Successful: 2, Skipped: 1}, nil
}

func TestHandler_ScheduledEventRunsBatch(t *testing.T) {
	runner := &runnerStub{}
	drained := 0
	h := NewHandler(runner, func() { drained++ }, nil)

	at := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	summary, err := h.Handle(context.Background(), events.CloudWatchEvent{
		ID:         "evt-1",
		Source:     "aws.events",
		DetailType: "Scheduled Event",
		Time:       at,
		Detail:     json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.True(t, runner.got.BatchMode)
	assert.Empty(t, runner.got.UserID)
	assert.True(t, runner.got.Actor.HasRole(shared.RoleScheduler))
	assert.Equal(t, at, runner.got.Now)
	assert.Equal(t, 1, drained)
}

func TestHandler_SingleUserDetail(t *testing.T) {
	runner := &runnerStub{}
	h := NewHandler(runner, nil, nil)

	_, err := h.Handle(context.Background(), events.CloudWatchEvent{
		Detail: json.RawMessage(`{"userId":"u-42"}`),
	})
	require.NoError(t, err)

	assert.False(t, runner.got.BatchMode)
	assert.Equal(t, "u-42", runner.got.UserID)
}

func TestHandler_EmptyOrNullDetail(t *testing.T) {
	for _, detail := range []json.RawMessage{nil, json.RawMessage(`null`)} {
		runner := &runnerStub{}
		_, err := NewHandler(runner, nil, nil).Handle(context.Background(), events.CloudWatchEvent{Detail: detail})
		require.NoError(t, err)
		assert.True(t, runner.got.BatchMode)
	}
}

func TestHandler_Errors(t *testing.T) {
	_, err := NewHandler(&runnerStub{}, nil, nil).Handle(context.Background(), events.CloudWatchEvent{
		Detail: json.RawMessage(`{"userId":`),
	})
	assert.ErrorContains(t, err, "invalid event detail")

	drained := false
	runner := &runnerStub{err: shared.ErrRecapBatchRunning}
	_, err = NewHandler(runner, func() { drained = true }, nil).Handle(context.Background(), events.CloudWatchEvent{})
	assert.True(t, errors.Is(err, shared.ErrRecapBatchRunning))
	assert.True(t, drained, "handlers are drained even when the run fails")
}
