package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterhours/nightlife-core/internal/domain/notification"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

func syncBus() *InMemoryEventBus {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = false
	return NewInMemoryEventBus(cfg)
}

func TestEventBus_DeliversByType(t *testing.T) {
	bus := syncBus()

	var got []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventQuestClaimed, func(_ context.Context, e shared.Event) error {
		got = append(got, e.EventType())
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, shared.NewQuestClaimedEvent("u1", "q1", "Three Nights", 150)))
	require.NoError(t, bus.Publish(ctx, shared.NewXPAwardedEvent("u1", 100, 250, "admin", 1, 2)))

	assert.Equal(t, []shared.EventType{shared.EventQuestClaimed}, got)
	assert.Equal(t, int64(1), bus.Metrics().Snapshot().Published[shared.EventQuestClaimed])
}

func TestEventBus_HandlerErrorsGoToDeadLetters(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Subscribe(shared.EventQuestClaimed, func(context.Context, shared.Event) error {
		return errors.New("push down")
	}))
	require.NoError(t, bus.Subscribe(shared.EventQuestClaimed, func(context.Context, shared.Event) error {
		panic("boom")
	}))

	err := bus.Publish(context.Background(), shared.NewQuestClaimedEvent("u1", "q1", "t", 10))
	require.NoError(t, err, "handler failures are not returned to the publisher")

	entries := bus.DeadLetters().Entries()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Error, "push down")
	assert.Contains(t, entries[1].Error, ErrHandlerPanic.Error())

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.HandlerFailures)
	assert.Equal(t, 0.0, snap.HandlerSuccessRate)
}

func TestEventBus_AsyncSurvivesCancelledContext(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var ran int32
	require.NoError(t, bus.Subscribe(shared.EventAchievementEarned, func(ctx context.Context, _ shared.Event) error {
		if ctx.Err() == nil {
			atomic.AddInt32(&ran, 1)
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, shared.NewAchievementEarnedEvent("u1", "a1", "Night Owl", 100)))
	cancel()

	bus.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestEventBus_Closed(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), shared.NewXPAwardedEvent("u", 10, 10, "admin", 1, 1)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventXPAwarded, func(context.Context, shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestDeadLetterQueue_Bounded(t *testing.T) {
	q := NewDeadLetterQueue(2)
	q.Add(DeadLetterEntry{Error: "a"})
	q.Add(DeadLetterEntry{Error: "b"})
	q.Add(DeadLetterEntry{Error: "c"})

	assert.Equal(t, 2, q.Size())
	e, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", e.Error)
}

// ══════════════════════════════════════════════════════════════════════════════
// PUSH DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

type memTokens struct {
	mu     sync.Mutex
	active map[string][]string
	off    []string
}

func (m *memTokens) Register(_ context.Context, t notification.PushToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[t.UserID] = append(m.active[t.UserID], t.Token)
	return nil
}

func (m *memTokens) ActiveTokens(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.active[userID]...), nil
}

func (m *memTokens) Deactivate(_ context.Context, tokens []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.off = append(m.off, tokens...)
	return int64(len(tokens)), nil
}

type stubSender struct {
	calls  int
	tokens []string
	result notification.SendResult
	err    error
}

func (s *stubSender) Send(_ context.Context, tokens []string, _, _ string, _ map[string]string) (notification.SendResult, error) {
	s.calls++
	s.tokens = tokens
	return s.result, s.err
}

type recordingPublisher struct {
	events []shared.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestPushDispatcher_DeactivatesInvalidTokens(t *testing.T) {
	tokens := &memTokens{active: map[string][]string{"u1": {"good", "stale"}}}
	sender := &stubSender{result: notification.SendResult{Sent: 1, InvalidTokens: []string{"stale"}}}
	pub := &recordingPublisher{}
	d := NewPushDispatcher(DispatcherConfig{Tokens: tokens, Sender: sender, Publisher: pub})

	res, err := d.Notify(context.Background(), "u1", notification.NewLevelUpMessage(3))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, []string{"good", "stale"}, sender.tokens)
	assert.Equal(t, []string{"stale"}, tokens.off)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventPushTokensDeactivated, pub.events[0].EventType())
}

func TestPushDispatcher_NoDevices(t *testing.T) {
	sender := &stubSender{}
	d := NewPushDispatcher(DispatcherConfig{Tokens: &memTokens{active: map[string][]string{}}, Sender: sender})

	res, err := d.Notify(context.Background(), "u1", notification.NewLevelUpMessage(3))
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
	assert.Zero(t, sender.calls)
}

func TestPushDispatcher_RejectsInvalidInput(t *testing.T) {
	d := NewPushDispatcher(DispatcherConfig{Tokens: &memTokens{active: map[string][]string{}}, Sender: &stubSender{}})

	_, err := d.Notify(context.Background(), "", notification.NewLevelUpMessage(3))
	assert.Error(t, err)

	_, err = d.Notify(context.Background(), "u1", notification.Message{})
	assert.True(t, shared.IsValidation(err))
}

func TestPushDispatcher_SenderError(t *testing.T) {
	tokens := &memTokens{active: map[string][]string{"u1": {"t"}}}
	sender := &stubSender{err: shared.ErrPushProviderFailed}
	d := NewPushDispatcher(DispatcherConfig{Tokens: tokens, Sender: sender})

	_, err := d.Notify(context.Background(), "u1", notification.NewLevelUpMessage(3))
	assert.True(t, shared.IsExternalService(err))
	assert.Empty(t, tokens.off)
}

func TestPushDispatcher_ThroughBus(t *testing.T) {
	bus := syncBus()
	tokens := &memTokens{active: map[string][]string{"u1": {"t"}}}
	sender := &stubSender{result: notification.SendResult{Sent: 1}}
	d := NewPushDispatcher(DispatcherConfig{Tokens: tokens, Sender: sender, Publisher: bus})

	require.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(ctx context.Context, e shared.Event) error {
		_, err := d.Notify(ctx, e.AggregateID(), notification.NewLevelUpMessage(2))
		return err
	}))
	require.NoError(t, bus.Publish(context.Background(), shared.NewXPAwardedEvent("u1", 100, 250, "admin", 1, 2)))

	assert.Equal(t, 1, sender.calls)
	assert.Zero(t, bus.DeadLetters().Size())
}
