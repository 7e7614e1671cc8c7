package onesignal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig("app-1", "rest-key")
	cfg.BaseURL = srv.URL
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(ClientConfig{APIKey: "k"})
	assert.Error(t, err)
	_, err = NewClient(ClientConfig{AppID: "a"})
	assert.Error(t, err)
}

func TestSend_Success(t *testing.T) {
	var got NotificationRequestDTO
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications", r.URL.Path)
		assert.Equal(t, "Basic rest-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"n1","recipients":2}`))
	})

	res, err := c.Send(context.Background(), []string{"t1", "t2"}, "Hi", "Body", map[string]string{"type": "level_up"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Empty(t, res.InvalidTokens)

	assert.Equal(t, "app-1", got.AppID)
	assert.Equal(t, []string{"t1", "t2"}, got.IncludePlayerIDs)
	assert.Equal(t, "Hi", got.Headings["en"])
	assert.Equal(t, "Body", got.Contents["en"])
	assert.Equal(t, "level_up", got.Data["type"])
}

func TestSend_ReportsInvalidTokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"n1","errors":{"invalid_player_ids":["dead"]}}`))
	})

	res, err := c.Send(context.Background(), []string{"ok", "dead"}, "Hi", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, []string{"dead"}, res.InvalidTokens)
}

func TestSend_NoSubscribersIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":["All included players are not subscribed"]}`))
	})

	res, err := c.Send(context.Background(), []string{"t1"}, "Hi", "", nil)
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
}

func TestSend_EmptyTokensSkipsRequest(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	res, err := c.Send(context.Background(), nil, "Hi", "", nil)
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestSend_Batches(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req NotificationRequestDTO
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(NotificationResponseDTO{ID: "n", Recipients: len(req.IncludePlayerIDs)})
	})
	c.config.BatchSize = 2

	res, err := c.Send(context.Background(), []string{"a", "b", "c", "d", "e"}, "Hi", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Sent)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"n1","recipients":1}`))
	})

	res, err := c.Send(context.Background(), []string{"t1"}, "Hi", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSend_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Send(context.Background(), []string{"t1"}, "Hi", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrRateLimited)
	assert.True(t, shared.IsExternalService(err))
}

func TestSend_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":["app_id not found"]}`))
	})

	_, err := c.Send(context.Background(), []string{"t1"}, "Hi", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Contains(t, err.Error(), "app_id not found")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResponseDTO_Errors(t *testing.T) {
	var obj NotificationResponseDTO
	require.NoError(t, json.Unmarshal([]byte(`{"errors":{"invalid_player_ids":["x"]}}`), &obj))
	assert.Equal(t, []string{"x"}, obj.InvalidPlayerIDs())
	assert.Nil(t, obj.Messages())

	var list NotificationResponseDTO
	require.NoError(t, json.Unmarshal([]byte(`{"errors":["boom"]}`), &list))
	assert.Nil(t, list.InvalidPlayerIDs())
	assert.Equal(t, []string{"boom"}, list.Messages())
}
