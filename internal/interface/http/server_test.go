package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/afterhours/nightlife-core/internal/application/command"
	"github.com/afterhours/nightlife-core/internal/application/query"
	"github.com/afterhours/nightlife-core/internal/domain/flexcard"
	"github.com/afterhours/nightlife-core/internal/domain/notification"
	"github.com/afterhours/nightlife-core/internal/domain/recap"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
	"github.com/afterhours/nightlife-core/internal/domain/xp"
	"github.com/afterhours/nightlife-core/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUBS
// ══════════════════════════════════════════════════════════════════════════════

type xpReaderStub struct{ got query.GetXPQuery }

func (s *xpReaderStub) Handle(_ context.Context, q query.GetXPQuery) (*query.GetXPResult, error) {
	s.got = q
	return &query.GetXPResult{XP: query.XPDTO{UserID: q.UserID, TotalXP: 250, CurrentLevel: 2}}, nil
}

type xpAwarderStub struct{ got command.AwardXPCommand }

func (s *xpAwarderStub) Handle(_ context.Context, cmd command.AwardXPCommand) (*command.AwardXPResult, error) {
	s.got = cmd
	u := &xp.UserXP{UserID: cmd.UserID, TotalXP: cmd.Amount, CurrentLevel: 1}
	return &command.AwardXPResult{XP: u, Progress: u.Progress()}, nil
}

type claimerStub struct {
	result *command.ClaimQuestResult
	err    error
}

func (s *claimerStub) Handle(context.Context, command.ClaimQuestCommand) (*command.ClaimQuestResult, error) {
	return s.result, s.err
}

type flexReaderStub struct{}

func (flexReaderStub) Handle(_ context.Context, code string) (*flexcard.PublicView, error) {
	if code != "night-owl-x1y2" {
		return nil, shared.ErrFlexCardNotFound
	}
	return &flexcard.PublicView{ShareCode: code, Title: "Night Owl"}, nil
}

type recapStub struct{ calls int }

func (s *recapStub) Handle(_ context.Context, cmd command.GenerateWeeklyRecapsCommand) (*command.RecapSummary, error) {
	if _, err := command.Authorize(cmd); err != nil {
		return nil, err
	}
	s.calls++
	return &command.RecapSummary{
		Week: recap.Week{
			Start: time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 10, 11, 23, 59, 59, 0, time.UTC),
		},
		Processed:  1,
		Successful: 1,
	}, nil
}

type timelineStub struct{ added timeline.Entry }

func (s *timelineStub) Add(_ context.Context, cmd command.AddTimelineEntryCommand) (*command.AddTimelineEntryResult, error) {
	s.added = cmd.Entry
	return &command.AddTimelineEntryResult{Entry: cmd.Entry}, nil
}

func (s *timelineStub) Update(context.Context, command.UpdateTimelineEntryCommand) (*timeline.Entry, error) {
	return nil, shared.ErrTimelineEntryNotFound
}

type tokensStub struct{ got []notification.PushToken }

func (s *tokensStub) Register(_ context.Context, t notification.PushToken) error {
	s.got = append(s.got, t)
	return nil
}

type limiterStub struct {
	allowed bool
	err     error
	keys    []string
}

func (l *limiterStub) Allow(_ context.Context, id string) (bool, int, error) {
	l.keys = append(l.keys, id)
	return l.allowed, 0, l.err
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

const testServiceKey = "scheduler-secret"

func newTestServer(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testServiceKey), bcrypt.MinCost)
	require.NoError(t, err)
	keys, err := handlers.NewServiceKeyAuth([]string{string(hash)})
	require.NoError(t, err)

	deps.ServiceKeys = keys
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 100
	return NewServer(cfg, deps).Handler()
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func asUser(id string) map[string]string {
	return map[string]string{"Authorization": "Bearer gw", "X-User-ID": id}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestHealthEndpoints(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil }, true)
	checker.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") }, false)
	h := newTestServer(t, Dependencies{HealthChecker: checker})

	assert.Equal(t, http.StatusServiceUnavailable, do(h, "GET", "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(h, "GET", "/ready", "", nil).Code, "cache outage keeps the instance ready")
	assert.Equal(t, http.StatusOK, do(h, "GET", "/live", "", nil).Code)
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, Dependencies{})

	rec := do(h, "GET", "/live", "", map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-1", decode(t, rec).RequestID)

	rec = do(h, "GET", "/live", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMeRoutes_RequireIdentity(t *testing.T) {
	reader := &xpReaderStub{}
	h := newTestServer(t, Dependencies{GetXP: reader})

	rec := do(h, "GET", "/api/v1/me/xp", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, "GET", "/api/v1/me/xp", "", map[string]string{"X-User-ID": "u1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "identity without a bearer token is rejected")

	rec = do(h, "GET", "/api/v1/me/xp?history=5", "", asUser("u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", reader.got.UserID)
	assert.Equal(t, 5, reader.got.HistoryLimit)
	assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", rec.Header().Get("Cache-Control"))
}

func TestPublicFlexCard(t *testing.T) {
	h := newTestServer(t, Dependencies{PublicFlexCard: flexReaderStub{}})

	rec := do(h, "GET", "/flex/night-owl-x1y2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "public")
	assert.Contains(t, rec.Body.String(), "Night Owl")

	rec = do(h, "GET", "/flex/private-card", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec).Error.Code)
}

func TestClaimQuest(t *testing.T) {
	t.Run("claimed", func(t *testing.T) {
		h := newTestServer(t, Dependencies{ClaimQuest: &claimerStub{result: &command.ClaimQuestResult{Claimed: true, XPAwarded: 150}}})
		rec := do(h, "POST", "/api/v1/me/quests/q1/claim", "", asUser("u1"))
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode(t, rec)
		assert.True(t, resp.Success)
		assert.False(t, resp.AlreadyDone)
	})

	t.Run("already claimed is success", func(t *testing.T) {
		h := newTestServer(t, Dependencies{ClaimQuest: &claimerStub{result: &command.ClaimQuestResult{}, err: shared.ErrQuestAlreadyClaimed}})
		rec := do(h, "POST", "/api/v1/me/quests/q1/claim", "", asUser("u1"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode(t, rec).AlreadyDone)
	})

	t.Run("not completed", func(t *testing.T) {
		h := newTestServer(t, Dependencies{ClaimQuest: &claimerStub{result: &command.ClaimQuestResult{}, err: shared.ErrQuestNotCompleted}})
		rec := do(h, "POST", "/api/v1/me/quests/q1/claim", "", asUser("u1"))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unexpected error is hidden", func(t *testing.T) {
		h := newTestServer(t, Dependencies{ClaimQuest: &claimerStub{result: &command.ClaimQuestResult{}, err: errors.New("pq: connection reset")}})
		rec := do(h, "POST", "/api/v1/me/quests/q1/claim", "", asUser("u1"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection reset")
	})
}

func TestAdminAwardXP(t *testing.T) {
	awarder := &xpAwarderStub{}
	h := newTestServer(t, Dependencies{AwardXP: awarder})
	body := `{"user_id":"u2","amount":100}`

	rec := do(h, "POST", "/api/v1/admin/xp", body, asUser("u1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, "POST", "/api/v1/admin/xp", body, map[string]string{handlers.HeaderAPIKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, "POST", "/api/v1/admin/xp", body, map[string]string{handlers.HeaderAPIKey: testServiceKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u2", awarder.got.UserID)
	assert.Equal(t, int64(100), awarder.got.Amount)
	assert.Equal(t, "admin", awarder.got.Reason)
	assert.True(t, awarder.got.Actor.HasRole(shared.RoleAdmin))

	rec = do(h, "POST", "/api/v1/admin/xp", `{"user_id":"u2","amount":1,"bogus":true}`, map[string]string{handlers.HeaderAPIKey: testServiceKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeeklyRecapInvocation(t *testing.T) {
	gen := &recapStub{}
	h := newTestServer(t, Dependencies{GenerateRecaps: gen})

	rec := do(h, "POST", "/api/v1/recaps/weekly", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, "POST", "/api/v1/recaps/weekly", `{"batchMode":true}`, asUser("u1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, "POST", "/api/v1/recaps/weekly", "", asUser("u1"))
	assert.Equal(t, http.StatusOK, rec.Code, "an empty body recaps the caller")

	rec = do(h, "POST", "/api/v1/recaps/weekly", `{"batchMode":true}`, map[string]string{handlers.HeaderAPIKey: testServiceKey})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, gen.calls)

	var body struct {
		Data struct {
			Success    bool `json:"success"`
			Processed  int  `json:"processed"`
			Successful int  `json:"successful"`
			Week       struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"week"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Data.Success)
	assert.Equal(t, 1, body.Data.Processed)
	assert.Equal(t, 1, body.Data.Successful)
	assert.Equal(t, "2026-10-05", body.Data.Week.Start)
	assert.Equal(t, "2026-10-11", body.Data.Week.End)
}

func TestForgedRoleHeadersGrantNothingWithoutGatewaySecret(t *testing.T) {
	gen := &recapStub{}
	awarder := &xpAwarderStub{}
	h := newTestServer(t, Dependencies{GenerateRecaps: gen, AwardXP: awarder})

	forged := map[string]string{
		"Authorization": "Bearer anything",
		"X-User-ID":     "attacker",
		"X-User-Roles":  "admin",
	}

	rec := do(h, "POST", "/api/v1/recaps/weekly", `{"batchMode":true}`, forged)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, gen.calls)

	rec = do(h, "POST", "/api/v1/admin/xp", `{"user_id":"u2","amount":100}`, forged)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, awarder.got.UserID)
}

func TestTimelineRoutes(t *testing.T) {
	tl := &timelineStub{}
	h := newTestServer(t, Dependencies{Timeline: tl})

	rec := do(h, "POST", "/api/v1/me/timeline", `{"event_name":"Warehouse","event_city":"Berlin","attended_date":"yesterday"}`, asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, "POST", "/api/v1/me/timeline", `{"event_name":"Warehouse","event_city":"Berlin","attended_date":"2026-10-17","is_public":true}`, asUser("u1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "u1", tl.added.UserID)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), tl.added.AttendedDate)
	assert.True(t, tl.added.IsPublic)

	rec = do(h, "PATCH", "/api/v1/me/timeline/e9", `{"is_public":false}`, asUser("u1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterPushToken(t *testing.T) {
	tokens := &tokensStub{}
	h := newTestServer(t, Dependencies{PushTokens: tokens})

	rec := do(h, "POST", "/api/v1/me/push-tokens", `{"token":"abc","platform":"blackberry"}`, asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, "POST", "/api/v1/me/push-tokens", `{"token":"abc","platform":"iOS"}`, asUser("u1"))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, tokens.got, 1)
	assert.Equal(t, notification.PlatformIOS, tokens.got[0].Platform)
	assert.Equal(t, "u1", tokens.got[0].UserID)
}

func TestRateLimit(t *testing.T) {
	limiter := &limiterStub{allowed: false}
	h := newTestServer(t, Dependencies{GetXP: &xpReaderStub{}, RateLimiter: limiter})

	rec := do(h, "GET", "/api/v1/me/xp", "", asUser("u1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"user:u1"}, limiter.keys)

	// Probes are never limited.
	assert.Equal(t, http.StatusOK, do(h, "GET", "/live", "", nil).Code)

	limiter.allowed, limiter.err = false, errors.New("redis down")
	assert.Equal(t, http.StatusOK, do(h, "GET", "/api/v1/me/xp", "", asUser("u1")).Code, "limiter outage fails open")
}

func TestUnconfiguredRoutesAreAbsent(t *testing.T) {
	h := newTestServer(t, Dependencies{})
	assert.Equal(t, http.StatusNotFound, do(h, "GET", "/api/v1/me/quests", "", asUser("u1")).Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.ErrInvalidUserID, http.StatusBadRequest},
		{shared.ErrInvalidCardType, http.StatusBadRequest},
		{shared.ErrRecapForbidden, http.StatusForbidden},
		{shared.ErrQuestNotFound, http.StatusNotFound},
		{shared.ErrQuestExpired, http.StatusConflict},
		{shared.ErrRecapBatchRunning, http.StatusConflict},
		{shared.ErrPushRateLimited, http.StatusTooManyRequests},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
}
