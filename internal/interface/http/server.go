// Package http implements the REST API of the nightlife core: the public
// flex-card lookup, the per-user progression endpoints, admin mutations and
// the weekly recap invocation.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afterhours/nightlife-core/internal/application/command"
	"github.com/afterhours/nightlife-core/internal/application/query"
	"github.com/afterhours/nightlife-core/internal/domain/flexcard"
	"github.com/afterhours/nightlife-core/internal/domain/notification"
	"github.com/afterhours/nightlife-core/internal/domain/recap"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
	"github.com/afterhours/nightlife-core/internal/interface/http/handlers"
	"github.com/afterhours/nightlife-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64

	EnableCORS     bool
	AllowedOrigins []string

	// RateLimitPerMinute - requests per minute per caller (0 = disabled).
	RateLimitPerMinute int

	// FlexCacheMaxAge is the Cache-Control max-age of public flex cards.
	FlexCacheMaxAge time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       60 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       64 << 10,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
		FlexCacheMaxAge:    5 * time.Minute,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// USE CASES
// Narrow views of the application handlers. Each route depends only on the
// method it calls.
// ══════════════════════════════════════════════════════════════════════════════

type XPReader interface {
	Handle(ctx context.Context, q query.GetXPQuery) (*query.GetXPResult, error)
}

type XPAwarder interface {
	Handle(ctx context.Context, cmd command.AwardXPCommand) (*command.AwardXPResult, error)
}

type AchievementLister interface {
	Handle(ctx context.Context, q query.ListAchievementsQuery) (*query.ListAchievementsResult, error)
}

type AchievementEvaluator interface {
	Handle(ctx context.Context, cmd command.EvaluateAchievementsCommand) (*command.EvaluateAchievementsResult, error)
}

type QuestLister interface {
	Handle(ctx context.Context, q query.ListActiveQuestsQuery) (*query.ListActiveQuestsResult, error)
}

type QuestClaimer interface {
	Handle(ctx context.Context, cmd command.ClaimQuestCommand) (*command.ClaimQuestResult, error)
}

type QuestProgressor interface {
	Handle(ctx context.Context, cmd command.IncrementQuestProgressCommand) (*command.IncrementQuestProgressResult, error)
}

type TimelineReader interface {
	Handle(ctx context.Context, q query.GetTimelineQuery) (*query.GetTimelineResult, error)
}

type TimelineWriter interface {
	Add(ctx context.Context, cmd command.AddTimelineEntryCommand) (*command.AddTimelineEntryResult, error)
	Update(ctx context.Context, cmd command.UpdateTimelineEntryCommand) (*timeline.Entry, error)
}

type StreakRefresher interface {
	Handle(ctx context.Context, userID string) (*command.RefreshStreakResult, error)
}

type FlexCardGenerator interface {
	Handle(ctx context.Context, cmd command.GenerateFlexCardCommand) (*command.GenerateFlexCardResult, error)
}

type FlexCardReader interface {
	Handle(ctx context.Context, shareCode string) (*flexcard.PublicView, error)
}

type RecapGenerator interface {
	Handle(ctx context.Context, cmd command.GenerateWeeklyRecapsCommand) (*command.RecapSummary, error)
}

type RecapLister interface {
	Handle(ctx context.Context, q query.ListRecapsQuery) ([]recap.WeeklyRecap, error)
}

type PushTokenRegistrar interface {
	Register(ctx context.Context, t notification.PushToken) error
}

// RateLimiter counts requests per caller; see the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string) (allowed bool, remaining int, err error)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers. A nil
// use case leaves its route unregistered.
type Dependencies struct {
	// Command side
	AwardXP              XPAwarder
	EvaluateAchievements AchievementEvaluator
	ClaimQuest           QuestClaimer
	QuestProgress        QuestProgressor
	Timeline             TimelineWriter
	RefreshStreak        StreakRefresher
	GenerateFlexCard     FlexCardGenerator
	GenerateRecaps       RecapGenerator
	PushTokens           PushTokenRegistrar

	// Query side
	GetXP            XPReader
	ListAchievements AchievementLister
	ListQuests       QuestLister
	GetTimeline      TimelineReader
	ListRecaps       RecapLister
	PublicFlexCard   FlexCardReader

	// Access control
	Identity    *handlers.GatewayIdentity
	ServiceKeys *handlers.ServiceKeyAuth
	RateLimiter RateLimiter

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
	Version       string
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))
	if s.deps.Identity == nil {
		s.deps.Identity = handlers.NewGatewayIdentity("")
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.buildMiddlewareChain(s.router),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// Public
	// ─────────────────────────────────────────────────────────────────────────
	public := handlers.CacheControlMiddleware(s.config.FlexCacheMaxAge, false)
	s.route("GET /flex/{share_code}", s.deps.PublicFlexCard != nil, s.handleGetPublicFlexCard, public)

	// ─────────────────────────────────────────────────────────────────────────
	// Current user
	// ─────────────────────────────────────────────────────────────────────────
	user := handlers.Chain(handlers.RequireUser, handlers.NoCacheMiddleware)
	s.route("GET /api/v1/me/xp", s.deps.GetXP != nil, s.handleGetXP, user)
	s.route("GET /api/v1/me/achievements", s.deps.ListAchievements != nil, s.handleListAchievements, user)
	s.route("POST /api/v1/me/achievements/evaluate", s.deps.EvaluateAchievements != nil, s.handleEvaluateAchievements, user)
	s.route("GET /api/v1/me/quests", s.deps.ListQuests != nil, s.handleListQuests, user)
	s.route("POST /api/v1/me/quests/{id}/claim", s.deps.ClaimQuest != nil, s.handleClaimQuest, user)
	s.route("GET /api/v1/me/timeline", s.deps.GetTimeline != nil, s.handleGetTimeline, user)
	s.route("POST /api/v1/me/timeline", s.deps.Timeline != nil, s.handleAddTimelineEntry, user)
	s.route("PATCH /api/v1/me/timeline/{id}", s.deps.Timeline != nil, s.handleUpdateTimelineEntry, user)
	s.route("GET /api/v1/me/stats", s.deps.RefreshStreak != nil, s.handleGetStats, user)
	s.route("POST /api/v1/me/flex-cards", s.deps.GenerateFlexCard != nil, s.handleGenerateFlexCard, user)
	s.route("GET /api/v1/me/recaps", s.deps.ListRecaps != nil, s.handleListRecaps, user)
	s.route("POST /api/v1/me/push-tokens", s.deps.PushTokens != nil, s.handleRegisterPushToken, user)

	// ─────────────────────────────────────────────────────────────────────────
	// Admin & service callers
	// ─────────────────────────────────────────────────────────────────────────
	admin := handlers.RequireRole(shared.RoleAdmin)
	s.route("POST /api/v1/admin/xp", s.deps.AwardXP != nil, s.handleAdminAwardXP, admin)
	s.route("POST /api/v1/admin/quests/{id}/progress", s.deps.QuestProgress != nil, s.handleAdminQuestProgress, admin)

	// Users may recap themselves; batch and foreign ids are checked by the command.
	s.route("POST /api/v1/recaps/weekly", s.deps.GenerateRecaps != nil, s.handleGenerateWeeklyRecaps, handlers.RequireActor)
}

func (s *Server) route(pattern string, enabled bool, h http.HandlerFunc, mw handlers.MiddlewareFunc) {
	if !enabled {
		return
	}
	s.router.Handle(pattern, mw(h))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router. The outermost middleware runs first.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	chain := []handlers.MiddlewareFunc{
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		handlers.SecurityHeadersMiddleware,
	}
	if s.config.EnableCORS {
		chain = append(chain, s.corsMiddleware)
	}
	if s.config.MaxBodyBytes > 0 {
		chain = append(chain, handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
	}
	chain = append(chain, s.deps.Identity.Middleware)
	if s.deps.ServiceKeys.Enabled() {
		chain = append(chain, s.deps.ServiceKeys.Middleware)
	}
	if s.deps.RateLimiter != nil && s.config.RateLimitPerMinute > 0 {
		chain = append(chain, s.rateLimitMiddleware)
	}
	return handlers.ChainHandler(handler, chain...)
}

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.String("ip", getClientIP(r)),
			logger.String("request_id", getRequestID(r.Context())),
		}
		if actor, ok := handlers.ActorFromContext(r.Context()); ok && actor.UserID.IsValid() {
			fields = append(fields, logger.UserID(actor.UserID.String()))
		}

		switch {
		case rw.statusCode >= 500:
			s.logger.Error("http request", fields...)
		case r.URL.Path == "/live" || r.URL.Path == "/ready":
			s.logger.Debug("http request", fields...)
		default:
			s.logger.Info("http request", fields...)
		}
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
					logger.String("request_id", getRequestID(r.Context())),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, o := range s.config.AllowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}
		if allowed && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID, X-User-ID, X-User-Roles")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware limits per user, falling back to the client IP for
// anonymous traffic. A limiter outage lets requests through.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/live" || r.URL.Path == "/ready" {
			next.ServeHTTP(w, r)
			return
		}

		key := "ip:" + getClientIP(r)
		if actor, ok := handlers.ActorFromContext(r.Context()); ok && actor.UserID.IsValid() {
			key = "user:" + actor.UserID.String()
		}

		allowed, remaining, err := s.deps.RateLimiter.Allow(r.Context(), key)
		if err != nil {
			s.logger.Warn("rate limiter unavailable", logger.Err(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.config.RateLimitPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success     bool          `json:"success"`
	AlreadyDone bool          `json:"already_done,omitempty"`
	Data        any           `json:"data,omitempty"`
	Error       *APIError     `json:"error,omitempty"`
	Meta        *ResponseMeta `json:"meta,omitempty"`
	RequestID   string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
	Page       int       `json:"page,omitempty"`
	PageSize   int       `json:"page_size,omitempty"`
	HasMore    bool      `json:"has_more,omitempty"`
}

func writeResponse(w http.ResponseWriter, status int, resp JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a successful JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSONWithMeta(w, r, status, data, nil)
}

// writeJSONWithMeta writes a JSON response with custom metadata.
func writeJSONWithMeta(w http.ResponseWriter, r *http.Request, status int, data any, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"

	writeResponse(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeResponse(w, status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: getRequestID(r.Context()),
	})
}

// writeAlreadyDone reports a benign no-op as success.
func writeAlreadyDone(w http.ResponseWriter, r *http.Request, data any) {
	writeResponse(w, http.StatusOK, JSONResponse{
		Success:     true,
		AlreadyDone: true,
		Data:        data,
		Meta:        &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID:   getRequestID(r.Context()),
	})
}

// writeDomainError maps a domain error kind to a status code. Messages of
// unexpected errors are not exposed to the client.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)

	message := http.StatusText(status)
	var de *shared.DomainError
	if errors.As(err, &de) && status < 500 {
		message = de.Message
	}

	if status >= 500 {
		logger.FromContext(r.Context()).Error("request failed",
			logger.Operation(op),
			logger.Err(err),
		)
		message = "An unexpected error occurred"
	}
	writeJSONError(w, r, status, code, message)
}

func statusFor(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsUnauthorized(err):
		return http.StatusUnauthorized, "unauthorized"
	case shared.IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrInvalidState),
		errors.Is(err, shared.ErrExpired),
		errors.Is(err, shared.ErrLockNotAcquired),
		errors.Is(err, shared.ErrConcurrentModification):
		return http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, shared.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// getQueryParamInt extracts an integer query parameter with a default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getQueryParamBool extracts a boolean query parameter.
func getQueryParamBool(r *http.Request, key string) bool {
	value := strings.ToLower(r.URL.Query().Get(key))
	return value == "true" || value == "1" || value == "yes"
}
