// Package handlers contains the HTTP middleware and health checks shared by
// the API server: gateway identity, service-key auth and response headers.
package handlers

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/bcrypt"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// Header names set by the API gateway and by service callers.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
	HeaderAPIKey    = "X-API-Key"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTOR CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ContextKeyActor holds the authenticated shared.Actor.
	ContextKeyActor ContextKey = "actor"
)

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, actor shared.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// ActorFromContext returns the actor attached by the identity middleware.
func ActorFromContext(ctx context.Context) (shared.Actor, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(shared.Actor)
	return actor, ok
}

// ══════════════════════════════════════════════════════════════════════════════
// GATEWAY IDENTITY MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// GatewayIdentity trusts the identity headers forwarded by the API gateway.
// The gateway has already verified the end-user token; when GatewaySecret is
// set the bearer token must equal it, which keeps direct callers from
// forging X-User-ID.
type GatewayIdentity struct {
	gatewaySecret string
}

// NewGatewayIdentity creates the middleware. An empty secret accepts any
// bearer token but ignores X-User-Roles: every such caller is a plain user,
// and privileged roles only come from ServiceKeyAuth.
func NewGatewayIdentity(gatewaySecret string) *GatewayIdentity {
	return &GatewayIdentity{gatewaySecret: gatewaySecret}
}

// Middleware attaches an Actor when the request carries gateway identity.
// Requests without identity pass through anonymously.
func (g *GatewayIdentity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_token", "Bearer token is required")
			return
		}
		if g.gatewaySecret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(g.gatewaySecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid gateway token")
			return
		}

		uid, err := shared.NewUserID(userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_user", "Invalid user identity")
			return
		}

		var roles []shared.Role
		if g.gatewaySecret != "" {
			roles = shared.ParseRoles(r.Header.Get(HeaderUserRoles))
		}
		if len(roles) == 0 {
			roles = []shared.Role{shared.RoleUser}
		}
		actor := shared.Actor{UserID: uid, Roles: roles}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return token, token != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE KEY AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// ServiceKeyAuth authenticates service callers (the scheduler, ops tooling)
// by X-API-Key. Keys are configured as bcrypt hashes; a matching key grants
// the admin role. bcrypt is deliberately slow, so digests of keys that
// already verified are remembered in a small LRU.
type ServiceKeyAuth struct {
	hashes   [][]byte
	verified *lru.Cache
}

// NewServiceKeyAuth creates the authenticator. Empty hashes are ignored.
func NewServiceKeyAuth(hashes []string) (*ServiceKeyAuth, error) {
	cache, err := lru.New(64)
	if err != nil {
		return nil, err
	}

	a := &ServiceKeyAuth{verified: cache}
	for _, h := range hashes {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, err
		}
		a.hashes = append(a.hashes, []byte(h))
	}
	return a, nil
}

// Enabled reports whether any key is configured.
func (a *ServiceKeyAuth) Enabled() bool {
	return a != nil && len(a.hashes) > 0
}

// Verify checks a presented key against the configured hashes.
func (a *ServiceKeyAuth) Verify(key string) bool {
	if !a.Enabled() || key == "" {
		return false
	}

	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	if a.verified.Contains(digest) {
		return true
	}

	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			a.verified.Add(digest, struct{}{})
			return true
		}
	}
	return false
}

// Middleware upgrades requests carrying a valid X-API-Key to an admin actor.
// A present but invalid key is rejected outright.
func (a *ServiceKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !a.Verify(key) {
			writeError(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
			return
		}

		actor, _ := ActorFromContext(r.Context())
		if !actor.HasRole(shared.RoleAdmin) {
			actor.Roles = append(actor.Roles, shared.RoleAdmin)
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS GUARDS
// ══════════════════════════════════════════════════════════════════════════════

// RequireUser rejects requests without an authenticated end user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok || !actor.UserID.IsValid() {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose actor has none of the roles.
func RequireRole(roles ...shared.Role) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			for _, role := range roles {
				if actor.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden", "Insufficient role")
		})
	}
}

// RequireActor rejects anonymous requests but accepts service callers.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok || (!actor.UserID.IsValid() && len(actor.Roles) == 0) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CONTROL MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// CacheControlMiddleware adds cache control headers.
func CacheControlMiddleware(maxAge time.Duration, private bool) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				directive := "public"
				if private {
					directive = "private"
				}
				w.Header().Set("Cache-Control", directive+", max-age="+formatSeconds(maxAge))
			} else {
				w.Header().Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NoCacheMiddleware prevents caching of per-user responses.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY HEADERS MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

func formatSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 0 {
		secs = 0
	}
	return strconv.Itoa(secs)
}

// writeError writes the same envelope as the server's error responses.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"success":false,"error":{"code":"` + code + `","message":"` + message + `"}}`))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc is a function that wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain chains multiple middleware functions. The first one is outermost.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// ChainHandler chains middleware and wraps a final handler.
func ChainHandler(handler http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	return Chain(middlewares...)(handler)
}
