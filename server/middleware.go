package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/rs/zerolog"
)

// ContextKey is the type used for request context values set by middleware.
type ContextKey string

const (
	// ContextKeyUser holds the authenticated *users.User.
	ContextKeyUser ContextKey = "user"
	// ContextKeyClaims holds the verified *token.Claims.
	ContextKeyClaims ContextKey = "claims"
)

// Middleware wraps an http.HandlerFunc with additional behaviour.
type Middleware func(http.HandlerFunc) http.HandlerFunc

// ChainMiddleware composes middleware so the first listed runs outermost.
func ChainMiddleware(h http.HandlerFunc, middleware ...Middleware) http.HandlerFunc {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// LoggingMiddleware logs each request with its duration and status.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next(rec, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		}
	}
}

// RecoverMiddleware converts handler panics into a 500 response.
func RecoverMiddleware(logger zerolog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic")
					writeMessage(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next(w, r)
		}
	}
}

// CorsMiddleware allows cross-origin requests from the configured origins.
// Credentials are enabled because the refresh secret travels in a cookie.
func CorsMiddleware(allowedOrigins []string) Middleware {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowed[origin] || allowed["*"]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next(w, r)
		}
	}
}

// RequireAuth verifies the bearer token and performs the full freshness check
// (epoch and session liveness) before admitting the request. The user and
// claims are placed on the request context.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, claims, err := s.auth.Authenticate(bearerToken(r))
		if err != nil {
			writeError(w, s.logger, err)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyUser, user)
		ctx = context.WithValue(ctx, ContextKeyClaims, claims)
		next(w, r.WithContext(ctx))
	}
}

// RequireRole admits only authenticated users holding one of the listed
// roles. Must run inside RequireAuth.
func (s *Server) RequireRole(roles ...users.RoleType) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				writeError(w, s.logger, auth.ErrUnauthorized)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next(w, r)
					return
				}
			}
			writeMessage(w, http.StatusForbidden, "insufficient role")
		}
	}
}

// UserFromContext returns the authenticated user set by RequireAuth, or nil.
func UserFromContext(ctx context.Context) *users.User {
	user, _ := ctx.Value(ContextKeyUser).(*users.User)
	return user
}

// ClaimsFromContext returns the verified claims set by RequireAuth, or nil.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(ContextKeyClaims).(*token.Claims)
	return claims
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
