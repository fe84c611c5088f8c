package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinichub/scheduling/internal/auth"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs each request with method, path, status, duration
// and request ID.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("request_id", GetRequestID(r.Context())).
			Msg("request")
	})
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Claims, error)
}

// AuthMiddleware validates the bearer credential, resolves the principal and
// attaches it to the request context. Everything behind it can assume a
// principal is present.
func AuthMiddleware(verifier TokenVerifier, clientID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "missing_credential", "Authorization header is required")
				return
			}

			raw := strings.TrimPrefix(header, "Bearer ")
			if raw == header || strings.TrimSpace(raw) == "" {
				writeError(w, http.StatusUnauthorized, "invalid_authorization_header", "expected Bearer token")
				return
			}
			raw = strings.TrimSpace(raw)

			claims, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				if errors.Is(err, auth.ErrUpstreamUnavailable) {
					log.Error().Err(err).Msg("signing key fetch failed")
					writeError(w, http.StatusBadGateway, "upstream_unavailable", "identity provider unavailable")
					return
				}
				writeError(w, http.StatusUnauthorized, "invalid_credential", "invalid access token")
				return
			}

			principal, err := auth.ResolvePrincipal(claims, raw, clientID)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_credential", "token missing subject")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAnyRole gates a route on the principal holding one of the roles.
func RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing_credential", "authentication required")
				return
			}
			if !p.HasAnyRole(roles...) {
				writeError(w, http.StatusForbidden, "forbidden", "requires any of roles: "+strings.Join(roles, ", "))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
