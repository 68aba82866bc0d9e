package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MiddlewareFunc wraps an http.Handler with one concern.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain composes middleware so the first one listed is the outermost.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// ChainHandler applies Chain and terminates it with a handler.
func ChainHandler(handler http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	return Chain(middlewares...)(handler)
}

// writeJSONError writes a minimal JSON error body with the given status.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"message":%q}`, code, message)
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// APIKeyAuth guards the manual-promotion and recalculation endpoints.
// The key set comes from configuration at startup and never changes at
// runtime, so lookups need no locking.
type APIKeyAuth struct {
	headerName string
	keys       map[string]struct{}
}

// NewAPIKeyAuth creates an authenticator accepting any of the given keys.
// Empty keys are ignored.
func NewAPIKeyAuth(headerName string, keys []string) *APIKeyAuth {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key != "" {
			set[key] = struct{}{}
		}
	}

	return &APIKeyAuth{
		headerName: headerName,
		keys:       set,
	}
}

// extractKey reads the API key from the configured header, falling back
// to the Bearer scheme of the Authorization header.
func (a *APIKeyAuth) extractKey(r *http.Request) string {
	if key := r.Header.Get(a.headerName); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// Middleware rejects requests that do not carry a valid API key.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := a.extractKey(r)
		if key == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing_api_key", "API key is required")
			return
		}
		if _, ok := a.keys[key]; !ok {
			writeJSONError(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SHAPING
// ══════════════════════════════════════════════════════════════════════════════

// TimeoutMiddleware bounds how long a request may run. Admin recalculation
// fans out over many members; anything past the deadline answers 504 and
// the work is cancelled through the request context.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(w, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					writeJSONError(w, http.StatusGatewayTimeout, "timeout", "Request timeout exceeded")
				}
			}
		})
	}
}

// RequestSizeLimitMiddleware caps request body size. Webhook payloads are
// small; anything larger is rejected before the signature check reads it.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HEADERS
// ══════════════════════════════════════════════════════════════════════════════

// CacheControlMiddleware marks GET responses as cacheable. Leaderboard
// reads tolerate short staleness, so they are served with a max-age
// matching the Redis cache TTL. Non-GET responses are never cached.
func CacheControlMiddleware(maxAge time.Duration, private bool) func(http.Handler) http.Handler {
	secs := int(maxAge.Seconds())
	if secs < 0 {
		secs = 0
	}
	directive := "public"
	if private {
		directive = "private"
	}
	value := directive + ", max-age=" + strconv.Itoa(secs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.Header().Set("Cache-Control", value)
			} else {
				w.Header().Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NoCacheMiddleware forbids caching. Rank state and achievement progress
// must always reflect the latest evaluation.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// SecurityHeadersMiddleware sets the standard hardening headers on
// every response.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}
