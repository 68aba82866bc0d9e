package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth_RejectsMissingAndInvalidKeys(t *testing.T) {
	auth := NewAPIKeyAuth("X-API-Key", []string{"admin-key", ""})
	h := auth.Middleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/ranks/promote", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_api_key")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/ranks/promote", nil)
	req.Header.Set("X-API-Key", "wrong")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_api_key")

	// The empty key in the configured list must not authorize anything.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/admin/ranks/promote", nil)
	req.Header.Set("X-API-Key", "")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuth_AcceptsHeaderAndBearerFallback(t *testing.T) {
	auth := NewAPIKeyAuth("X-API-Key", []string{"admin-key"})
	h := auth.Middleware(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/ranks/promote", nil)
	req.Header.Set("X-API-Key", "admin-key")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/admin/ranks/promote", nil)
	req.Header.Set("Authorization", "Bearer admin-key")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCacheControlMiddleware_OnlyGetIsCacheable(t *testing.T) {
	h := CacheControlMiddleware(5*time.Minute, false)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaderboards/earnings/weekly", nil))
	assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/leaderboards/earnings/weekly", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRequestSizeLimitMiddleware_RejectsOversizedBody(t *testing.T) {
	h := RequestSizeLimitMiddleware(16)(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stats", strings.NewReader(strings.Repeat("x", 64)))
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "payload_too_large")
}

func TestTimeoutMiddleware_AnswersGatewayTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		}
	})
	h := TimeoutMiddleware(10 * time.Millisecond)(slow)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/ranks/recalculate", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestChain_OutermostListedFirst(t *testing.T) {
	var order []string
	tag := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := ChainHandler(okHandler(), tag("auth"), tag("nocache"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"auth", "nocache"}, order)
}
