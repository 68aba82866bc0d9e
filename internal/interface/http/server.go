// Package http implements the REST API and webhook endpoints of the
// progression engine. It exposes leaderboard and progression reads,
// administrative rank operations, and the callback endpoint the core
// platform hits when member stats change.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/refnet-platform/progression-engine/internal/application/command"
	"github.com/refnet-platform/progression-engine/internal/application/query"
	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/interface/http/handlers"
	"github.com/refnet-platform/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LISTENER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config shapes the listener and the middleware chain.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	EnableCORS     bool
	AllowedOrigins []string

	// EnableMetrics - enable the metrics endpoint.
	EnableMetrics bool

	// RateLimitPerMinute bounds each client IP; 0 disables limiting.
	RateLimitPerMinute int

	// APIKeyHeader names the header carrying the admin API key.
	APIKeyHeader string

	// APIKeys - valid API keys for administrative endpoints.
	APIKeys []string

	// WebhookSecret - shared secret for platform callback verification.
	WebhookSecret string

	// BoardCacheMaxAge - Cache-Control max-age for leaderboard reads.
	BoardCacheMaxAge time.Duration

	// AdminTimeout - per-request timeout for administrative operations.
	AdminTimeout time.Duration
}

// DefaultConfig serves on all interfaces at 8080 with CORS open.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20, // 1 MB
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		EnableMetrics:      true,
		RateLimitPerMinute: 100,
		APIKeyHeader:       "X-API-Key",
		APIKeys:            []string{},
		BoardCacheMaxAge:   30 * time.Second,
		AdminTimeout:       30 * time.Second,
	}
}

// Address formats the host-port pair the listener binds.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies carries everything the handlers call into. The server
// owns no business logic; each request is routed to a command or
// query handler.
type Dependencies struct {
	// Read side
	GetLeaderboardHandler         *query.GetLeaderboardHandler
	GetMemberPositionHandler      *query.GetMemberPositionHandler
	GetRankProgressHandler        *query.GetRankProgressHandler
	GetAchievementProgressHandler *query.GetAchievementProgressHandler
	GetNotificationsHandler       *query.GetNotificationsHandler
	GetPlatformStatsHandler       *query.GetPlatformStatsHandler
	ListMembersHandler            *query.ListMembersHandler
	ListSnapshotsHandler          *query.ListSnapshotsHandler

	// Admin write side
	EvaluateMemberHandler  *command.EvaluateMemberHandler
	PromoteMemberHandler   *command.PromoteMemberHandler
	RecalculateRankHandler *command.RecalculateRankHandler

	// Notifications - repository for read-state updates, notifier for
	// admin-sent messages.
	Notifications notification.Repository
	Notifier      notification.Notifier

	// Logging
	Logger *logger.Logger

	// Health and the inbound platform stats callback
	HealthChecker  handlers.HealthChecker
	WebhookHandler handlers.StatsWebhookHandler
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Server is the engine's REST surface.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger

	rateLimiter *rateLimiter // nil when limiting is disabled
	adminAuth   *handlers.APIKeyAuth

	// Lifecycle
	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer wires the router and middleware chain; call Start or
// StartAsync to begin serving.
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

	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	if len(config.APIKeys) > 0 {
		s.adminAuth = handlers.NewAPIKeyAuth(config.APIKeyHeader, config.APIKeys)
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

// ══════════════════════════════════════════════════════════════════════════════
// ROUTE TABLE
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes registers every route on the Go 1.22 pattern mux.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Liveness and readiness
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth) // k8s-style alias
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)
	s.router.HandleFunc("GET /", s.handleRoot)

	// ─────────────────────────────────────────────────────────────────────────
	// Public read API
	// ─────────────────────────────────────────────────────────────────────────
	boardCache := handlers.CacheControlMiddleware(s.config.BoardCacheMaxAge, false)
	s.router.Handle("GET /api/v1/leaderboard",
		boardCache(http.HandlerFunc(s.handleGetLeaderboard)))
	s.router.Handle("GET /api/v1/leaderboard/{metric}",
		boardCache(http.HandlerFunc(s.handleGetLeaderboardByMetric)))
	s.router.HandleFunc("GET /api/v1/members/{id}/position", s.handleGetMemberPosition)
	s.router.HandleFunc("GET /api/v1/members/{id}/rank", s.handleGetRankProgress)
	s.router.HandleFunc("GET /api/v1/members/{id}/achievements", s.handleGetAchievements)
	s.router.HandleFunc("GET /api/v1/members/{id}/notifications", s.handleGetNotifications)
	s.router.HandleFunc("POST /api/v1/members/{id}/notifications/{notification_id}/read", s.handleMarkNotificationRead)
	s.router.HandleFunc("POST /api/v1/members/{id}/notifications/read-all", s.handleMarkAllNotificationsRead)
	s.router.HandleFunc("GET /api/v1/stats", s.handleGetStats)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Administrative Endpoints (API key required)
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/v1/admin/members/{id}/evaluate",
		s.adminChain(http.HandlerFunc(s.handleAdminEvaluate)))
	s.router.Handle("POST /api/v1/admin/members/{id}/promote",
		s.adminChain(http.HandlerFunc(s.handleAdminPromote)))
	s.router.Handle("POST /api/v1/admin/members/{id}/recalculate",
		s.adminChain(http.HandlerFunc(s.handleAdminRecalculate)))
	s.router.Handle("POST /api/v1/admin/members/{id}/notify",
		s.adminChain(http.HandlerFunc(s.handleAdminNotify)))
	s.router.Handle("GET /api/v1/admin/members",
		s.adminChain(http.HandlerFunc(s.handleAdminListMembers)))
	s.router.Handle("GET /api/v1/admin/leaderboard/snapshots",
		s.adminChain(http.HandlerFunc(s.handleAdminListSnapshots)))

	// ─────────────────────────────────────────────────────────────────────────
	// Webhook Endpoints (platform callbacks)
	// ─────────────────────────────────────────────────────────────────────────
	webhookLimit := handlers.RequestSizeLimitMiddleware(1 << 20)
	s.router.Handle("POST /webhook/platform",
		webhookLimit(http.HandlerFunc(s.handlePlatformWebhook)))
	s.router.Handle("POST /webhook/platform/{token}",
		webhookLimit(http.HandlerFunc(s.handlePlatformWebhookWithToken)))

	// ─────────────────────────────────────────────────────────────────────────
	// Metrics placeholder, gated by config
	// ─────────────────────────────────────────────────────────────────────────
	if s.config.EnableMetrics {
		s.router.HandleFunc("GET /metrics", s.handleMetrics)
	}
}

// adminChain wraps an administrative handler with authentication, a
// request timeout, and cache suppression. Without configured API keys the
// admin surface stays reachable only for local development setups.
func (s *Server) adminChain(h http.Handler) http.Handler {
	middlewares := []handlers.MiddlewareFunc{
		handlers.NoCacheMiddleware,
		handlers.TimeoutMiddleware(s.config.AdminTimeout),
	}
	if s.adminAuth != nil {
		middlewares = append([]handlers.MiddlewareFunc{s.adminAuth.Middleware}, middlewares...)
	}
	return handlers.ChainHandler(h, middlewares...)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router. Listed innermost first: the rate
// limiter and CORS answer before anything else runs, recovery catches
// panics from everything inside it.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	h := s.requestIDMiddleware(handler)
	h = s.loggingMiddleware(h)
	h = s.recoveryMiddleware(h)
	h = handlers.SecurityHeadersMiddleware(h)
	if s.config.EnableCORS {
		h = s.corsMiddleware(h)
	}
	if s.rateLimiter != nil {
		h = s.rateLimitMiddleware(h)
	}
	return h
}

// requestIDMiddleware tags each request with an ID, honoring one supplied
// by the caller so platform callbacks stay traceable across services.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()),
			logger.String("ip", getClientIP(r)),
			logger.String("user_agent", r.UserAgent()),
			logger.String("request_id", getRequestID(r.Context())),
		)
	})
}

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
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter.Allow(getClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it is shut down.
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

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync serves on a background goroutine and reports the
// terminal error, if any, on the returned channel.
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

// Shutdown drains in-flight requests until ctx expires.
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

// IsRunning reports whether Start has been called and Shutdown has not.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime reports how long the server has been accepting requests.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope every API response is wrapped in.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError is the error half of the response envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseMeta carries pagination hints alongside list payloads.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
	Page       int       `json:"page,omitempty"`
	PageSize   int       `json:"page_size,omitempty"`
	HasMore    bool      `json:"has_more,omitempty"`
}

// respond serializes the envelope. Success tracks the status class.
func respond(w http.ResponseWriter, status int, resp JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	resp.Success = status >= 200 && status < 300
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	respond(w, status, JSONResponse{
		Data: data,
		Meta: &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
	})
}

func writeJSONWithMeta(w http.ResponseWriter, r *http.Request, status int, data interface{}, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"

	respond(w, status, JSONResponse{
		Data:      data,
		Meta:      meta,
		RequestID: getRequestID(r.Context()),
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSONErrorWithDetails(w, status, code, message, "")
}

func writeJSONErrorWithDetails(w http.ResponseWriter, status int, code, message, details string) {
	respond(w, status, JSONResponse{
		Error: &APIError{Code: code, Message: message, Details: details},
		Meta:  &ResponseMeta{Timestamp: time.Now().UTC()},
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// getClientIP resolves the client address, preferring proxy headers.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func getQueryParam(r *http.Request, key, defaultValue string) string {
	if value := r.URL.Query().Get(key); value != "" {
		return value
	}
	return defaultValue
}

func getQueryParamInt(r *http.Request, key string, defaultValue int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getQueryParamBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXED-WINDOW RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// rateLimiter counts requests per client in fixed windows. Counting resets
// at each window boundary, which admits at most a 2x burst across the
// boundary; good enough for protecting public leaderboard reads.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	limit   int
	window  time.Duration
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		buckets: make(map[string]*rateBucket),
		limit:   limit,
		window:  window,
	}
	go rl.evictExpired()
	return rl
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok || now.After(b.resetAt) {
		rl.buckets[key] = &rateBucket{count: 1, resetAt: now.Add(rl.window)}
		return true
	}

	if b.count >= rl.limit {
		return false
	}
	b.count++
	return true
}

func (rl *rateLimiter) evictExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		rl.mu.Lock()
		for key, b := range rl.buckets {
			if now.After(b.resetAt) {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}
