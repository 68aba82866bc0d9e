package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/refnet-platform/progression-engine/internal/application/command"
	"github.com/refnet-platform/progression-engine/internal/application/query"
	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
	"github.com/refnet-platform/progression-engine/internal/interface/http/handlers"
	"github.com/refnet-platform/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Progression Engine API",
		"version":     "v1",
		"description": "Rank, achievement and leaderboard evaluation for the referral network",
		"endpoints": map[string]string{
			"health":       "/health",
			"leaderboard":  "/api/v1/leaderboard",
			"rank":         "/api/v1/members/{id}/rank",
			"achievements": "/api/v1/members/{id}/achievements",
			"stats":        "/api/v1/stats",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady answers k8s-style readiness, mirroring /health.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive answers k8s-style liveness; it succeeds while the
// process can serve at all.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleMetrics handles the metrics endpoint.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"uptime_seconds": s.Uptime().Seconds(),
		"running":        s.IsRunning(),
	}

	writeJSON(w, http.StatusOK, metrics)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	s.handleLeaderboardInternal(w, r, getQueryParam(r, "metric", "earnings"))
}

// handleGetLeaderboardByMetric handles GET /api/v1/leaderboard/{metric}
func (s *Server) handleGetLeaderboardByMetric(w http.ResponseWriter, r *http.Request) {
	s.handleLeaderboardInternal(w, r, r.PathValue("metric"))
}

// handleLeaderboardInternal is the internal implementation for leaderboard handlers.
func (s *Server) handleLeaderboardInternal(w http.ResponseWriter, r *http.Request, metric string) {
	if s.deps.GetLeaderboardHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Leaderboard handler not configured")
		return
	}

	q := query.GetLeaderboardQuery{
		Metric: metric,
		Period: getQueryParam(r, "period", "all_time"),
		Limit:  getQueryParamInt(r, "limit", 20),
	}

	result, err := s.deps.GetLeaderboardHandler.Handle(r.Context(), q)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidInput) {
			writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Invalid leaderboard parameters", err.Error())
			return
		}
		s.logger.Error("failed to get leaderboard", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to get leaderboard")
		return
	}

	meta := &ResponseMeta{
		TotalCount: len(result.Entries),
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER PROGRESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetMemberPosition handles GET /api/v1/members/{id}/position
func (s *Server) handleGetMemberPosition(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if memberID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Member ID is required")
		return
	}

	if s.deps.GetMemberPositionHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Position handler not configured")
		return
	}

	q := query.GetMemberPositionQuery{
		MemberID: memberID,
		Metric:   getQueryParam(r, "metric", "earnings"),
		Period:   getQueryParam(r, "period", "all_time"),
	}

	result, err := s.deps.GetMemberPositionHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, err, "position", memberID)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetRankProgress handles GET /api/v1/members/{id}/rank
func (s *Server) handleGetRankProgress(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if memberID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Member ID is required")
		return
	}

	if s.deps.GetRankProgressHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Rank handler not configured")
		return
	}

	q := query.GetRankProgressQuery{MemberID: memberID}

	result, err := s.deps.GetRankProgressHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, err, "rank progress", memberID)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetAchievements handles GET /api/v1/members/{id}/achievements
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if memberID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Member ID is required")
		return
	}

	if s.deps.GetAchievementProgressHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Achievement handler not configured")
		return
	}

	q := query.GetAchievementProgressQuery{
		MemberID:   memberID,
		Category:   getQueryParam(r, "category", ""),
		OnlyLocked: getQueryParamBool(r, "only_locked"),
	}

	result, err := s.deps.GetAchievementProgressHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, err, "achievement progress", memberID)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetNotifications handles GET /api/v1/members/{id}/notifications
func (s *Server) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if memberID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Member ID is required")
		return
	}

	if s.deps.GetNotificationsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Notification handler not configured")
		return
	}

	q := query.GetNotificationsQuery{
		MemberID: memberID,
		Page:     getQueryParamInt(r, "page", 1),
		PageSize: getQueryParamInt(r, "page_size", 20),
	}

	result, err := s.deps.GetNotificationsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, err, "notifications", memberID)
		return
	}

	meta := &ResponseMeta{
		Page:     result.Page,
		PageSize: result.PageSize,
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// handleMarkNotificationRead handles POST /api/v1/members/{id}/notifications/{notification_id}/read
func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	notificationID := r.PathValue("notification_id")
	if notificationID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Notification ID is required")
		return
	}

	if s.deps.Notifications == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Notification repository not configured")
		return
	}

	if err := s.deps.Notifications.MarkRead(r.Context(), notificationID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Notification not found")
			return
		}
		s.logger.Error("failed to mark notification read", logger.Err(err), logger.String("notification_id", notificationID))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to mark notification read")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// handleMarkAllNotificationsRead handles POST /api/v1/members/{id}/notifications/read-all
func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if memberID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Member ID is required")
		return
	}

	if s.deps.Notifications == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Notification repository not configured")
		return
	}

	if err := s.deps.Notifications.MarkAllRead(r.Context(), shared.MemberID(memberID)); err != nil {
		s.logger.Error("failed to mark notifications read", logger.Err(err), logger.String("member_id", memberID))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to mark notifications read")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStats handles GET /api/v1/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetPlatformStatsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Stats handler not configured")
		return
	}

	result, err := s.deps.GetPlatformStatsHandler.Handle(r.Context(), query.GetPlatformStatsQuery{})
	if err != nil {
		s.logger.Error("failed to get platform stats", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to get platform stats")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleAdminEvaluate handles POST /api/v1/admin/members/{id}/evaluate
func (s *Server) handleAdminEvaluate(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if memberID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Member ID is required")
		return
	}

	if s.deps.EvaluateMemberHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Evaluate handler not configured")
		return
	}

	cmd := command.EvaluateMemberCommand{
		MemberID:      memberID,
		Trigger:       command.TriggerAdmin,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.EvaluateMemberHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, err, "evaluate", memberID)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// promoteRequest is the body of an admin promotion request.
type promoteRequest struct {
	RankID     string `json:"rank_id"`
	PromotedBy string `json:"promoted_by"`
	Reason     string `json:"reason,omitempty"`
}

// handleAdminPromote handles POST /api/v1/admin/members/{id}/promote
func (s *Server) handleAdminPromote(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if memberID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Member ID is required")
		return
	}

	if s.deps.PromoteMemberHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Promote handler not configured")
		return
	}

	var req promoteRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload", err.Error())
		return
	}

	cmd := command.PromoteMemberCommand{
		MemberID:   memberID,
		RankID:     req.RankID,
		PromotedBy: req.PromotedBy,
		Reason:     req.Reason,
	}

	result, err := s.deps.PromoteMemberHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, err, "promote", memberID)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// recalculateRequest is the body of an admin recalculation request.
type recalculateRequest struct {
	Force bool `json:"force,omitempty"`
}

// handleAdminRecalculate handles POST /api/v1/admin/members/{id}/recalculate
func (s *Server) handleAdminRecalculate(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if memberID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Member ID is required")
		return
	}

	if s.deps.RecalculateRankHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Recalculate handler not configured")
		return
	}

	// The body is optional; an empty body means a plain recalculation.
	var req recalculateRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload", err.Error())
		return
	}

	cmd := command.RecalculateRankCommand{
		MemberID: memberID,
		Force:    req.Force,
	}

	result, err := s.deps.RecalculateRankHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, err, "recalculate", memberID)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// notifyRequest is the body of an admin notification request.
type notifyRequest struct {
	Kind    string                 `json:"kind"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// handleAdminNotify handles POST /api/v1/admin/members/{id}/notify.
// The notification goes through the outbox, so acceptance here only
// means the message is queued for delivery.
func (s *Server) handleAdminNotify(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	if memberID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Member ID is required")
		return
	}

	if s.deps.Notifier == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Notifier not configured")
		return
	}

	var req notifyRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload", err.Error())
		return
	}
	if req.Title == "" || req.Message == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Title and message are required")
		return
	}

	kind := notification.Type(req.Kind)
	if req.Kind == "" {
		kind = notification.TypeRankChangedAdmin
	}

	err := s.deps.Notifier.Notify(r.Context(), shared.MemberID(memberID), kind, req.Title, req.Message, req.Data)
	if err != nil {
		s.logger.Error("failed to queue notification", logger.Err(err), logger.String("member_id", memberID))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to queue notification")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleAdminListMembers handles GET /api/v1/admin/members
func (s *Server) handleAdminListMembers(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListMembersHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Member listing not configured")
		return
	}

	q := query.ListMembersQuery{
		Status:   getQueryParam(r, "status", ""),
		Page:     getQueryParamInt(r, "page", 1),
		PageSize: getQueryParamInt(r, "page_size", 20),
	}

	result, err := s.deps.ListMembersHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, err, "admin_list_members", "")
		return
	}

	meta := &ResponseMeta{
		TotalCount: len(result.Members),
		Page:       result.Page,
		PageSize:   result.PageSize,
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// handleAdminListSnapshots handles GET /api/v1/admin/leaderboard/snapshots
func (s *Server) handleAdminListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListSnapshotsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Snapshot history not configured")
		return
	}

	q := query.ListSnapshotsQuery{
		Metric: getQueryParam(r, "metric", "earnings"),
		Period: getQueryParam(r, "period", "all_time"),
		Limit:  getQueryParamInt(r, "limit", 10),
	}

	result, err := s.deps.ListSnapshotsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, err, "admin_list_snapshots", "")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handlePlatformWebhook handles POST /webhook/platform
func (s *Server) handlePlatformWebhook(w http.ResponseWriter, r *http.Request) {
	s.processPlatformWebhook(w, r, "")
}

// handlePlatformWebhookWithToken handles POST /webhook/platform/{token}
func (s *Server) handlePlatformWebhookWithToken(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	s.processPlatformWebhook(w, r, token)
}

// processPlatformWebhook is the internal implementation for webhook processing.
// The caller authenticates either with the token path segment or with an
// HMAC signature over the body; both compare against WebhookSecret.
func (s *Server) processPlatformWebhook(w http.ResponseWriter, r *http.Request, token string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		s.logger.Error("failed to read webhook body", logger.Err(err))
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}
	defer r.Body.Close()

	if s.config.WebhookSecret != "" {
		signature := r.Header.Get(handlers.SignatureHeader)
		tokenOK := token != "" && token == s.config.WebhookSecret
		signatureOK := signature != "" && handlers.VerifySignature(s.config.WebhookSecret, body, signature)
		if !tokenOK && !signatureOK {
			s.logger.Warn("unauthenticated webhook request", logger.String("ip", getClientIP(r)))
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid webhook credentials")
			return
		}
	}

	var event handlers.PlatformEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("failed to parse webhook payload", logger.Err(err))
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if err := event.Validate(); err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Invalid platform event", err.Error())
		return
	}

	s.logger.Info("received platform webhook",
		logger.String("event_type", event.EventType),
		logger.String("member_id", event.MemberID),
		logger.String("correlation_id", event.CorrelationID),
	)

	// Failures after acknowledgement are not reported back: the platform
	// would retry a delivery that already reached the engine.
	if s.deps.WebhookHandler != nil {
		if err := s.deps.WebhookHandler.HandleStatsEvent(r.Context(), body); err != nil {
			s.logger.Error("failed to handle platform event",
				logger.Err(err),
				logger.String("event_type", event.EventType),
				logger.String("member_id", event.MemberID),
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeQueryError maps a query failure to an HTTP response.
func (s *Server) writeQueryError(w http.ResponseWriter, err error, op, memberID string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", "Member not found")
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidID), errors.Is(err, shared.ErrValidation):
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Invalid request parameters", err.Error())
	default:
		s.logger.Error("query failed", logger.Err(err), logger.String("op", op), logger.String("member_id", memberID))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Request failed")
	}
}

// writeCommandError maps a command failure to an HTTP response.
func (s *Server) writeCommandError(w http.ResponseWriter, err error, op, memberID string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", "Member or rank not found")
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidID), errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrEmptyValue):
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Invalid request", err.Error())
	default:
		s.logger.Error("command failed", logger.Err(err), logger.String("op", op), logger.String("member_id", memberID))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Operation failed")
	}
}

// decodeJSONBody decodes a JSON request body, rejecting unknown fields.
func decodeJSONBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
