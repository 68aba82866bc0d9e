package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/pkg/circuitbreaker"
	"github.com/refnet-platform/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-APP CHANNEL
// ══════════════════════════════════════════════════════════════════════════════

// InAppChannel persists notifications so members see them in the platform UI.
// This is the primary channel: a failure here is retryable and counts against
// the outbox entry's attempts.
type InAppChannel struct {
	repo notification.Repository
}

var _ notification.Channel = (*InAppChannel)(nil)

// NewInAppChannel creates a new InAppChannel.
func NewInAppChannel(repo notification.Repository) *InAppChannel {
	return &InAppChannel{repo: repo}
}

// Type returns the channel identifier.
func (c *InAppChannel) Type() notification.ChannelType {
	return notification.ChannelInApp
}

// Deliver stores the notification row.
func (c *InAppChannel) Deliver(ctx context.Context, n *notification.Notification) notification.DeliveryResult {
	if err := c.repo.Save(ctx, n); err != nil {
		return notification.NewFailureResult(notification.ChannelInApp, err, true)
	}
	return notification.NewSuccessResult(notification.ChannelInApp, n.ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK CHANNEL
// ══════════════════════════════════════════════════════════════════════════════

// WebhookChannelConfig contains configuration for the WebhookChannel.
type WebhookChannelConfig struct {
	// Endpoint is the gateway URL notifications are POSTed to.
	Endpoint string

	// AuthToken, when set, is sent as a bearer token.
	AuthToken string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// WebhookChannel pushes notifications to the platform frontend gateway.
// Calls go through a circuit breaker so a dead gateway degrades to fast
// failures instead of tying up dispatcher workers, and transient errors are
// retried with backoff before the failure is reported.
type WebhookChannel struct {
	endpoint  string
	authToken string
	client    *http.Client
	breaker   *circuitbreaker.CircuitBreaker
	retrier   *retry.Retrier
	logger    *slog.Logger
}

var _ notification.Channel = (*WebhookChannel)(nil)

// webhookPayload is the wire format sent to the gateway.
type webhookPayload struct {
	MemberID  string          `json:"member_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewWebhookChannel creates a new WebhookChannel.
func NewWebhookChannel(config WebhookChannelConfig) *WebhookChannel {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("channel", "webhook")

	breaker := circuitbreaker.WebhookBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state change",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	return &WebhookChannel{
		endpoint:  config.Endpoint,
		authToken: config.AuthToken,
		client:    &http.Client{Timeout: config.Timeout},
		breaker:   breaker,
		retrier:   retry.WebhookRetrier(),
		logger:    logger,
	}
}

// Type returns the channel identifier.
func (c *WebhookChannel) Type() notification.ChannelType {
	return notification.ChannelWebhook
}

// Deliver POSTs the notification to the gateway.
func (c *WebhookChannel) Deliver(ctx context.Context, n *notification.Notification) notification.DeliveryResult {
	payload := webhookPayload{
		MemberID:  string(n.MemberID),
		Type:      n.Type.String(),
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return notification.NewFailureResult(notification.ChannelWebhook, err, false)
	}

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.post(ctx, body)
		})
	})
	if err != nil {
		retryable := !retry.IsPermanent(err)
		return notification.NewFailureResult(notification.ChannelWebhook, err, retryable)
	}

	return notification.NewSuccessResult(notification.ChannelWebhook, n.ID)
}

func (c *WebhookChannel) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return retry.Retryable(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("gateway returned %d", resp.StatusCode))
	default:
		return retry.Permanent(fmt.Errorf("gateway returned %d", resp.StatusCode))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG CHANNEL
// ══════════════════════════════════════════════════════════════════════════════

// LogChannel writes notifications to the log. Used in development
// environments where no gateway is configured.
type LogChannel struct {
	logger *slog.Logger
}

var _ notification.Channel = (*LogChannel)(nil)

// NewLogChannel creates a new LogChannel.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger.With("channel", "log")}
}

// Type returns the channel identifier.
func (c *LogChannel) Type() notification.ChannelType {
	return notification.ChannelLog
}

// Deliver logs the notification.
func (c *LogChannel) Deliver(_ context.Context, n *notification.Notification) notification.DeliveryResult {
	c.logger.Info("notification",
		"member_id", n.MemberID,
		"type", n.Type,
		"title", n.Title,
		"message", n.Message,
	)
	return notification.NewSuccessResult(notification.ChannelLog, n.ID)
}
