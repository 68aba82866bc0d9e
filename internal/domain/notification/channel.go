package notification

import (
	"context"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// Notifier Contract
// ═══════════════════════════════════════════════════════════════════════════

// Notifier is the fire-and-forget notification contract consumed by the
// progression engine. Implementations must never let a delivery failure
// propagate into the evaluation transaction: failures are logged and
// swallowed behind this interface.
type Notifier interface {
	// Notify creates and dispatches a notification for the member.
	Notify(ctx context.Context, memberID shared.MemberID, kind Type, title, message string, data map[string]interface{}) error
}

// ═══════════════════════════════════════════════════════════════════════════
// Delivery Channels
// ═══════════════════════════════════════════════════════════════════════════

// ChannelType identifies a delivery channel.
type ChannelType string

const (
	// ChannelInApp - persisted in-app notification row.
	ChannelInApp ChannelType = "in_app"
	// ChannelWebhook - outbound webhook to the platform frontend gateway.
	ChannelWebhook ChannelType = "webhook"
	// ChannelLog - log-only channel for development environments.
	ChannelLog ChannelType = "log"
)

// IsValid checks if the channel type is known.
func (ct ChannelType) IsValid() bool {
	switch ct {
	case ChannelInApp, ChannelWebhook, ChannelLog:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (ct ChannelType) String() string {
	return string(ct)
}

// DeliveryResult describes the outcome of a delivery attempt.
type DeliveryResult struct {
	Channel     ChannelType
	Success     bool
	MessageID   string
	Error       error
	Retryable   bool
	DeliveredAt time.Time
}

// NewSuccessResult creates a successful delivery result.
func NewSuccessResult(channel ChannelType, messageID string) DeliveryResult {
	return DeliveryResult{
		Channel:     channel,
		Success:     true,
		MessageID:   messageID,
		DeliveredAt: time.Now(),
	}
}

// NewFailureResult creates a failed delivery result.
func NewFailureResult(channel ChannelType, err error, retryable bool) DeliveryResult {
	return DeliveryResult{
		Channel:   channel,
		Error:     err,
		Retryable: retryable,
	}
}

// Channel delivers notifications over a concrete transport.
type Channel interface {
	// Type returns the channel identifier.
	Type() ChannelType

	// Deliver sends the notification.
	Deliver(ctx context.Context, n *Notification) DeliveryResult
}

// ═══════════════════════════════════════════════════════════════════════════
// Repository
// ═══════════════════════════════════════════════════════════════════════════

// Repository stores notifications.
type Repository interface {
	// Save persists a notification.
	Save(ctx context.Context, n *Notification) error

	// FindByID returns a notification by ID.
	FindByID(ctx context.Context, id string) (*Notification, error)

	// ListForMember returns a member's notifications, newest first.
	ListForMember(ctx context.Context, memberID shared.MemberID, p shared.Pagination) ([]*Notification, error)

	// CountUnread returns the number of unread notifications.
	CountUnread(ctx context.Context, memberID shared.MemberID) (int, error)

	// MarkRead marks a notification as read.
	MarkRead(ctx context.Context, id string) error

	// MarkAllRead marks all of a member's notifications as read.
	MarkAllRead(ctx context.Context, memberID shared.MemberID) error
}
