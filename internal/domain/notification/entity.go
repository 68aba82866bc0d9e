// Package notification contains the notification domain model: user-facing
// notifications produced by progression events, their delivery contract and
// the transactional outbox that decouples delivery from persistence.
package notification

import (
	"encoding/json"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// Notification Type
// ═══════════════════════════════════════════════════════════════════════════

// Type classifies a notification.
type Type string

const (
	// TypeRankUp - automatic promotion to a higher rank tier.
	TypeRankUp Type = "rank_up"

	// TypeRankChangedAdmin - admin manually assigned a rank (any direction).
	TypeRankChangedAdmin Type = "rank_changed_admin"

	// TypeAchievementUnlocked - a new achievement was unlocked.
	TypeAchievementUnlocked Type = "achievement_unlocked"
)

// IsValid checks if the notification type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeRankUp, TypeRankChangedAdmin, TypeAchievementUnlocked:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t Type) String() string {
	return string(t)
}

// Emoji returns a display emoji for the type.
func (t Type) Emoji() string {
	switch t {
	case TypeRankUp, TypeRankChangedAdmin:
		return "🏆"
	case TypeAchievementUnlocked:
		return "🎖"
	default:
		return ""
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Notification Entity
// ═══════════════════════════════════════════════════════════════════════════

// Notification is a persisted user-facing notification.
type Notification struct {
	// ID is the unique notification identifier (UUID).
	ID string

	// MemberID is the recipient.
	MemberID shared.MemberID

	// Type classifies the notification.
	Type Type

	// Title is the short headline.
	Title string

	// Message is the full text.
	Message string

	// Data carries the structured payload (rank ids, points, ...).
	Data json.RawMessage

	// IsRead marks whether the member has seen the notification.
	IsRead bool

	// ReadAt is set when the notification is marked read.
	ReadAt *time.Time

	// CreatedAt is the creation time.
	CreatedAt time.Time
}

// NewNotificationParams contains parameters for creating a notification.
type NewNotificationParams struct {
	ID       string
	MemberID shared.MemberID
	Type     Type
	Title    string
	Message  string
	Data     map[string]interface{}
}

// NewNotification creates a notification with validation.
func NewNotification(params NewNotificationParams) (*Notification, error) {
	if params.ID == "" {
		return nil, shared.NewDomainError("notification", "New", shared.ErrInvalidID, "notification id is required")
	}
	if !params.MemberID.IsValid() {
		return nil, shared.ErrInvalidMemberID
	}
	if !params.Type.IsValid() {
		return nil, shared.NewDomainError("notification", "New", shared.ErrInvalidInput, "unknown notification type")
	}
	if params.Title == "" {
		return nil, shared.NewDomainError("notification", "New", shared.ErrEmptyValue, "notification title is required")
	}

	var data json.RawMessage
	if params.Data != nil {
		encoded, err := json.Marshal(params.Data)
		if err != nil {
			return nil, shared.WrapError("notification", "New", shared.ErrInvalidFormat, "payload serialization failed", err)
		}
		data = encoded
	}

	return &Notification{
		ID:        params.ID,
		MemberID:  params.MemberID,
		Type:      params.Type,
		Title:     params.Title,
		Message:   params.Message,
		Data:      data,
		CreatedAt: time.Now(),
	}, nil
}

// MarkRead flags the notification as read. Idempotent.
func (n *Notification) MarkRead() {
	if n.IsRead {
		return
	}
	now := time.Now()
	n.IsRead = true
	n.ReadAt = &now
}
