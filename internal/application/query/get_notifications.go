package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET NOTIFICATIONS QUERY
// Возвращает ленту уведомлений участника, новые первыми, со счётчиком
// непрочитанных.
// ══════════════════════════════════════════════════════════════════════════════

// GetNotificationsQuery содержит параметры запроса ленты уведомлений.
type GetNotificationsQuery struct {
	// MemberID - участник.
	MemberID string

	// Page и PageSize - пагинация (по умолчанию страница 1 по 20 записей).
	Page     int
	PageSize int
}

// Validate проверяет корректность параметров запроса.
func (q GetNotificationsQuery) Validate() error {
	if _, err := shared.NewMemberID(q.MemberID); err != nil {
		return fmt.Errorf("get_notifications: invalid member_id: %w", err)
	}
	if q.Page < 0 || q.PageSize < 0 {
		return fmt.Errorf("get_notifications: %w: pagination cannot be negative", shared.ErrNegativeValue)
	}
	return nil
}

// NotificationDTO - DTO уведомления.
type NotificationDTO struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	IsRead    bool            `json:"is_read"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// GetNotificationsResult содержит результат запроса ленты.
type GetNotificationsResult struct {
	// MemberID - участник.
	MemberID string `json:"member_id"`

	// Notifications - уведомления, новые первыми.
	Notifications []NotificationDTO `json:"notifications"`

	// UnreadCount - количество непрочитанных.
	UnreadCount int `json:"unread_count"`

	// Page и PageSize - применённая пагинация.
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// GetNotificationsHandler обрабатывает запросы ленты уведомлений.
type GetNotificationsHandler struct {
	notifications notification.Repository
}

// NewGetNotificationsHandler создаёт новый обработчик.
func NewGetNotificationsHandler(notifications notification.Repository) *GetNotificationsHandler {
	return &GetNotificationsHandler{notifications: notifications}
}

// Handle выполняет запрос ленты уведомлений.
func (h *GetNotificationsHandler) Handle(ctx context.Context, query GetNotificationsQuery) (*GetNotificationsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	memberID := shared.MemberID(query.MemberID)
	page := shared.NewPagination(query.Page, query.PageSize)

	items, err := h.notifications.ListForMember(ctx, memberID, page)
	if err != nil {
		return nil, fmt.Errorf("get_notifications: list: %w", err)
	}

	unread, err := h.notifications.CountUnread(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("get_notifications: unread count: %w", err)
	}

	dtos := make([]NotificationDTO, len(items))
	for i, n := range items {
		dtos[i] = NotificationDTO{
			ID:        n.ID,
			Type:      string(n.Type),
			Title:     n.Title,
			Message:   n.Message,
			Data:      n.Data,
			IsRead:    n.IsRead,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		}
	}

	return &GetNotificationsResult{
		MemberID:      query.MemberID,
		Notifications: dtos,
		UnreadCount:   unread,
		Page:          page.Page,
		PageSize:      page.PageSize,
	}, nil
}
