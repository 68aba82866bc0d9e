// Package postgres implements the PostgreSQL persistence layer for the
// progression engine.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// NotificationRepository implements notification.Repository for PostgreSQL.
type NotificationRepository struct {
	conn *Connection
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(conn *Connection) *NotificationRepository {
	return &NotificationRepository{conn: conn}
}

var _ notification.Repository = (*NotificationRepository)(nil)

const notificationColumns = `id, member_id, type, title, message, data, is_read, read_at, created_at`

// Save persists a notification.
func (r *NotificationRepository) Save(ctx context.Context, n *notification.Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.conn.Exec(ctx, query,
		n.ID,
		string(n.MemberID),
		string(n.Type),
		n.Title,
		n.Message,
		rawJSONArg(n.Data),
		n.IsRead,
		n.ReadAt,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}

	return nil
}

// FindByID returns a notification by ID.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*notification.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1
	`

	n, err := r.scanNotification(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotificationNotFound
		}
		return nil, err
	}

	return n, nil
}

// ListForMember returns a member's notifications, newest first.
func (r *NotificationRepository) ListForMember(ctx context.Context, memberID shared.MemberID, p shared.Pagination) ([]*notification.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE member_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.conn.Query(ctx, query, string(memberID), p.Limit(), p.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// CountUnread returns the number of unread notifications.
func (r *NotificationRepository) CountUnread(ctx context.Context, memberID shared.MemberID) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE member_id = $1 AND NOT is_read`

	var count int
	if err := r.conn.QueryRow(ctx, query, string(memberID)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}

// MarkRead marks a notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND NOT is_read
	`

	_, err := r.conn.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	return nil
}

// MarkAllRead marks all of a member's notifications as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, memberID shared.MemberID) error {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE member_id = $1 AND NOT is_read
	`

	_, err := r.conn.Exec(ctx, query, string(memberID))
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}

	return nil
}

func (r *NotificationRepository) scanNotification(row scanRow) (*notification.Notification, error) {
	var (
		n        notification.Notification
		memberID string
		kind     string
		data     []byte
	)

	err := row.Scan(
		&n.ID,
		&memberID,
		&kind,
		&n.Title,
		&n.Message,
		&data,
		&n.IsRead,
		&n.ReadAt,
		&n.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	n.MemberID = shared.MemberID(memberID)
	n.Type = notification.Type(kind)
	if len(data) > 0 {
		n.Data = json.RawMessage(data)
	}

	return &n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// OutboxRepository implements notification.OutboxRepository for PostgreSQL.
// Save joins the active evaluation transaction, which is the whole point
// of the outbox: the entry commits or rolls back with the state change
// that produced it.
type OutboxRepository struct {
	conn *Connection
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(conn *Connection) *OutboxRepository {
	return &OutboxRepository{conn: conn}
}

var _ notification.OutboxRepository = (*OutboxRepository)(nil)

const outboxColumns = `id, member_id, kind, title, message, data, status, attempts, last_error, created_at, dispatched_at`

// Save appends a pending entry.
func (r *OutboxRepository) Save(ctx context.Context, entry *notification.OutboxEntry) error {
	query := `
		INSERT INTO notification_outbox (` + outboxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn.Exec(ctx, query,
		entry.ID,
		string(entry.MemberID),
		string(entry.Kind),
		entry.Title,
		entry.Message,
		rawJSONArg(entry.Data),
		string(entry.Status),
		entry.Attempts,
		entry.LastError,
		entry.CreatedAt,
		entry.DispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save outbox entry: %w", err)
	}

	return nil
}

// FetchPending returns up to limit pending entries, oldest first.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]*notification.OutboxEntry, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM notification_outbox
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*notification.OutboxEntry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Update persists the delivery state of an entry.
func (r *OutboxRepository) Update(ctx context.Context, entry *notification.OutboxEntry) error {
	query := `
		UPDATE notification_outbox
		SET status = $2, attempts = $3, last_error = $4, dispatched_at = $5
		WHERE id = $1
	`

	_, err := r.conn.Exec(ctx, query,
		entry.ID,
		string(entry.Status),
		entry.Attempts,
		entry.LastError,
		entry.DispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update outbox entry: %w", err)
	}

	return nil
}

// DeleteDispatchedBefore deletes sent and failed entries dispatched before
// the threshold. Pending entries are never deleted.
func (r *OutboxRepository) DeleteDispatchedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM notification_outbox
		WHERE status IN ('sent', 'failed') AND dispatched_at < $1
	`

	tag, err := r.conn.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *OutboxRepository) scanEntry(row scanRow) (*notification.OutboxEntry, error) {
	var (
		e            notification.OutboxEntry
		memberID     string
		kind         string
		status       string
		data         []byte
		dispatchedAt *time.Time
	)

	err := row.Scan(
		&e.ID,
		&memberID,
		&kind,
		&e.Title,
		&e.Message,
		&data,
		&status,
		&e.Attempts,
		&e.LastError,
		&e.CreatedAt,
		&dispatchedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
	}

	e.MemberID = shared.MemberID(memberID)
	e.Kind = notification.Type(kind)
	e.Status = notification.OutboxStatus(status)
	e.DispatchedAt = dispatchedAt
	if len(data) > 0 {
		e.Data = json.RawMessage(data)
	}

	return &e, nil
}

// rawJSONArg converts an optional JSON payload to a driver argument,
// preserving NULL for absent payloads.
func rawJSONArg(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
