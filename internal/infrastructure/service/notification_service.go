// Package service contains infrastructure implementations of domain service
// contracts: the outbox-backed notifier and the concrete delivery channels
// used by the outbox dispatcher.
package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/refnet-platform/progression-engine/internal/domain/notification"
	"github.com/refnet-platform/progression-engine/internal/domain/shared"
)

// OutboxNotifier implements notification.Notifier by writing an outbox entry.
// When called inside an evaluation transaction the entry commits or rolls
// back with the state change; the dispatcher delivers it after commit.
// Failures are logged and swallowed: a notification must never fail the
// operation that produced it.
type OutboxNotifier struct {
	outbox notification.OutboxRepository
	logger *slog.Logger
}

var _ notification.Notifier = (*OutboxNotifier)(nil)

// NewOutboxNotifier creates a new OutboxNotifier.
func NewOutboxNotifier(outbox notification.OutboxRepository, logger *slog.Logger) *OutboxNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxNotifier{
		outbox: outbox,
		logger: logger.With("component", "outbox_notifier"),
	}
}

// Notify queues a notification for asynchronous delivery.
func (s *OutboxNotifier) Notify(ctx context.Context, memberID shared.MemberID, kind notification.Type, title, message string, data map[string]interface{}) error {
	entry, err := notification.NewOutboxEntry(uuid.NewString(), memberID, kind, title, message, data)
	if err != nil {
		s.logger.Error("failed to build outbox entry",
			"member_id", memberID,
			"kind", kind,
			"error", err,
		)
		return nil
	}

	if err := s.outbox.Save(ctx, entry); err != nil {
		s.logger.Error("failed to queue notification",
			"member_id", memberID,
			"kind", kind,
			"error", err,
		)
		return nil
	}

	s.logger.Debug("notification queued",
		"entry_id", entry.ID,
		"member_id", memberID,
		"kind", kind,
	)
	return nil
}
