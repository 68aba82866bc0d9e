// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Member events
	EventMemberRegistered EventType = "member.registered"
	EventStatsUpdated     EventType = "member.stats_updated"

	// Rank events
	EventRankAssigned     EventType = "rank.assigned" // first assignment, silent
	EventRankChanged      EventType = "rank.changed"
	EventMemberPromoted   EventType = "rank.promoted_manually"
	EventOverrideCleared  EventType = "rank.override_cleared"
	EventRankReevaluated  EventType = "rank.reevaluated"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Leaderboard events
	EventSnapshotCreated    EventType = "leaderboard.snapshot_created"
	EventLeaderboardRebuilt EventType = "leaderboard.rebuilt"

	// Notification events
	EventNotificationSent   EventType = "notification.sent"
	EventNotificationFailed EventType = "notification.failed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Member Events
// ═══════════════════════════════════════════════════════════════════════════

// StatsUpdatedEvent is emitted when a member's downline or earnings stats
// change (commission processed, recruit registered). It is the trigger for
// a progression evaluation pass.
type StatsUpdatedEvent struct {
	BaseEvent
	MemberID       string `json:"member_id"`
	DirectRecruits int    `json:"direct_recruits"`
	NetworkSize    int    `json:"network_size"`
	TotalEarned    string `json:"total_earned"`
	Source         string `json:"source"` // e.g., "commission", "recruitment"
}

// Payload implements Event interface.
func (e StatsUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"member_id":       e.MemberID,
		"direct_recruits": e.DirectRecruits,
		"network_size":    e.NetworkSize,
		"total_earned":    e.TotalEarned,
		"source":          e.Source,
	}
}

// NewStatsUpdatedEvent creates a new StatsUpdatedEvent.
func NewStatsUpdatedEvent(memberID string, directRecruits, networkSize int, totalEarned, source string) StatsUpdatedEvent {
	return StatsUpdatedEvent{
		BaseEvent:      NewBaseEvent(EventStatsUpdated, memberID),
		MemberID:       memberID,
		DirectRecruits: directRecruits,
		NetworkSize:    networkSize,
		TotalEarned:    totalEarned,
		Source:         source,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank Events
// ═══════════════════════════════════════════════════════════════════════════

// RankChangedEvent is emitted when automatic evaluation moves a member to a
// different rank tier. The very first assignment emits RankAssignedEvent
// instead and produces no user-facing notification.
type RankChangedEvent struct {
	BaseEvent
	MemberID    string `json:"member_id"`
	OldRankID   string `json:"old_rank_id,omitempty"`
	OldRankName string `json:"old_rank_name,omitempty"`
	NewRankID   string `json:"new_rank_id"`
	NewRankName string `json:"new_rank_name"`
	NewOrder    int    `json:"new_order"`
}

// Payload implements Event interface.
func (e RankChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"member_id":     e.MemberID,
		"old_rank_id":   e.OldRankID,
		"old_rank_name": e.OldRankName,
		"new_rank_id":   e.NewRankID,
		"new_rank_name": e.NewRankName,
		"new_order":     e.NewOrder,
	}
}

// NewRankChangedEvent creates a new RankChangedEvent.
func NewRankChangedEvent(memberID, oldRankID, oldRankName, newRankID, newRankName string, newOrder int) RankChangedEvent {
	return RankChangedEvent{
		BaseEvent:   NewBaseEvent(EventRankChanged, memberID),
		MemberID:    memberID,
		OldRankID:   oldRankID,
		OldRankName: oldRankName,
		NewRankID:   newRankID,
		NewRankName: newRankName,
		NewOrder:    newOrder,
	}
}

// RankAssignedEvent is emitted at first rank assignment (previous rank was
// null). Internal bookkeeping only.
type RankAssignedEvent struct {
	BaseEvent
	MemberID string `json:"member_id"`
	RankID   string `json:"rank_id"`
	RankName string `json:"rank_name"`
}

// Payload implements Event interface.
func (e RankAssignedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"member_id": e.MemberID,
		"rank_id":   e.RankID,
		"rank_name": e.RankName,
	}
}

// NewRankAssignedEvent creates a new RankAssignedEvent.
func NewRankAssignedEvent(memberID, rankID, rankName string) RankAssignedEvent {
	return RankAssignedEvent{
		BaseEvent: NewBaseEvent(EventRankAssigned, memberID),
		MemberID:  memberID,
		RankID:    rankID,
		RankName:  rankName,
	}
}

// MemberPromotedEvent is emitted when an admin manually assigns a rank.
// Always notifies, even on demotion.
type MemberPromotedEvent struct {
	BaseEvent
	MemberID    string `json:"member_id"`
	OldRankID   string `json:"old_rank_id,omitempty"`
	NewRankID   string `json:"new_rank_id"`
	NewRankName string `json:"new_rank_name"`
	PromotedBy  string `json:"promoted_by,omitempty"`
	Demotion    bool   `json:"demotion"`
}

// Payload implements Event interface.
func (e MemberPromotedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"member_id":     e.MemberID,
		"old_rank_id":   e.OldRankID,
		"new_rank_id":   e.NewRankID,
		"new_rank_name": e.NewRankName,
		"promoted_by":   e.PromotedBy,
		"demotion":      e.Demotion,
	}
}

// NewMemberPromotedEvent creates a new MemberPromotedEvent.
func NewMemberPromotedEvent(memberID, oldRankID, newRankID, newRankName string, demotion bool) MemberPromotedEvent {
	return MemberPromotedEvent{
		BaseEvent:   NewBaseEvent(EventMemberPromoted, memberID),
		MemberID:    memberID,
		OldRankID:   oldRankID,
		NewRankID:   newRankID,
		NewRankName: newRankName,
		Demotion:    demotion,
	}
}

// WithPromotedBy records which admin performed the promotion.
func (e MemberPromotedEvent) WithPromotedBy(adminID string) MemberPromotedEvent {
	e.PromotedBy = adminID
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted exactly once per (member, achievement)
// when the unlock row is first written.
type AchievementUnlockedEvent struct {
	BaseEvent
	MemberID      string `json:"member_id"`
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	Points        int    `json:"points"`
	Progress      int    `json:"progress"` // progress at unlock, always 100
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"member_id":      e.MemberID,
		"achievement_id": e.AchievementID,
		"name":           e.Name,
		"category":       e.Category,
		"points":         e.Points,
		"progress":       e.Progress,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(memberID, achievementID, name, category string, points, progress int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, memberID),
		MemberID:      memberID,
		AchievementID: achievementID,
		Name:          name,
		Category:      category,
		Points:        points,
		Progress:      progress,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboard Events
// ═══════════════════════════════════════════════════════════════════════════

// SnapshotCreatedEvent is emitted when a leaderboard snapshot is persisted.
type SnapshotCreatedEvent struct {
	BaseEvent
	Period  string `json:"period"`
	Metric  string `json:"metric"`
	Entries int    `json:"entries"`
}

// Payload implements Event interface.
func (e SnapshotCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"period":  e.Period,
		"metric":  e.Metric,
		"entries": e.Entries,
	}
}

// NewSnapshotCreatedEvent creates a new SnapshotCreatedEvent.
func NewSnapshotCreatedEvent(period, metric string, entries int) SnapshotCreatedEvent {
	return SnapshotCreatedEvent{
		BaseEvent: NewBaseEvent(EventSnapshotCreated, period+":"+metric),
		Period:    period,
		Metric:    metric,
		Entries:   entries,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
