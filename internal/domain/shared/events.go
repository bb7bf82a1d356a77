// Package shared contains common domain types, errors, and events.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened inside the Progression Engine. Events stay in-process; handlers
// keep the read models (leaderboard, cached snapshots) consistent.
const (
	EventXPGained            EventType = "progression.xp_gained"
	EventLevelUp             EventType = "progression.level_up"
	EventStreakUpdated       EventType = "progression.streak_updated"
	EventStreakBroken        EventType = "progression.streak_broken"
	EventAchievementUnlocked EventType = "progression.achievement_unlocked"
	EventSnapshotReconciled  EventType = "progression.snapshot_reconciled"
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
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
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
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// XPGainedEvent is emitted on every committed XP grant.
type XPGainedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	Amount    int    `json:"amount"`
	NewTotal  int    `json:"new_total"`
	NewLevel  int    `json:"new_level"`
	Reason    string `json:"reason"`
	Source    string `json:"source"`
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"amount":     e.Amount,
		"new_total":  e.NewTotal,
		"new_level":  e.NewLevel,
		"reason":     e.Reason,
		"source":     e.Source,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(studentID string, amount, newTotal, newLevel int, reason, source string) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(EventXPGained, studentID),
		StudentID: studentID,
		Amount:    amount,
		NewTotal:  newTotal,
		NewLevel:  newLevel,
		Reason:    reason,
		Source:    source,
	}
}

// LevelUpEvent is emitted when a grant pushes the student past a level
// threshold. Always accompanied by an XPGainedEvent for the same grant.
type LevelUpEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	OldLevel  int    `json:"old_level"`
	NewLevel  int    `json:"new_level"`
	TotalXP   int    `json:"total_xp"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"old_level":  e.OldLevel,
		"new_level":  e.NewLevel,
		"total_xp":   e.TotalXP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(studentID string, oldLevel, newLevel, totalXP int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, studentID),
		StudentID: studentID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		TotalXP:   totalXP,
	}
}

// StreakUpdatedEvent is emitted when a streak advances or starts.
type StreakUpdatedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	StreakType    string `json:"streak_type"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"streak_type":    e.StreakType,
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(studentID, streakType string, current, longest int) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventStreakUpdated, studentID),
		StudentID:     studentID,
		StreakType:    streakType,
		CurrentStreak: current,
		LongestStreak: longest,
	}
}

// StreakBrokenEvent is emitted when a missed day resets a streak to 1.
type StreakBrokenEvent struct {
	BaseEvent
	StudentID      string `json:"student_id"`
	StreakType     string `json:"streak_type"`
	PreviousStreak int    `json:"previous_streak"`
	DaysMissed     int    `json:"days_missed"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID,
		"streak_type":     e.StreakType,
		"previous_streak": e.PreviousStreak,
		"days_missed":     e.DaysMissed,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(studentID, streakType string, previousStreak, daysMissed int) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, studentID),
		StudentID:      studentID,
		StreakType:     streakType,
		PreviousStreak: previousStreak,
		DaysMissed:     daysMissed,
	}
}

// AchievementUnlockedEvent is emitted exactly once per (student, achievement).
type AchievementUnlockedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	AchievementID string `json:"achievement_id"`
	Title         string `json:"title"`
	Rarity        string `json:"rarity"`
	XPEarned      int    `json:"xp_earned"`
	Context       string `json:"context,omitempty"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"achievement_id": e.AchievementID,
		"title":          e.Title,
		"rarity":         e.Rarity,
		"xp_earned":      e.XPEarned,
		"context":        e.Context,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(studentID, achievementID, title, rarity string, xpEarned int, context string) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, studentID),
		StudentID:     studentID,
		AchievementID: achievementID,
		Title:         title,
		Rarity:        rarity,
		XPEarned:      xpEarned,
		Context:       context,
	}
}

// SnapshotReconciledEvent is emitted by the reconciliation job when a drifted
// total_xp snapshot is repaired from the ledger.
type SnapshotReconciledEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	OldTotal  int    `json:"old_total"`
	NewTotal  int    `json:"new_total"`
}

// Payload implements Event interface.
func (e SnapshotReconciledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"old_total":  e.OldTotal,
		"new_total":  e.NewTotal,
	}
}

// NewSnapshotReconciledEvent creates a new SnapshotReconciledEvent.
func NewSnapshotReconciledEvent(studentID string, oldTotal, newTotal int) SnapshotReconciledEvent {
	return SnapshotReconciledEvent{
		BaseEvent: NewBaseEvent(EventSnapshotReconciled, studentID),
		StudentID: studentID,
		OldTotal:  oldTotal,
		NewTotal:  newTotal,
	}
}

// EventHandler processes a single event.
type EventHandler func(event Event) error

// EventPublisher publishes events to subscribers.
type EventPublisher interface {
	// Publish delivers the event to all subscribed handlers.
	Publish(event Event) error
}

// EventSubscriber registers handlers for event types.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all event types.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber

	// Close shuts the bus down and waits for in-flight handlers.
	Close() error
}
