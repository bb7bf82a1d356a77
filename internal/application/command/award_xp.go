// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
	"github.com/studyhub/progression-engine/pkg/retry"
	"github.com/studyhub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD XP COMMAND
// Appends one ledger entry and moves the student snapshot in a single
// transaction. The snapshot write is version-checked; conflicts are retried
// a bounded number of times before surfacing.
// ══════════════════════════════════════════════════════════════════════════════

// conflictMaxAttempts bounds optimistic-lock retries per command.
const conflictMaxAttempts = 4

// AwardXPCommand contains the data for one XP grant.
type AwardXPCommand struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// Amount is the XP to grant. Zero is allowed and still produces a
	// ledger entry; negative amounts are corrections and are not rejected.
	Amount int

	// Reason is a human-readable label ("Mission Accomplished").
	Reason string

	// Source is the category tag ("attendance", "tasks", "achievement").
	Source string
}

// Validate validates the command.
func (c AwardXPCommand) Validate() error {
	if c.StudentID == "" {
		return fmt.Errorf("award_xp: %w: student_id is required", shared.ErrEmptyValue)
	}
	if c.Source == "" {
		return fmt.Errorf("award_xp: %w: source is required", shared.ErrEmptyValue)
	}
	return nil
}

// AwardXPResult contains the result of one XP grant.
type AwardXPResult struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// Amount is the granted XP.
	Amount int

	// TotalXP is the new denormalized total.
	TotalXP int

	// NewLevel is the level derived from TotalXP.
	NewLevel int

	// LeveledUp indicates the grant crossed a level threshold.
	LeveledUp bool

	// AwardedAt is when the grant was committed.
	AwardedAt time.Time
}

// AwardXPHandler handles AwardXPCommand.
type AwardXPHandler struct {
	students progression.StudentRepository
	events   shared.EventPublisher
	clock    timeutil.Clock
	retrier  *retry.Retrier
	log      *logger.Logger
}

// NewAwardXPHandler creates a new AwardXPHandler.
func NewAwardXPHandler(
	students progression.StudentRepository,
	events shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
) *AwardXPHandler {
	return &AwardXPHandler{
		students: students,
		events:   events,
		clock:    clock,
		retrier: retry.New(
			retry.WithMaxAttempts(conflictMaxAttempts),
			retry.WithRetryIf(shared.IsConflict),
		),
		log: log.With(logger.Component("award_xp")),
	}
}

// Handle executes the command.
func (h *AwardXPHandler) Handle(ctx context.Context, cmd AwardXPCommand) (*AwardXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *AwardXPResult
	var leveledFrom, leveledTo progression.Level

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		student, err := h.students.GetByID(ctx, cmd.StudentID)
		if err != nil {
			return retry.Permanent(err)
		}

		now := h.clock.Now()
		grant := student.ApplyGrant(progression.XP(cmd.Amount), now)

		entry, err := progression.NewXPTransaction(cmd.StudentID, progression.XP(cmd.Amount), cmd.Reason, cmd.Source, now)
		if err != nil {
			return retry.Permanent(err)
		}

		if err := h.students.ApplyGrant(ctx, student, entry); err != nil {
			return err
		}

		leveledFrom = grant.OldLevel
		leveledTo = grant.NewLevel
		result = &AwardXPResult{
			StudentID: cmd.StudentID,
			Amount:    cmd.Amount,
			TotalXP:   grant.TotalXP.Int(),
			NewLevel:  grant.NewLevel.Int(),
			LeveledUp: grant.LeveledUp(),
			AwardedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("xp granted",
		logger.StudentID(cmd.StudentID),
		logger.XPAmount(cmd.Amount),
		logger.String("source", cmd.Source),
		logger.LevelNumber(result.NewLevel),
		logger.Bool("leveled_up", result.LeveledUp),
	)

	h.publish(shared.NewXPGainedEvent(cmd.StudentID, cmd.Amount, result.TotalXP, result.NewLevel, cmd.Reason, cmd.Source))
	if result.LeveledUp {
		h.publish(shared.NewLevelUpEvent(cmd.StudentID, leveledFrom.Int(), leveledTo.Int(), result.TotalXP))
	}

	return result, nil
}

// publish delivers an event best-effort. A projection failure must not roll
// back a committed grant.
func (h *AwardXPHandler) publish(event shared.Event) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(event); err != nil {
		h.log.Warn("event publish failed",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}
