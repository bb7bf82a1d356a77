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
// UNLOCK ACHIEVEMENT COMMAND
// At-most-once unlock per (student, achievement). A new unlock grants the
// catalog XP through the ledger in the same transaction as the unlock row.
// Unknown achievement ids fail closed: the catalog is static, so an unknown
// id is a programming error, not a reason to substitute a default entry.
// ══════════════════════════════════════════════════════════════════════════════

// UnlockAchievementCommand contains the data for one unlock attempt.
type UnlockAchievementCommand struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// AchievementID is the catalog key ("week_streak").
	AchievementID string

	// Context tags the unlock with what produced it (e.g. the streak type).
	Context string
}

// Validate validates the command.
func (c UnlockAchievementCommand) Validate() error {
	if c.StudentID == "" {
		return fmt.Errorf("unlock_achievement: %w: student_id is required", shared.ErrEmptyValue)
	}
	if c.AchievementID == "" {
		return fmt.Errorf("unlock_achievement: %w: achievement_id is required", shared.ErrEmptyValue)
	}
	return nil
}

// UnlockAchievementResult contains the outcome of an unlock attempt.
type UnlockAchievementResult struct {
	// Unlock is the created record, or nil when the achievement was
	// already unlocked (idempotent no-op).
	Unlock *progression.AchievementUnlock

	// XPGranted is the cascaded bonus XP (0 on no-op or zero-bonus entries).
	XPGranted int

	// TotalXP is the student's total after the cascaded grant. Only set
	// when a grant happened.
	TotalXP int

	// LeveledUp indicates the cascaded grant crossed a level threshold.
	LeveledUp bool

	// UnlockedAt is when the unlock was committed.
	UnlockedAt time.Time
}

// IsNew returns true if this attempt created the unlock.
func (r *UnlockAchievementResult) IsNew() bool {
	return r.Unlock != nil
}

// UnlockAchievementHandler handles UnlockAchievementCommand.
type UnlockAchievementHandler struct {
	students progression.StudentRepository
	unlocks  progression.UnlockRepository
	catalog  *progression.Catalog
	events   shared.EventPublisher
	clock    timeutil.Clock
	retrier  *retry.Retrier
	log      *logger.Logger
}

// NewUnlockAchievementHandler creates a new UnlockAchievementHandler.
func NewUnlockAchievementHandler(
	students progression.StudentRepository,
	unlocks progression.UnlockRepository,
	catalog *progression.Catalog,
	events shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
) *UnlockAchievementHandler {
	return &UnlockAchievementHandler{
		students: students,
		unlocks:  unlocks,
		catalog:  catalog,
		events:   events,
		clock:    clock,
		retrier: retry.New(
			retry.WithMaxAttempts(conflictMaxAttempts),
			retry.WithRetryIf(shared.IsConflict),
		),
		log: log.With(logger.Component("unlock_achievement")),
	}
}

// Handle executes the command. Returns a result with a nil Unlock when the
// pair (student, achievement) is already unlocked.
func (h *UnlockAchievementHandler) Handle(ctx context.Context, cmd UnlockAchievementCommand) (*UnlockAchievementResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	entry, ok := h.catalog.Get(cmd.AchievementID)
	if !ok {
		return nil, shared.WrapError("progression", "UnlockAchievement", shared.ErrInvalidID,
			fmt.Sprintf("unknown achievement id %q", cmd.AchievementID), shared.ErrUnknownAchievement)
	}

	// Fast path: already unlocked.
	existing, err := h.unlocks.Get(ctx, cmd.StudentID, cmd.AchievementID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return &UnlockAchievementResult{}, nil
	}

	now := h.clock.Now()
	unlock, err := progression.NewAchievementUnlock(cmd.StudentID, entry, cmd.Context, now)
	if err != nil {
		return nil, err
	}

	result := &UnlockAchievementResult{UnlockedAt: now}
	var leveledFrom, leveledTo progression.Level

	if entry.XPEarned > 0 {
		err = h.retrier.Do(ctx, func(ctx context.Context) error {
			student, err := h.students.GetByID(ctx, cmd.StudentID)
			if err != nil {
				return retry.Permanent(err)
			}

			grant := student.ApplyGrant(entry.XPEarned, now)

			ledgerEntry, err := progression.NewXPTransaction(
				cmd.StudentID,
				entry.XPEarned,
				fmt.Sprintf("Unlocked %s", entry.Title),
				"achievement",
				now,
			)
			if err != nil {
				return retry.Permanent(err)
			}

			if err := h.unlocks.InsertWithGrant(ctx, unlock, student, ledgerEntry); err != nil {
				return err
			}

			leveledFrom = grant.OldLevel
			leveledTo = grant.NewLevel
			result.XPGranted = entry.XPEarned.Int()
			result.TotalXP = grant.TotalXP.Int()
			result.LeveledUp = grant.LeveledUp()
			return nil
		})
	} else {
		err = h.unlocks.Insert(ctx, unlock)
	}

	if err != nil {
		// Lost a race: another request unlocked first. Idempotent no-op.
		if shared.IsAlreadyExists(err) {
			return &UnlockAchievementResult{}, nil
		}
		return nil, err
	}

	result.Unlock = unlock

	h.log.Info("achievement unlocked",
		logger.StudentID(cmd.StudentID),
		logger.AchievementID(cmd.AchievementID),
		logger.String("rarity", string(entry.Rarity)),
		logger.XPAmount(result.XPGranted),
	)

	h.publish(shared.NewAchievementUnlockedEvent(
		cmd.StudentID, entry.ID, entry.Title, string(entry.Rarity), entry.XPEarned.Int(), cmd.Context))
	if result.XPGranted > 0 {
		h.publish(shared.NewXPGainedEvent(
			cmd.StudentID, result.XPGranted, result.TotalXP, leveledTo.Int(),
			fmt.Sprintf("Unlocked %s", entry.Title), "achievement"))
		if result.LeveledUp {
			h.publish(shared.NewLevelUpEvent(cmd.StudentID, leveledFrom.Int(), leveledTo.Int(), result.TotalXP))
		}
	}

	return result, nil
}

func (h *UnlockAchievementHandler) publish(event shared.Event) {
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
