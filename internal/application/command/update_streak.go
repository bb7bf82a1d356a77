package command

import (
	"context"
	"fmt"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
	"github.com/studyhub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE STREAK COMMAND
// One step of the per-(student, streak_type) calendar-day state machine.
// Same-day re-triggers are idempotent no-ops. Streak counts of exactly 7, 30
// and 100 unlock the corresponding achievement; a count that jumps past a
// threshold without landing on it never earns the achievement retroactively.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateStreakCommand contains the data for one streak step.
type UpdateStreakCommand struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// Type is the activity type being tracked.
	Type progression.StreakType
}

// Validate validates the command.
func (c UpdateStreakCommand) Validate() error {
	if c.StudentID == "" {
		return fmt.Errorf("update_streak: %w: student_id is required", shared.ErrEmptyValue)
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("update_streak: %w: %q", shared.ErrInvalidStreakType, c.Type)
	}
	return nil
}

// UpdateStreakResult contains the outcome of one streak step.
type UpdateStreakResult struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// Type is the activity type.
	Type progression.StreakType

	// CurrentStreak is the streak length after the step.
	CurrentStreak int

	// LongestStreak is the best streak length after the step.
	LongestStreak int

	// Transition describes what the step did.
	Transition progression.TransitionKind

	// DaysMissed is set when the streak was broken.
	DaysMissed int

	// NewUnlock is the achievement unlocked by this step, if any.
	NewUnlock *progression.AchievementUnlock

	// RecordedAt is when the step was processed.
	RecordedAt time.Time
}

// UpdateStreakHandler handles UpdateStreakCommand.
type UpdateStreakHandler struct {
	streaks progression.StreakRepository
	unlocks *UnlockAchievementHandler
	events  shared.EventPublisher
	clock   timeutil.Clock
	log     *logger.Logger
}

// NewUpdateStreakHandler creates a new UpdateStreakHandler.
func NewUpdateStreakHandler(
	streaks progression.StreakRepository,
	unlocks *UnlockAchievementHandler,
	events shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
) *UpdateStreakHandler {
	return &UpdateStreakHandler{
		streaks: streaks,
		unlocks: unlocks,
		events:  events,
		clock:   clock,
		log:     log.With(logger.Component("update_streak")),
	}
}

// Handle executes the command.
func (h *UpdateStreakHandler) Handle(ctx context.Context, cmd UpdateStreakCommand) (*UpdateStreakResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := h.clock.Now()
	today := timeutil.DateOnly(now)

	streak, err := h.streaks.Get(ctx, cmd.StudentID, cmd.Type)

	var transition progression.StreakTransition
	switch {
	case err == nil:
		transition = streak.Advance(today)
	case shared.IsNotFound(err):
		streak = progression.NewStreak(cmd.StudentID, cmd.Type, today)
		transition = progression.StreakTransition{Kind: progression.TransitionStarted}
	default:
		return nil, err
	}

	if transition.Kind.Mutated() {
		if err := h.streaks.Upsert(ctx, streak); err != nil {
			return nil, err
		}
	}

	result := &UpdateStreakResult{
		StudentID:     cmd.StudentID,
		Type:          cmd.Type,
		CurrentStreak: streak.CurrentStreak,
		LongestStreak: streak.LongestStreak,
		Transition:    transition.Kind,
		DaysMissed:    transition.DaysMissed,
		RecordedAt:    now,
	}

	switch transition.Kind {
	case progression.TransitionUnchanged:
		// Same-day re-trigger: nothing to persist, nothing to announce.
		return result, nil

	case progression.TransitionBackdated:
		// Backdated events come from clock skew between collaborators.
		// Treated as a same-day no-op rather than an error; logged so
		// skewed callers are visible.
		h.log.Warn("backdated streak event ignored",
			logger.StudentID(cmd.StudentID),
			logger.StreakType(cmd.Type.String()),
			logger.Time("last_activity_date", streak.LastActivityDate),
			logger.Time("event_date", today),
		)
		return result, nil

	case progression.TransitionReset:
		h.publish(shared.NewStreakBrokenEvent(
			cmd.StudentID, cmd.Type.String(), transition.PreviousStreak, transition.DaysMissed))
	}

	h.publish(shared.NewStreakUpdatedEvent(
		cmd.StudentID, cmd.Type.String(), streak.CurrentStreak, streak.LongestStreak))

	// Exact-threshold check. Only a mutated counter can land on a threshold,
	// so same-day re-triggers can never double-attempt an unlock here; the
	// unlock guard stays the final idempotency barrier regardless.
	if achievementID, ok := progression.StreakAchievementFor(streak.CurrentStreak); ok {
		unlockRes, err := h.unlocks.Handle(ctx, UnlockAchievementCommand{
			StudentID:     cmd.StudentID,
			AchievementID: achievementID,
			Context:       cmd.Type.String(),
		})
		if err != nil {
			// The streak step is already committed; a failed bonus grant
			// must not undo it. Surface in logs for reconciliation.
			h.log.Error("streak achievement unlock failed",
				logger.StudentID(cmd.StudentID),
				logger.AchievementID(achievementID),
				logger.Err(err),
			)
		} else if unlockRes.IsNew() {
			result.NewUnlock = unlockRes.Unlock
		}
	}

	return result, nil
}

func (h *UpdateStreakHandler) publish(event shared.Event) {
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
