package command

import (
	"context"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY EVENTS
// High-level activities translated into fixed XP grants plus a streak step.
// Amounts are fixed per activity type so callers cannot inflate rewards.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// AttendanceXP is granted for one recorded class attendance.
	AttendanceXP = 10

	// AssignmentXP is granted for one completed assignment.
	AssignmentXP = 50
)

// ActivityResult combines the XP and streak outcomes of one activity.
type ActivityResult struct {
	// Award is the XP grant outcome. Nil when the activity grants no XP.
	Award *AwardXPResult

	// Streak is the streak step outcome.
	Streak *UpdateStreakResult
}

// ActivityHandler translates domain activities into progression commands.
// It is the single entry point for event producers (attendance import,
// assignment grading, login hooks) so the XP amounts live in one place.
type ActivityHandler struct {
	awards  *AwardXPHandler
	streaks *UpdateStreakHandler
	log     *logger.Logger
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(
	awards *AwardXPHandler,
	streaks *UpdateStreakHandler,
	log *logger.Logger,
) *ActivityHandler {
	return &ActivityHandler{
		awards:  awards,
		streaks: streaks,
		log:     log.With(logger.Component("activity")),
	}
}

// RecordAttendance records one class attendance: a fixed XP grant plus one
// attendance streak step.
func (h *ActivityHandler) RecordAttendance(ctx context.Context, studentID string) (*ActivityResult, error) {
	award, err := h.awards.Handle(ctx, AwardXPCommand{
		StudentID: studentID,
		Amount:    AttendanceXP,
		Reason:    "Attendance",
		Source:    "attendance",
	})
	if err != nil {
		return nil, err
	}
	return h.withStreak(ctx, &ActivityResult{Award: award}, studentID, progression.StreakAttendance)
}

// CompleteAssignment records one completed assignment: a fixed XP grant plus
// one assignment streak step.
func (h *ActivityHandler) CompleteAssignment(ctx context.Context, studentID string) (*ActivityResult, error) {
	award, err := h.awards.Handle(ctx, AwardXPCommand{
		StudentID: studentID,
		Amount:    AssignmentXP,
		Reason:    "Mission Accomplished",
		Source:    "tasks",
	})
	if err != nil {
		return nil, err
	}
	return h.withStreak(ctx, &ActivityResult{Award: award}, studentID, progression.StreakAssignment)
}

// RecordLogin records a daily login. Logins only feed the login streak;
// they grant no XP directly.
func (h *ActivityHandler) RecordLogin(ctx context.Context, studentID string) (*ActivityResult, error) {
	return h.withStreak(ctx, &ActivityResult{}, studentID, progression.StreakLogin)
}

// RecordStudySession records a self-study session, feeding the study streak.
func (h *ActivityHandler) RecordStudySession(ctx context.Context, studentID string) (*ActivityResult, error) {
	return h.withStreak(ctx, &ActivityResult{}, studentID, progression.StreakStudy)
}

// withStreak attaches a streak step to a partially-built result. A failed
// streak step after a committed grant is reported but does not roll the
// grant back: the ledger stays the source of truth either way.
func (h *ActivityHandler) withStreak(ctx context.Context, result *ActivityResult, studentID string, streakType progression.StreakType) (*ActivityResult, error) {
	streak, err := h.streaks.Handle(ctx, UpdateStreakCommand{
		StudentID: studentID,
		Type:      streakType,
	})
	if err != nil {
		if result.Award == nil {
			return nil, err
		}
		h.log.Error("streak step failed after grant",
			logger.StudentID(studentID),
			logger.StreakType(streakType.String()),
			logger.Err(err),
		)
		return result, nil
	}
	result.Streak = streak
	return result, nil
}
