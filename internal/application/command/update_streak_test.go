package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

func seedStreak(h *testHarness, studentID string, t progression.StreakType, current, longest int, lastDay time.Time) {
	h.streaks.streaks[streakKey(studentID, t)] = &progression.Streak{
		StudentID:        studentID,
		Type:             t,
		CurrentStreak:    current,
		LongestStreak:    longest,
		LastActivityDate: lastDay,
	}
}

func TestUpdateStreak_Started(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))

	result, err := h.streak.Handle(context.Background(), UpdateStreakCommand{
		StudentID: "student1",
		Type:      progression.StreakLogin,
	})

	assert.NoError(t, err)
	assert.Equal(t, progression.TransitionStarted, result.Transition)
	assert.Equal(t, 1, result.CurrentStreak)
	assert.Equal(t, 1, h.streaks.upserts)
	assert.Len(t, h.bus.published(shared.EventStreakUpdated), 1)
}

func TestUpdateStreak_SameDayIdempotent(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))
	cmd := UpdateStreakCommand{StudentID: "student1", Type: progression.StreakLogin}

	_, err := h.streak.Handle(context.Background(), cmd)
	assert.NoError(t, err)

	second, err := h.streak.Handle(context.Background(), cmd)
	assert.NoError(t, err)
	assert.Equal(t, progression.TransitionUnchanged, second.Transition)
	assert.Equal(t, 1, second.CurrentStreak)

	// Second trigger neither persisted nor announced anything.
	assert.Equal(t, 1, h.streaks.upserts)
	assert.Len(t, h.bus.published(shared.EventStreakUpdated), 1)
}

func TestUpdateStreak_Advanced(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))
	seedStreak(h, "student1", progression.StreakStudy, 3, 5, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))

	result, err := h.streak.Handle(context.Background(), UpdateStreakCommand{
		StudentID: "student1",
		Type:      progression.StreakStudy,
	})

	assert.NoError(t, err)
	assert.Equal(t, progression.TransitionAdvanced, result.Transition)
	assert.Equal(t, 4, result.CurrentStreak)
	assert.Equal(t, 5, result.LongestStreak)
}

func TestUpdateStreak_Reset(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))
	seedStreak(h, "student1", progression.StreakAttendance, 12, 12, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))

	result, err := h.streak.Handle(context.Background(), UpdateStreakCommand{
		StudentID: "student1",
		Type:      progression.StreakAttendance,
	})

	assert.NoError(t, err)
	assert.Equal(t, progression.TransitionReset, result.Transition)
	assert.Equal(t, 1, result.CurrentStreak)
	assert.Equal(t, 12, result.LongestStreak)
	assert.Equal(t, 4, result.DaysMissed)

	assert.Len(t, h.bus.published(shared.EventStreakBroken), 1)
	assert.Len(t, h.bus.published(shared.EventStreakUpdated), 1)
}

func TestUpdateStreak_BackdatedIgnored(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))
	seedStreak(h, "student1", progression.StreakLogin, 5, 5, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC))

	result, err := h.streak.Handle(context.Background(), UpdateStreakCommand{
		StudentID: "student1",
		Type:      progression.StreakLogin,
	})

	assert.NoError(t, err)
	assert.Equal(t, progression.TransitionBackdated, result.Transition)
	assert.Equal(t, 5, result.CurrentStreak)
	assert.Equal(t, 0, h.streaks.upserts)
	assert.Empty(t, h.bus.published(shared.EventStreakUpdated))
}

func TestUpdateStreak_WeekThresholdUnlocks(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))
	seedStreak(h, "student1", progression.StreakLogin, 6, 6, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))

	result, err := h.streak.Handle(context.Background(), UpdateStreakCommand{
		StudentID: "student1",
		Type:      progression.StreakLogin,
	})

	assert.NoError(t, err)
	assert.Equal(t, 7, result.CurrentStreak)
	assert.NotNil(t, result.NewUnlock)
	assert.Equal(t, progression.AchievementWeekStreak, result.NewUnlock.AchievementID)
	assert.Equal(t, "login", result.NewUnlock.Context)

	// Bonus XP cascaded through the ledger.
	stored, _ := h.students.GetByID(context.Background(), "student1")
	assert.Equal(t, 100, stored.TotalXP.Int())
	assert.Len(t, h.bus.published(shared.EventAchievementUnlocked), 1)
}

func TestUpdateStreak_ThresholdAlreadyUnlocked(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))
	seedStreak(h, "student1", progression.StreakLogin, 6, 20, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	_, err := h.unlock.Handle(context.Background(), UnlockAchievementCommand{
		StudentID:     "student1",
		AchievementID: progression.AchievementWeekStreak,
	})
	assert.NoError(t, err)

	result, err := h.streak.Handle(context.Background(), UpdateStreakCommand{
		StudentID: "student1",
		Type:      progression.StreakLogin,
	})

	assert.NoError(t, err)
	assert.Equal(t, 7, result.CurrentStreak)
	// Second pass over the threshold does not re-award.
	assert.Nil(t, result.NewUnlock)
	assert.Len(t, h.students.entries, 1)
}

func TestUpdateStreak_SkippingThresholdEarnsNothing(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))
	// Streak of 6 broken by a gap: resets to 1, never landing on 7.
	seedStreak(h, "student1", progression.StreakLogin, 6, 6, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	result, err := h.streak.Handle(context.Background(), UpdateStreakCommand{
		StudentID: "student1",
		Type:      progression.StreakLogin,
	})

	assert.NoError(t, err)
	assert.Equal(t, progression.TransitionReset, result.Transition)
	assert.Nil(t, result.NewUnlock)
	assert.Empty(t, h.bus.published(shared.EventAchievementUnlocked))
}

func TestUpdateStreak_UnlockFailureKeepsStep(t *testing.T) {
	// No student row: the cascaded bonus grant fails, the streak step stands.
	h := newTestHarness(fixedClock(2026, 3, 10))
	seedStreak(h, "ghost", progression.StreakLogin, 6, 6, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))

	result, err := h.streak.Handle(context.Background(), UpdateStreakCommand{
		StudentID: "ghost",
		Type:      progression.StreakLogin,
	})

	assert.NoError(t, err)
	assert.Equal(t, 7, result.CurrentStreak)
	assert.Nil(t, result.NewUnlock)
	assert.Equal(t, 1, h.streaks.upserts)
}

func TestUpdateStreak_Validation(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10))

	_, err := h.streak.Handle(context.Background(), UpdateStreakCommand{Type: progression.StreakLogin})
	assert.True(t, shared.IsValidation(err))

	_, err = h.streak.Handle(context.Background(), UpdateStreakCommand{StudentID: "student1", Type: "gaming"})
	assert.ErrorIs(t, err, shared.ErrInvalidStreakType)
}
