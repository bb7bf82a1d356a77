package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewStreak(t *testing.T) {
	today := day(2026, 3, 10)
	s := NewStreak("student1", StreakLogin, today)

	assert.Equal(t, "student1", s.StudentID)
	assert.Equal(t, StreakLogin, s.Type)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.LongestStreak)
	assert.Equal(t, today, s.LastActivityDate)
}

func TestStreak_Advance_SameDay(t *testing.T) {
	today := day(2026, 3, 10)
	s := NewStreak("student1", StreakStudy, today)

	tr := s.Advance(today)

	assert.Equal(t, TransitionUnchanged, tr.Kind)
	assert.False(t, tr.Kind.Mutated())
	assert.Equal(t, 1, s.CurrentStreak)
}

func TestStreak_Advance_NextDay(t *testing.T) {
	s := NewStreak("student1", StreakStudy, day(2026, 3, 10))

	tr := s.Advance(day(2026, 3, 11))

	assert.Equal(t, TransitionAdvanced, tr.Kind)
	assert.True(t, tr.Kind.Mutated())
	assert.Equal(t, 2, s.CurrentStreak)
	assert.Equal(t, 2, s.LongestStreak)
	assert.Equal(t, day(2026, 3, 11), s.LastActivityDate)
}

func TestStreak_Advance_MissedDays(t *testing.T) {
	s := NewStreak("student1", StreakAttendance, day(2026, 3, 10))
	s.Advance(day(2026, 3, 11))
	s.Advance(day(2026, 3, 12))

	tr := s.Advance(day(2026, 3, 15))

	assert.Equal(t, TransitionReset, tr.Kind)
	assert.Equal(t, 2, tr.DaysMissed)
	assert.Equal(t, 3, tr.PreviousStreak)
	assert.Equal(t, 1, s.CurrentStreak)
	// Best streak survives the reset.
	assert.Equal(t, 3, s.LongestStreak)
}

func TestStreak_Advance_Backdated(t *testing.T) {
	s := NewStreak("student1", StreakLogin, day(2026, 3, 10))
	before := *s

	tr := s.Advance(day(2026, 3, 8))

	assert.Equal(t, TransitionBackdated, tr.Kind)
	assert.False(t, tr.Kind.Mutated())
	assert.Equal(t, before, *s)
}

func TestStreak_Advance_IgnoresTimeOfDay(t *testing.T) {
	s := NewStreak("student1", StreakLogin, day(2026, 3, 10))

	// 23:59 the next day is still exactly one calendar day later.
	late := time.Date(2026, 3, 11, 23, 59, 59, 0, time.UTC)
	tr := s.Advance(late)

	assert.Equal(t, TransitionAdvanced, tr.Kind)
	assert.Equal(t, 2, s.CurrentStreak)
}

func TestStreak_LongestNeverDecreases(t *testing.T) {
	s := NewStreak("student1", StreakAssignment, day(2026, 1, 1))
	for i := 1; i <= 9; i++ {
		s.Advance(day(2026, 1, 1+i))
	}
	assert.Equal(t, 10, s.CurrentStreak)
	assert.Equal(t, 10, s.LongestStreak)

	s.Advance(day(2026, 2, 1))
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 10, s.LongestStreak)
}

func TestStreakType_IsValid(t *testing.T) {
	for _, st := range StreakTypes() {
		assert.True(t, st.IsValid(), st.String())
	}
	assert.False(t, StreakType("gaming").IsValid())
	assert.False(t, StreakType("").IsValid())
}

func TestTransitionKind_String(t *testing.T) {
	assert.Equal(t, "started", TransitionStarted.String())
	assert.Equal(t, "unchanged", TransitionUnchanged.String())
	assert.Equal(t, "advanced", TransitionAdvanced.String())
	assert.Equal(t, "reset", TransitionReset.String())
	assert.Equal(t, "backdated", TransitionBackdated.String())
}

func TestStreakAchievementFor(t *testing.T) {
	id, ok := StreakAchievementFor(7)
	assert.True(t, ok)
	assert.Equal(t, AchievementWeekStreak, id)

	id, ok = StreakAchievementFor(30)
	assert.True(t, ok)
	assert.Equal(t, AchievementMonthStreak, id)

	id, ok = StreakAchievementFor(100)
	assert.True(t, ok)
	assert.Equal(t, AchievementCenturyStreak, id)

	// Exact match only: jumping past a threshold earns nothing.
	_, ok = StreakAchievementFor(8)
	assert.False(t, ok)
	_, ok = StreakAchievementFor(0)
	assert.False(t, ok)
}
