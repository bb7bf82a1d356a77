package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestXP_Add(t *testing.T) {
	assert.Equal(t, XP(150), XP(100).Add(50))
	assert.Equal(t, XP(50), XP(100).Add(-50))
	// Snapshot never goes below zero.
	assert.Equal(t, XP(0), XP(100).Add(-200))
}

func TestStudentProgress_ApplyGrant(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := &StudentProgress{ID: "student1", TotalXP: 0, Level: 1}

	result := s.ApplyGrant(250, now)

	assert.Equal(t, XP(250), result.TotalXP)
	assert.Equal(t, Level(1), result.OldLevel)
	assert.Equal(t, Level(2), result.NewLevel)
	assert.True(t, result.LeveledUp())
	assert.Equal(t, XP(250), s.TotalXP)
	assert.Equal(t, Level(2), s.Level)
	assert.Equal(t, now, s.UpdatedAt)
}

func TestStudentProgress_ApplyGrant_NoLevelUp(t *testing.T) {
	now := time.Now().UTC()
	s := &StudentProgress{ID: "student1", TotalXP: 100, Level: 2}

	result := s.ApplyGrant(50, now)

	assert.Equal(t, XP(150), result.TotalXP)
	assert.False(t, result.LeveledUp())
}

func TestStudentProgress_ApplyGrant_NegativeCorrection(t *testing.T) {
	now := time.Now().UTC()
	s := &StudentProgress{ID: "student1", TotalXP: 450, Level: 3}

	result := s.ApplyGrant(-100, now)

	assert.Equal(t, XP(350), result.TotalXP)
	assert.Equal(t, Level(2), result.NewLevel)
	assert.False(t, result.LeveledUp())
}

func TestNewXPTransaction(t *testing.T) {
	now := time.Now().UTC()

	tx, err := NewXPTransaction("student1", 100, "Mission Accomplished", "tasks", now)
	assert.NoError(t, err)
	assert.Equal(t, "student1", tx.StudentID)
	assert.Equal(t, XP(100), tx.Amount)
	assert.Equal(t, "Mission Accomplished", tx.Reason)
	assert.Equal(t, "tasks", tx.Source)

	_, err = NewXPTransaction("", 100, "reason", "source", now)
	assert.ErrorIs(t, err, ErrInvalidStudentID)
}

func TestNewAchievementUnlock(t *testing.T) {
	now := time.Now().UTC()
	entry, ok := DefaultCatalog().Get(AchievementWeekStreak)
	assert.True(t, ok)

	unlock, err := NewAchievementUnlock("student1", entry, "login", now)
	assert.NoError(t, err)
	assert.Equal(t, AchievementWeekStreak, unlock.AchievementID)
	assert.Equal(t, entry.Title, unlock.Title)
	assert.Equal(t, entry.XPEarned, unlock.XPEarned)
	assert.Equal(t, "login", unlock.Context)

	_, err = NewAchievementUnlock("", entry, "", now)
	assert.ErrorIs(t, err, ErrInvalidStudentID)
}
