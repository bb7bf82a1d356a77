package command

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

func TestAwardXP_GrantAndLevelUp(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))

	result, err := h.award.Handle(context.Background(), AwardXPCommand{
		StudentID: "student1",
		Amount:    250,
		Reason:    "Mission Accomplished",
		Source:    "tasks",
	})

	assert.NoError(t, err)
	assert.Equal(t, 250, result.TotalXP)
	assert.Equal(t, 2, result.NewLevel)
	assert.True(t, result.LeveledUp)

	// One ledger entry, snapshot moved.
	assert.Len(t, h.students.entries, 1)
	assert.Equal(t, "tasks", h.students.entries[0].Source)
	stored, _ := h.students.GetByID(context.Background(), "student1")
	assert.Equal(t, 250, stored.TotalXP.Int())
	assert.Equal(t, 2, stored.Level.Int())

	assert.Len(t, h.bus.published(shared.EventXPGained), 1)
	assert.Len(t, h.bus.published(shared.EventLevelUp), 1)
}

func TestAwardXP_NoLevelUp(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 100))

	result, err := h.award.Handle(context.Background(), AwardXPCommand{
		StudentID: "student1",
		Amount:    50,
		Source:    "attendance",
	})

	assert.NoError(t, err)
	assert.Equal(t, 150, result.TotalXP)
	assert.False(t, result.LeveledUp)
	assert.Empty(t, h.bus.published(shared.EventLevelUp))
}

func TestAwardXP_NegativeCorrection(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 450))

	result, err := h.award.Handle(context.Background(), AwardXPCommand{
		StudentID: "student1",
		Amount:    -100,
		Reason:    "Grading correction",
		Source:    "correction",
	})

	assert.NoError(t, err)
	assert.Equal(t, 350, result.TotalXP)
	assert.Equal(t, 2, result.NewLevel)
	assert.Len(t, h.students.entries, 1)
	assert.Equal(t, -100, h.students.entries[0].Amount.Int())
}

func TestAwardXP_Validation(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10))

	_, err := h.award.Handle(context.Background(), AwardXPCommand{Amount: 10, Source: "tasks"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.award.Handle(context.Background(), AwardXPCommand{StudentID: "student1", Amount: 10})
	assert.True(t, shared.IsValidation(err))
}

func TestAwardXP_StudentNotFound(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10))

	_, err := h.award.Handle(context.Background(), AwardXPCommand{
		StudentID: "ghost",
		Amount:    10,
		Source:    "tasks",
	})

	assert.True(t, shared.IsNotFound(err))
	// Not found is permanent: no write attempts happened.
	assert.Equal(t, 0, h.students.grantCalls)
}

func TestAwardXP_RetriesVersionConflict(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))
	h.students.grantErrs = []error{shared.ErrVersionConflict}

	result, err := h.award.Handle(context.Background(), AwardXPCommand{
		StudentID: "student1",
		Amount:    100,
		Source:    "tasks",
	})

	assert.NoError(t, err)
	assert.Equal(t, 100, result.TotalXP)
	assert.Equal(t, 2, h.students.grantCalls)
	// Re-read per attempt keeps the grant applied exactly once.
	stored, _ := h.students.GetByID(context.Background(), "student1")
	assert.Equal(t, 100, stored.TotalXP.Int())
}

func TestAwardXP_StaleSnapshotRejected(t *testing.T) {
	repo := newFakeStudentRepo(testStudent("student1", 0))
	ctx := context.Background()
	now := fixedClock(2026, 3, 10).Now()

	// Two writers read the same committed state.
	first, err := repo.GetByID(ctx, "student1")
	assert.NoError(t, err)
	second, err := repo.GetByID(ctx, "student1")
	assert.NoError(t, err)

	first.ApplyGrant(progression.XP(100), now)
	entry, err := progression.NewXPTransaction("student1", progression.XP(100), "Attendance", "attendance", now)
	assert.NoError(t, err)
	assert.NoError(t, repo.ApplyGrant(ctx, first, entry))

	// The second write carries a stale version and must not be absorbed
	// as a lost update.
	second.ApplyGrant(progression.XP(100), now)
	entry, err = progression.NewXPTransaction("student1", progression.XP(100), "Attendance", "attendance", now)
	assert.NoError(t, err)
	err = repo.ApplyGrant(ctx, second, entry)
	assert.True(t, shared.IsConflict(err))

	stored, _ := repo.GetByID(ctx, "student1")
	assert.Equal(t, 100, stored.TotalXP.Int())
	assert.Len(t, repo.entries, 1)
}

func TestAwardXP_ConcurrentGrantsBothLand(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.award.Handle(context.Background(), AwardXPCommand{
				StudentID: "student1",
				Amount:    100,
				Reason:    "Attendance",
				Source:    "attendance",
			})
		}(i)
	}
	wg.Wait()

	// The loser of the version race retries on a fresh read, so both
	// grants land and neither overwrites the other.
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])

	stored, _ := h.students.GetByID(context.Background(), "student1")
	assert.Equal(t, 200, stored.TotalXP.Int())
	assert.Len(t, h.students.entries, 2)
	assert.Len(t, h.bus.published(shared.EventXPGained), 2)
}

func TestAwardXP_ConflictRetriesExhausted(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 0))
	h.students.grantErrs = []error{
		shared.ErrVersionConflict,
		shared.ErrVersionConflict,
		shared.ErrVersionConflict,
		shared.ErrVersionConflict,
	}

	_, err := h.award.Handle(context.Background(), AwardXPCommand{
		StudentID: "student1",
		Amount:    100,
		Source:    "tasks",
	})

	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, conflictMaxAttempts, h.students.grantCalls)
	assert.Empty(t, h.bus.published(shared.EventXPGained))
}

func TestAwardXP_ZeroAmountStillLedgered(t *testing.T) {
	h := newTestHarness(fixedClock(2026, 3, 10), testStudent("student1", 50))

	result, err := h.award.Handle(context.Background(), AwardXPCommand{
		StudentID: "student1",
		Amount:    0,
		Reason:    "Participation",
		Source:    "attendance",
	})

	assert.NoError(t, err)
	assert.Equal(t, 50, result.TotalXP)
	assert.Len(t, h.students.entries, 1)
}
