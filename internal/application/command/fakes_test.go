package command

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
	"github.com/studyhub/progression-engine/pkg/timeutil"
)

// In-package fakes backing the command handler tests. Repositories return
// copies so a handler never mutates stored rows before the write commits,
// mirroring the real Postgres implementations.

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

func fixedClock(y int, m time.Month, d int) timeutil.FixedClock {
	return timeutil.FixedClock{Instant: time.Date(y, m, d, 12, 0, 0, 0, time.UTC)}
}

type fakeStudentRepo struct {
	mu         sync.Mutex
	students   map[string]*progression.StudentProgress
	entries    []*progression.XPTransaction
	grantErrs  []error
	grantCalls int
}

func newFakeStudentRepo(students ...*progression.StudentProgress) *fakeStudentRepo {
	repo := &fakeStudentRepo{students: make(map[string]*progression.StudentProgress)}
	for _, s := range students {
		cp := *s
		repo.students[s.ID] = &cp
	}
	return repo
}

func (f *fakeStudentRepo) GetByID(_ context.Context, id string) (*progression.StudentProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	cp := *s
	return &cp, nil
}

// ApplyGrant commits with the same optimistic version check as the Postgres
// repository: a write from a stale snapshot fails with ErrVersionConflict
// instead of silently losing the concurrent grant.
func (f *fakeStudentRepo) ApplyGrant(_ context.Context, s *progression.StudentProgress, entry *progression.XPTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grantCalls++
	if len(f.grantErrs) > 0 {
		err := f.grantErrs[0]
		f.grantErrs = f.grantErrs[1:]
		if err != nil {
			return err
		}
	}
	stored, ok := f.students[s.ID]
	if !ok {
		return shared.ErrStudentNotFound
	}
	if stored.Version != s.Version {
		return shared.ErrVersionConflict
	}
	s.Version++
	cp := *s
	f.students[s.ID] = &cp
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeStudentRepo) ListIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.students))
	for id := range f.students {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStudentRepo) ForceSnapshot(_ context.Context, s *progression.StudentProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.students[s.ID] = &cp
	return nil
}

type fakeStreakRepo struct {
	mu      sync.Mutex
	streaks map[string]*progression.Streak
	upserts int
}

func newFakeStreakRepo() *fakeStreakRepo {
	return &fakeStreakRepo{streaks: make(map[string]*progression.Streak)}
}

func streakKey(studentID string, t progression.StreakType) string {
	return studentID + "|" + t.String()
}

func (f *fakeStreakRepo) Get(_ context.Context, studentID string, streakType progression.StreakType) (*progression.Streak, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streaks[streakKey(studentID, streakType)]
	if !ok {
		return nil, shared.ErrStreakNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStreakRepo) Upsert(_ context.Context, streak *progression.Streak) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	cp := *streak
	f.streaks[streakKey(streak.StudentID, streak.Type)] = &cp
	return nil
}

func (f *fakeStreakRepo) ListByStudent(_ context.Context, studentID string) ([]progression.Streak, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []progression.Streak
	for _, s := range f.streaks {
		if s.StudentID == studentID {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeUnlockRepo struct {
	mu       sync.Mutex
	unlocks  map[string]*progression.AchievementUnlock
	students *fakeStudentRepo
	// insertErr, when set, fails the next insert regardless of state.
	insertErr error
}

func newFakeUnlockRepo(students *fakeStudentRepo) *fakeUnlockRepo {
	return &fakeUnlockRepo{
		unlocks:  make(map[string]*progression.AchievementUnlock),
		students: students,
	}
}

func unlockKey(studentID, achievementID string) string {
	return studentID + "|" + achievementID
}

func (f *fakeUnlockRepo) Get(_ context.Context, studentID, achievementID string) (*progression.AchievementUnlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.unlocks[unlockKey(studentID, achievementID)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUnlockRepo) ListByStudent(_ context.Context, studentID string) ([]progression.AchievementUnlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []progression.AchievementUnlock
	for _, u := range f.unlocks {
		if u.StudentID == studentID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUnlockRepo) Insert(_ context.Context, unlock *progression.AchievementUnlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		err := f.insertErr
		f.insertErr = nil
		return err
	}
	key := unlockKey(unlock.StudentID, unlock.AchievementID)
	if _, ok := f.unlocks[key]; ok {
		return shared.ErrAchievementUnlocked
	}
	cp := *unlock
	f.unlocks[key] = &cp
	return nil
}

func (f *fakeUnlockRepo) InsertWithGrant(ctx context.Context, unlock *progression.AchievementUnlock, s *progression.StudentProgress, entry *progression.XPTransaction) error {
	f.mu.Lock()
	if f.insertErr != nil {
		err := f.insertErr
		f.insertErr = nil
		f.mu.Unlock()
		return err
	}
	key := unlockKey(unlock.StudentID, unlock.AchievementID)
	if _, ok := f.unlocks[key]; ok {
		f.mu.Unlock()
		return shared.ErrAchievementUnlocked
	}
	f.mu.Unlock()

	if err := f.students.ApplyGrant(ctx, s, entry); err != nil {
		return err
	}

	f.mu.Lock()
	cp := *unlock
	f.unlocks[key] = &cp
	f.mu.Unlock()
	return nil
}

type fakeEventBus struct {
	mu     sync.Mutex
	events []shared.Event
}

func (f *fakeEventBus) Publish(event shared.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventBus) published(t shared.EventType) []shared.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []shared.Event
	for _, e := range f.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// testHarness wires the full command layer over fakes, the same shape the
// server composes in production.
type testHarness struct {
	students *fakeStudentRepo
	streaks  *fakeStreakRepo
	unlocks  *fakeUnlockRepo
	bus      *fakeEventBus

	award    *AwardXPHandler
	unlock   *UnlockAchievementHandler
	streak   *UpdateStreakHandler
	activity *ActivityHandler
}

func newTestHarness(clock timeutil.Clock, students ...*progression.StudentProgress) *testHarness {
	h := &testHarness{
		students: newFakeStudentRepo(students...),
		streaks:  newFakeStreakRepo(),
		bus:      &fakeEventBus{},
	}
	h.unlocks = newFakeUnlockRepo(h.students)

	log := testLogger()
	h.award = NewAwardXPHandler(h.students, h.bus, clock, log)
	h.unlock = NewUnlockAchievementHandler(h.students, h.unlocks, progression.DefaultCatalog(), h.bus, clock, log)
	h.streak = NewUpdateStreakHandler(h.streaks, h.unlock, h.bus, clock, log)
	h.activity = NewActivityHandler(h.award, h.streak, log)
	return h
}

func testStudent(id string, totalXP int) *progression.StudentProgress {
	xp := progression.XP(totalXP)
	return &progression.StudentProgress{
		ID:      id,
		TotalXP: xp,
		Level:   progression.CalculateLevel(xp),
		Version: 1,
	}
}
