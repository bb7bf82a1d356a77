package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub/progression-engine/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

type stubJob struct {
	name string
	runs int
	err  error
}

func (j *stubJob) Name() string        { return j.name }
func (j *stubJob) Description() string { return "stub job" }
func (j *stubJob) Run(ctx context.Context) error {
	j.runs++
	return j.err
}

func TestIntervalSchedule(t *testing.T) {
	s := NewIntervalSchedule(10 * time.Minute)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(10*time.Minute), s.Next(now))
	assert.Equal(t, "every 10m0s", s.String())
}

func TestDailySchedule_BeforeFireTime(t *testing.T) {
	s := NewDailySchedule(3, 0)
	now := time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), s.Next(now))
}

func TestDailySchedule_AfterFireTime(t *testing.T) {
	s := NewDailySchedule(3, 0)
	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	// Exactly at the fire time rolls to the next day.
	assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), s.Next(now))
}

func TestDailySchedule_KeepsLocation(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	s := NewDailySchedule(3, 30)
	now := time.Date(2026, 3, 10, 1, 0, 0, 0, almaty)

	next := s.Next(now)
	assert.Equal(t, almaty, next.Location())
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.Equal(t, "daily at 03:30", s.String())
}

func TestScheduler_Register(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: testLogger()})

	assert.NoError(t, s.Register(&stubJob{name: "a"}, NewIntervalSchedule(time.Hour)))
	assert.ErrorIs(t, s.Register(&stubJob{name: "a"}, NewIntervalSchedule(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&stubJob{name: "b"}, nil), ErrNilSchedule)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: testLogger()})
	assert.NoError(t, s.Register(&stubJob{name: "a"}, NewIntervalSchedule(time.Hour)))

	assert.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: testLogger()})
	job := &stubJob{name: "reconcile"}
	assert.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "reconcile")

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, job.runs)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RunNow_JobFailure(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: testLogger()})
	job := &stubJob{name: "broken", err: errors.New("db down")}
	assert.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "broken")

	assert.Error(t, err)
	assert.False(t, result.Success)
}

func TestScheduler_ListJobs(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: testLogger()})
	assert.NoError(t, s.Register(&stubJob{name: "a"}, NewIntervalSchedule(time.Hour)))
	assert.NoError(t, s.Register(&stubJob{name: "b"}, NewDailySchedule(3, 0)))

	infos := s.ListJobs()

	assert.Len(t, infos, 2)
	for _, info := range infos {
		assert.True(t, info.Enabled)
		assert.False(t, info.NextRun.IsZero())
	}
}
