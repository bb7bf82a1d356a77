package jobs

import (
	"context"
	"fmt"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// The Redis ranking is maintained incrementally by event projections, which
// are best-effort. This job rewrites the whole sorted set from Postgres so
// any missed projection heals on the next run.
// ══════════════════════════════════════════════════════════════════════════════

// RankingRebuilder is the bulk write side of the leaderboard.
type RankingRebuilder interface {
	// Rebuild replaces the ranking with the given student -> total XP map.
	Rebuild(ctx context.Context, scores map[string]int) error
}

// RebuildLeaderboardJob rewrites the XP ranking from the snapshots.
type RebuildLeaderboardJob struct {
	students progression.StudentRepository
	board    RankingRebuilder
	log      *logger.Logger
}

// NewRebuildLeaderboardJob creates a new RebuildLeaderboardJob.
func NewRebuildLeaderboardJob(
	students progression.StudentRepository,
	board RankingRebuilder,
	log *logger.Logger,
) *RebuildLeaderboardJob {
	return &RebuildLeaderboardJob{
		students: students,
		board:    board,
		log:      log.With(logger.Component("rebuild_leaderboard")),
	}
}

// Name returns the unique name of the job.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description of the job.
func (j *RebuildLeaderboardJob) Description() string {
	return "Rewrites the Redis XP ranking from the Postgres snapshots"
}

// Run executes the job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	ids, err := j.students.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("rebuild: failed to list students: %w", err)
	}

	scores := make(map[string]int, len(ids))
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		student, err := j.students.GetByID(ctx, id)
		if err != nil {
			j.log.Error("failed to load student for rebuild",
				logger.StudentID(id),
				logger.Err(err),
			)
			continue
		}
		scores[student.ID] = student.TotalXP.Int()
	}

	if err := j.board.Rebuild(ctx, scores); err != nil {
		return err
	}

	j.log.Info("leaderboard rebuilt", logger.Int("students", len(scores)))
	return nil
}
