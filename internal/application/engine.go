package application

import (
	"context"

	"github.com/studyhub/progression-engine/internal/application/command"
	"github.com/studyhub/progression-engine/internal/application/query"
)

// Engine is the progression facade: the single entry point interfaces use.
// It owns no logic of its own, it only routes to the command and query
// handlers wired in at startup.
type Engine struct {
	awardXP      *command.AwardXPHandler
	updateStreak *command.UpdateStreakHandler
	unlock       *command.UnlockAchievementHandler
	activity     *command.ActivityHandler

	progress     *query.GetProgressHandler
	totalXP      *query.GetTotalXPHandler
	ledger       *query.GetLedgerHandler
	achievements *query.GetAchievementsHandler
	leaderboard  *query.GetLeaderboardHandler
}

// Handlers lists the dependencies of the Engine.
type Handlers struct {
	AwardXP      *command.AwardXPHandler
	UpdateStreak *command.UpdateStreakHandler
	Unlock       *command.UnlockAchievementHandler
	Activity     *command.ActivityHandler

	Progress     *query.GetProgressHandler
	TotalXP      *query.GetTotalXPHandler
	Ledger       *query.GetLedgerHandler
	Achievements *query.GetAchievementsHandler
	Leaderboard  *query.GetLeaderboardHandler
}

// NewEngine creates a new Engine.
func NewEngine(h Handlers) *Engine {
	return &Engine{
		awardXP:      h.AwardXP,
		updateStreak: h.UpdateStreak,
		unlock:       h.Unlock,
		activity:     h.Activity,
		progress:     h.Progress,
		totalXP:      h.TotalXP,
		ledger:       h.Ledger,
		achievements: h.Achievements,
		leaderboard:  h.Leaderboard,
	}
}

// AwardXP appends a ledger entry and updates the snapshot.
func (e *Engine) AwardXP(ctx context.Context, cmd command.AwardXPCommand) (*command.AwardXPResult, error) {
	return e.awardXP.Handle(ctx, cmd)
}

// UpdateStreak advances a streak state machine by one step.
func (e *Engine) UpdateStreak(ctx context.Context, cmd command.UpdateStreakCommand) (*command.UpdateStreakResult, error) {
	return e.updateStreak.Handle(ctx, cmd)
}

// UnlockAchievement unlocks an achievement exactly once per student.
func (e *Engine) UnlockAchievement(ctx context.Context, cmd command.UnlockAchievementCommand) (*command.UnlockAchievementResult, error) {
	return e.unlock.Handle(ctx, cmd)
}

// RecordAttendance records a class attendance activity.
func (e *Engine) RecordAttendance(ctx context.Context, studentID string) (*command.ActivityResult, error) {
	return e.activity.RecordAttendance(ctx, studentID)
}

// CompleteAssignment records a completed assignment activity.
func (e *Engine) CompleteAssignment(ctx context.Context, studentID string) (*command.ActivityResult, error) {
	return e.activity.CompleteAssignment(ctx, studentID)
}

// RecordLogin records a daily login activity.
func (e *Engine) RecordLogin(ctx context.Context, studentID string) (*command.ActivityResult, error) {
	return e.activity.RecordLogin(ctx, studentID)
}

// RecordStudySession records a self-study activity.
func (e *Engine) RecordStudySession(ctx context.Context, studentID string) (*command.ActivityResult, error) {
	return e.activity.RecordStudySession(ctx, studentID)
}

// GetProgress returns the combined progression view of one student.
func (e *Engine) GetProgress(ctx context.Context, q query.GetProgressQuery) (*query.ProgressView, error) {
	return e.progress.Handle(ctx, q)
}

// GetTotalXP returns the XP snapshot of one student.
func (e *Engine) GetTotalXP(ctx context.Context, q query.GetTotalXPQuery) (*query.TotalXPView, error) {
	return e.totalXP.Handle(ctx, q)
}

// GetLedger returns the most recent ledger entries of one student.
func (e *Engine) GetLedger(ctx context.Context, q query.GetLedgerQuery) (*query.LedgerView, error) {
	return e.ledger.Handle(ctx, q)
}

// GetAchievements returns a student's badge grid.
func (e *Engine) GetAchievements(ctx context.Context, q query.GetAchievementsQuery) (*query.AchievementsView, error) {
	return e.achievements.Handle(ctx, q)
}

// GetLeaderboard returns the top of the XP ranking.
func (e *Engine) GetLeaderboard(ctx context.Context, q query.GetLeaderboardQuery) (*query.LeaderboardView, error) {
	return e.leaderboard.Handle(ctx, q)
}
