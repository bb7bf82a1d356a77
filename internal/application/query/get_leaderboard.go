package query

import (
	"context"
	"errors"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// The ranking itself lives in Redis (sorted set keyed by total XP) and is
// maintained by the event projections; the query layer only reads it and
// decorates entries with display names.
// ══════════════════════════════════════════════════════════════════════════════

// RankedStudent is one row of the raw ranking.
type RankedStudent struct {
	StudentID string
	TotalXP   int
	Rank      int
}

// Leaderboard is the read side of the XP ranking.
type Leaderboard interface {
	// Top returns the top n students by total XP, best first.
	Top(ctx context.Context, n int) ([]RankedStudent, error)

	// Rank returns a single student's rank (1-based) and score, or
	// shared.ErrNotFound when the student is not ranked yet.
	Rank(ctx context.Context, studentID string) (*RankedStudent, error)
}

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
)

// GetLeaderboardQuery requests the top of the XP ranking.
type GetLeaderboardQuery struct {
	Limit int

	// ForStudent, when set, appends that student's own rank to the view
	// even when they are outside the top.
	ForStudent string
}

// Validate normalizes the limit.
func (q *GetLeaderboardQuery) Validate() error {
	if q.Limit <= 0 {
		q.Limit = defaultLeaderboardSize
	}
	if q.Limit > maxLeaderboardSize {
		q.Limit = maxLeaderboardSize
	}
	return nil
}

// LeaderboardEntry is one decorated row of the leaderboard view.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	StudentID   string `json:"student_id"`
	DisplayName string `json:"display_name"`
	TotalXP     int    `json:"total_xp"`
	Level       int    `json:"level"`
}

// LeaderboardView is the leaderboard read model.
type LeaderboardView struct {
	Entries []LeaderboardEntry `json:"entries"`

	// Me is the requesting student's own row, when requested and ranked.
	Me *LeaderboardEntry `json:"me,omitempty"`
}

// GetLeaderboardHandler handles GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	board    Leaderboard
	students progression.StudentRepository
	log      *logger.Logger
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler.
func NewGetLeaderboardHandler(
	board Leaderboard,
	students progression.StudentRepository,
	log *logger.Logger,
) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{
		board:    board,
		students: students,
		log:      log.With(logger.Component("get_leaderboard")),
	}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*LeaderboardView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if h.board == nil {
		return nil, errors.New("get_leaderboard: leaderboard backend not configured")
	}

	ranked, err := h.board.Top(ctx, q.Limit)
	if err != nil {
		return nil, err
	}

	view := &LeaderboardView{Entries: make([]LeaderboardEntry, 0, len(ranked))}
	for _, r := range ranked {
		view.Entries = append(view.Entries, h.decorate(ctx, r))
	}

	if q.ForStudent != "" {
		own, err := h.board.Rank(ctx, q.ForStudent)
		if err == nil {
			entry := h.decorate(ctx, *own)
			view.Me = &entry
		}
	}

	return view, nil
}

// decorate resolves the display name for a ranked row. A lookup failure
// degrades to an anonymous row instead of failing the whole view.
func (h *GetLeaderboardHandler) decorate(ctx context.Context, r RankedStudent) LeaderboardEntry {
	entry := LeaderboardEntry{
		Rank:      r.Rank,
		StudentID: r.StudentID,
		TotalXP:   r.TotalXP,
		Level:     progression.CalculateLevel(progression.XP(r.TotalXP)).Int(),
	}
	student, err := h.students.GetByID(ctx, r.StudentID)
	if err != nil {
		h.log.Warn("leaderboard name lookup failed",
			logger.StudentID(r.StudentID),
			logger.Err(err),
		)
		return entry
	}
	entry.DisplayName = student.DisplayName
	return entry
}
