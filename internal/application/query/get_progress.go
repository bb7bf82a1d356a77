package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Read model combining the XP snapshot, streaks and unlocked achievements
// into one view. Served from cache when possible; the cache is best-effort
// and a miss or a cache failure falls through to the repositories.
// ══════════════════════════════════════════════════════════════════════════════

// ErrCacheMiss is returned by ProgressCache.Get when no entry exists.
var ErrCacheMiss = errors.New("query: cache miss")

// ProgressCache caches assembled ProgressView documents.
type ProgressCache interface {
	// Get returns the cached view or ErrCacheMiss.
	Get(ctx context.Context, studentID string) (*ProgressView, error)

	// Set stores the view with the cache's configured TTL.
	Set(ctx context.Context, view *ProgressView) error

	// Invalidate drops the cached view for a student.
	Invalidate(ctx context.Context, studentID string) error
}

// StreakView is the read model of one streak.
type StreakView struct {
	Type             string    `json:"type"`
	CurrentStreak    int       `json:"current_streak"`
	LongestStreak    int       `json:"longest_streak"`
	LastActivityDate time.Time `json:"last_activity_date"`
}

// UnlockView is the read model of one unlocked achievement.
type UnlockView struct {
	AchievementID string    `json:"achievement_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
	Rarity        string    `json:"rarity"`
	XPEarned      int       `json:"xp_earned"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// ProgressView is the combined read model of a student's progression.
type ProgressView struct {
	StudentID     string       `json:"student_id"`
	DisplayName   string       `json:"display_name"`
	TotalXP       int          `json:"total_xp"`
	Level         int          `json:"level"`
	LevelProgress float64      `json:"level_progress"`
	XPToNextLevel int          `json:"xp_to_next_level"`
	Streaks       []StreakView `json:"streaks"`
	Achievements  []UnlockView `json:"achievements"`
	GeneratedAt   time.Time    `json:"generated_at"`
}

// GetProgressQuery requests the combined progression view of one student.
type GetProgressQuery struct {
	StudentID string
}

// Validate validates the query.
func (q GetProgressQuery) Validate() error {
	if q.StudentID == "" {
		return fmt.Errorf("get_progress: %w: student_id is required", shared.ErrEmptyValue)
	}
	return nil
}

// GetProgressHandler handles GetProgressQuery.
type GetProgressHandler struct {
	students progression.StudentRepository
	streaks  progression.StreakRepository
	unlocks  progression.UnlockRepository
	cache    ProgressCache
	log      *logger.Logger
}

// NewGetProgressHandler creates a new GetProgressHandler.
func NewGetProgressHandler(
	students progression.StudentRepository,
	streaks progression.StreakRepository,
	unlocks progression.UnlockRepository,
	cache ProgressCache,
	log *logger.Logger,
) *GetProgressHandler {
	return &GetProgressHandler{
		students: students,
		streaks:  streaks,
		unlocks:  unlocks,
		cache:    cache,
		log:      log.With(logger.Component("get_progress")),
	}
}

// Handle executes the query.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil {
		view, err := h.cache.Get(ctx, q.StudentID)
		if err == nil {
			return view, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			h.log.Warn("progress cache read failed",
				logger.StudentID(q.StudentID),
				logger.Err(err),
			)
		}
	}

	view, err := h.assemble(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, view); err != nil {
			h.log.Warn("progress cache write failed",
				logger.StudentID(q.StudentID),
				logger.Err(err),
			)
		}
	}
	return view, nil
}

func (h *GetProgressHandler) assemble(ctx context.Context, studentID string) (*ProgressView, error) {
	student, err := h.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	streaks, err := h.streaks.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	unlocks, err := h.unlocks.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	view := &ProgressView{
		StudentID:     student.ID,
		DisplayName:   student.DisplayName,
		TotalXP:       student.TotalXP.Int(),
		Level:         student.Level.Int(),
		LevelProgress: progression.LevelProgress(student.TotalXP),
		XPToNextLevel: progression.XPToNextLevel(student.TotalXP).Int(),
		Streaks:       make([]StreakView, 0, len(streaks)),
		Achievements:  make([]UnlockView, 0, len(unlocks)),
		GeneratedAt:   time.Now().UTC(),
	}

	for _, s := range streaks {
		view.Streaks = append(view.Streaks, StreakView{
			Type:             s.Type.String(),
			CurrentStreak:    s.CurrentStreak,
			LongestStreak:    s.LongestStreak,
			LastActivityDate: s.LastActivityDate,
		})
	}

	for _, u := range unlocks {
		view.Achievements = append(view.Achievements, UnlockView{
			AchievementID: u.AchievementID,
			Title:         u.Title,
			Description:   u.Description,
			Icon:          u.Icon,
			Rarity:        string(u.Rarity),
			XPEarned:      u.XPEarned.Int(),
			UnlockedAt:    u.UnlockedAt,
		})
	}

	return view, nil
}
