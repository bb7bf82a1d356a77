package query

import (
	"context"
	"fmt"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// Merges the static catalog with a student's unlock rows so clients can
// render the full badge grid, earned and unearned alike.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementView is one catalog entry annotated with the student's state.
type AchievementView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Rarity      string     `json:"rarity"`
	XPEarned    int        `json:"xp_earned"`
	Earned      bool       `json:"earned"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

// AchievementsView is the full badge grid of one student.
type AchievementsView struct {
	StudentID    string            `json:"student_id"`
	EarnedCount  int               `json:"earned_count"`
	TotalCount   int               `json:"total_count"`
	Achievements []AchievementView `json:"achievements"`
}

// GetAchievementsQuery requests a student's badge grid.
type GetAchievementsQuery struct {
	StudentID string
}

// Validate validates the query.
func (q GetAchievementsQuery) Validate() error {
	if q.StudentID == "" {
		return fmt.Errorf("get_achievements: %w: student_id is required", shared.ErrEmptyValue)
	}
	return nil
}

// GetAchievementsHandler handles GetAchievementsQuery.
type GetAchievementsHandler struct {
	catalog *progression.Catalog
	unlocks progression.UnlockRepository
}

// NewGetAchievementsHandler creates a new GetAchievementsHandler.
func NewGetAchievementsHandler(
	catalog *progression.Catalog,
	unlocks progression.UnlockRepository,
) *GetAchievementsHandler {
	return &GetAchievementsHandler{catalog: catalog, unlocks: unlocks}
}

// Handle executes the query. Catalog order is stable (sorted by ID), earned
// entries carry the unlock timestamp and the title/rarity captured at unlock
// time rather than the current catalog values.
func (h *GetAchievementsHandler) Handle(ctx context.Context, q GetAchievementsQuery) (*AchievementsView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	unlocked, err := h.unlocks.ListByStudent(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]progression.AchievementUnlock, len(unlocked))
	for _, u := range unlocked {
		byID[u.AchievementID] = u
	}

	entries := h.catalog.All()
	view := &AchievementsView{
		StudentID:    q.StudentID,
		TotalCount:   len(entries),
		Achievements: make([]AchievementView, 0, len(entries)),
	}

	for _, entry := range entries {
		av := AchievementView{
			ID:          entry.ID,
			Title:       entry.Title,
			Description: entry.Description,
			Icon:        entry.Icon,
			Rarity:      string(entry.Rarity),
			XPEarned:    entry.XPEarned.Int(),
		}
		if u, ok := byID[entry.ID]; ok {
			av.Earned = true
			av.Title = u.Title
			av.Description = u.Description
			av.Icon = u.Icon
			av.Rarity = string(u.Rarity)
			av.XPEarned = u.XPEarned.Int()
			at := u.UnlockedAt
			av.UnlockedAt = &at
			view.EarnedCount++
		}
		view.Achievements = append(view.Achievements, av)
	}

	return view, nil
}
