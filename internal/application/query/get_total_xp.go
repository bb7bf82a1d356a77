package query

import (
	"context"
	"fmt"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET TOTAL XP QUERY
// Reads the denormalized snapshot; the O(1) hot path. The ledger remains
// the source of truth and the reconciliation job keeps the two in sync.
// ══════════════════════════════════════════════════════════════════════════════

// GetTotalXPQuery requests a student's current XP and level.
type GetTotalXPQuery struct {
	StudentID string
}

// Validate validates the query.
func (q GetTotalXPQuery) Validate() error {
	if q.StudentID == "" {
		return fmt.Errorf("get_total_xp: %w: student_id is required", shared.ErrEmptyValue)
	}
	return nil
}

// TotalXPView is the snapshot read model.
type TotalXPView struct {
	StudentID     string  `json:"student_id"`
	TotalXP       int     `json:"total_xp"`
	Level         int     `json:"level"`
	LevelProgress float64 `json:"level_progress"`
	XPToNextLevel int     `json:"xp_to_next_level"`
}

// GetTotalXPHandler handles GetTotalXPQuery.
type GetTotalXPHandler struct {
	students progression.StudentRepository
}

// NewGetTotalXPHandler creates a new GetTotalXPHandler.
func NewGetTotalXPHandler(students progression.StudentRepository) *GetTotalXPHandler {
	return &GetTotalXPHandler{students: students}
}

// Handle executes the query.
func (h *GetTotalXPHandler) Handle(ctx context.Context, q GetTotalXPQuery) (*TotalXPView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	student, err := h.students.GetByID(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}

	return &TotalXPView{
		StudentID:     student.ID,
		TotalXP:       student.TotalXP.Int(),
		Level:         student.Level.Int(),
		LevelProgress: progression.LevelProgress(student.TotalXP),
		XPToNextLevel: progression.XPToNextLevel(student.TotalXP).Int(),
	}, nil
}
