// Package postgres implements the PostgreSQL persistence layer of the
// Progression Engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository implements progression.StreakRepository for PostgreSQL.
type StreakRepository struct {
	conn *Connection
}

// NewStreakRepository creates a new StreakRepository.
func NewStreakRepository(conn *Connection) *StreakRepository {
	return &StreakRepository{conn: conn}
}

// Get returns one streak row, or shared.ErrStreakNotFound.
func (r *StreakRepository) Get(ctx context.Context, studentID string, streakType progression.StreakType) (*progression.Streak, error) {
	query := `
		SELECT id, student_id, streak_type, current_streak, longest_streak,
		       last_activity_date, updated_at
		FROM streaks
		WHERE student_id = $1 AND streak_type = $2
	`

	row := r.conn.QueryRow(ctx, query, studentID, streakType.String())
	return scanStreak(row)
}

// Upsert writes a streak row, creating it on first activity. The unique
// (student_id, streak_type) constraint makes concurrent first writes
// collapse into one row.
func (r *StreakRepository) Upsert(ctx context.Context, s *progression.Streak) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	query := `
		INSERT INTO streaks (id, student_id, streak_type, current_streak,
			longest_streak, last_activity_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (student_id, streak_type) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = GREATEST(streaks.longest_streak, EXCLUDED.longest_streak),
			last_activity_date = EXCLUDED.last_activity_date,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		s.ID,
		s.StudentID,
		s.Type.String(),
		s.CurrentStreak,
		s.LongestStreak,
		s.LastActivityDate,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert streak: %w", err)
	}
	return nil
}

// ListByStudent returns all streak rows of a student.
func (r *StreakRepository) ListByStudent(ctx context.Context, studentID string) ([]progression.Streak, error) {
	query := `
		SELECT id, student_id, streak_type, current_streak, longest_streak,
		       last_activity_date, updated_at
		FROM streaks
		WHERE student_id = $1
		ORDER BY streak_type
	`

	rows, err := r.conn.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query streaks: %w", err)
	}
	defer rows.Close()

	var streaks []progression.Streak
	for rows.Next() {
		s, err := scanStreakRow(rows)
		if err != nil {
			return nil, err
		}
		streaks = append(streaks, *s)
	}
	return streaks, rows.Err()
}

func scanStreak(row pgx.Row) (*progression.Streak, error) {
	s, err := scanStreakRow(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStreakNotFound
		}
		return nil, err
	}
	return s, nil
}

func scanStreakRow(row pgx.Row) (*progression.Streak, error) {
	var (
		s          progression.Streak
		streakType string
	)

	err := row.Scan(
		&s.ID,
		&s.StudentID,
		&streakType,
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.LastActivityDate,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Type = progression.StreakType(streakType)
	// DATE columns scan as midnight in the session zone; normalize to UTC
	// so day arithmetic stays stable.
	s.LastActivityDate = time.Date(
		s.LastActivityDate.Year(), s.LastActivityDate.Month(), s.LastActivityDate.Day(),
		0, 0, 0, 0, time.UTC,
	)
	return &s, nil
}
