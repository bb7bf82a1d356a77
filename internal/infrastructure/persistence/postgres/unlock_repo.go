// Package postgres implements the PostgreSQL persistence layer of the
// Progression Engine.
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UnlockRepository implements progression.UnlockRepository for PostgreSQL.
// The unique (student_id, achievement_id) constraint is the unlock-once
// guard of last resort; races surface as shared.ErrAchievementUnlocked.
type UnlockRepository struct {
	conn *Connection
}

// NewUnlockRepository creates a new UnlockRepository.
func NewUnlockRepository(conn *Connection) *UnlockRepository {
	return &UnlockRepository{conn: conn}
}

// Get returns one unlock row, or shared.ErrNotFound.
func (r *UnlockRepository) Get(ctx context.Context, studentID, achievementID string) (*progression.AchievementUnlock, error) {
	query := `
		SELECT id, student_id, achievement_id, title, description, icon,
		       rarity, xp_earned, context, unlocked_at
		FROM achievement_unlocks
		WHERE student_id = $1 AND achievement_id = $2
	`

	row := r.conn.QueryRow(ctx, query, studentID, achievementID)
	u, err := scanUnlock(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan unlock: %w", err)
	}
	return u, nil
}

// ListByStudent returns all unlock rows of a student, newest first.
func (r *UnlockRepository) ListByStudent(ctx context.Context, studentID string) ([]progression.AchievementUnlock, error) {
	query := `
		SELECT id, student_id, achievement_id, title, description, icon,
		       rarity, xp_earned, context, unlocked_at
		FROM achievement_unlocks
		WHERE student_id = $1
		ORDER BY unlocked_at DESC
	`

	rows, err := r.conn.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlocks: %w", err)
	}
	defer rows.Close()

	var unlocks []progression.AchievementUnlock
	for rows.Next() {
		u, err := scanUnlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		unlocks = append(unlocks, *u)
	}
	return unlocks, rows.Err()
}

// Insert writes one unlock row. Returns shared.ErrAchievementUnlocked when
// the (student, achievement) pair already exists.
func (r *UnlockRepository) Insert(ctx context.Context, unlock *progression.AchievementUnlock) error {
	unlock.ID = uuid.New().String()

	err := insertUnlock(ctx, r.conn, unlock)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAchievementUnlocked
		}
		return err
	}
	return nil
}

// InsertWithGrant writes the unlock row, the updated snapshot and the bonus
// ledger entry in a single transaction. Either all three commit or none do.
func (r *UnlockRepository) InsertWithGrant(
	ctx context.Context,
	unlock *progression.AchievementUnlock,
	s *progression.StudentProgress,
	entry *progression.XPTransaction,
) error {
	unlock.ID = uuid.New().String()

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := insertUnlock(ctx, tx, unlock); err != nil {
			return err
		}
		if err := updateSnapshot(ctx, tx, s); err != nil {
			return err
		}
		return insertTransaction(ctx, tx, entry)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAchievementUnlocked
		}
		return err
	}
	return nil
}

func insertUnlock(ctx context.Context, q Querier, u *progression.AchievementUnlock) error {
	query := `
		INSERT INTO achievement_unlocks (id, student_id, achievement_id, title,
			description, icon, rarity, xp_earned, context, unlocked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := q.Exec(ctx, query,
		u.ID,
		u.StudentID,
		u.AchievementID,
		u.Title,
		u.Description,
		u.Icon,
		string(u.Rarity),
		u.XPEarned.Int(),
		u.Context,
		u.UnlockedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to insert unlock: %w", err)
	}
	return nil
}

func scanUnlock(row pgx.Row) (*progression.AchievementUnlock, error) {
	var (
		u        progression.AchievementUnlock
		rarity   string
		xpEarned int
	)

	err := row.Scan(
		&u.ID,
		&u.StudentID,
		&u.AchievementID,
		&u.Title,
		&u.Description,
		&u.Icon,
		&rarity,
		&xpEarned,
		&u.Context,
		&u.UnlockedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Rarity = progression.Rarity(rarity)
	u.XPEarned = progression.XP(xpEarned)
	return &u, nil
}
