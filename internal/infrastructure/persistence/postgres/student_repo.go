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
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements progression.StudentRepository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

// GetByID returns a student's progression snapshot by internal ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*progression.StudentProgress, error) {
	query := `
		SELECT id, display_name, total_xp, level, version, created_at, updated_at
		FROM students
		WHERE id = $1
	`

	row := r.conn.QueryRow(ctx, query, id)
	return scanStudent(row)
}

// ListIDs returns the IDs of all students. Used by batch jobs.
func (r *StudentRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT id FROM students ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list student ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan student id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ApplyGrant writes the updated snapshot and appends the ledger entry in a
// single transaction. The version check makes concurrent grants fail with
// shared.ErrVersionConflict instead of silently losing XP; callers retry.
func (r *StudentRepository) ApplyGrant(ctx context.Context, s *progression.StudentProgress, entry *progression.XPTransaction) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := updateSnapshot(ctx, tx, s); err != nil {
			return err
		}
		return insertTransaction(ctx, tx, entry)
	})
}

// ForceSnapshot overwrites the snapshot unconditionally, bypassing the
// version check. Reserved for the reconciliation job.
func (r *StudentRepository) ForceSnapshot(ctx context.Context, s *progression.StudentProgress) error {
	query := `
		UPDATE students SET
			total_xp = $1,
			level = $2,
			version = version + 1,
			updated_at = $3
		WHERE id = $4
	`

	result, err := r.conn.Exec(ctx, query,
		s.TotalXP.Int(),
		s.Level.Int(),
		time.Now().UTC(),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to force snapshot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared helpers (used by UnlockRepository's cascaded grant as well)
// ─────────────────────────────────────────────────────────────────────────────

// updateSnapshot writes the snapshot with an optimistic version check.
// s.Version holds the version the snapshot was read at; on success it is
// advanced to the committed value.
func updateSnapshot(ctx context.Context, q Querier, s *progression.StudentProgress) error {
	query := `
		UPDATE students SET
			total_xp = $1,
			level = $2,
			version = version + 1,
			updated_at = $3
		WHERE id = $4 AND version = $5
	`

	result, err := q.Exec(ctx, query,
		s.TotalXP.Int(),
		s.Level.Int(),
		s.UpdatedAt,
		s.ID,
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update snapshot: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the row is gone or someone committed first. Distinguish
		// so callers retry conflicts but not missing students.
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check student existence: %w", err)
		}
		if !exists {
			return shared.ErrStudentNotFound
		}
		return shared.ErrVersionConflict
	}

	s.Version++
	return nil
}

// insertTransaction appends one ledger row, assigning its ID.
func insertTransaction(ctx context.Context, q Querier, entry *progression.XPTransaction) error {
	entry.ID = uuid.New().String()

	query := `
		INSERT INTO xp_transactions (id, student_id, amount, reason, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := q.Exec(ctx, query,
		entry.ID,
		entry.StudentID,
		entry.Amount.Int(),
		entry.Reason,
		entry.Source,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// scanStudent scans one students row.
func scanStudent(row pgx.Row) (*progression.StudentProgress, error) {
	var (
		s       progression.StudentProgress
		totalXP int
		level   int
	)

	err := row.Scan(
		&s.ID,
		&s.DisplayName,
		&totalXP,
		&level,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}

	s.TotalXP = progression.XP(totalXP)
	s.Level = progression.Level(level)
	return &s, nil
}
