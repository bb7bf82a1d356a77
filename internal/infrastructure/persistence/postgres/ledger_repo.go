// Package postgres implements the PostgreSQL persistence layer of the
// Progression Engine.
package postgres

import (
	"context"
	"fmt"

	"github.com/studyhub/progression-engine/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements progression.LedgerRepository for PostgreSQL.
// Entries are only ever written through StudentRepository.ApplyGrant and
// UnlockRepository.InsertWithGrant; this repository is read-only.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

// ListByStudent returns a student's most recent ledger entries, newest first.
func (r *LedgerRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]progression.XPTransaction, error) {
	query := `
		SELECT id, student_id, amount, reason, source, created_at
		FROM xp_transactions
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []progression.XPTransaction
	for rows.Next() {
		var (
			e      progression.XPTransaction
			amount int
		)
		if err := rows.Scan(&e.ID, &e.StudentID, &amount, &e.Reason, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Amount = progression.XP(amount)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumByStudent recomputes a student's total XP from the ledger. The
// reconciliation job compares this against the snapshot.
func (r *LedgerRepository) SumByStudent(ctx context.Context, studentID string) (progression.XP, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM xp_transactions
		WHERE student_id = $1
	`

	var total int
	if err := r.conn.QueryRow(ctx, query, studentID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return progression.XP(total), nil
}
