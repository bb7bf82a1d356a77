package query

import (
	"context"
	"fmt"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEDGER QUERY
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultLedgerLimit = 20
	maxLedgerLimit     = 100
)

// GetLedgerQuery requests a student's most recent XP transactions.
type GetLedgerQuery struct {
	StudentID string
	Limit     int
}

// Validate validates the query and normalizes the limit.
func (q *GetLedgerQuery) Validate() error {
	if q.StudentID == "" {
		return fmt.Errorf("get_ledger: %w: student_id is required", shared.ErrEmptyValue)
	}
	if q.Limit <= 0 {
		q.Limit = defaultLedgerLimit
	}
	if q.Limit > maxLedgerLimit {
		q.Limit = maxLedgerLimit
	}
	return nil
}

// TransactionView is the read model of one ledger entry.
type TransactionView struct {
	ID        string    `json:"id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerView is the read model of a ledger page.
type LedgerView struct {
	StudentID    string            `json:"student_id"`
	Transactions []TransactionView `json:"transactions"`
}

// GetLedgerHandler handles GetLedgerQuery.
type GetLedgerHandler struct {
	ledger progression.LedgerRepository
}

// NewGetLedgerHandler creates a new GetLedgerHandler.
func NewGetLedgerHandler(ledger progression.LedgerRepository) *GetLedgerHandler {
	return &GetLedgerHandler{ledger: ledger}
}

// Handle executes the query. Transactions come back newest first.
func (h *GetLedgerHandler) Handle(ctx context.Context, q GetLedgerQuery) (*LedgerView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	entries, err := h.ledger.ListByStudent(ctx, q.StudentID, q.Limit)
	if err != nil {
		return nil, err
	}

	view := &LedgerView{
		StudentID:    q.StudentID,
		Transactions: make([]TransactionView, 0, len(entries)),
	}
	for _, e := range entries {
		view.Transactions = append(view.Transactions, TransactionView{
			ID:        e.ID,
			Amount:    e.Amount.Int(),
			Reason:    e.Reason,
			Source:    e.Source,
			CreatedAt: e.CreatedAt,
		})
	}
	return view, nil
}
