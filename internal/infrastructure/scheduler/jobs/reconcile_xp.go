// Package jobs contains the scheduled background jobs of the Progression
// Engine.
package jobs

import (
	"context"
	"fmt"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE XP JOB
// The ledger is the source of truth; the snapshot is an optimization. This
// job recomputes every student's total from the ledger and repairs drifted
// snapshots, emitting an event per repair so read models follow.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileXPJob repairs total_xp snapshots that drifted from the ledger.
type ReconcileXPJob struct {
	students progression.StudentRepository
	ledger   progression.LedgerRepository
	events   shared.EventPublisher
	log      *logger.Logger
}

// NewReconcileXPJob creates a new ReconcileXPJob.
func NewReconcileXPJob(
	students progression.StudentRepository,
	ledger progression.LedgerRepository,
	events shared.EventPublisher,
	log *logger.Logger,
) *ReconcileXPJob {
	return &ReconcileXPJob{
		students: students,
		ledger:   ledger,
		events:   events,
		log:      log.With(logger.Component("reconcile_xp")),
	}
}

// Name returns the unique name of the job.
func (j *ReconcileXPJob) Name() string {
	return "reconcile_xp"
}

// Description returns a human-readable description of the job.
func (j *ReconcileXPJob) Description() string {
	return "Recomputes total XP from the ledger and repairs drifted snapshots"
}

// Run executes the job. Individual student failures are logged and skipped
// so one bad row cannot block the rest of the sweep.
func (j *ReconcileXPJob) Run(ctx context.Context) error {
	ids, err := j.students.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: failed to list students: %w", err)
	}

	var checked, repaired, failed int
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fixed, err := j.reconcileOne(ctx, id)
		if err != nil {
			failed++
			j.log.Error("reconciliation failed for student",
				logger.StudentID(id),
				logger.Err(err),
			)
			continue
		}
		checked++
		if fixed {
			repaired++
		}
	}

	j.log.Info("reconciliation sweep finished",
		logger.Int("checked", checked),
		logger.Int("repaired", repaired),
		logger.Int("failed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("reconcile: %d of %d students failed", failed, len(ids))
	}
	return nil
}

// reconcileOne checks one student. Returns true when the snapshot was
// repaired.
func (j *ReconcileXPJob) reconcileOne(ctx context.Context, studentID string) (bool, error) {
	student, err := j.students.GetByID(ctx, studentID)
	if err != nil {
		return false, err
	}

	ledgerTotal, err := j.ledger.SumByStudent(ctx, studentID)
	if err != nil {
		return false, err
	}
	// The ledger keeps corrections in full, so its sum can go negative;
	// the snapshot clamps at zero (XP.Add). Apply the same clamp here or
	// the repair would write a total the schema rejects.
	if ledgerTotal < 0 {
		ledgerTotal = 0
	}

	if student.TotalXP == ledgerTotal {
		return false, nil
	}

	oldTotal := student.TotalXP
	student.TotalXP = ledgerTotal
	student.Level = progression.CalculateLevel(ledgerTotal)

	if err := j.students.ForceSnapshot(ctx, student); err != nil {
		return false, err
	}

	j.log.Warn("snapshot drift repaired",
		logger.StudentID(studentID),
		logger.Int("snapshot_total", oldTotal.Int()),
		logger.Int("ledger_total", ledgerTotal.Int()),
	)

	if j.events != nil {
		if err := j.events.Publish(shared.NewSnapshotReconciledEvent(
			studentID, oldTotal.Int(), ledgerTotal.Int())); err != nil {
			j.log.Warn("event publish failed", logger.Err(err))
		}
	}
	return true, nil
}
