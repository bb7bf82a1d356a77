package eventhandler

import (
	"context"
	"time"

	"github.com/studyhub/progression-engine/internal/application/query"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// READ MODEL PROJECTIONS
// Keeps the Redis read models (leaderboard ranking, cached progress views)
// in step with committed writes. Projections are eventually consistent:
// a failed projection is logged and the periodic rebuild job repairs it.
// ══════════════════════════════════════════════════════════════════════════════

const projectionTimeout = 5 * time.Second

// LeaderboardWriter is the write side of the XP ranking.
type LeaderboardWriter interface {
	// SetScore sets a student's leaderboard score to their total XP.
	SetScore(ctx context.Context, studentID string, totalXP int) error
}

// Projector wires domain events to read model updates.
type Projector struct {
	board LeaderboardWriter
	cache query.ProgressCache
	log   *logger.Logger
}

// NewProjector creates a new Projector.
func NewProjector(board LeaderboardWriter, cache query.ProgressCache, log *logger.Logger) *Projector {
	return &Projector{
		board: board,
		cache: cache,
		log:   log.With(logger.Component("projections")),
	}
}

// Register subscribes the projector's handlers on the bus.
func (p *Projector) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventXPGained, p.onXPGained); err != nil {
		return err
	}
	if err := bus.Subscribe(shared.EventAchievementUnlocked, p.onInvalidating); err != nil {
		return err
	}
	if err := bus.Subscribe(shared.EventStreakUpdated, p.onInvalidating); err != nil {
		return err
	}
	if err := bus.Subscribe(shared.EventStreakBroken, p.onInvalidating); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventSnapshotReconciled, p.onReconciled)
}

// onXPGained pushes the new total into the ranking and drops the stale
// cached view.
func (p *Projector) onXPGained(event shared.Event) error {
	e, ok := event.(shared.XPGainedEvent)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), projectionTimeout)
	defer cancel()

	if p.board != nil {
		if err := p.board.SetScore(ctx, e.StudentID, e.NewTotal); err != nil {
			p.log.Warn("leaderboard projection failed",
				logger.StudentID(e.StudentID),
				logger.Err(err),
			)
		}
	}
	p.invalidate(ctx, e.StudentID)
	return nil
}

// onReconciled mirrors a repaired snapshot into the ranking.
func (p *Projector) onReconciled(event shared.Event) error {
	e, ok := event.(shared.SnapshotReconciledEvent)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), projectionTimeout)
	defer cancel()

	if p.board != nil {
		if err := p.board.SetScore(ctx, e.StudentID, e.NewTotal); err != nil {
			p.log.Warn("leaderboard projection failed",
				logger.StudentID(e.StudentID),
				logger.Err(err),
			)
		}
	}
	p.invalidate(ctx, e.StudentID)
	return nil
}

// onInvalidating drops the cached progress view for the event's student.
func (p *Projector) onInvalidating(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), projectionTimeout)
	defer cancel()
	p.invalidate(ctx, event.AggregateID())
	return nil
}

func (p *Projector) invalidate(ctx context.Context, studentID string) {
	if p.cache == nil || studentID == "" {
		return
	}
	if err := p.cache.Invalidate(ctx, studentID); err != nil {
		p.log.Warn("progress cache invalidation failed",
			logger.StudentID(studentID),
			logger.Err(err),
		)
	}
}
