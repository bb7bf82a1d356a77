package eventhandler

import (
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
)

// Notifier turns celebratory events into structured log records that the
// notification pipeline tails. Delivery to students is out of scope here;
// the engine only announces.
type Notifier struct {
	log *logger.Logger
}

// NewNotifier creates a new Notifier.
func NewNotifier(log *logger.Logger) *Notifier {
	return &Notifier{log: log.With(logger.Component("notifier"))}
}

// Register subscribes the notifier's handlers on the bus.
func (n *Notifier) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventLevelUp, n.onLevelUp); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventAchievementUnlocked, n.onAchievementUnlocked)
}

func (n *Notifier) onLevelUp(event shared.Event) error {
	e, ok := event.(shared.LevelUpEvent)
	if !ok {
		return nil
	}
	n.log.Info("student leveled up",
		logger.StudentID(e.StudentID),
		logger.Int("old_level", e.OldLevel),
		logger.Int("new_level", e.NewLevel),
		logger.Int("total_xp", e.TotalXP),
	)
	return nil
}

func (n *Notifier) onAchievementUnlocked(event shared.Event) error {
	e, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		return nil
	}
	n.log.Info("achievement unlocked",
		logger.StudentID(e.StudentID),
		logger.AchievementID(e.AchievementID),
		logger.String("title", e.Title),
		logger.String("rarity", e.Rarity),
		logger.Int("xp_earned", e.XPEarned),
	)
	return nil
}
