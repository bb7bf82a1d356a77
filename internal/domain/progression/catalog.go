package progression

import (
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CATALOG (статический каталог достижений)
// ══════════════════════════════════════════════════════════════════════════════

// Rarity представляет редкость достижения.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// IsValid проверяет, что редкость известна.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	default:
		return false
	}
}

// Идентификаторы достижений каталога.
const (
	AchievementPerfectWeek        = "perfect_week"
	AchievementWeekStreak         = "week_streak"
	AchievementMonthStreak        = "month_streak"
	AchievementCenturyStreak      = "century_streak"
	AchievementFirstAPlus         = "first_a_plus"
	AchievementDeanList           = "dean_list"
	AchievementAllRounder         = "all_rounder"
	AchievementEarlyBird          = "early_bird"
	AchievementHelpfulPeer        = "helpful_peer"
	AchievementAttendanceRecovery = "attendance_recovery"
)

// CatalogEntry - запись каталога достижений. Не персистится на студента;
// при разблокировке поля копируются в AchievementUnlock.
type CatalogEntry struct {
	// ID - ключ записи.
	ID string

	// Title - заголовок для отображения.
	Title string

	// Description - описание условия.
	Description string

	// Icon - эмодзи для бейджа.
	Icon string

	// Rarity - редкость.
	Rarity Rarity

	// XPEarned - бонусный XP за разблокировку.
	XPEarned XP
}

// Catalog - неизменяемый каталог достижений, загружаемый при старте.
type Catalog struct {
	entries map[string]CatalogEntry
}

// NewCatalog создаёт каталог из списка записей.
func NewCatalog(entries []CatalogEntry) *Catalog {
	m := make(map[string]CatalogEntry, len(entries))
	for _, e := range entries {
		m[e.ID] = e
	}
	return &Catalog{entries: m}
}

// DefaultCatalog возвращает каталог достижений продукта.
func DefaultCatalog() *Catalog {
	return NewCatalog([]CatalogEntry{
		// Посещаемость и серии
		{
			ID:          AchievementPerfectWeek,
			Title:       "Perfect Week",
			Description: "100% attendance for 1 week straight",
			Icon:        "🎯",
			Rarity:      RarityCommon,
			XPEarned:    50,
		},
		{
			ID:          AchievementWeekStreak,
			Title:       "7-Day Streak",
			Description: "Maintained your streak for 7 days",
			Icon:        "🔥",
			Rarity:      RarityCommon,
			XPEarned:    100,
		},
		{
			ID:          AchievementMonthStreak,
			Title:       "30-Day Streak",
			Description: "Maintained your streak for 30 days",
			Icon:        "⭐",
			Rarity:      RarityRare,
			XPEarned:    500,
		},
		{
			ID:          AchievementCenturyStreak,
			Title:       "Century Streak",
			Description: "100 days of consistency!",
			Icon:        "🏆",
			Rarity:      RarityLegendary,
			XPEarned:    2000,
		},
		// Оценки
		{
			ID:          AchievementFirstAPlus,
			Title:       "First A+",
			Description: "Scored your first A+ grade",
			Icon:        "📚",
			Rarity:      RarityCommon,
			XPEarned:    100,
		},
		{
			ID:          AchievementDeanList,
			Title:       "Dean's List",
			Description: "Achieved 9+ CGPA",
			Icon:        "🎓",
			Rarity:      RarityEpic,
			XPEarned:    1000,
		},
		{
			ID:          AchievementAllRounder,
			Title:       "All-Rounder",
			Description: "A+ in all subjects this semester",
			Icon:        "🌟",
			Rarity:      RarityLegendary,
			XPEarned:    2500,
		},
		// Задания
		{
			ID:          AchievementEarlyBird,
			Title:       "Early Bird",
			Description: "Submitted 10 assignments early",
			Icon:        "🐦",
			Rarity:      RarityCommon,
			XPEarned:    150,
		},
		// Сообщество
		{
			ID:          AchievementHelpfulPeer,
			Title:       "Helpful Peer",
			Description: "Helped 10 classmates with notes",
			Icon:        "🤝",
			Rarity:      RarityRare,
			XPEarned:    400,
		},
		{
			ID:          AchievementAttendanceRecovery,
			Title:       "Recovery Master",
			Description: "Brought attendance from danger to safe zone",
			Icon:        "💪",
			Rarity:      RarityRare,
			XPEarned:    600,
		},
	})
}

// Get возвращает запись каталога по ID. Неизвестный ID - это ошибка
// вызывающего кода: каталог статический, подмены по умолчанию нет.
func (c *Catalog) Get(id string) (CatalogEntry, bool) {
	entry, ok := c.entries[id]
	return entry, ok
}

// Has проверяет наличие записи.
func (c *Catalog) Has(id string) bool {
	_, ok := c.entries[id]
	return ok
}

// All возвращает все записи каталога, отсортированные по ID.
func (c *Catalog) All() []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// Len возвращает размер каталога.
func (c *Catalog) Len() int {
	return len(c.entries)
}
