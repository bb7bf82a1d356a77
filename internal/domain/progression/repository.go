package progression

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository работает со снапшотом прогрессии студента.
type StudentRepository interface {
	// GetByID возвращает снапшот студента.
	// Возвращает shared.ErrStudentNotFound, если студент не найден.
	GetByID(ctx context.Context, id string) (*StudentProgress, error)

	// ApplyGrant атомарно записывает обновлённый снапшот и добавляет запись
	// леджера в одной транзакции. Снапшот пишется с проверкой Version
	// (оптимистичная блокировка); при расхождении возвращается
	// shared.ErrVersionConflict и ни одна запись не фиксируется.
	ApplyGrant(ctx context.Context, s *StudentProgress, entry *XPTransaction) error

	// ListIDs возвращает идентификаторы всех студентов (для фоновых задач).
	ListIDs(ctx context.Context) ([]string, error)

	// ForceSnapshot перезаписывает TotalXP/Level снапшота без записи в
	// леджер. Используется только джобой сверки: источник истины - леджер.
	ForceSnapshot(ctx context.Context, s *StudentProgress) error
}

// LedgerRepository читает леджер XP. Записи добавляются только через
// StudentRepository.ApplyGrant и UnlockRepository.InsertWithGrant.
type LedgerRepository interface {
	// ListByStudent возвращает последние записи студента (новые первыми).
	ListByStudent(ctx context.Context, studentID string, limit int) ([]XPTransaction, error)

	// SumByStudent возвращает сумму леджера студента.
	SumByStudent(ctx context.Context, studentID string) (XP, error)
}

// StreakRepository работает с сериями.
type StreakRepository interface {
	// Get возвращает серию по паре (студент, тип).
	// Возвращает shared.ErrStreakNotFound, если серии ещё нет.
	Get(ctx context.Context, studentID string, streakType StreakType) (*Streak, error)

	// Upsert создаёт или обновляет серию. Уникальность пары
	// (student_id, streak_type) гарантируется хранилищем.
	Upsert(ctx context.Context, streak *Streak) error

	// ListByStudent возвращает все серии студента.
	ListByStudent(ctx context.Context, studentID string) ([]Streak, error)
}

// UnlockRepository работает с разблокировками достижений.
type UnlockRepository interface {
	// Get возвращает разблокировку по паре (студент, достижение).
	// Возвращает shared.ErrNotFound, если разблокировки нет.
	Get(ctx context.Context, studentID, achievementID string) (*AchievementUnlock, error)

	// ListByStudent возвращает все разблокировки студента (новые первыми).
	ListByStudent(ctx context.Context, studentID string) ([]AchievementUnlock, error)

	// Insert добавляет разблокировку без XP-гранта (запись каталога с
	// нулевым бонусом). Возвращает shared.ErrAlreadyExists, если пара
	// (student, achievement) уже разблокирована.
	Insert(ctx context.Context, unlock *AchievementUnlock) error

	// InsertWithGrant атомарно добавляет разблокировку и применяет
	// каскадный XP-грант (снапшот + леджер) в одной транзакции.
	// Возвращает shared.ErrAlreadyExists при дубликате разблокировки и
	// shared.ErrVersionConflict при гонке на снапшоте; в обоих случаях
	// ни одна запись не фиксируется.
	InsertWithGrant(ctx context.Context, unlock *AchievementUnlock, s *StudentProgress, entry *XPTransaction) error
}
