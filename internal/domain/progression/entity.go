package progression

import (
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// XP представляет очки опыта студента.
type XP int

// IsValid проверяет, что XP неотрицательный.
func (x XP) IsValid() bool {
	return x >= 0
}

// Add складывает XP. Отрицательный итог обрезается до нуля:
// леджер может содержать отрицательные суммы (коррекции),
// но снапшот студента никогда не уходит ниже нуля.
func (x XP) Add(delta XP) XP {
	result := x + delta
	if result < 0 {
		return 0
	}
	return result
}

// Int возвращает XP как int.
func (x XP) Int() int {
	return int(x)
}

// Level представляет уровень студента, вычисляемый из XP.
type Level int

// Int возвращает уровень как int.
func (l Level) Int() int {
	return int(l)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT PROGRESS (снапшот прогрессии)
// ══════════════════════════════════════════════════════════════════════════════

// Ошибки доменной модели.
var (
	ErrInvalidStudentID = errors.New("progression: invalid student ID")
	ErrInvalidAmount    = errors.New("progression: invalid XP amount")
)

// StudentProgress - снапшот прогрессии студента. Строка создаётся системой
// аккаунтов; движок меняет только TotalXP, Level и Version.
type StudentProgress struct {
	// ID - идентификатор студента (выдаётся системой аккаунтов).
	ID string

	// DisplayName - отображаемое имя (только для чтения).
	DisplayName string

	// TotalXP - денормализованная сумма леджера.
	TotalXP XP

	// Level - уровень, производный от TotalXP.
	Level Level

	// Version - счётчик оптимистичной блокировки. Инкрементируется
	// при каждой записи снапшота.
	Version int64

	// CreatedAt - когда строка создана.
	CreatedAt time.Time

	// UpdatedAt - когда снапшот менялся в последний раз.
	UpdatedAt time.Time
}

// GrantResult - результат применения одного XP-гранта к снапшоту.
type GrantResult struct {
	// TotalXP - новая сумма XP.
	TotalXP XP

	// OldLevel - уровень до гранта.
	OldLevel Level

	// NewLevel - уровень после гранта.
	NewLevel Level
}

// LeveledUp возвращает true, если грант поднял уровень.
func (r GrantResult) LeveledUp() bool {
	return r.NewLevel > r.OldLevel
}

// ApplyGrant применяет грант к снапшоту: пересчитывает TotalXP и Level.
// Сумма может быть нулевой или отрицательной (коррекция) - модель этого
// не запрещает, политика остаётся за вызывающим кодом.
func (s *StudentProgress) ApplyGrant(amount XP, at time.Time) GrantResult {
	result := GrantResult{OldLevel: s.Level}

	s.TotalXP = s.TotalXP.Add(amount)
	s.Level = CalculateLevel(s.TotalXP)
	s.UpdatedAt = at

	result.TotalXP = s.TotalXP
	result.NewLevel = s.Level
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// XP TRANSACTION (запись леджера)
// ══════════════════════════════════════════════════════════════════════════════

// XPTransaction - неизменяемая запись леджера. Создаётся на каждый грант,
// никогда не обновляется и не удаляется.
type XPTransaction struct {
	// ID - идентификатор записи (UUID, присваивается хранилищем).
	ID string

	// StudentID - кому начислен XP.
	StudentID string

	// Amount - сумма гранта. В нормальной работе положительная;
	// отрицательные значения допустимы для коррекций.
	Amount XP

	// Reason - человекочитаемая причина ("Mission Accomplished").
	Reason string

	// Source - категория источника ("attendance", "tasks", "achievement").
	Source string

	// CreatedAt - когда запись создана.
	CreatedAt time.Time
}

// NewXPTransaction создаёт запись леджера. ID присваивает хранилище.
func NewXPTransaction(studentID string, amount XP, reason, source string, at time.Time) (*XPTransaction, error) {
	if studentID == "" {
		return nil, ErrInvalidStudentID
	}
	return &XPTransaction{
		StudentID: studentID,
		Amount:    amount,
		Reason:    reason,
		Source:    source,
		CreatedAt: at,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT UNLOCK
// ══════════════════════════════════════════════════════════════════════════════

// AchievementUnlock - факт разблокировки достижения. Одна строка на пару
// (student, achievement); поля каталога копируются на момент разблокировки,
// чтобы правки каталога не переписывали историю.
type AchievementUnlock struct {
	// ID - идентификатор строки (UUID, присваивается хранилищем).
	ID string

	// StudentID - кто разблокировал.
	StudentID string

	// AchievementID - ключ записи каталога.
	AchievementID string

	// Title, Description, Icon, Rarity - копия каталога.
	Title       string
	Description string
	Icon        string
	Rarity      Rarity

	// XPEarned - бонусный XP, начисленный за разблокировку.
	XPEarned XP

	// Context - контекст разблокировки (например, тип серии).
	Context string

	// UnlockedAt - когда достижение разблокировано.
	UnlockedAt time.Time
}

// NewAchievementUnlock создаёт разблокировку из записи каталога.
func NewAchievementUnlock(studentID string, entry CatalogEntry, context string, at time.Time) (*AchievementUnlock, error) {
	if studentID == "" {
		return nil, ErrInvalidStudentID
	}
	return &AchievementUnlock{
		StudentID:     studentID,
		AchievementID: entry.ID,
		Title:         entry.Title,
		Description:   entry.Description,
		Icon:          entry.Icon,
		Rarity:        entry.Rarity,
		XPEarned:      entry.XPEarned,
		Context:       context,
		UnlockedAt:    at,
	}, nil
}
