package progression

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK (серия активных дней)
// ══════════════════════════════════════════════════════════════════════════════

// StreakType представляет тип отслеживаемой активности.
type StreakType string

const (
	// StreakAttendance - посещаемость занятий.
	StreakAttendance StreakType = "attendance"
	// StreakStudy - учебные сессии.
	StreakStudy StreakType = "study"
	// StreakAssignment - выполнение заданий.
	StreakAssignment StreakType = "assignment"
	// StreakLogin - ежедневный вход.
	StreakLogin StreakType = "login"
)

// IsValid проверяет, что тип серии известен.
func (t StreakType) IsValid() bool {
	switch t {
	case StreakAttendance, StreakStudy, StreakAssignment, StreakLogin:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление типа.
func (t StreakType) String() string {
	return string(t)
}

// StreakTypes возвращает все известные типы серий.
func StreakTypes() []StreakType {
	return []StreakType{StreakAttendance, StreakStudy, StreakAssignment, StreakLogin}
}

// Streak - серия по паре (студент, тип активности). Счёт ведётся целыми
// календарными днями: компонент времени отбрасывается до сравнения.
type Streak struct {
	// ID - идентификатор строки (UUID, присваивается хранилищем).
	ID string

	// StudentID - владелец серии.
	StudentID string

	// Type - тип активности.
	Type StreakType

	// CurrentStreak - текущая длина серии (>= 1 после первой активности).
	CurrentStreak int

	// LongestStreak - лучшая длина серии. Инвариант: >= CurrentStreak.
	LongestStreak int

	// LastActivityDate - календарная дата последней активности (полночь UTC).
	LastActivityDate time.Time

	// UpdatedAt - когда строка менялась в последний раз.
	UpdatedAt time.Time
}

// NewStreak создаёт серию при первой активности данного типа.
func NewStreak(studentID string, streakType StreakType, today time.Time) *Streak {
	return &Streak{
		StudentID:        studentID,
		Type:             streakType,
		CurrentStreak:    1,
		LongestStreak:    1,
		LastActivityDate: today,
		UpdatedAt:        today,
	}
}

// TransitionKind - исход одного шага машины состояний серии.
type TransitionKind int

const (
	// TransitionStarted - первая активность, серия создана со счётом 1.
	TransitionStarted TransitionKind = iota
	// TransitionUnchanged - повтор в тот же день, состояние не изменилось.
	TransitionUnchanged
	// TransitionAdvanced - следующий день, серия продолжена (+1).
	TransitionAdvanced
	// TransitionReset - пропуск дней, серия сброшена до 1.
	TransitionReset
	// TransitionBackdated - событие из прошлого (перевод часов);
	// трактуется как повтор того же дня, состояние не меняется.
	TransitionBackdated
)

// String возвращает строковое представление исхода.
func (k TransitionKind) String() string {
	switch k {
	case TransitionStarted:
		return "started"
	case TransitionUnchanged:
		return "unchanged"
	case TransitionAdvanced:
		return "advanced"
	case TransitionReset:
		return "reset"
	case TransitionBackdated:
		return "backdated"
	default:
		return "unknown"
	}
}

// Mutated возвращает true, если исход требует записи в хранилище.
func (k TransitionKind) Mutated() bool {
	return k == TransitionStarted || k == TransitionAdvanced || k == TransitionReset
}

// StreakTransition - результат шага Advance.
type StreakTransition struct {
	// Kind - исход шага.
	Kind TransitionKind

	// DaysMissed - сколько дней пропущено (только для Kind == TransitionReset).
	DaysMissed int

	// PreviousStreak - длина серии до шага (для события о сбросе).
	PreviousStreak int
}

// Advance выполняет один шаг машины состояний для календарной даты today
// (полночь UTC). Вызов дважды в один день не инкрементирует счётчик.
func (s *Streak) Advance(today time.Time) StreakTransition {
	diff := daysBetween(s.LastActivityDate, today)
	previous := s.CurrentStreak

	switch {
	case diff == 0:
		return StreakTransition{Kind: TransitionUnchanged, PreviousStreak: previous}

	case diff == 1:
		s.CurrentStreak++
		if s.CurrentStreak > s.LongestStreak {
			s.LongestStreak = s.CurrentStreak
		}
		s.LastActivityDate = today
		s.UpdatedAt = today
		return StreakTransition{Kind: TransitionAdvanced, PreviousStreak: previous}

	case diff > 1:
		s.CurrentStreak = 1
		s.LastActivityDate = today
		s.UpdatedAt = today
		return StreakTransition{Kind: TransitionReset, DaysMissed: diff - 1, PreviousStreak: previous}

	default:
		// diff < 0: событие датировано прошлым. Ничего не меняем.
		return StreakTransition{Kind: TransitionBackdated, PreviousStreak: previous}
	}
}

// daysBetween возвращает число целых календарных дней от a до b (по UTC).
func daysBetween(a, b time.Time) int {
	da := dateOnly(a)
	db := dateOnly(b)
	return int(db.Sub(da).Hours() / 24)
}

// dateOnly отбрасывает компонент времени (полночь UTC).
func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK ACHIEVEMENT THRESHOLDS
// ══════════════════════════════════════════════════════════════════════════════

// Пороги серий, на которых выдаются достижения. Сравнение строго на
// равенство: серия, перепрыгнувшая порог после сброса, достижение
// задним числом не получает.
var streakThresholds = map[int]string{
	7:   AchievementWeekStreak,
	30:  AchievementMonthStreak,
	100: AchievementCenturyStreak,
}

// StreakAchievementFor возвращает ID достижения для точного значения счётчика
// серии, либо ("", false), если порог не достигнут.
func StreakAchievementFor(count int) (string, bool) {
	id, ok := streakThresholds[count]
	return id, ok
}
