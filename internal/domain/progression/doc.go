// Package progression содержит доменную модель движка прогрессии.
//
// Это ядро бизнес-логики системы. Пакет определяет:
//
//   - Сущности (Entities): StudentProgress, XPTransaction, Streak, AchievementUnlock
//   - Value Objects: XP, Level, StreakType, Rarity
//   - Калькулятор уровней: CalculateLevel, XPRequiredForLevel, LevelProgress
//   - Машину состояний серий: Streak.Advance
//   - Статический каталог достижений: Catalog
//   - Интерфейсы репозиториев: StudentRepository, LedgerRepository,
//     StreakRepository, UnlockRepository
//
// # Архитектурные принципы
//
// Пакет следует принципам Clean Architecture:
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go.
//  2. Вся арифметика XP/уровней и переходы серий - чистые функции,
//     время приходит снаружи (инъекция календарной даты).
//  3. Персистентность скрыта за интерфейсами; атомарность мульти-записей
//     (снапшот студента + запись в леджер, анлок + бонусный XP) - контракт
//     репозиториев, а не доменной модели.
//
// # Инварианты
//
//   - Сумма записей леджера студента равна TotalXP в любом зафиксированном
//     состоянии.
//   - Level >= 1 и монотонно не убывает по TotalXP.
//   - LongestStreak >= CurrentStreak >= 0.
//   - Пара (student, achievement) разблокируется не более одного раза.
package progression
