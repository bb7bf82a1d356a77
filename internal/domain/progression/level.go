package progression

import (
	"math"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// CalculateLevel вычисляет уровень из суммарного XP.
// Формула: level = floor(sqrt(xp / 100)) + 1.
// Уровень 1 - минимум (для xp = 0); функция монотонно не убывает.
func CalculateLevel(totalXP XP) Level {
	if totalXP <= 0 {
		return 1
	}
	return Level(math.Sqrt(float64(totalXP)/100)) + 1
}

// XPRequiredForLevel возвращает порог XP для достижения уровня n+1:
// n^2 * 100. Уровень n занимает полуинтервал [(n-1)^2*100, n^2*100).
func XPRequiredForLevel(n Level) XP {
	if n < 0 {
		return 0
	}
	return XP(int(n) * int(n) * 100)
}

// LevelProgress возвращает прогресс внутри текущего уровня в [0, 1]:
// (xp - порог текущего уровня) / (ширина уровня).
func LevelProgress(totalXP XP) float64 {
	if totalXP < 0 {
		totalXP = 0
	}

	level := CalculateLevel(totalXP)
	floor := XPRequiredForLevel(level - 1)
	ceil := XPRequiredForLevel(level)

	progress := float64(totalXP-floor) / float64(ceil-floor)
	if progress < 0 {
		return 0
	}
	if progress > 1 {
		return 1
	}
	return progress
}

// XPToNextLevel возвращает, сколько XP осталось до следующего уровня.
func XPToNextLevel(totalXP XP) XP {
	if totalXP < 0 {
		totalXP = 0
	}
	remaining := XPRequiredForLevel(CalculateLevel(totalXP)) - totalXP
	if remaining < 0 {
		return 0
	}
	return remaining
}
