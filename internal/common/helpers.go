// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование чисел, работа с учётными периодами.
package common

import (
	"fmt"
	"math"
	"time"
)

// PluralizeCredits возвращает правильную форму слова «кредит» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "кредит" (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → "кредита" (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → "кредитов" (0, 5-20, 25-30, 100, ...)
func PluralizeCredits(n int64) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "кредит"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "кредита"
	}
	return "кредитов"
}

// PluralizeHours возвращает правильную форму слова «час» для числа n.
func PluralizeHours(n int64) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "час"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "часа"
	}
	return "часов"
}

// FormatCredits форматирует сумму кредитов в читабельную строку.
// Пример: FormatCredits(8.5) → "8.50 кредитов"
func FormatCredits(credits float64) string {
	return fmt.Sprintf("%.2f %s", credits, PluralizeCredits(int64(credits)))
}

// FormatHours форматирует часы просмотра.
// Пример: FormatHours(3.5) → "3.50 часа"
func FormatHours(hours float64) string {
	return fmt.Sprintf("%.2f %s", hours, PluralizeHours(int64(hours)))
}

// Period — учётный период начисления: один календарный день
// в часовом поясе сервиса. Хранится как дата без времени.
type Period struct {
	day time.Time
}

// PeriodOf возвращает период, которому принадлежит момент t.
func PeriodOf(t time.Time, loc *time.Location) Period {
	t = t.In(loc)
	return Period{day: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)}
}

// PreviousPeriod возвращает предыдущий календарный день.
// Используется задачей начисления, запускаемой сразу после полуночи.
func PreviousPeriod(now time.Time, loc *time.Location) Period {
	return PeriodOf(now.In(loc).AddDate(0, 0, -1), loc)
}

// Day возвращает начало периода (полночь в поясе сервиса).
func (p Period) Day() time.Time { return p.day }

// End возвращает конец периода (полночь следующего дня).
func (p Period) End() time.Time { return p.day.AddDate(0, 0, 1) }

// String — строка вида "2006-01-02", ключ периода в БД и логах.
func (p Period) String() string { return p.day.Format("2006-01-02") }

// LoadLocation загружает часовой пояс по имени.
// Если не удалось — используем UTC+3 вручную (как и везде в проекте).
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04".
// Используется для отображения дат в уведомлениях.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02.01.2006 15:04")
}
