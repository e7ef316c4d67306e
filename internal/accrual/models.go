// Package accrual — models.go описывает структуры начисления кредитов.
package accrual

import (
	"time"

	"medialedger.ru/credits-bot/internal/identity"
)

// Event — запись о начислении одному аккаунту за один учётный период.
// Уникальность (platform, account_id, period) в БД гарантирует
// не-более-одного начисления за период даже при повторном запуске задачи.
type Event struct {
	Platform  identity.Platform
	AccountID string
	// TGID — привязанная идентичность на момент начисления (nil = без привязки).
	// Нужен дальше по конвейеру: уведомления уходят только привязанным.
	TGID   *int64
	Period string
	// RawHours — часы периода после суточного ограничения.
	RawHours float64
	// Credited — зачисленные кредиты: min(RawHours, суточный потолок).
	Credited float64
	// PreviousHours — базовая отметка до начисления.
	PreviousHours float64
	// NewHours — базовая отметка после начисления (накопленный итог платформы).
	NewHours float64
	// Degraded — начисление по локальным сэмплам, а не по статистике платформы.
	Degraded  bool
	CreatedAt time.Time
}

// Summary — итог прогона начисления по одной платформе.
type Summary struct {
	Platform identity.Platform
	Period   string
	// Processed — сколько аккаунтов прошло через леджер.
	Processed int
	// Skipped — уже начисленные в этом периоде (повторный запуск).
	Skipped int
	// Failed — аккаунты, по которым транзакция так и не прошла.
	Failed int
	// TotalCredited — суммарно зачисленные кредиты.
	TotalCredited float64
	// Degraded — прогон шёл по резервным локальным сэмплам.
	Degraded bool
	// Events — начисления этого прогона, в порядке обработки аккаунтов.
	Events []Event
}
