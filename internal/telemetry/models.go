// Package telemetry — models.go описывает структуры телеметрии.
package telemetry

import (
	"time"

	"medialedger.ru/credits-bot/internal/identity"
)

// WatchSample — живой сэмпл: за один цикл опроса активному сеансу
// засчитывается ActiveSeconds секунд воспроизведения. Эфемерен:
// сразу складывается в дневную корзину watch_samples.
//
// Не путать с авторитетными суточными итогами: те приходят из
// собственной статистики платформы раз в учётный период и имеют
// приоритет над суммой живых сэмплов.
type WatchSample struct {
	Platform      identity.Platform
	AccountID     string
	Username      string
	ObservedAt    time.Time
	ActiveSeconds int64
}

// DayAggregate — накопленные за день часы одного аккаунта.
// Результат локальной агрегации живых сэмплов.
type DayAggregate struct {
	AccountID string
	Username  string
	Hours     float64
}

// WindowRow — строка оконного запроса аналитики платформы:
// суммарные часы аккаунта за интервал времени.
type WindowRow struct {
	AccountID string
	Hours     float64
}
