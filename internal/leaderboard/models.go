// Package leaderboard — models.go описывает структуры рейтингов.
package leaderboard

import "medialedger.ru/credits-bot/internal/identity"

// Metric — метрика рейтинга.
type Metric string

const (
	// MetricCredits — объединённый баланс кредитов
	MetricCredits Metric = "credits"
	// MetricDonation — накопленные пожертвования идентичностей
	MetricDonation Metric = "donation"
	// MetricHours — часы просмотра за окно, все платформы вместе
	MetricHours Metric = "hours"
)

// Entry — строка рейтинга: ключ леджера, отображаемое имя и значение.
type Entry struct {
	Key   identity.AccountKey
	Name  string
	Value float64
}

// NamedKey — ключ леджера вместе с отображаемым именем.
// Результат разрешения нативного ID аккаунта через справочник.
type NamedKey struct {
	Key  identity.AccountKey
	Name string
}
