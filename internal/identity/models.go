// Package identity — models.go описывает структуры справочника аккаунтов.
package identity

import "time"

// Account — аккаунт медиаплатформы.
// Создаётся при первом появлении в телеметрии, никогда не удаляется —
// только отвязывается от идентичности.
type Account struct {
	ID        int64    `db:"id"`
	Platform  Platform `db:"platform"`
	AccountID string   `db:"account_id"` // нативный стабильный ID платформы
	Username  string   `db:"username"`
	Email     *string  `db:"email"`
	TGID      *int64   `db:"tg_id"` // nil = аккаунт не привязан
	IsPremium bool     `db:"is_premium"`
	// Базовые часы просмотра — точка отсчёта для начисления.
	// Монотонно растут; сброс статистики платформой фиксируется
	// с нулевым кредитом, отрицательных дельт не бывает.
	WatchedHours float64 `db:"watched_hours"`
	// Локальный баланс аккаунта. Используется только пока аккаунт
	// не привязан; при привязке мигрирует в леджер идентичности.
	Credits   float64   `db:"credits"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Key возвращает ключ леджера для аккаунта.
func (a *Account) Key() AccountKey {
	if a.TGID != nil {
		return LinkedKey(*a.TGID)
	}
	return SyntheticKey(a.Platform, a.Username)
}

// Identity — привязанная Telegram-идентичность с объединённым балансом.
type Identity struct {
	TGID        int64     `db:"tg_id"`
	DisplayName string    `db:"display_name"`
	Credits     float64   `db:"credits"`
	Donation    float64   `db:"donation"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// AccountInfo — данные аккаунта при первом появлении или синхронизации.
type AccountInfo struct {
	AccountID string
	Username  string
	Email     *string
	IsPremium bool
}
