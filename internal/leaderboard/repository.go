// Package leaderboard — repository.go читает строки рейтингов из БД.
// Рейтинги не пишут: все данные приходят из таблиц identities и accounts,
// которыми владеют справочник и леджер начисления.
package leaderboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"medialedger.ru/credits-bot/internal/identity"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreditRows возвращает сырые строки рейтинга кредитов:
// объединённые балансы идентичностей плюс локальные балансы
// непривязанных аккаунтов. Сортировку, слияние и отсечение
// выполняет сервис.
func (r *Repository) CreditRows(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT tg_id, display_name, credits FROM identities
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения балансов идентичностей: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var tgID int64
		var name string
		var credits float64
		if err := rows.Scan(&tgID, &name, &credits); err != nil {
			return nil, fmt.Errorf("ошибка сканирования идентичности: %w", err)
		}
		entries = append(entries, Entry{Key: identity.LinkedKey(tgID), Name: name, Value: credits})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	accRows, err := r.db.Query(ctx, `
		SELECT platform, username, credits FROM accounts WHERE tg_id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения локальных балансов: %w", err)
	}
	defer accRows.Close()

	for accRows.Next() {
		var platform identity.Platform
		var username string
		var credits float64
		if err := accRows.Scan(&platform, &username, &credits); err != nil {
			return nil, fmt.Errorf("ошибка сканирования аккаунта: %w", err)
		}
		entries = append(entries, Entry{
			Key:   identity.SyntheticKey(platform, username),
			Name:  username,
			Value: credits,
		})
	}
	return entries, accRows.Err()
}

// DonationRows возвращает строки рейтинга пожертвований.
// Пожертвования существуют только у идентичностей: непривязанным
// аккаунтам жертвовать не от чьего имени.
func (r *Repository) DonationRows(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT tg_id, display_name, donation FROM identities
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пожертвований: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var tgID int64
		var name string
		var donation float64
		if err := rows.Scan(&tgID, &name, &donation); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пожертвования: %w", err)
		}
		entries = append(entries, Entry{Key: identity.LinkedKey(tgID), Name: name, Value: donation})
	}
	return entries, rows.Err()
}

// AccountKeys возвращает ключи леджера по нативным ID аккаунтов
// платформы. Для привязанных аккаунтов имя берётся у идентичности.
func (r *Repository) AccountKeys(ctx context.Context, platform identity.Platform) (map[string]NamedKey, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.account_id, a.username, a.tg_id, i.display_name
		FROM accounts a
		LEFT JOIN identities i ON i.tg_id = a.tg_id
		WHERE a.platform = $1
	`, platform)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ключей аккаунтов: %w", err)
	}
	defer rows.Close()

	out := make(map[string]NamedKey)
	for rows.Next() {
		var accountID, username string
		var tgID *int64
		var displayName *string
		if err := rows.Scan(&accountID, &username, &tgID, &displayName); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ключа: %w", err)
		}
		nk := NamedKey{Key: identity.SyntheticKey(platform, username), Name: username}
		if tgID != nil {
			nk.Key = identity.LinkedKey(*tgID)
			if displayName != nil && *displayName != "" {
				nk.Name = *displayName
			}
		}
		out[accountID] = nk
	}
	return out, rows.Err()
}
