// Package accrual — repository.go выполняет леджерную транзакцию начисления.
// Каждый аккаунт обрабатывается отдельной транзакцией: строка аккаунта
// блокируется FOR UPDATE, вставка в accrual_events служит защитой от
// повторного начисления, базовая отметка и баланс меняются атомарно.
package accrual

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medialedger.ru/credits-bot/internal/common"
	"medialedger.ru/credits-bot/internal/identity"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// computeAccrual — арифметика одного начисления.
// Сырые часы периода = рост накопленного итога, срезанный суточным
// пределом; кредиты = min(сырые, потолок). Регресс итога даёт ноль
// сырых часов — отрицательных дельт не бывает.
func computeAccrual(baseline, totalHours, cap, dayLimit float64) (raw, credited float64) {
	raw = totalHours - baseline
	if raw < 0 {
		raw = 0
	}
	if raw > dayLimit {
		raw = dayLimit
	}
	credited = raw
	if credited > cap {
		credited = cap
	}
	return raw, credited
}

// Apply начисляет одному аккаунту кредиты за период по накопленному
// итогу totalHours. Вся арифметика — внутри одной транзакции:
//
//  1. строка аккаунта блокируется FOR UPDATE (начисление конкурирует
//     с привязкой/отвязкой, которые обнуляют локальный баланс);
//  2. сырые часы периода = totalHours - watched_hours, срезанные
//     суточным пределом dayLimit; кредиты = min(сырые, cap);
//  3. регресс итога (totalHours < watched_hours) означает сброс
//     статистики на платформе: ноль кредитов, отметка сбрасывается
//     вниз до totalHours;
//  4. вставка в accrual_events с ON CONFLICT DO NOTHING — если строка
//     периода уже есть, аккаунт пропускается целиком и отметка НЕ
//     двигается: остаток догонит в следующем периоде;
//  5. кредиты уходят в леджер идентичности (привязанный аккаунт)
//     либо в локальный баланс аккаунта (непривязанный).
//
// Возвращает (nil, nil), когда начисление за период уже было.
func (r *Repository) Apply(ctx context.Context, platform identity.Platform, accountID string, period common.Period, totalHours, cap, dayLimit float64, degraded bool) (*Event, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var tgID *int64
	var baseline float64
	err = tx.QueryRow(ctx, `
		SELECT tg_id, watched_hours FROM accounts
		WHERE platform = $1 AND account_id = $2
		FOR UPDATE
	`, platform, accountID).Scan(&tgID, &baseline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w (%s/%s)", common.ErrAccountNotFound, platform, accountID)
		}
		return nil, fmt.Errorf("ошибка чтения аккаунта: %w", err)
	}

	raw, credited := computeAccrual(baseline, totalHours, cap, dayLimit)

	tag, err := tx.Exec(ctx, `
		INSERT INTO accrual_events (platform, account_id, period, raw_hours, credited, degraded)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (platform, account_id, period) DO NOTHING
	`, platform, accountID, period.String(), raw, credited, degraded)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи события начисления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Период уже начислен: транзакция откатывается, отметка не трогается
		return nil, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts SET watched_hours = $3, updated_at = NOW()
		WHERE platform = $1 AND account_id = $2
	`, platform, accountID, totalHours)
	if err != nil {
		return nil, fmt.Errorf("ошибка сдвига базовой отметки: %w", err)
	}

	if credited > 0 {
		if tgID != nil {
			_, err = tx.Exec(ctx, `
				UPDATE identities SET credits = credits + $2, updated_at = NOW()
				WHERE tg_id = $1
			`, *tgID, credited)
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE accounts SET credits = credits + $3, updated_at = NOW()
				WHERE platform = $1 AND account_id = $2
			`, platform, accountID, credited)
		}
		if err != nil {
			return nil, fmt.Errorf("ошибка зачисления кредитов: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации начисления: %w", err)
	}

	return &Event{
		Platform:      platform,
		AccountID:     accountID,
		TGID:          tgID,
		Period:        period.String(),
		RawHours:      raw,
		Credited:      credited,
		PreviousHours: baseline,
		NewHours:      totalHours,
		Degraded:      degraded,
	}, nil
}

// EventsByPeriod возвращает события начисления периода для платформы.
func (r *Repository) EventsByPeriod(ctx context.Context, platform identity.Platform, period common.Period) ([]Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT platform, account_id, period, raw_hours, credited, degraded, created_at
		FROM accrual_events
		WHERE platform = $1 AND period = $2
		ORDER BY credited DESC, account_id
	`, platform, period.String())
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения событий начисления: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Platform, &e.AccountID, &e.Period, &e.RawHours, &e.Credited, &e.Degraded, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования события: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
