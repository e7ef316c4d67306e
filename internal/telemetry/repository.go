// Package telemetry — repository.go выполняет операции с таблицей watch_samples.
// Живые сэмплы складываются в дневные корзины (platform, account_id, day):
// по ним строится резервная агрегация, когда авторитетная статистика недоступна.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"medialedger.ru/credits-bot/internal/common"
	"medialedger.ru/credits-bot/internal/identity"
)

// Repository предоставляет методы для работы с таблицей watch_samples.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий сэмплов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// AddSeconds накапливает секунды воспроизведения в дневной корзине.
// Повторный вызов за тот же день просто увеличивает счётчик.
func (r *Repository) AddSeconds(ctx context.Context, sample WatchSample, day time.Time) error {
	query := `
		INSERT INTO watch_samples (platform, account_id, username, day, seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (platform, account_id, day) DO UPDATE
		SET seconds = watch_samples.seconds + EXCLUDED.seconds,
		    username = EXCLUDED.username,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		sample.Platform, sample.AccountID, sample.Username, day, sample.ActiveSeconds,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи сэмпла: %w", err)
	}
	return nil
}

// HoursByAccount возвращает накопленные за период часы по каждому
// аккаунту платформы. Это резервный источник данных для начисления.
func (r *Repository) HoursByAccount(ctx context.Context, platform identity.Platform, period common.Period) (map[string]float64, error) {
	query := `
		SELECT account_id, seconds
		FROM watch_samples
		WHERE platform = $1 AND day = $2
	`
	rows, err := r.db.Query(ctx, query, platform, period.Day())
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сэмплов: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var accountID string
		var seconds int64
		if err := rows.Scan(&accountID, &seconds); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сэмпла: %w", err)
		}
		out[accountID] = float64(seconds) / 3600.0
	}
	return out, rows.Err()
}

// WindowAggregate возвращает агрегированные часы по аккаунтам за окно
// [start, end), по убыванию часов. Резервный источник оконных рейтингов.
func (r *Repository) WindowAggregate(ctx context.Context, platform identity.Platform, start, end time.Time, limit int) ([]DayAggregate, error) {
	query := `
		SELECT account_id, MAX(username) AS username, SUM(seconds) AS seconds
		FROM watch_samples
		WHERE platform = $1 AND day >= $2 AND day < $3
		GROUP BY account_id
		ORDER BY seconds DESC, account_id
		LIMIT $4
	`
	rows, err := r.db.Query(ctx, query, platform, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка агрегации сэмплов: %w", err)
	}
	defer rows.Close()

	var out []DayAggregate
	for rows.Next() {
		var agg DayAggregate
		var seconds int64
		if err := rows.Scan(&agg.AccountID, &agg.Username, &seconds); err != nil {
			return nil, fmt.Errorf("ошибка сканирования агрегата: %w", err)
		}
		agg.Hours = float64(seconds) / 3600.0
		out = append(out, agg)
	}
	return out, rows.Err()
}
