// Package identity — repository.go выполняет все операции с таблицами
// accounts и identities. Привязка и отвязка — денежные операции
// (мигрируют баланс), поэтому выполняются в транзакциях БД.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medialedger.ru/credits-bot/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertAccount добавляет аккаунт платформы при первом появлении.
// На конфликте обновляет только справочные поля (имя/почту/премиум),
// не трогая привязку, баланс и базовые часы.
func (r *Repository) UpsertAccount(ctx context.Context, platform Platform, info AccountInfo) error {
	query := `
		INSERT INTO accounts (platform, account_id, username, email, is_premium, watched_hours, credits)
		VALUES ($1, $2, $3, $4, $5, 0, 0)
		ON CONFLICT (platform, account_id) DO UPDATE
		SET username = EXCLUDED.username,
		    email = COALESCE(EXCLUDED.email, accounts.email),
		    is_premium = EXCLUDED.is_premium,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, platform, info.AccountID, info.Username, info.Email, info.IsPremium)
	if err != nil {
		return fmt.Errorf("ошибка создания/обновления аккаунта: %w", err)
	}
	return nil
}

// GetAccount: если не найден — ошибка, оборачивающая common.ErrAccountNotFound.
func (r *Repository) GetAccount(ctx context.Context, platform Platform, accountID string) (*Account, error) {
	query := `
		SELECT id, platform, account_id, username, email, tg_id, is_premium,
		       watched_hours, credits, created_at, updated_at
		FROM accounts
		WHERE platform = $1 AND account_id = $2
	`
	var a Account
	err := r.db.QueryRow(ctx, query, platform, accountID).Scan(
		&a.ID, &a.Platform, &a.AccountID, &a.Username, &a.Email, &a.TGID,
		&a.IsPremium, &a.WatchedHours, &a.Credits, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w (%s/%s)", common.ErrAccountNotFound, platform, accountID)
		}
		return nil, fmt.Errorf("ошибка чтения аккаунта (%s/%s): %w", platform, accountID, err)
	}
	return &a, nil
}

// AccountExists проверяет наличие аккаунта в справочнике.
func (r *Repository) AccountExists(ctx context.Context, platform Platform, accountID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE platform = $1 AND account_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, platform, accountID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки существования: %w", err)
	}
	return exists, nil
}

// ListAccounts возвращает все аккаунты платформы в стабильном порядке.
func (r *Repository) ListAccounts(ctx context.Context, platform Platform) ([]*Account, error) {
	query := `
		SELECT id, platform, account_id, username, email, tg_id, is_premium,
		       watched_hours, credits, created_at, updated_at
		FROM accounts
		WHERE platform = $1
		ORDER BY account_id
	`
	rows, err := r.db.Query(ctx, query, platform)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аккаунтов: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(
			&a.ID, &a.Platform, &a.AccountID, &a.Username, &a.Email, &a.TGID,
			&a.IsPremium, &a.WatchedHours, &a.Credits, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования аккаунта: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// Link привязывает аккаунт платформы к Telegram-идентичности.
// Атомарно: проверка 1:1, миграция локального баланса в леджер
// идентичности и обнуление баланса аккаунта — одна транзакция.
//
// Возвращает common.ErrAlreadyLinked, если аккаунт уже привязан
// или идентичность уже держит аккаунт этой платформы.
func (r *Repository) Link(ctx context.Context, platform Platform, accountID string, tgID int64, displayName string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку аккаунта: привязка конкурирует с начислением
	var curTGID *int64
	var localCredits float64
	err = tx.QueryRow(ctx, `
		SELECT tg_id, credits FROM accounts
		WHERE platform = $1 AND account_id = $2
		FOR UPDATE
	`, platform, accountID).Scan(&curTGID, &localCredits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w (%s/%s)", common.ErrAccountNotFound, platform, accountID)
		}
		return fmt.Errorf("ошибка чтения аккаунта: %w", err)
	}
	if curTGID != nil {
		if *curTGID == tgID {
			return nil // уже привязан к этой же идентичности
		}
		return fmt.Errorf("%w: аккаунт %s/%s занят", common.ErrAlreadyLinked, platform, accountID)
	}

	// Идентичность может держать максимум один аккаунт на платформу
	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM accounts WHERE platform = $1 AND tg_id = $2)
	`, platform, tgID).Scan(&taken)
	if err != nil {
		return fmt.Errorf("ошибка проверки идентичности: %w", err)
	}
	if taken {
		return fmt.Errorf("%w: идентичность %d уже держит аккаунт %s", common.ErrAlreadyLinked, tgID, platform)
	}

	// Создаём идентичность при первой привязке; локальный баланс
	// аккаунта мигрирует в объединённый леджер.
	_, err = tx.Exec(ctx, `
		INSERT INTO identities (tg_id, display_name, credits, donation)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (tg_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    credits = identities.credits + EXCLUDED.credits,
		    updated_at = NOW()
	`, tgID, displayName, localCredits)
	if err != nil {
		return fmt.Errorf("ошибка обновления идентичности: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts SET tg_id = $3, credits = 0, updated_at = NOW()
		WHERE platform = $1 AND account_id = $2
	`, platform, accountID, tgID)
	if err != nil {
		return fmt.Errorf("ошибка привязки аккаунта: %w", err)
	}

	return tx.Commit(ctx)
}

// Unlink снимает привязку аккаунта. Локальный баланс обнуляется ДО
// освобождения привязки: следующий владелец того же аккаунта платформы
// не должен унаследовать чужие кредиты. Накопленный леджер остаётся
// за идентичностью.
func (r *Repository) Unlink(ctx context.Context, platform Platform, accountID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var curTGID *int64
	err = tx.QueryRow(ctx, `
		SELECT tg_id FROM accounts
		WHERE platform = $1 AND account_id = $2
		FOR UPDATE
	`, platform, accountID).Scan(&curTGID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w (%s/%s)", common.ErrAccountNotFound, platform, accountID)
		}
		return fmt.Errorf("ошибка чтения аккаунта: %w", err)
	}
	if curTGID == nil {
		return common.ErrNotLinked
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts SET tg_id = NULL, credits = 0, updated_at = NOW()
		WHERE platform = $1 AND account_id = $2
	`, platform, accountID)
	if err != nil {
		return fmt.Errorf("ошибка отвязки аккаунта: %w", err)
	}

	return tx.Commit(ctx)
}

// AdjustCredits изменяет объединённый баланс идентичности на amount
// (может быть отрицательным — списание). Единственный транзакционный
// примитив для внешних корректировок леджера.
func (r *Repository) AdjustCredits(ctx context.Context, tgID int64, amount float64) error {
	if amount == 0 {
		return common.ErrInvalidAmount
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE identities SET credits = credits + $2, updated_at = NOW()
		WHERE tg_id = $1
	`, tgID, amount)
	if err != nil {
		return fmt.Errorf("ошибка корректировки баланса (tg_id=%d): %w", tgID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w (tg_id=%d)", common.ErrAccountNotFound, tgID)
	}
	return nil
}

// AddDonation фиксирует пожертвование идентичности.
func (r *Repository) AddDonation(ctx context.Context, tgID int64, amount float64) error {
	if amount <= 0 {
		return common.ErrInvalidAmount
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE identities SET donation = donation + $2, updated_at = NOW()
		WHERE tg_id = $1
	`, tgID, amount)
	if err != nil {
		return fmt.Errorf("ошибка записи пожертвования (tg_id=%d): %w", tgID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w (tg_id=%d)", common.ErrAccountNotFound, tgID)
	}
	return nil
}

// GetIdentity возвращает идентичность по tg_id.
func (r *Repository) GetIdentity(ctx context.Context, tgID int64) (*Identity, error) {
	query := `
		SELECT tg_id, display_name, credits, donation, created_at, updated_at
		FROM identities
		WHERE tg_id = $1
	`
	var id Identity
	err := r.db.QueryRow(ctx, query, tgID).Scan(
		&id.TGID, &id.DisplayName, &id.Credits, &id.Donation, &id.CreatedAt, &id.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("идентичность не найдена (tg_id=%d): %w", tgID, err)
		}
		return nil, fmt.Errorf("ошибка чтения идентичности (tg_id=%d): %w", tgID, err)
	}
	return &id, nil
}
