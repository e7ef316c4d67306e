// Package app — migrations.go хранит SQL-миграции схемы.
// Миграции встроены в код для упрощения деплоя и выполняются по порядку
// через schema_migrations; повторный запуск применяет только новые.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"medialedger.ru/credits-bot/internal/db/postgres"
)

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.InitMigrations(ctx, pool); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Identities},
		{2, migration002Accounts},
		{3, migration003WatchSamples},
		{4, migration004AccrualEvents},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

var migration001Identities = `
CREATE TABLE IF NOT EXISTS identities (
    tg_id BIGINT PRIMARY KEY,
    display_name VARCHAR(255) NOT NULL,
    credits DOUBLE PRECISION DEFAULT 0,
    donation DOUBLE PRECISION DEFAULT 0,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
`

var migration002Accounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id BIGSERIAL PRIMARY KEY,
    platform VARCHAR(16) NOT NULL,
    account_id VARCHAR(255) NOT NULL,
    username VARCHAR(255) NOT NULL,
    email VARCHAR(255),
    tg_id BIGINT REFERENCES identities(tg_id),
    is_premium BOOLEAN DEFAULT FALSE,
    watched_hours DOUBLE PRECISION DEFAULT 0,
    credits DOUBLE PRECISION DEFAULT 0,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW(),
    UNIQUE (platform, account_id)
);
-- Идентичность держит максимум один аккаунт на платформу
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_platform_tg_id
    ON accounts(platform, tg_id) WHERE tg_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_accounts_tg_id ON accounts(tg_id);
`

var migration003WatchSamples = `
CREATE TABLE IF NOT EXISTS watch_samples (
    platform VARCHAR(16) NOT NULL,
    account_id VARCHAR(255) NOT NULL,
    day DATE NOT NULL,
    username VARCHAR(255),
    seconds BIGINT DEFAULT 0,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW(),
    PRIMARY KEY (platform, account_id, day)
);
CREATE INDEX IF NOT EXISTS idx_watch_samples_day ON watch_samples(day);
`

var migration004AccrualEvents = `
CREATE TABLE IF NOT EXISTS accrual_events (
    id BIGSERIAL PRIMARY KEY,
    platform VARCHAR(16) NOT NULL,
    account_id VARCHAR(255) NOT NULL,
    period VARCHAR(10) NOT NULL,
    raw_hours DOUBLE PRECISION NOT NULL,
    credited DOUBLE PRECISION NOT NULL,
    degraded BOOLEAN DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT NOW(),
    UNIQUE (platform, account_id, period)
);
CREATE INDEX IF NOT EXISTS idx_accrual_events_period ON accrual_events(period);
`
