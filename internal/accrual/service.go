// Package accrual — service.go содержит бизнес-логику суточного начисления.
// Раз в период каждому аккаунту начисляются кредиты за часы просмотра:
// час — кредит, не больше суточного потолка. Источник истины — накопленные
// итоги самой платформы; при их недоступности прогон идёт в деградированном
// режиме по локально накопленным сэмплам.
package accrual

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"medialedger.ru/credits-bot/internal/common"
	"medialedger.ru/credits-bot/internal/db/postgres"
	"medialedger.ru/credits-bot/internal/identity"
)

// TotalsSource — источник часов просмотра (telemetry.Collector).
type TotalsSource interface {
	AuthoritativeTotals(ctx context.Context, platform identity.Platform, period common.Period) (map[string]float64, error)
	LocalHours(ctx context.Context, platform identity.Platform, period common.Period) (map[string]float64, error)
}

// AccountLister — перечисление аккаунтов платформы (identity.Repository).
type AccountLister interface {
	ListAccounts(ctx context.Context, platform identity.Platform) ([]*identity.Account, error)
}

// Ledger — леджерная транзакция начисления (Repository).
type Ledger interface {
	Apply(ctx context.Context, platform identity.Platform, accountID string, period common.Period, totalHours, cap, dayLimit float64, degraded bool) (*Event, error)
}

// Service — Accrual Engine: единственный писатель watched_hours и балансов.
type Service struct {
	totals     TotalsSource
	accounts   AccountLister
	ledger     Ledger
	cap        float64
	dayLimit   float64
	retryLimit int
}

// NewService создаёт сервис начисления.
// cap — суточный потолок кредитов, dayLimit — предел засчитываемых
// часов за период, retryLimit — число повторов леджерной транзакции
// при конфликте сериализации.
func NewService(totals TotalsSource, accounts AccountLister, ledger Ledger, cap, dayLimit float64, retryLimit int) *Service {
	return &Service{
		totals:     totals,
		accounts:   accounts,
		ledger:     ledger,
		cap:        cap,
		dayLimit:   dayLimit,
		retryLimit: retryLimit,
	}
}

// Accrue начисляет кредиты всем аккаунтам платформы за период.
// Ошибка по одному аккаунту не прерывает прогон: остальные аккаунты
// обрабатываются, неудачи попадают в Summary.Failed и в лог.
func (s *Service) Accrue(ctx context.Context, platform identity.Platform, period common.Period) (*Summary, error) {
	totals, degraded, err := s.resolveTotals(ctx, platform, period)
	if err != nil {
		return nil, err
	}

	accounts, err := s.accounts.ListAccounts(ctx, platform)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Platform: platform, Period: period.String(), Degraded: degraded}
	for _, account := range accounts {
		total, ok := totals[account.AccountID]
		if !ok {
			// Нет данных по аккаунту — не ноль, а отсутствие данных:
			// отметка не двигается, остаток догонит следующим периодом
			continue
		}
		if degraded {
			// Локальные сэмплы — это часы периода, не накопленный итог
			total += account.WatchedHours
		}

		event, err := s.applyWithRetry(ctx, platform, account.AccountID, period, total, degraded)
		if err != nil {
			summary.Failed++
			log.WithError(err).WithFields(log.Fields{
				"platform":   platform,
				"account_id": account.AccountID,
				"period":     period.String(),
			}).Error("Начисление аккаунту не удалось")
			continue
		}
		if event == nil {
			summary.Skipped++
			continue
		}
		summary.Processed++
		summary.TotalCredited += event.Credited
		summary.Events = append(summary.Events, *event)
	}

	log.WithFields(log.Fields{
		"platform":  platform,
		"period":    period.String(),
		"processed": summary.Processed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
		"credited":  summary.TotalCredited,
		"degraded":  summary.Degraded,
	}).Info("Прогон начисления завершён")
	return summary, nil
}

// resolveTotals выбирает источник часов: авторитетные итоги платформы,
// а при их недоступности — деградированный режим на локальных сэмплах.
func (s *Service) resolveTotals(ctx context.Context, platform identity.Platform, period common.Period) (map[string]float64, bool, error) {
	totals, err := s.totals.AuthoritativeTotals(ctx, platform, period)
	if err == nil {
		return totals, false, nil
	}
	if errors.Is(err, common.ErrNotConfigured) {
		return nil, false, err
	}
	if !errors.Is(err, common.ErrNoAuthoritativeData) && !errors.Is(err, common.ErrCollectionFailed) {
		return nil, false, err
	}

	log.WithError(err).WithFields(log.Fields{
		"platform": platform,
		"period":   period.String(),
	}).Warn("Авторитетная статистика недоступна, переход на локальные сэмплы")

	local, lerr := s.totals.LocalHours(ctx, platform, period)
	if lerr != nil {
		return nil, false, lerr
	}
	return local, true, nil
}

// applyWithRetry повторяет леджерную транзакцию при конфликте
// сериализации. Любая другая ошибка возвращается сразу.
func (s *Service) applyWithRetry(ctx context.Context, platform identity.Platform, accountID string, period common.Period, total float64, degraded bool) (*Event, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retryLimit; attempt++ {
		event, err := s.ledger.Apply(ctx, platform, accountID, period, total, s.cap, s.dayLimit, degraded)
		if err == nil {
			return event, nil
		}
		if !postgres.IsSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
		log.WithFields(log.Fields{
			"platform":   platform,
			"account_id": accountID,
			"attempt":    attempt + 1,
		}).Warn("Конфликт сериализации, повтор транзакции")
	}
	return nil, fmt.Errorf("%w: %v", common.ErrLedgerConflict, lastErr)
}
