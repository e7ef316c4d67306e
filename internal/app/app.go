// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, клиенты платформ, репозитории,
// сервисы и диспетчер уведомлений, прогоняет миграции и регистрирует
// фоновые задачи по расписанию.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"medialedger.ru/credits-bot/internal/accrual"
	"medialedger.ru/credits-bot/internal/common"
	"medialedger.ru/credits-bot/internal/config"
	"medialedger.ru/credits-bot/internal/db/postgres"
	"medialedger.ru/credits-bot/internal/identity"
	"medialedger.ru/credits-bot/internal/jobs"
	"medialedger.ru/credits-bot/internal/leaderboard"
	"medialedger.ru/credits-bot/internal/notify"
	"medialedger.ru/credits-bot/internal/telemetry"
)

// Пауза перед стартовой синхронизацией справочника: даём платформам
// и сети прийти в себя после перезапуска контейнера.
const warmupSyncDelay = 30 * time.Second

// Сколько строк показывать в публикуемых рейтингах.
const rankPushLimit = 10

// App содержит все компоненты приложения.
type App struct {
	Scheduler  *jobs.Scheduler
	Dispatcher *notify.Dispatcher
	DB         *pgxpool.Pool
	BotAPI     *tgbotapi.BotAPI
	Flags      *config.Flags

	cfg         *config.Config
	loc         *time.Location
	collector   *telemetry.Collector
	accrual     *accrual.Service
	leaderboard *leaderboard.Service
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Флаги времени исполнения ===
	flags := config.NewFlags(true, true)

	// === 4. Клиенты платформ ===
	// Клиенты создаются всегда; ненастроенная платформа сама сообщает
	// об этом через Configured и выпадает из циклов сбора.
	loc := common.LoadLocation(cfg.AppTimezone)
	plexClient := telemetry.NewPlexClient(cfg.TautulliBaseURL, cfg.TautulliAPIKey, cfg.HTTPTimeout)
	embyClient := telemetry.NewEmbyClient(cfg.EmbyBaseURL, cfg.EmbyAPIToken, cfg.HTTPTimeout)

	// === 5. Репозитории ===
	identityRepo := identity.NewRepository(pool)
	sampleRepo := telemetry.NewRepository(pool)
	ledgerRepo := accrual.NewRepository(pool)
	boardRepo := leaderboard.NewRepository(pool)

	// === 6. Сервисы ===
	identityService := identity.NewService(identityRepo, flags)
	collector := telemetry.NewCollector(
		[]telemetry.Client{plexClient, embyClient},
		sampleRepo, identityService, cfg.LivePollInterval, loc,
	)
	accrualService := accrual.NewService(
		collector, identityRepo, ledgerRepo,
		cfg.DailyCreditCap, cfg.DailyWatchLimit, cfg.LedgerRetryLimit,
	)
	dispatcher := notify.NewDispatcher(
		botAPI, flags, cfg.NotifyDelay, cfg.NotifyQueueSize, cfg.RankChatID, cfg.AdminIDs,
	)
	boardService := leaderboard.NewService(boardRepo, collector, sampleRepo, dispatcher, loc)

	// === 7. Планировщик задач ===
	a := &App{
		Scheduler:   jobs.NewScheduler(loc),
		Dispatcher:  dispatcher,
		DB:          pool,
		BotAPI:      botAPI,
		Flags:       flags,
		cfg:         cfg,
		loc:         loc,
		collector:   collector,
		accrual:     accrualService,
		leaderboard: boardService,
	}
	if err := a.registerJobs(); err != nil {
		return nil, fmt.Errorf("ошибка регистрации задач: %w", err)
	}
	return a, nil
}

// Start запускает фоновые горутины: диспетчер уведомлений и планировщик.
func (a *App) Start(ctx context.Context) {
	go a.Dispatcher.Run(ctx)
	a.Scheduler.Start(ctx)
}

// Stop останавливает планировщик. Диспетчер завершается отменой
// контекста, переданного в Start.
func (a *App) Stop() {
	a.Scheduler.Stop()
}

// registerJobs расставляет фоновые задачи по расписанию из конфигурации.
func (a *App) registerJobs() error {
	cfg := a.cfg

	if err := a.Scheduler.AddCron("collect-live", cfg.CronCollectLive, a.collector.CollectLive); err != nil {
		return fmt.Errorf("collect-live: %w", err)
	}

	if err := a.Scheduler.AddCron("accrual", cfg.CronAccrual, a.runAccrual); err != nil {
		return fmt.Errorf("accrual: %w", err)
	}

	if err := a.Scheduler.AddCron("account-sync", cfg.CronAccountSync, a.syncAllAccounts); err != nil {
		return fmt.Errorf("account-sync: %w", err)
	}

	if err := a.Scheduler.AddCron("day-rank-push", cfg.CronDayRankPush, func(ctx context.Context) error {
		return a.leaderboard.PushHoursRank(ctx, "Топ просмотра за день", 1, rankPushLimit)
	}); err != nil {
		return fmt.Errorf("day-rank-push: %w", err)
	}

	if err := a.Scheduler.AddCron("week-rank-push", cfg.CronWeekRankPush, func(ctx context.Context) error {
		return a.leaderboard.PushHoursRank(ctx, "Топ просмотра за неделю", 7, rankPushLimit)
	}); err != nil {
		return fmt.Errorf("week-rank-push: %w", err)
	}

	// Стартовый прогрев: справочник аккаунтов подтягивается вскоре
	// после запуска, не дожидаясь полуденной синхронизации
	a.Scheduler.AddOneShot("warmup-account-sync", warmupSyncDelay, a.syncAllAccounts)

	return nil
}

// runAccrual — тело суточной задачи начисления: прогоняет леджер по
// каждой платформе за предыдущий учётный период и рассылает
// уведомления привязанным получателям.
func (a *App) runAccrual(ctx context.Context) error {
	period := common.PreviousPeriod(time.Now(), a.loc)

	var lastErr error
	for _, platform := range identity.Platforms {
		summary, err := a.accrual.Accrue(ctx, platform, period)
		if err != nil {
			if errors.Is(err, common.ErrNotConfigured) {
				continue
			}
			log.WithError(err).WithField("platform", platform).Error("Прогон начисления не удался")
			lastErr = err
			continue
		}
		a.notifyAccruals(summary)
	}
	return lastErr
}

// notifyAccruals рассылает уведомления о начислении. Только привязанным
// и только при ненулевом кредите: непривязанные копят молча.
func (a *App) notifyAccruals(summary *accrual.Summary) {
	for _, e := range summary.Events {
		if e.TGID == nil || e.Credited <= 0 {
			continue
		}
		text := fmt.Sprintf(
			"💰 Начислено %s за %s просмотра (%s) за %s.",
			common.FormatCredits(e.Credited), common.FormatHours(e.RawHours), e.Platform, e.Period,
		)
		if e.Degraded {
			text += "\n⚠️ Статистика платформы была недоступна, расчёт по собственным замерам."
		}
		a.Dispatcher.Notify(*e.TGID, text)
	}
}

// syncAllAccounts синхронизирует справочник по всем настроенным платформам.
func (a *App) syncAllAccounts(ctx context.Context) error {
	var lastErr error
	for _, platform := range identity.Platforms {
		if err := a.collector.SyncAccounts(ctx, platform); err != nil {
			if errors.Is(err, common.ErrNotConfigured) {
				continue
			}
			log.WithError(err).WithField("platform", platform).Error("Синхронизация справочника не удалась")
			lastErr = err
		}
	}
	return lastErr
}
