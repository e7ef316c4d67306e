// Package telemetry — collector.go: сервис сбора телеметрии.
// Раз в минуту опрашивает живые сессии платформ и складывает сэмплы
// в дневные корзины; раз в сутки синхронизирует справочник аккаунтов.
// Сбой одной платформы не мешает остальным.
package telemetry

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"medialedger.ru/credits-bot/internal/common"
	"medialedger.ru/credits-bot/internal/identity"
)

// Client — клиент одной платформы. Реализуется PlexClient и EmbyClient;
// в тестах подменяется фейком.
type Client interface {
	Platform() identity.Platform
	Configured() bool
	Sessions(ctx context.Context, creditSeconds int64) ([]WatchSample, error)
	AuthoritativeTotals(ctx context.Context, before time.Time) (map[string]float64, error)
	WindowHours(ctx context.Context, start, end time.Time) ([]WindowRow, error)
	Users(ctx context.Context) ([]identity.AccountInfo, error)
}

// SampleStore — хранилище дневных корзин сэмплов.
type SampleStore interface {
	AddSeconds(ctx context.Context, sample WatchSample, day time.Time) error
	HoursByAccount(ctx context.Context, platform identity.Platform, period common.Period) (map[string]float64, error)
	WindowAggregate(ctx context.Context, platform identity.Platform, start, end time.Time, limit int) ([]DayAggregate, error)
}

// Directory — справочник аккаунтов (identity.Service).
type Directory interface {
	EnsureAccount(ctx context.Context, platform identity.Platform, info identity.AccountInfo) error
}

// Collector — сервис сбора телеметрии.
type Collector struct {
	clients      map[identity.Platform]Client
	samples      SampleStore
	directory    Directory
	pollInterval time.Duration
	loc          *time.Location
}

// NewCollector создаёт сервис сбора телеметрии.
func NewCollector(clients []Client, samples SampleStore, directory Directory, pollInterval time.Duration, loc *time.Location) *Collector {
	byPlatform := make(map[identity.Platform]Client, len(clients))
	for _, c := range clients {
		byPlatform[c.Platform()] = c
	}
	return &Collector{
		clients:      byPlatform,
		samples:      samples,
		directory:    directory,
		pollInterval: pollInterval,
		loc:          loc,
	}
}

// Poll опрашивает живые сессии одной платформы.
// Недоступный эндпоинт — это common.ErrCollectionFailed и пустой результат;
// «нет данных в этом цикле» никогда не означает «ноль использования».
func (c *Collector) Poll(ctx context.Context, platform identity.Platform) ([]WatchSample, error) {
	client, ok := c.clients[platform]
	if !ok || !client.Configured() {
		return nil, common.ErrNotConfigured
	}
	return client.Sessions(ctx, int64(c.pollInterval.Seconds()))
}

// CollectLive — тело ежеминутной задачи: опрашивает все платформы
// и накапливает секунды активных сессий в дневных корзинах.
func (c *Collector) CollectLive(ctx context.Context) error {
	var lastErr error
	for _, platform := range identity.Platforms {
		samples, err := c.Poll(ctx, platform)
		if err != nil {
			if errors.Is(err, common.ErrNotConfigured) {
				continue
			}
			// Пропущенный цикл восстановится на следующем опросе
			log.WithError(err).WithField("platform", platform).Warn("Опрос сессий не удался")
			lastErr = err
			continue
		}
		for _, sample := range samples {
			day := common.PeriodOf(sample.ObservedAt, c.loc).Day()
			if err := c.directory.EnsureAccount(ctx, platform, identity.AccountInfo{
				AccountID: sample.AccountID,
				Username:  sample.Username,
			}); err != nil {
				log.WithError(err).WithField("account_id", sample.AccountID).Warn("EnsureAccount failed")
			}
			if err := c.samples.AddSeconds(ctx, sample, day); err != nil {
				log.WithError(err).WithField("account_id", sample.AccountID).Warn("Запись сэмпла не удалась")
				lastErr = err
			}
		}
		if len(samples) > 0 {
			log.WithFields(log.Fields{
				"platform": platform,
				"sessions": len(samples),
			}).Debug("Живые сессии учтены")
		}
	}
	return lastErr
}

// AuthoritativeTotals возвращает накопленные часы просмотра по данным
// самой платформы — истину в последней инстанции, перекрывающую сумму
// живых сэмплов периода. Если все эквивалентные эндпоинты отказали,
// вызывающий обязан перейти на HoursByAccount.
func (c *Collector) AuthoritativeTotals(ctx context.Context, platform identity.Platform, period common.Period) (map[string]float64, error) {
	client, ok := c.clients[platform]
	if !ok || !client.Configured() {
		return nil, common.ErrNotConfigured
	}
	return client.AuthoritativeTotals(ctx, period.End())
}

// LocalHours возвращает резервные часы периода из дневных корзин.
func (c *Collector) LocalHours(ctx context.Context, platform identity.Platform, period common.Period) (map[string]float64, error) {
	return c.samples.HoursByAccount(ctx, platform, period)
}

// WindowHours возвращает часы аккаунтов за окно из аналитики платформы.
func (c *Collector) WindowHours(ctx context.Context, platform identity.Platform, start, end time.Time) ([]WindowRow, error) {
	client, ok := c.clients[platform]
	if !ok || !client.Configured() {
		return nil, common.ErrNotConfigured
	}
	return client.WindowHours(ctx, start, end)
}

// SyncAccounts — тело ежедневной задачи: подтягивает список аккаунтов
// платформы и обновляет справочник. Аккаунты появляются при первом
// появлении и никогда не удаляются.
func (c *Collector) SyncAccounts(ctx context.Context, platform identity.Platform) error {
	client, ok := c.clients[platform]
	if !ok || !client.Configured() {
		return common.ErrNotConfigured
	}

	users, err := client.Users(ctx)
	if err != nil {
		return err
	}
	for _, info := range users {
		if err := c.directory.EnsureAccount(ctx, platform, info); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"platform": platform,
				"username": info.Username,
			}).Warn("Синхронизация аккаунта не удалась")
		}
	}
	log.WithFields(log.Fields{
		"platform": platform,
		"accounts": len(users),
	}).Info("Справочник аккаунтов синхронизирован")
	return nil
}
