// Package leaderboard — service.go собирает объединённые рейтинги.
// Строки всех платформ сливаются по ключу леджера: привязанные аккаунты
// одной идентичности складываются, непривязанные между платформами не
// сливаются никогда. Порядок детерминирован: по значению вниз, ничьи —
// по стабильному ключу сортировки.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"medialedger.ru/credits-bot/internal/common"
	"medialedger.ru/credits-bot/internal/identity"
	"medialedger.ru/credits-bot/internal/telemetry"
)

// Лимит строк оконной агрегации у резервного источника.
const fallbackAggregateLimit = 100

// Store — чтение строк рейтингов из БД (Repository).
type Store interface {
	CreditRows(ctx context.Context) ([]Entry, error)
	DonationRows(ctx context.Context) ([]Entry, error)
	AccountKeys(ctx context.Context, platform identity.Platform) (map[string]NamedKey, error)
}

// HoursSource — первичный источник оконных часов (telemetry.Collector).
type HoursSource interface {
	WindowHours(ctx context.Context, platform identity.Platform, start, end time.Time) ([]telemetry.WindowRow, error)
}

// SampleAggregator — резервная агрегация локальных сэмплов.
type SampleAggregator interface {
	WindowAggregate(ctx context.Context, platform identity.Platform, start, end time.Time, limit int) ([]telemetry.DayAggregate, error)
}

// Announcer — канал публикации рейтингов (notify.Dispatcher).
type Announcer interface {
	Announce(text string) bool
	NotifyAdmins(text string)
}

// Service — Leaderboard: объединённые рейтинги поверх леджера и телеметрии.
type Service struct {
	store     Store
	hours     HoursSource
	samples   SampleAggregator
	announcer Announcer
	loc       *time.Location
}

// NewService создаёт сервис рейтингов.
func NewService(store Store, hours HoursSource, samples SampleAggregator, announcer Announcer, loc *time.Location) *Service {
	return &Service{store: store, hours: hours, samples: samples, announcer: announcer, loc: loc}
}

// Rank возвращает рейтинг по метрике баланса, не больше limit строк.
// Для часовых рейтингов см. HoursWindow: им нужно окно времени.
func (s *Service) Rank(ctx context.Context, metric Metric, limit int) ([]Entry, error) {
	var rows []Entry
	var err error
	switch metric {
	case MetricCredits:
		rows, err = s.store.CreditRows(ctx)
	case MetricDonation:
		rows, err = s.store.DonationRows(ctx)
	default:
		return nil, fmt.Errorf("неизвестная метрика рейтинга: %s", metric)
	}
	if err != nil {
		return nil, err
	}
	return merge(rows, limit), nil
}

// HoursWindow возвращает объединённый рейтинг часов просмотра за окно
// [start, end). Первичный источник — аналитика платформ; при её
// недоступности часы платформы берутся из локальных сэмплов, и рейтинг
// помечается деградированным.
func (s *Service) HoursWindow(ctx context.Context, start, end time.Time, limit int) ([]Entry, bool, error) {
	var all []Entry
	degraded := false

	for _, platform := range identity.Platforms {
		rows, fellBack, err := s.platformHours(ctx, platform, start, end)
		if err != nil {
			if errors.Is(err, common.ErrNotConfigured) {
				continue
			}
			return nil, false, err
		}
		if fellBack {
			degraded = true
		}

		keys, err := s.store.AccountKeys(ctx, platform)
		if err != nil {
			return nil, false, err
		}
		for _, row := range rows {
			nk, ok := keys[row.AccountID]
			if !ok {
				// Аккаунт ещё не попал в справочник — показываем как есть
				nk = NamedKey{Key: identity.SyntheticKey(platform, row.AccountID), Name: row.AccountID}
			}
			all = append(all, Entry{Key: nk.Key, Name: nk.Name, Value: row.Hours})
		}
	}

	return merge(all, limit), degraded, nil
}

// platformHours читает часы одной платформы за окно, с переходом
// на локальные сэмплы при отказе аналитики платформы.
func (s *Service) platformHours(ctx context.Context, platform identity.Platform, start, end time.Time) ([]telemetry.WindowRow, bool, error) {
	rows, err := s.hours.WindowHours(ctx, platform, start, end)
	if err == nil {
		return rows, false, nil
	}
	if errors.Is(err, common.ErrNotConfigured) {
		return nil, false, err
	}

	log.WithError(err).WithField("platform", platform).Warn("Аналитика платформы недоступна, рейтинг по локальным сэмплам")
	aggs, aerr := s.samples.WindowAggregate(ctx, platform, start, end, fallbackAggregateLimit)
	if aerr != nil {
		return nil, false, aerr
	}
	out := make([]telemetry.WindowRow, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, telemetry.WindowRow{AccountID: a.AccountID, Hours: a.Hours})
	}
	return out, true, nil
}

// PushHoursRank — тело задачи публикации: собирает рейтинг часов за
// последние days дней (день считается от полуночи в поясе сервиса)
// и отправляет его в канал объявлений.
func (s *Service) PushHoursRank(ctx context.Context, title string, days, limit int) error {
	now := time.Now().In(s.loc)
	start := common.PeriodOf(now, s.loc).Day().AddDate(0, 0, -(days - 1))

	entries, degraded, err := s.HoursWindow(ctx, start, now, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		// Пустая доска — отдельный сигнал администраторам, не публикация
		log.WithField("title", title).Info("Рейтинг пуст, публикация пропущена")
		s.announcer.NotifyAdmins(fmt.Sprintf("📭 Рейтинг «%s» пуст: за окно нет данных о просмотре.", title))
		return nil
	}

	text := FormatHoursRank(title, entries, degraded)
	if !s.announcer.Announce(text) {
		log.WithField("title", title).Warn("Публикация рейтинга не принята диспетчером")
	}
	return nil
}

// FormatHoursRank форматирует рейтинг часов в текст уведомления.
func FormatHoursRank(title string, entries []Entry, degraded bool) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📺 %s\n\n", title))
	for i, e := range entries {
		b.WriteString(fmt.Sprintf("%d. %s — %s\n", i+1, e.Name, common.FormatHours(e.Value)))
	}
	if degraded {
		b.WriteString("\n⚠️ Статистика платформ недоступна, рейтинг по собственным замерам.")
	}
	return b.String()
}

// FormatCreditsRank форматирует рейтинг балансов в текст уведомления.
func FormatCreditsRank(title string, entries []Entry) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🏆 %s\n\n", title))
	for i, e := range entries {
		b.WriteString(fmt.Sprintf("%d. %s — %s\n", i+1, e.Name, common.FormatCredits(e.Value)))
	}
	return b.String()
}

// merge сливает строки по ключу леджера, отбрасывает нулевые и
// отрицательные значения и возвращает детерминированно упорядоченный
// топ limit строк.
func merge(rows []Entry, limit int) []Entry {
	byKey := make(map[identity.AccountKey]*Entry)
	order := make([]identity.AccountKey, 0, len(rows))
	for _, row := range rows {
		if e, ok := byKey[row.Key]; ok {
			e.Value += row.Value
			if e.Name == "" {
				e.Name = row.Name
			}
			continue
		}
		e := row
		byKey[row.Key] = &e
		order = append(order, row.Key)
	}

	out := make([]Entry, 0, len(order))
	for _, key := range order {
		e := byKey[key]
		if e.Value <= 0 {
			continue
		}
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Key.SortKey() < out[j].Key.SortKey()
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
