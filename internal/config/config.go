// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS" required:"true"`
	AdminIDs         []int64 `envconfig:"-"` // заполним вручную
	// ID чата, куда публикуются рейтинги (0 = только администраторам)
	RankChatID int64 `envconfig:"RANK_CHAT_ID" default:"0"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"credits_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Plex (через Tautulli) ---
	TautulliBaseURL string `envconfig:"TAUTULLI_BASE_URL" default:""`
	TautulliAPIKey  string `envconfig:"TAUTULLI_API_KEY" default:""`

	// --- Emby ---
	EmbyBaseURL  string `envconfig:"EMBY_BASE_URL" default:""`
	EmbyAPIToken string `envconfig:"EMBY_API_TOKEN" default:""`

	// --- Телеметрия ---
	// Таймаут HTTP-запросов к платформам. Зависший эндпоинт не должен
	// блокировать планировщик, поэтому единицы секунд, не десятки.
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"8s"`
	// Шаг живого опроса сессий: каждому активному сеансу засчитывается
	// ровно столько секунд за цикл.
	LivePollInterval time.Duration `envconfig:"LIVE_POLL_INTERVAL" default:"60s"`

	// --- Начисление ---
	// Максимум кредитов за один учётный период
	DailyCreditCap float64 `envconfig:"DAILY_CREDIT_CAP" default:"8"`
	// Максимум засчитываемых часов просмотра за период
	DailyWatchLimit float64 `envconfig:"DAILY_WATCH_LIMIT" default:"24"`
	// Сколько раз повторять запись при конфликте в пределах одного прохода
	LedgerRetryLimit int `envconfig:"LEDGER_RETRY_LIMIT" default:"3"`

	// --- Уведомления ---
	// Фиксированная пауза между сообщениями — ограничение Telegram на отправку
	NotifyDelay     time.Duration `envconfig:"NOTIFY_DELAY" default:"1s"`
	NotifyQueueSize int           `envconfig:"NOTIFY_QUEUE_SIZE" default:"256"`

	// --- Расписание задач ---
	CronCollectLive  string `envconfig:"CRON_COLLECT_LIVE" default:"* * * * *"`
	CronAccrual      string `envconfig:"CRON_ACCRUAL" default:"5 0 * * *"`
	CronAccountSync  string `envconfig:"CRON_ACCOUNT_SYNC" default:"0 12 * * *"`
	CronDayRankPush  string `envconfig:"CRON_DAY_RANK_PUSH" default:"55 23 * * *"`
	CronWeekRankPush string `envconfig:"CRON_WEEK_RANK_PUSH" default:"59 23 * * 0"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// PlexConfigured сообщает, заданы ли учётные данные Tautulli.
func (c *Config) PlexConfigured() bool {
	return c.TautulliBaseURL != "" && c.TautulliAPIKey != ""
}

// EmbyConfigured сообщает, заданы ли учётные данные Emby.
func (c *Config) EmbyConfigured() bool {
	return c.EmbyBaseURL != "" && c.EmbyAPIToken != ""
}

func (c *Config) Validate() error {
	if len(c.AdminIDs) == 0 {
		return fmt.Errorf("ADMIN_IDS не задан")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.HTTPTimeout <= 0 || c.HTTPTimeout > 10*time.Second {
		return fmt.Errorf("HTTP_TIMEOUT должен быть в пределах (0s, 10s]")
	}
	if c.DailyCreditCap <= 0 {
		return fmt.Errorf("DAILY_CREDIT_CAP должен быть > 0")
	}
	if c.DailyWatchLimit < c.DailyCreditCap {
		return fmt.Errorf("DAILY_WATCH_LIMIT не может быть меньше DAILY_CREDIT_CAP")
	}
	if c.LedgerRetryLimit <= 0 {
		return fmt.Errorf("LEDGER_RETRY_LIMIT должен быть > 0")
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE должен быть > 0")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
