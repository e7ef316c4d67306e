// Package telemetry — plex.go: HTTP-клиент Plex-статистики через Tautulli.
// Tautulli отдаёт и живые сессии (get_activity), и накопленные часы
// (get_home_stats), и список пользователей (get_users). Аутентификация —
// статический API-ключ в query-параметре.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"medialedger.ru/credits-bot/internal/common"
	"medialedger.ru/credits-bot/internal/identity"
)

// Полный диапазон «за всё время» в днях для накопленных итогов.
const tautulliAllTimeDays = 36500

// PlexClient общается с Tautulli.
type PlexClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewPlexClient создаёт клиент Tautulli с ограниченным таймаутом.
func NewPlexClient(baseURL, apiKey string, timeout time.Duration) *PlexClient {
	return &PlexClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Platform возвращает платформу клиента.
func (c *PlexClient) Platform() identity.Platform { return identity.Plex }

// Configured сообщает, заданы ли адрес и ключ.
func (c *PlexClient) Configured() bool { return c.baseURL != "" && c.apiKey != "" }

type tautulliSession struct {
	UserID    json.Number `json:"user_id"`
	User      string      `json:"user"`
	MediaType string      `json:"media_type"`
	State     string      `json:"state"`
}

// playing решает, идёт ли активное воспроизведение.
// Фото исключаются сразу; явная пауза исключается; пустое состояние
// трактуется как «играет» — та же терпимость, что и у Emby-клиента.
func (s *tautulliSession) playing() bool {
	switch strings.ToLower(s.MediaType) {
	case "movie", "episode", "track", "clip", "live":
	default:
		return false
	}
	return strings.ToLower(s.State) != "paused"
}

// Sessions возвращает сэмплы по активным сессиям Plex.
func (c *PlexClient) Sessions(ctx context.Context, creditSeconds int64) ([]WatchSample, error) {
	if !c.Configured() {
		return nil, common.ErrNotConfigured
	}

	var data struct {
		Sessions []tautulliSession `json:"sessions"`
	}
	if err := c.call(ctx, "get_activity", nil, &data); err != nil {
		return nil, fmt.Errorf("%w: сессии plex: %v", common.ErrCollectionFailed, err)
	}

	now := time.Now()
	var samples []WatchSample
	for _, s := range data.Sessions {
		if s.UserID.String() == "" || !s.playing() {
			continue
		}
		samples = append(samples, WatchSample{
			Platform:      identity.Plex,
			AccountID:     s.UserID.String(),
			Username:      s.User,
			ObservedAt:    now,
			ActiveSeconds: creditSeconds,
		})
	}
	return samples, nil
}

// AuthoritativeTotals возвращает накопленные часы просмотра всех
// аккаунтов. Две эквивалентные формы запроса get_home_stats пробуются
// в фиксированном порядке: сначала адресная (stat_id в параметрах),
// затем полная сводка с выборкой блока top_users из ответа.
//
// Tautulli не умеет границу «до момента before» — отдаёт только целые
// дни от текущего момента. Начисление запускается через минуты после
// конца периода, так что итоги «на сейчас» совпадают с итогами
// «на конец периода» с точностью до этих минут.
func (c *PlexClient) AuthoritativeTotals(ctx context.Context, _ time.Time) (map[string]float64, error) {
	if !c.Configured() {
		return nil, common.ErrNotConfigured
	}

	if rows, err := c.homeStatsDirect(ctx, tautulliAllTimeDays); err == nil && len(rows) > 0 {
		return rowsHours(rows), nil
	}
	if rows, err := c.homeStatsFull(ctx, tautulliAllTimeDays); err == nil && len(rows) > 0 {
		return rowsHours(rows), nil
	}
	return nil, common.ErrNoAuthoritativeData
}

// WindowHours возвращает часы просмотра за последние дни окна.
// Tautulli умеет только целые дни от «сейчас», поэтому границы
// округляются до ближайшего покрывающего окна.
func (c *PlexClient) WindowHours(ctx context.Context, start, end time.Time) ([]WindowRow, error) {
	days := int(end.Sub(start).Hours()/24 + 0.5)
	if days <= 0 {
		days = 1
	}
	rows, err := c.homeStatsDirect(ctx, days)
	if err != nil || len(rows) == 0 {
		rows, err = c.homeStatsFull(ctx, days)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.ErrNoAuthoritativeData
	}

	out := make([]WindowRow, 0, len(rows))
	for id, hours := range rowsHours(rows) {
		out = append(out, WindowRow{AccountID: id, Hours: hours})
	}
	return out, nil
}

type tautulliUser struct {
	UserID   json.Number `json:"user_id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	IsActive int         `json:"is_active"`
}

// Users возвращает список аккаунтов для синхронизации справочника.
func (c *PlexClient) Users(ctx context.Context) ([]identity.AccountInfo, error) {
	if !c.Configured() {
		return nil, common.ErrNotConfigured
	}

	var users []tautulliUser
	if err := c.call(ctx, "get_users", nil, &users); err != nil {
		return nil, fmt.Errorf("%w: пользователи plex: %v", common.ErrCollectionFailed, err)
	}

	infos := make([]identity.AccountInfo, 0, len(users))
	for _, u := range users {
		if u.UserID.String() == "" || u.Username == "" {
			continue
		}
		info := identity.AccountInfo{
			AccountID: u.UserID.String(),
			Username:  u.Username,
		}
		if u.Email != "" {
			email := u.Email
			info.Email = &email
		}
		infos = append(infos, info)
	}
	return infos, nil
}

type tautulliStatRow struct {
	UserID        json.Number `json:"user_id"`
	User          string      `json:"user"`
	TotalDuration float64     `json:"total_duration"`
}

// homeStatsDirect — адресная форма: stat_id прямо в параметрах запроса.
func (c *PlexClient) homeStatsDirect(ctx context.Context, days int) ([]tautulliStatRow, error) {
	params := url.Values{}
	params.Set("time_range", strconv.Itoa(days))
	params.Set("stats_type", "duration")
	params.Set("stats_count", "100")
	params.Set("stat_id", "top_users")

	var data struct {
		Rows []tautulliStatRow `json:"rows"`
	}
	if err := c.call(ctx, "get_home_stats", params, &data); err != nil {
		return nil, err
	}
	return data.Rows, nil
}

// homeStatsFull — полная сводка: блок top_users выбирается из ответа.
func (c *PlexClient) homeStatsFull(ctx context.Context, days int) ([]tautulliStatRow, error) {
	params := url.Values{}
	params.Set("time_range", strconv.Itoa(days))
	params.Set("stats_type", "duration")
	params.Set("stats_count", "100")

	var blocks []struct {
		StatID string            `json:"stat_id"`
		Rows   []tautulliStatRow `json:"rows"`
	}
	if err := c.call(ctx, "get_home_stats", params, &blocks); err != nil {
		return nil, err
	}
	for _, b := range blocks {
		if b.StatID == "top_users" {
			return b.Rows, nil
		}
	}
	return nil, nil
}

func rowsHours(rows []tautulliStatRow) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		id := r.UserID.String()
		if id == "" {
			continue
		}
		out[id] = r.TotalDuration / 3600.0
	}
	return out
}

// call выполняет запрос к API v2 Tautulli и разворачивает конверт ответа.
func (c *PlexClient) call(ctx context.Context, cmd string, params url.Values, dst any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	params.Set("cmd", cmd)

	endpoint := fmt.Sprintf("%s/api/v2?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var envelope struct {
		Response struct {
			Result  string          `json:"result"`
			Message *string         `json:"message"`
			Data    json.RawMessage `json:"data"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("декодирование ответа tautulli: %w", err)
	}
	if envelope.Response.Result != "success" {
		msg := "unknown"
		if envelope.Response.Message != nil {
			msg = *envelope.Response.Message
		}
		return fmt.Errorf("tautulli %s: %s", cmd, msg)
	}
	return json.Unmarshal(envelope.Response.Data, dst)
}
