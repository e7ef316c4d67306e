// Package telemetry — emby.go: HTTP-клиент Emby.
// Живые сессии читаются из /Sessions; авторитетная статистика — из плагина
// user_usage_stats, у которого два эквивалентных пути монтирования.
// Пути пробуются в фиксированном порядке, принимается первый непустой ответ.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medialedger.ru/credits-bot/internal/common"
	"medialedger.ru/credits-bot/internal/identity"
)

// Формат временных границ, который понимает PlaybackActivity.
const embyTimeLayout = "2006-01-02 15:04:05"

// Пути плагина статистики в порядке предпочтения.
var embyStatsPaths = []string{
	"/user_usage_stats/submit_custom_query",
	"/emby/user_usage_stats/submit_custom_query",
}

// EmbyClient общается с сервером Emby.
type EmbyClient struct {
	baseURL  string
	apiToken string
	http     *http.Client
}

// NewEmbyClient создаёт клиент Emby с ограниченным таймаутом.
func NewEmbyClient(baseURL, apiToken string, timeout time.Duration) *EmbyClient {
	return &EmbyClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		http:     &http.Client{Timeout: timeout},
	}
}

// Platform возвращает платформу клиента.
func (c *EmbyClient) Platform() identity.Platform { return identity.Emby }

// Configured сообщает, заданы ли адрес и токен.
func (c *EmbyClient) Configured() bool { return c.baseURL != "" && c.apiToken != "" }

type embySession struct {
	UserID         string `json:"UserId"`
	UserName       string `json:"UserName"`
	NowPlayingItem *struct {
		MediaType string `json:"MediaType"`
	} `json:"NowPlayingItem"`
	PlayState *struct {
		// Указатель: старые версии Emby поле не отдают вовсе.
		IsPaused *bool `json:"IsPaused"`
	} `json:"PlayState"`
}

// playing решает, идёт ли в сессии активное воспроизведение.
// Считается играющей только сессия с аудио/видео контентом без паузы.
// Отсутствующий флаг паузы трактуется как «играет»: некоторые версии
// платформы его не отдают — это документированная терпимость, не баг.
func (s *embySession) playing() bool {
	if s.NowPlayingItem == nil {
		return false
	}
	mediaType := strings.ToLower(s.NowPlayingItem.MediaType)
	if mediaType != "video" && mediaType != "audio" {
		return false
	}
	if s.PlayState != nil && s.PlayState.IsPaused != nil && *s.PlayState.IsPaused {
		return false
	}
	return true
}

// Sessions возвращает сэмплы по активным «в эфире» сессиям.
// При любом сетевом сбое возвращается common.ErrCollectionFailed:
// вызывающий трактует это как «нет данных в этом цикле», не как ноль.
func (c *EmbyClient) Sessions(ctx context.Context, creditSeconds int64) ([]WatchSample, error) {
	if !c.Configured() {
		return nil, common.ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/Sessions?api_key=%s&ActiveWithinSeconds=600",
		c.baseURL, url.QueryEscape(c.apiToken))

	var sessions []embySession
	if err := c.getJSON(ctx, endpoint, &sessions); err != nil {
		return nil, fmt.Errorf("%w: сессии emby: %v", common.ErrCollectionFailed, err)
	}

	now := time.Now()
	var samples []WatchSample
	for _, s := range sessions {
		if s.UserID == "" || !s.playing() {
			continue
		}
		samples = append(samples, WatchSample{
			Platform:      identity.Emby,
			AccountID:     s.UserID,
			Username:      s.UserName,
			ObservedAt:    now,
			ActiveSeconds: creditSeconds,
		})
	}
	return samples, nil
}

// AuthoritativeTotals возвращает накопленные к моменту before часы
// просмотра всех аккаунтов по данным PlaybackActivity (время пауз
// вычитается).
func (c *EmbyClient) AuthoritativeTotals(ctx context.Context, before time.Time) (map[string]float64, error) {
	beforeStr := before.Format(embyTimeLayout)
	if err := validateTimeBound(beforeStr); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT UserId, SUM(PlayDuration - PauseDuration) AS WatchTime "+
			"FROM PlaybackActivity WHERE DateCreated < '%s' GROUP BY UserId",
		beforeStr,
	)
	rows, err := c.customQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return rowsToHours(rows), nil
}

// WindowHours возвращает часы просмотра каждого аккаунта за интервал
// [start, end). Используется рейтингом как первичный источник.
func (c *EmbyClient) WindowHours(ctx context.Context, start, end time.Time) ([]WindowRow, error) {
	startStr := start.Format(embyTimeLayout)
	endStr := end.Format(embyTimeLayout)
	// Плагин принимает только литеральный SQL, поэтому перед интерполяцией
	// обе границы (они приходят из серверных часов, не от пользователя)
	// проверяются на строгое соответствие формату.
	if err := validateTimeBound(startStr); err != nil {
		return nil, err
	}
	if err := validateTimeBound(endStr); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT UserId, SUM(PlayDuration - PauseDuration) AS WatchTime "+
			"FROM PlaybackActivity "+
			"WHERE DateCreated >= '%s' AND DateCreated < '%s' "+
			"GROUP BY UserId ORDER BY WatchTime DESC",
		startStr, endStr,
	)

	rows, err := c.customQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make([]WindowRow, 0, len(rows))
	for id, hours := range rowsToHours(rows) {
		out = append(out, WindowRow{AccountID: id, Hours: hours})
	}
	return out, nil
}

type embyUser struct {
	ID     string `json:"Id"`
	Name   string `json:"Name"`
	Policy *struct {
		IsDisabled bool `json:"IsDisabled"`
	} `json:"Policy"`
}

// Users возвращает список аккаунтов сервера для синхронизации справочника.
func (c *EmbyClient) Users(ctx context.Context) ([]identity.AccountInfo, error) {
	if !c.Configured() {
		return nil, common.ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/Users?api_key=%s", c.baseURL, url.QueryEscape(c.apiToken))
	var users []embyUser
	if err := c.getJSON(ctx, endpoint, &users); err != nil {
		return nil, fmt.Errorf("%w: пользователи emby: %v", common.ErrCollectionFailed, err)
	}

	infos := make([]identity.AccountInfo, 0, len(users))
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		infos = append(infos, identity.AccountInfo{
			AccountID: u.ID,
			Username:  u.Name,
			IsPremium: false,
		})
	}
	return infos, nil
}

// customQuery выполняет запрос к плагину статистики, перебирая
// эквивалентные пути в фиксированном порядке предпочтения.
// Принимается первый корректный непустой ответ; если все пути
// отказали или пусты — common.ErrNoAuthoritativeData, и вызывающий
// обязан перейти на локально накопленные сэмплы.
func (c *EmbyClient) customQuery(ctx context.Context, query string) ([][2]json.RawMessage, error) {
	if !c.Configured() {
		return nil, common.ErrNotConfigured
	}

	body, err := json.Marshal(map[string]any{
		"CustomQueryString": query,
		"ReplaceUserId":     true,
	})
	if err != nil {
		return nil, fmt.Errorf("сериализация запроса статистики: %w", err)
	}

	for _, path := range embyStatsPaths {
		endpoint := fmt.Sprintf("%s%s?api_key=%s", c.baseURL, path, url.QueryEscape(c.apiToken))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			continue
		}
		var payload struct {
			Results [][2]json.RawMessage `json:"results"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || decodeErr != nil {
			continue
		}
		if len(payload.Results) > 0 {
			return payload.Results, nil
		}
	}
	return nil, common.ErrNoAuthoritativeData
}

// rowsToHours переводит строки ответа плагина [UserId, секунды] в часы.
func rowsToHours(rows [][2]json.RawMessage) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		var id string
		if err := json.Unmarshal(row[0], &id); err != nil || id == "" {
			continue
		}
		var seconds float64
		if err := json.Unmarshal(row[1], &seconds); err != nil {
			continue
		}
		out[id] = seconds / 3600.0
	}
	return out
}

// validateTimeBound строго проверяет временную границу перед
// интерполяцией в литеральный SQL плагина.
func validateTimeBound(s string) error {
	if _, err := time.Parse(embyTimeLayout, s); err != nil {
		return fmt.Errorf("некорректная временная граница %q: %w", s, err)
	}
	return nil
}

// getJSON выполняет GET и декодирует JSON-ответ.
func (c *EmbyClient) getJSON(ctx context.Context, endpoint string, dst any) error {
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
	return json.NewDecoder(resp.Body).Decode(dst)
}
