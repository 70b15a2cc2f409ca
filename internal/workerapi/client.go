// Package workerapi — HTTP-клиент для общения с worker-нодами.
// Каждый узел отдаёт GET /status (снимок своего состояния) и
// POST /resolve (получение ссылки на архив). Формат снимка — фиксированная
// схема, узел сам сообщает доступность сайта, квоту и резервы GP.
package workerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusPayload — снимок состояния узла, который он сообщает о себе сам.
type StatusPayload struct {
	// Метка доступа к сайту: "EH", "EX" или пустая строка,
	// если узел не смог достучаться до сайта.
	SiteLabel      string `json:"site_label"`
	HasFreeQuota   bool   `json:"has_free_quota"`
	GPBalance      int64  `json:"gp_balance"`
	CreditsBalance int64  `json:"credits_balance"`
	// Разрешает ли узел тратить свои GP на чужие запросы
	EnableGPSpend bool `json:"enable_gp_spend"`
}

// ResolveRequest — запрос на получение ссылки от узла.
type ResolveRequest struct {
	Username  string `json:"username"`
	GalleryID string `json:"gid"`
	Token     string `json:"token"`
	Variant   string `json:"variant"` // org / res
}

// ResolveResult — ответ узла на /resolve.
// Вместе с результатом узел присылает свежий снимок состояния,
// который применяется обратно на запись узла.
type ResolveResult struct {
	OK          bool
	Message     string
	DownloadURL string
	RequireGP   int64
	Status      *StatusPayload
}

// resolveResponse — проводной формат ответа узла.
type resolveResponse struct {
	Msg         string         `json:"msg"`
	DownloadURL string         `json:"d_url"`
	RequireGP   int64          `json:"require_gp"`
	Status      *StatusPayload `json:"status"`
}

type statusResponse struct {
	Status *StatusPayload `json:"status"`
}

// Client ходит к worker-нодам по HTTP.
type Client struct {
	statusClient  *http.Client
	resolveClient *http.Client
}

// NewClient создаёт клиент с раздельными таймаутами:
// короткий на /status (проба), длинный на /resolve (узел качает архив).
func NewClient(probeTimeout, resolveTimeout time.Duration) *Client {
	return &Client{
		statusClient:  &http.Client{Timeout: probeTimeout},
		resolveClient: &http.Client{Timeout: resolveTimeout},
	}
}

// Status запрашивает у узла снимок состояния.
// Любая транспортная проблема (таймаут, обрыв, кривой JSON) — ошибка;
// вызывающий классифицирует её как network-error.
func (c *Client) Status(ctx context.Context, baseURL string) (*StatusPayload, error) {
	endpoint, err := url.JoinPath(baseURL, "/status")
	if err != nil {
		return nil, fmt.Errorf("некорректный URL узла: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	resp, err := c.statusClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("узел не ответил: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("узел вернул HTTP %d", resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("некорректный ответ узла: %w", err)
	}
	if body.Status == nil {
		return nil, fmt.Errorf("узел не прислал снимок состояния")
	}
	return body.Status, nil
}

// Resolve просит узел получить ссылку на архив.
// Транспортная ошибка возвращается как error; доменный отказ узла
// ("Failed"/"Rejected") — как ResolveResult с OK=false.
func (c *Client) Resolve(ctx context.Context, baseURL string, r ResolveRequest) (*ResolveResult, error) {
	endpoint, err := url.JoinPath(baseURL, "/resolve")
	if err != nil {
		return nil, fmt.Errorf("некорректный URL узла: %w", err)
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.resolveClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("узел не ответил: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("узел вернул HTTP %d", resp.StatusCode)
	}

	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("некорректный ответ узла: %w", err)
	}

	result := &ResolveResult{
		OK:        body.Msg == "Success",
		Message:   body.Msg,
		RequireGP: body.RequireGP,
		Status:    body.Status,
	}
	if result.OK {
		// Узел отдаёт ссылку с ?autostart=1 — вырезаем, как делал оригинальный бот
		result.DownloadURL = strings.Replace(body.DownloadURL, "?autostart=1", "", 1)
	}
	return result, nil
}
