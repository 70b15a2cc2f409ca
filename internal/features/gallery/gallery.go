// Package gallery — адаптер к контент-сайту: стоимость архива и метаданные.
// Это внешний коллаборатор резолвера; внутри — только HTTP-клиент и парсинг,
// никакого состояния. Страница archiver.php отдаёт стоимость в GP либо
// размер архива (тогда стоимость считается по весу), api.php — метаданные.
package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	ehBaseURL = "https://e-hentai.org"
	exBaseURL = "https://exhentai.org"

	httpTimeout = 30 * time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
)

// ArchiveCost — стоимость архива в GP по вариантам качества.
type ArchiveCost struct {
	Org int64 // Оригинальные изображения
	Res int64 // Пересэмплированные
}

// ForVariant возвращает стоимость для варианта качества ("org" / "res").
func (c *ArchiveCost) ForVariant(variant string) int64 {
	if variant == "res" {
		return c.Res
	}
	return c.Org
}

// Metadata — метаданные галереи для карточки в боте.
type Metadata struct {
	Title     string
	TitleJpn  string
	Category  string
	Uploader  string
	FileCount string
	Rating    string
	Thumb     string
	Posted    time.Time
}

// Client ходит на контент-сайт.
type Client struct {
	baseURL    string
	cookie     string
	httpClient *http.Client
}

// NewClient создаёт адаптер. useEx включает зеркало для подписчиков —
// cookie обязана быть валидной, иначе сайт отдаёт пустую страницу.
func NewClient(cookie string, useEx bool) *Client {
	baseURL := ehBaseURL
	if useEx {
		baseURL = exBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		cookie:     cookie,
		httpClient: &http.Client{Timeout: httpTimeout},
	}
}

// ArchiveCost узнаёт стоимость архива галереи.
// Ошибки транспорта и парсинга равнозначны: резолвер отобразит их
// на «не удалось получить стоимость» и прервёт запрос до леджера.
func (c *Client) ArchiveCost(ctx context.Context, galleryID, token string) (*ArchiveCost, error) {
	url := fmt.Sprintf("%s/archiver.php?gid=%s&token=%s", c.baseURL, galleryID, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archiver.php недоступен: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	return ParseArchiverCosts(buf.String())
}

// gdataRequest/gdataResponse — формат официального JSON API сайта.
type gdataRequest struct {
	Method    string   `json:"method"`
	GidList   [][2]any `json:"gidlist"`
	Namespace int      `json:"namespace"`
}

type gdataResponse struct {
	GMetadata []struct {
		Title     string `json:"title"`
		TitleJpn  string `json:"title_jpn"`
		Category  string `json:"category"`
		Uploader  string `json:"uploader"`
		FileCount string `json:"filecount"`
		Rating    string `json:"rating"`
		Thumb     string `json:"thumb"`
		Posted    string `json:"posted"`
	} `json:"gmetadata"`
}

// Metadata запрашивает метаданные галереи через api.php.
func (c *Client) Metadata(ctx context.Context, galleryID, token string) (*Metadata, error) {
	gid, err := strconv.ParseInt(galleryID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("некорректный id галереи: %w", err)
	}

	payload, err := json.Marshal(gdataRequest{
		Method:    "gdata",
		GidList:   [][2]any{{gid, token}},
		Namespace: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api.php", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api.php недоступен: %w", err)
	}
	defer resp.Body.Close()

	var body gdataResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("некорректный ответ api.php: %w", err)
	}
	if len(body.GMetadata) == 0 {
		return nil, fmt.Errorf("галерея не найдена")
	}

	g := body.GMetadata[0]
	meta := &Metadata{
		Title:     g.Title,
		TitleJpn:  g.TitleJpn,
		Category:  g.Category,
		Uploader:  g.Uploader,
		FileCount: g.FileCount,
		Rating:    g.Rating,
		// Миниатюры с зеркала требуют cookie — подменяем хост на публичный CDN
		Thumb: strings.Replace(g.Thumb, "s.exhentai", "ehgt", 1),
	}
	if ts, err := strconv.ParseInt(g.Posted, 10, 64); err == nil {
		meta.Posted = time.Unix(ts, 0)
	}
	return meta, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
}

var strongRe = regexp.MustCompile(`<strong>([^<]*)</strong>`)

// ParseArchiverCosts извлекает стоимость архива из HTML archiver.php.
// Страница содержит пары <strong>: стоимость (или "Free!") и размер
// для каждого варианта. Если вариант бесплатный, стоимость считается
// по размеру архива.
func ParseArchiverCosts(html string) (*ArchiveCost, error) {
	matches := strongRe.FindAllStringSubmatch(html, -1)
	if len(matches) < 4 {
		return nil, fmt.Errorf("archiver.php вернул неожиданную разметку")
	}

	values := make([]string, 0, len(matches))
	for _, m := range matches {
		values = append(values, strings.TrimSpace(m[1]))
	}

	cost := &ArchiveCost{}
	var err error

	// Порядок на странице: [стоимость org, размер org, стоимость res, размер res]
	if values[2] == "Free!" {
		if cost.Org, err = SizeToGP(values[1]); err != nil {
			return nil, err
		}
		if cost.Res, err = SizeToGP(values[3]); err != nil {
			return nil, err
		}
		return cost, nil
	}

	if cost.Org, err = digitsToInt(values[0]); err != nil {
		return nil, err
	}
	if cost.Res, err = digitsToInt(values[2]); err != nil {
		return nil, err
	}
	return cost, nil
}

var sizeRe = regexp.MustCompile(`^(\d+\.?\d*)\s*(\w+)?$`)

// SizeToGP переводит строку размера архива («524.28 MiB») в стоимость GP.
// Сайт берёт 21 GP за MiB.
func SizeToGP(s string) (int64, error) {
	m := sizeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("некорректный размер архива: %q", s)
	}

	size, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный размер архива: %q", s)
	}

	unit := strings.ToLower(m[2])
	factors := map[string]float64{
		"":    1,
		"mib": 1,
		"gib": 1024,
		"kib": 1.0 / 1024,
		"gb":  1024 / 1.048576,
		"mb":  1 / 1.048576,
		"kb":  1 / 1024 / 1.048576,
	}
	factor, ok := factors[unit]
	if !ok {
		return 0, fmt.Errorf("неизвестная единица размера: %q", unit)
	}

	const gpPerMiB = 21
	return int64(size*factor*gpPerMiB + 0.5), nil
}

func digitsToInt(s string) (int64, error) {
	var b strings.Builder
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("не удалось выделить стоимость из %q", s)
	}
	return strconv.ParseInt(b.String(), 10, 64)
}
