// Package config загружает конфигурацию бота из переменных окружения.
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
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS" default:""`
	AdminIDs         []int64 `envconfig:"-"` // заполняется вручную из AdminIDsRaw

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"archive_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	// Опорный часовой пояс: в нём считаются календарные сутки чекина
	// и расписание cron-задач.
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Asia/Shanghai"`

	// --- HTTP API ---
	APIListenAddr string `envconfig:"API_LISTEN_ADDR" default:":4656"`
	// Редирект с корня API на бота
	APIBotURL string `envconfig:"API_BOT_URL" default:"https://t.me/EH_ArBot"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт" = утечка памяти при флуде.
	BotMaxInflight          int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Admin ---
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`

	// --- Ledger ---
	CheckinBonusMin int64 `envconfig:"CHECKIN_BONUS_MIN" default:"10000"`
	CheckinBonusMax int64 `envconfig:"CHECKIN_BONUS_MAX" default:"20000"`
	// Срок жизни бонуса за чекин
	CheckinExpireDays int `envconfig:"CHECKIN_EXPIRE_DAYS" default:"7"`

	// --- Workers ---
	// Интервал опроса узлов задаётся cron-выражением (по умолчанию ежечасно)
	WorkerProbeSpec    string        `envconfig:"WORKER_PROBE_SPEC" default:"0 * * * *"`
	WorkerProbeTimeout time.Duration `envconfig:"WORKER_PROBE_TIMEOUT" default:"15s"`
	// Порог GP-резерва, ниже которого узел считается low-balance
	WorkerLowBalanceGP int64 `envconfig:"WORKER_LOW_BALANCE_GP" default:"50000"`

	// --- Resolver ---
	ResolveTimeout time.Duration `envconfig:"RESOLVE_TIMEOUT" default:"60s"`
	ResultCacheTTL time.Duration `envconfig:"RESULT_CACHE_TTL" default:"24h"`

	// --- Rate Limiting (HTTP API) ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Location возвращает опорный часовой пояс приложения.
// Если пояс не загрузился — UTC+8 (как в Asia/Shanghai, без переходов).
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

func (c *Config) Validate() error {
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.CheckinBonusMin <= 0 || c.CheckinBonusMax < c.CheckinBonusMin {
		return fmt.Errorf("некорректный диапазон CHECKIN_BONUS_MIN/MAX")
	}
	if c.CheckinExpireDays <= 0 {
		return fmt.Errorf("CHECKIN_EXPIRE_DAYS должен быть > 0")
	}
	if c.ResolveTimeout <= 0 || c.ResultCacheTTL <= 0 {
		return fmt.Errorf("некорректные RESOLVE_TIMEOUT/RESULT_CACHE_TTL")
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
