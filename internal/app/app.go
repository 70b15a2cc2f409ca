// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы, обработчики
// и собирает бота, HTTP API и планировщик в один объект.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/api"
	"arbot.ru/archive-bot/internal/bot"
	"arbot.ru/archive-bot/internal/bot/middleware"
	"arbot.ru/archive-bot/internal/config"
	"arbot.ru/archive-bot/internal/db/postgres"
	"arbot.ru/archive-bot/internal/features/admin"
	"arbot.ru/archive-bot/internal/features/gallery"
	"arbot.ru/archive-bot/internal/features/ledger"
	"arbot.ru/archive-bot/internal/features/resolver"
	"arbot.ru/archive-bot/internal/features/users"
	"arbot.ru/archive-bot/internal/features/workers"
	"arbot.ru/archive-bot/internal/jobs"
	"arbot.ru/archive-bot/internal/workerapi"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	API       *api.Server
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	BotAPI    *tgbotapi.BotAPI
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

	// === 3. Репозитории ===
	userRepo := users.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	workerRepo := workers.NewRepository(pool)
	historyRepo := resolver.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 4. Клиенты и сервисы ===
	nodeClient := workerapi.NewClient(cfg.WorkerProbeTimeout, cfg.ResolveTimeout)
	galleryClient := gallery.NewClient("", false)

	userService := users.NewService(userRepo)
	ledgerService := ledger.NewService(ledgerRepo, cfg)
	monitor := workers.NewMonitor(workerRepo, nodeClient, cfg.WorkerLowBalanceGP)
	workerService := workers.NewService(workerRepo, userService, monitor)
	selector := workers.NewSelector(workerRepo)
	adminService := admin.NewService(adminRepo, userService, ledgerService, cfg)

	resultCache := resolver.NewResultCache(cfg.ResultCacheTTL)
	resolverService := resolver.NewService(
		resultCache, historyRepo, ledgerService,
		selector, monitor, nodeClient, galleryClient,
		cfg.ResolveTimeout,
	)

	// === 5. Обработчики ===
	userHandler := users.NewHandler(userService, botAPI)
	ledgerHandler := ledger.NewHandler(ledgerService, botAPI)
	workerHandler := workers.NewHandler(workerService, botAPI)
	resolverHandler := resolver.NewHandler(
		resolverService, historyRepo, userService, galleryClient, botAPI, cfg.Location())
	adminHandler := admin.NewHandler(adminService, workerService, botAPI)

	// === 6. Собираем бота ===
	b := bot.New(
		botAPI, cfg,
		userService, userHandler,
		ledgerHandler,
		workerHandler,
		resolverHandler,
		adminHandler,
	)

	// Монитор шлёт владельцам уведомления через бота
	monitor.SetNotifier(b.SendMessageToUser)

	// === 7. HTTP API ===
	apiLimiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	apiServer := api.NewServer(userService, ledgerService, resolverService, apiLimiter, cfg.APIBotURL)

	// === 8. Планировщик задач ===
	scheduler := jobs.NewScheduler(cfg, ledgerService, monitor, resultCache,
		b.RateLimiter(), apiLimiter)

	return &App{
		Bot:       b,
		API:       apiServer,
		Scheduler: scheduler,
		DB:        pool,
		BotAPI:    botAPI,
	}, nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.EnsureMigrationsTable(ctx, pool); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Users},
		{2, migration002GPRecords},
		{3, migration003Workers},
		{4, migration004ArchiveHistory},
		{5, migration005Admin},
	}

	for _, m := range migrations {
		if err := postgres.ApplyMigration(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id BIGINT PRIMARY KEY,
    name VARCHAR(255) NOT NULL DEFAULT '',
    apikey VARCHAR(64) UNIQUE NOT NULL,
    role VARCHAR(32) NOT NULL DEFAULT 'ordinary',
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_apikey ON users(apikey);
`

var migration002GPRecords = `
CREATE TABLE IF NOT EXISTS gp_records (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id),
    amount BIGINT NOT NULL,
    source VARCHAR(32) NOT NULL,
    expire_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_gp_records_user_expire ON gp_records(user_id, expire_at);
CREATE INDEX IF NOT EXISTS idx_gp_records_expire ON gp_records(expire_at);
`

var migration003Workers = `
CREATE TABLE IF NOT EXISTS workers (
    id BIGSERIAL PRIMARY KEY,
    provider_id BIGINT NOT NULL REFERENCES users(id),
    url TEXT NOT NULL,
    status VARCHAR(32) NOT NULL DEFAULT 'network-error',
    enable_gp_spend BOOLEAN NOT NULL DEFAULT FALSE,
    site_label VARCHAR(8) NOT NULL DEFAULT '',
    has_free_quota BOOLEAN NOT NULL DEFAULT FALSE,
    gp_balance BIGINT NOT NULL DEFAULT 0,
    credits_balance BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_workers_provider ON workers(provider_id);
CREATE INDEX IF NOT EXISTS idx_workers_status ON workers(status);
`

var migration004ArchiveHistory = `
CREATE TABLE IF NOT EXISTS archive_history (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id),
    gallery_id VARCHAR(32) NOT NULL,
    token VARCHAR(32) NOT NULL,
    variant VARCHAR(8) NOT NULL DEFAULT 'org',
    cost BIGINT NOT NULL DEFAULT 0,
    worker_id BIGINT REFERENCES workers(id) ON DELETE SET NULL,
    download_url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_archive_history_user ON archive_history(user_id, created_at DESC);
`

var migration005Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMPTZ DEFAULT NOW(),
    expires_at TIMESTAMPTZ,
    last_activity TIMESTAMPTZ DEFAULT NOW(),
    is_active BOOLEAN DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    attempt_time TIMESTAMPTZ DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_admin_attempts_user ON admin_login_attempts(user_id, attempt_time DESC);
`
