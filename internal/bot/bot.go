// Package bot содержит главный модуль бота — инициализацию, запуск и остановку.
// bot.go подключает обработчики фич и запускает polling.
// Бот работает только в личке: групповые чаты игнорируются.
package bot

import (
	"context"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/bot/middleware"
	"arbot.ru/archive-bot/internal/config"
	"arbot.ru/archive-bot/internal/features/admin"
	"arbot.ru/archive-bot/internal/features/ledger"
	"arbot.ru/archive-bot/internal/features/resolver"
	"arbot.ru/archive-bot/internal/features/users"
	"arbot.ru/archive-bot/internal/features/workers"
)

// galleryLinkRe вылавливает ссылку на галерею из текста сообщения.
var galleryLinkRe = regexp.MustCompile(`https?://e[-x]hentai\.org/g/(\d+)/([0-9a-f]{10})`)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	rateLimiter *middleware.RateLimiter

	userService     *users.Service
	userHandler     *users.Handler
	ledgerHandler   *ledger.Handler
	workerHandler   *workers.Handler
	resolverHandler *resolver.Handler
	adminHandler    *admin.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	userService *users.Service,
	userHandler *users.Handler,
	ledgerHandler *ledger.Handler,
	workerHandler *workers.Handler,
	resolverHandler *resolver.Handler,
	adminHandler *admin.Handler,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:             api,
		cfg:             cfg,
		rateLimiter:     middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		userService:     userService,
		userHandler:     userHandler,
		ledgerHandler:   ledgerHandler,
		workerHandler:   workerHandler,
		resolverHandler: resolverHandler,
		adminHandler:    adminHandler,
		parser:          NewCommandParser(),
		inflight:        make(chan struct{}, maxInFlight),
	}
}

// RateLimiter отдаёт лимитер бота (его чистит крон).
func (b *Bot) RateLimiter() *middleware.RateLimiter {
	return b.rateLimiter
}

// Start запускает polling обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	// Кнопки загрузки
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil || update.Message.Text == "" || update.Message.From == nil {
		return
	}

	message := update.Message
	middleware.LogMessage(message)

	// Работаем только в личке
	if !message.Chat.IsPrivate() {
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	if !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	// EnsureUser — ошибки нельзя игнорировать, иначе потом будет "оно не работает"
	if _, err := b.userService.EnsureUser(ctx, userID, displayName(message.From)); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureUser failed")
	}

	// Админ-панель перехватывает свои сообщения (включая шаги диалога)
	if b.adminHandler.HandleAdminMessage(ctx, chatID, userID, message.Text) {
		return
	}

	// Ссылка на галерею — карточка с кнопками загрузки
	if m := galleryLinkRe.FindStringSubmatch(message.Text); m != nil {
		b.resolverHandler.HandleGalleryLink(ctx, chatID, userID, m[1], m[2])
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if isCommand {
		b.routeCommand(ctx, chatID, userID, message.From, cmd, args)
	}
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, from *tgbotapi.User, cmd string, args []string) {
	switch cmd {
	case "start", "help":
		b.userHandler.HandleStart(ctx, chatID, userID, displayName(from))

	case "apikey":
		b.userHandler.HandleAPIKey(ctx, chatID, userID, args)

	case "checkin":
		b.ledgerHandler.HandleCheckin(ctx, chatID, userID)

	case "balance":
		b.ledgerHandler.HandleBalance(ctx, chatID, userID)

	case "history":
		b.resolverHandler.HandleHistory(ctx, chatID, userID)

	case "addnode":
		b.workerHandler.HandleAddNode(ctx, chatID, userID, args)

	case "delnode":
		b.workerHandler.HandleDelNode(ctx, chatID, userID, args)

	case "stopnode":
		b.workerHandler.HandleStopNode(ctx, chatID, userID, args)

	case "startnode":
		b.workerHandler.HandleStartNode(ctx, chatID, userID, args)

	case "nodes":
		b.workerHandler.HandleNodes(ctx, chatID, userID)
	}
}

// handleCallback обрабатывает нажатия inline-кнопок.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	if !b.rateLimiter.Allow(cb.From.ID) {
		log.WithField("user_id", cb.From.ID).Debug("rate limited (callback)")
		return
	}
	b.resolverHandler.HandleDownloadCallback(ctx, cb)
}

// SendMessageToUser отправляет сообщение пользователю (уведомления о узлах).
func (b *Bot) SendMessageToUser(userID int64, text string) {
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("Не удалось отправить сообщение")
	}
}

// displayName собирает отображаемое имя пользователя.
func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// CommandParser парсит команды с префиксом /.
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// "/addnode http://x" → ("addnode", ["http://x"], true).
// Суффикс @botname отрезается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix || text == "" {
		return "", nil, false
	}

	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd, fields[1:], true
}
