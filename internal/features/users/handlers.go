// Package users — handlers.go обрабатывает команды:
// /start (регистрация), /apikey (показ и перевыпуск API-ключа).
package users

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Handler обрабатывает команды управления аккаунтом.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик команд аккаунта.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleStart обрабатывает команду /start — приветствие и регистрация.
func (h *Handler) HandleStart(ctx context.Context, chatID, userID int64, name string) {
	if _, err := h.service.EnsureUser(ctx, userID, name); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка регистрации пользователя")
		h.sendMessage(chatID, "❌ Ошибка регистрации, попробуйте позже")
		return
	}

	h.sendMessage(chatID,
		"Привет! Я выдаю ссылки на архивы галерей.\n\n"+
			"Пришли мне ссылку на галерею — покажу карточку с кнопкой загрузки.\n\n"+
			"Команды:\n"+
			"/checkin — ежедневный бонус GP\n"+
			"/balance — баланс и записи GP\n"+
			"/history — последние загрузки\n"+
			"/apikey — API-ключ для внешних клиентов\n"+
			"/nodes — мои узлы")
}

// HandleAPIKey обрабатывает /apikey — показывает ключ.
// /apikey new — перевыпускает (старый перестаёт работать).
func (h *Handler) HandleAPIKey(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) > 0 && args[0] == "new" {
		key, err := h.service.RegenerateAPIKey(ctx, userID)
		if err != nil {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка перевыпуска API-ключа")
			h.sendMessage(chatID, "❌ Не удалось перевыпустить ключ")
			return
		}
		h.sendMessage(chatID, fmt.Sprintf("🔑 Новый API-ключ:\n`%s`\nСтарый ключ больше не работает.", key))
		return
	}

	u, err := h.service.GetByID(ctx, userID)
	if err != nil {
		h.sendMessage(chatID, "❌ Сначала выполните /start")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🔑 Ваш API-ключ:\n`%s`\n\nПеревыпустить: /apikey new", u.APIKey))
}

// sendMessage — утилита для отправки сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
