// Package ledger — handlers.go обрабатывает команды:
// /checkin (ежедневный бонус), /balance (баланс и живые записи GP).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/common"
)

// Handler обрабатывает команды GP-счёта.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик команд леджера.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleCheckin обрабатывает /checkin.
//
// Формат ответа:
//
//	🎁 Начислено 15 000 GP (сгорят через 7 дней)
//	💰 Баланс: 42 000 GP
func (h *Handler) HandleCheckin(ctx context.Context, chatID, userID int64) {
	granted, balance, err := h.service.Checkin(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyCheckedIn) {
			h.sendMessage(chatID, fmt.Sprintf(
				"📅 Сегодня бонус уже получен\n💰 Баланс: %s", common.FormatGP(balance)))
			return
		}
		log.WithError(err).WithField("user_id", userID).Error("Ошибка чекина")
		h.sendMessage(chatID, "❌ Ошибка получения бонуса")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf(
		"🎁 Начислено %s (сгорят через %d дней)\n💰 Баланс: %s",
		common.FormatGP(granted), h.service.cfg.CheckinExpireDays, common.FormatGP(balance)))
}

// HandleBalance обрабатывает /balance — баланс и список живых записей
// с датами сгорания, ближайшие к сгоранию сверху.
func (h *Handler) HandleBalance(ctx context.Context, chatID, userID int64) {
	balance, err := h.service.Balance(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения баланса")
		h.sendMessage(chatID, "❌ Ошибка получения баланса")
		return
	}

	entries, err := h.service.ListEntries(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения записей GP")
		h.sendMessage(chatID, fmt.Sprintf("💰 Баланс: %s", common.FormatGP(balance)))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Баланс: %s\n", common.FormatGP(balance))
	if len(entries) > 0 {
		sb.WriteString("\nЗаписи (первыми сгорают верхние):\n")
		for _, e := range entries {
			fmt.Fprintf(&sb, "• %s — до %s\n",
				common.FormatGP(e.Amount), common.FormatDateTime(e.ExpireAt, h.service.loc))
		}
	}
	h.sendMessage(chatID, sb.String())
}

// sendMessage — утилита для отправки сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
