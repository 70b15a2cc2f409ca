// Package workers — handlers.go обрабатывает команды владельцев узлов:
// /addnode, /delnode, /nodes, /stopnode, /startnode.
package workers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/common"
)

// Handler обрабатывает команды управления узлами.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик команд узлов.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// statusEmoji — отображение статуса узла в списках.
var statusEmoji = map[string]string{
	StatusHealthy:         "🟢",
	StatusQuotaExhausted:  "🟡",
	StatusSiteUnreachable: "🔴",
	StatusLowBalance:      "🟠",
	StatusNetworkError:    "🔴",
	StatusSuspended:       "⏸",
}

// HandleAddNode обрабатывает /addnode <url>.
// Узел пробуется до записи: если не отвечает — регистрации нет.
func (h *Handler) HandleAddNode(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Формат: /addnode <url>")
		return
	}

	rawURL := strings.TrimRight(args[0], "/")
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		h.sendMessage(chatID, "❌ Укажите корректный http(s)-адрес узла")
		return
	}

	w, err := h.service.Register(ctx, userID, rawURL)
	if err != nil {
		if errors.Is(err, common.ErrProbeFailed) {
			h.sendMessage(chatID, "❌ Узел не ответил на проверочный запрос, регистрация отменена")
			return
		}
		log.WithError(err).WithField("user_id", userID).Error("Ошибка регистрации узла")
		h.sendMessage(chatID, "❌ Не удалось зарегистрировать узел")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf(
		"✅ Узел #%d зарегистрирован\nСтатус: %s %s\nСайт: %s, GP-резерв: %s",
		w.ID, statusEmoji[w.Status], w.Status, w.SiteLabel, common.FormatGP(w.GPBalance)))
}

// HandleDelNode обрабатывает /delnode <id>.
func (h *Handler) HandleDelNode(ctx context.Context, chatID, userID int64, args []string) {
	id, ok := h.parseNodeID(chatID, args, "/delnode <id>")
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, userID, id); err != nil {
		h.replyOwnershipError(chatID, err, "Ошибка удаления узла")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🗑 Узел #%d удалён", id))
}

// HandleStopNode обрабатывает /stopnode <id> — останавливает узел.
func (h *Handler) HandleStopNode(ctx context.Context, chatID, userID int64, args []string) {
	id, ok := h.parseNodeID(chatID, args, "/stopnode <id>")
	if !ok {
		return
	}

	if err := h.service.Suspend(ctx, userID, id); err != nil {
		h.replyOwnershipError(chatID, err, "Ошибка остановки узла")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("⏸ Узел #%d остановлен. Запустить: /startnode %d", id, id))
}

// HandleStartNode обрабатывает /startnode <id> — снова запускает узел.
func (h *Handler) HandleStartNode(ctx context.Context, chatID, userID int64, args []string) {
	id, ok := h.parseNodeID(chatID, args, "/startnode <id>")
	if !ok {
		return
	}

	if err := h.service.Resume(ctx, userID, id); err != nil {
		h.replyOwnershipError(chatID, err, "Ошибка запуска узла")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("▶️ Узел #%d запущен, статус уточнит ближайшая проба", id))
}

// HandleNodes обрабатывает /nodes — список узлов владельца.
func (h *Handler) HandleNodes(ctx context.Context, chatID, userID int64) {
	list, err := h.service.ListByOwner(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения списка узлов")
		h.sendMessage(chatID, "❌ Ошибка получения списка узлов")
		return
	}

	if len(list) == 0 {
		h.sendMessage(chatID, "У вас нет узлов. Добавить: /addnode <url>")
		return
	}

	var sb strings.Builder
	sb.WriteString("Ваши узлы:\n")
	for _, w := range list {
		fmt.Fprintf(&sb, "%s #%d %s\n   статус: %s, GP-резерв: %s\n",
			statusEmoji[w.Status], w.ID, w.URL, w.Status, common.FormatGP(w.GPBalance))
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) parseNodeID(chatID int64, args []string, usage string) (int64, bool) {
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Формат: "+usage)
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		h.sendMessage(chatID, "❌ ID узла — положительное число")
		return 0, false
	}
	return id, true
}

func (h *Handler) replyOwnershipError(chatID int64, err error, logMsg string) {
	switch {
	case errors.Is(err, common.ErrWorkerNotFound):
		h.sendMessage(chatID, "❌ Узел не найден")
	case errors.Is(err, common.ErrNotWorkerOwner):
		h.sendMessage(chatID, "❌ Это не ваш узел")
	default:
		log.WithError(err).Error(logMsg)
		h.sendMessage(chatID, "❌ "+logMsg)
	}
}

// sendMessage — утилита для отправки сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
