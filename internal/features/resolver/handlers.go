// Package resolver — handlers.go обрабатывает галерейные ссылки в чате,
// кнопки загрузки и команду /history.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/common"
	"arbot.ru/archive-bot/internal/features/gallery"
	"arbot.ru/archive-bot/internal/features/users"
)

const historyLimit = 10

// GalleryInfo узнаёт метаданные галереи для карточки.
type GalleryInfo interface {
	Metadata(ctx context.Context, galleryID, token string) (*gallery.Metadata, error)
}

// Handler обрабатывает галерейные сообщения и кнопки загрузки.
type Handler struct {
	service *Service
	repo    *Repository
	users   *users.Service
	info    GalleryInfo
	bot     *tgbotapi.BotAPI
	loc     *time.Location
}

// NewHandler создаёт обработчик резолвера.
func NewHandler(service *Service, repo *Repository, usersService *users.Service,
	info GalleryInfo, bot *tgbotapi.BotAPI, loc *time.Location) *Handler {
	return &Handler{
		service: service,
		repo:    repo,
		users:   usersService,
		info:    info,
		bot:     bot,
		loc:     loc,
	}
}

// HandleGalleryLink отвечает карточкой галереи с кнопками загрузки.
// Вызывается, когда пользователь прислал ссылку на галерею.
func (h *Handler) HandleGalleryLink(ctx context.Context, chatID, userID int64, galleryID, token string) {
	meta, err := h.info.Metadata(ctx, galleryID, token)
	if err != nil {
		log.WithError(err).WithField("gallery_id", galleryID).Warn("Метаданные галереи не получены")
		h.sendMessage(chatID, "❌ Галерея не найдена или сайт недоступен")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📚 %s\n", meta.Title)
	if meta.TitleJpn != "" {
		fmt.Fprintf(&sb, "%s\n", meta.TitleJpn)
	}
	fmt.Fprintf(&sb, "\nКатегория: %s\nСтраниц: %s\nРейтинг: %s",
		meta.Category, meta.FileCount, meta.Rating)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬇️ Оригинал", callbackData("dl", galleryID, token, "org")),
			tgbotapi.NewInlineKeyboardButtonData("⬇️ Сжатый", callbackData("dl", galleryID, token, "res")),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Заново (без кэша)", callbackData("redl", galleryID, token, "org")),
		),
	)

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = keyboard
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки карточки галереи")
	}
}

// HandleDownloadCallback обрабатывает нажатие кнопки загрузки.
// Данные кнопки: "dl|<gid>|<token>|<variant>" либо "redl|..." для force.
func (h *Handler) HandleDownloadCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	parts := strings.Split(cb.Data, "|")
	if len(parts) != 4 || (parts[0] != "dl" && parts[0] != "redl") {
		h.answerCallback(cb.ID, "Устаревшая кнопка")
		return
	}

	userID := cb.From.ID
	chatID := cb.Message.Chat.ID

	u, err := h.users.EnsureUser(ctx, userID, cb.From.UserName)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка регистрации пользователя")
		h.answerCallback(cb.ID, "Ошибка, попробуйте позже")
		return
	}

	h.answerCallback(cb.ID, "Получаю ссылку...")

	res := h.service.Resolve(ctx, u, Request{
		GalleryID: parts[1],
		Token:     parts[2],
		Variant:   parts[3],
		Force:     parts[0] == "redl",
	})

	h.sendMessage(chatID, h.formatResult(res))
}

// formatResult переводит результат резолва в ответ для чата.
func (h *Handler) formatResult(res *Result) string {
	switch res.Code {
	case CodeOK:
		suffix := ""
		if res.Cached {
			suffix = "\n(ссылка из кэша, списания не было)"
		}
		return fmt.Sprintf("✅ Архив готов (%s):\n%s%s",
			common.FormatGP(res.RequireGP), res.DownloadURL, suffix)
	case CodeInsufficient:
		return fmt.Sprintf("❌ Недостаточно GP: нужно %s, на счёте %s\nПолучите бонус: /checkin",
			common.FormatGP(res.RequireGP), common.FormatGP(res.CurrentGP))
	case CodeCostFailed:
		return "❌ Не удалось узнать стоимость архива, попробуйте позже"
	case CodeNoWorker:
		return "❌ Сейчас нет свободных узлов, попробуйте позже"
	case CodeBlocked:
		return "❌ Ваш аккаунт заблокирован"
	default:
		return "❌ " + res.Msg
	}
}

// HandleHistory обрабатывает /history — последние загрузки.
func (h *Handler) HandleHistory(ctx context.Context, chatID, userID int64) {
	list, err := h.repo.ListByUser(ctx, userID, historyLimit)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения истории")
		h.sendMessage(chatID, "❌ Ошибка получения истории")
		return
	}

	if len(list) == 0 {
		h.sendMessage(chatID, "История загрузок пуста")
		return
	}

	var sb strings.Builder
	sb.WriteString("Последние загрузки:\n")
	for _, e := range list {
		fmt.Fprintf(&sb, "• %s — %s (%s)\n  %s\n",
			common.FormatDateTime(e.CreatedAt, h.loc),
			common.FormatGP(e.Cost), e.Variant,
			common.GalleryURL(e.GalleryID, e.Token))
	}
	h.sendMessage(chatID, sb.String())
}

func callbackData(action, galleryID, token, variant string) string {
	return strings.Join([]string{action, galleryID, token, variant}, "|")
}

func (h *Handler) answerCallback(callbackID, text string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.WithError(err).Debug("Не удалось ответить на коллбэк")
	}
}

// sendMessage — утилита для отправки сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
