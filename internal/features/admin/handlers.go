// Package admin — handlers.go обрабатывает диалог админ-панели в личке:
// авторизацию по паролю и пошаговые действия (начисления, блокировки).
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/common"
	"arbot.ru/archive-bot/internal/features/workers"
)

const panelText = `🛠 Админ-панель:
/grant — начислить GP
/resetgp — обнулить GP
/block — заблокировать пользователя
/unblock — разблокировать
/users — список пользователей
/allnodes — все узлы
/logout — выйти`

// Handler обрабатывает сообщения админ-панели.
type Handler struct {
	service *Service
	workers *workers.Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик админ-панели.
func NewHandler(service *Service, workersService *workers.Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, workers: workersService, bot: bot}
}

// HandleAdminMessage обрабатывает сообщение в контексте админ-диалога.
// Возвращает true, если сообщение было адресовано панели —
// тогда остальной конвейер бота его не трогает.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID, userID int64, text string) bool {
	if !h.service.IsAdmin(userID) {
		return false
	}

	text = strings.TrimSpace(text)

	// Шаги активного диалога имеют приоритет над командами
	if state := h.service.GetState(userID); state != nil {
		return h.handleState(ctx, chatID, userID, state, text)
	}

	switch text {
	case "/admin":
		if !h.service.HasActiveSession(ctx, userID) {
			h.service.SetState(userID, StateAwaitingPassword, nil)
			h.sendMessage(chatID, "🔐 Введите пароль администратора:")
			return true
		}
		h.sendMessage(chatID, panelText)
		return true

	case "/grant", "/resetgp", "/block", "/unblock", "/users", "/allnodes", "/logout":
		if !h.service.HasActiveSession(ctx, userID) {
			h.sendMessage(chatID, "🔐 Сессия не активна, выполните /admin")
			return true
		}
		h.handlePanelCommand(ctx, chatID, userID, text)
		return true
	}

	return false
}

func (h *Handler) handlePanelCommand(ctx context.Context, chatID, userID int64, cmd string) {
	switch cmd {
	case "/grant":
		h.service.SetState(userID, StateGrantUser, nil)
		h.sendMessage(chatID, "Введите Telegram ID пользователя для начисления:")

	case "/resetgp":
		h.service.SetState(userID, StateResetUser, nil)
		h.sendMessage(chatID, "Введите Telegram ID пользователя для обнуления GP:")

	case "/block":
		h.service.SetState(userID, StateBlockUser, nil)
		h.sendMessage(chatID, "Введите Telegram ID пользователя для блокировки:")

	case "/unblock":
		h.service.SetState(userID, StateUnblockUser, nil)
		h.sendMessage(chatID, "Введите Telegram ID пользователя для разблокировки:")

	case "/users":
		h.showUsers(ctx, chatID)

	case "/allnodes":
		h.showNodes(ctx, chatID)

	case "/logout":
		if err := h.service.Logout(ctx, userID); err != nil {
			log.WithError(err).Error("Ошибка выхода из админ-панели")
		}
		h.sendMessage(chatID, "👋 Сессия завершена")
	}
}

// handleState обрабатывает очередной шаг пошагового диалога.
func (h *Handler) handleState(ctx context.Context, chatID, userID int64, state *DialogState, text string) bool {
	if text == "/cancel" {
		h.service.ClearState(userID)
		h.sendMessage(chatID, "Действие отменено")
		return true
	}

	switch state.State {
	case StateAwaitingPassword:
		h.service.ClearState(userID)
		if err := h.service.VerifyPassword(ctx, userID, text); err != nil {
			switch {
			case errors.Is(err, common.ErrTooManyAttempts):
				h.sendMessage(chatID, "⛔ "+common.ErrTooManyAttempts.Error())
			case errors.Is(err, common.ErrWrongPassword):
				h.sendMessage(chatID, "❌ Неверный пароль")
			default:
				log.WithError(err).Error("Ошибка авторизации администратора")
				h.sendMessage(chatID, "❌ Ошибка авторизации")
			}
			return true
		}
		h.sendMessage(chatID, "✅ Авторизация успешна\n\n"+panelText)
		return true

	case StateGrantUser:
		target, ok := h.parseUserID(chatID, text)
		if !ok {
			return true
		}
		h.service.SetState(userID, StateGrantAmount, target)
		h.sendMessage(chatID, "Введите сумму GP:")
		return true

	case StateGrantAmount:
		target, _ := state.Data.(int64)
		h.service.ClearState(userID)

		amount, err := strconv.ParseInt(text, 10, 64)
		if err != nil || amount <= 0 {
			h.sendMessage(chatID, "❌ Сумма должна быть положительным числом")
			return true
		}
		if _, err := h.service.GrantGP(ctx, userID, target, amount); err != nil {
			if errors.Is(err, common.ErrUserNotFound) {
				h.sendMessage(chatID, "❌ Пользователь не найден")
			} else {
				log.WithError(err).Error("Ошибка админ-начисления")
				h.sendMessage(chatID, "❌ Не удалось начислить GP")
			}
			return true
		}
		h.sendMessage(chatID, fmt.Sprintf("✅ Пользователю %d начислено %s", target, common.FormatGP(amount)))
		return true

	case StateResetUser:
		target, ok := h.parseUserID(chatID, text)
		h.service.ClearState(userID)
		if !ok {
			return true
		}
		if err := h.service.ResetGP(ctx, userID, target); err != nil {
			log.WithError(err).Error("Ошибка обнуления GP")
			h.sendMessage(chatID, "❌ Не удалось обнулить GP")
			return true
		}
		h.sendMessage(chatID, fmt.Sprintf("✅ GP пользователя %d обнулены", target))
		return true

	case StateBlockUser, StateUnblockUser:
		target, ok := h.parseUserID(chatID, text)
		blocking := state.State == StateBlockUser
		h.service.ClearState(userID)
		if !ok {
			return true
		}

		var err error
		if blocking {
			err = h.service.BlockUser(ctx, userID, target)
		} else {
			err = h.service.UnblockUser(ctx, userID, target)
		}
		if err != nil {
			if errors.Is(err, common.ErrUserNotFound) {
				h.sendMessage(chatID, "❌ Пользователь не найден")
			} else {
				log.WithError(err).Error("Ошибка смены блокировки")
				h.sendMessage(chatID, "❌ Не удалось изменить блокировку")
			}
			return true
		}
		if blocking {
			h.sendMessage(chatID, fmt.Sprintf("🚫 Пользователь %d заблокирован", target))
		} else {
			h.sendMessage(chatID, fmt.Sprintf("✅ Пользователь %d разблокирован", target))
		}
		return true
	}

	h.service.ClearState(userID)
	return false
}

func (h *Handler) showUsers(ctx context.Context, chatID int64) {
	list, err := h.service.ListUsers(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения списка пользователей")
		h.sendMessage(chatID, "❌ Ошибка получения списка")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Пользователи (%d):\n", len(list))
	for _, u := range list {
		fmt.Fprintf(&sb, "• %d %s [%s]\n", u.ID, u.Name, u.Role)
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) showNodes(ctx context.Context, chatID int64) {
	list, err := h.workers.List(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения списка узлов")
		h.sendMessage(chatID, "❌ Ошибка получения списка")
		return
	}

	if len(list) == 0 {
		h.sendMessage(chatID, "Узлов нет")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Все узлы (%d):\n", len(list))
	for _, w := range list {
		fmt.Fprintf(&sb, "• #%d владелец %d [%s] %s\n", w.ID, w.ProviderID, w.Status, w.URL)
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) parseUserID(chatID int64, text string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		h.sendMessage(chatID, "❌ Telegram ID — положительное число. Отмена: /cancel")
		return 0, false
	}
	return id, true
}

// sendMessage — утилита для отправки сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
