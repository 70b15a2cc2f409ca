// Package middleware — middleware.go содержит обёртки конвейера обработки
// апдейтов Telegram: восстановление после паники и логирование сообщений.
package middleware

import (
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// RecoverFromPanic не даёт панике в обработчике уронить весь бот.
// Вызывается через defer в начале обработки апдейта.
func RecoverFromPanic() {
	if r := recover(); r != nil {
		log.WithFields(log.Fields{
			"panic": r,
			"stack": string(debug.Stack()),
		}).Error("Паника в обработчике апдейта")
	}
}

// LogMessage пишет в лог входящее сообщение.
func LogMessage(message *tgbotapi.Message) {
	if message == nil || message.From == nil {
		return
	}
	log.WithFields(log.Fields{
		"user_id": message.From.ID,
		"chat_id": message.Chat.ID,
		"text":    message.Text,
	}).Debug("Входящее сообщение")
}
