// Package admin реализует админ-панель с парольной аутентификацией.
// models.go описывает структуры сессий и попыток входа.
package admin

import "time"

// Session — активная сессия администратора.
type Session struct {
	ID              int64
	UserID          int64
	SessionToken    string
	AuthenticatedAt time.Time
	ExpiresAt       time.Time
	LastActivity    time.Time
	IsActive        bool
}

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	ID          int64
	UserID      int64
	AttemptTime time.Time
	Success     bool
}

// DialogState — состояние диалога с админом (конечный автомат).
// Админ-панель работает по шагам: выбор действия → выбор пользователя → ввод суммы.
type DialogState struct {
	State     string      // Текущее состояние ("", "awaiting_password", "grant_amount", ...)
	Data      interface{} // Данные контекста (например, выбранный пользователь)
	ExpiresAt time.Time   // Когда состояние истекает (5 минут)
}

// Возможные состояния админ-диалога
const (
	StateNone             = ""                  // Нет активного состояния
	StateAwaitingPassword = "awaiting_password" // Ждём пароль
	StateGrantUser        = "grant_user"        // Ждём ID пользователя для начисления
	StateGrantAmount      = "grant_amount"      // Ждём сумму начисления
	StateResetUser        = "reset_user"        // Ждём ID пользователя для обнуления GP
	StateBlockUser        = "block_user"        // Ждём ID пользователя для блокировки
	StateUnblockUser      = "unblock_user"      // Ждём ID пользователя для разблокировки
)
