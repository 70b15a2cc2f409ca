// Package users управляет пользователями бота: регистрацией, ролями, API-ключами.
// models.go описывает структуры данных для работы с таблицей users.
package users

import "time"

// Роли пользователей.
// Пользователь с узлами получает роль RoleWorkerProvider,
// заблокированный — RoleBlocked (никакие запросы не обслуживаются).
const (
	RoleOrdinary       = "ordinary"
	RoleWorkerProvider = "worker-provider"
	RoleBlocked        = "blocked"
)

// User представляет пользователя в базе данных.
// Создаётся при первом контакте с ботом и никогда не удаляется.
type User struct {
	ID        int64     `db:"id"`         // Telegram user ID (первичный ключ)
	Name      string    `db:"name"`       // Отображаемое имя
	APIKey    string    `db:"apikey"`     // UUID для доступа к HTTP API
	Role      string    `db:"role"`       // ordinary / worker-provider / blocked
	CreatedAt time.Time `db:"created_at"` // Когда запись создана
	UpdatedAt time.Time `db:"updated_at"` // Последнее обновление записи
}

// IsBlocked сообщает, находится ли пользователь в чёрном списке.
func (u *User) IsBlocked() bool {
	return u.Role == RoleBlocked
}
