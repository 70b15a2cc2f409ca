// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и возвращать вызывающему понятный код ответа.
package common

import "errors"

// Ошибки леджера (GP, начисления, списания)
var (
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrInsufficientGP — недостаточно GP на счёте
	ErrInsufficientGP = errors.New("недостаточно GP на счёте")
	// ErrAlreadyCheckedIn — сегодня уже получен бонус за чекин
	ErrAlreadyCheckedIn = errors.New("сегодня бонус уже получен")
)

// Ошибки пользователей
var (
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrUserBlocked — пользователь в чёрном списке
	ErrUserBlocked = errors.New("пользователь заблокирован")
	// ErrInvalidAPIKey — API-ключ не найден или некорректен
	ErrInvalidAPIKey = errors.New("некорректный API-ключ")
)

// Ошибки узлов (worker-нод)
var (
	// ErrWorkerNotFound — узел не найден в базе
	ErrWorkerNotFound = errors.New("узел не найден")
	// ErrNotWorkerOwner — попытка управлять чужим узлом
	ErrNotWorkerOwner = errors.New("узел принадлежит другому пользователю")
	// ErrProbeFailed — узел не ответил на проверочный запрос
	ErrProbeFailed = errors.New("узел недоступен")
)

// Ошибки резолвера
var (
	// ErrCostDiscovery — не удалось узнать стоимость архива
	ErrCostDiscovery = errors.New("не удалось получить стоимость архива")
	// ErrNoCapacity — нет ни одного подходящего узла
	ErrNoCapacity = errors.New("нет доступных узлов")
	// ErrAllWorkersFailed — все узлы-кандидаты завершились ошибкой
	ErrAllWorkersFailed = errors.New("все узлы завершились ошибкой")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)
