// Package resolver — models.go описывает запрос и результат резолва
// и таксономию кодов ответа. Код — единственное, на что обязан смотреть
// клиент; msg — человекочитаемое пояснение.
package resolver

import "time"

// Коды результата резолва. Используются и HTTP API, и ботом.
const (
	CodeOK            = 0  // Успех, ссылка в data
	CodeBadRequest    = 1  // Некорректный запрос
	CodeInvalidAPIKey = 2  // API-ключ не найден
	CodeBlocked       = 3  // Пользователь заблокирован
	CodeCostFailed    = 4  // Не удалось узнать стоимость архива
	CodeInsufficient  = 5  // Недостаточно GP
	CodeNoWorker      = 6  // Нет мощностей либо все узлы отказали
	CodeCheckedIn     = 7  // Сегодня бонус уже получен
	CodeInternal      = 99 // Внутренняя ошибка
)

// Request — запрос на получение ссылки на архив.
// Пользователь передаётся отдельно: его уже нашла и проверила
// авторизация (API-ключ либо Telegram ID).
type Request struct {
	GalleryID string
	Token     string
	Variant   string // org / res
	// Force пропускает кэш результатов (повторная загрузка)
	Force bool
}

// Result — итог резолва.
type Result struct {
	Code        int
	Msg         string
	DownloadURL string
	// RequireGP/CurrentGP заполняются при нехватке баланса (код 5)
	// и при успехе — фактически списанная сумма
	RequireGP int64
	CurrentGP int64
	// Cached — ссылка взята из кэша, обращения к узлам не было
	Cached bool
}

// HistoryEntry — запись истории загрузок.
// Ссылка на узел обнуляется при его удалении, сама запись остаётся.
type HistoryEntry struct {
	ID          int64
	UserID      int64
	GalleryID   string
	Token       string
	Variant     string
	Cost        int64
	WorkerID    *int64
	DownloadURL string
	CreatedAt   time.Time
}
