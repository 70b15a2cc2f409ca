// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: форматирование GP, работа с опорным часовым поясом.
package common

import (
	"fmt"
	"time"
)

// FormatGP форматирует сумму GP в читабельную строку.
// Пример: FormatGP(15000) → "15000 GP"
func FormatGP(amount int64) string {
	return fmt.Sprintf("%d GP", amount)
}

// DayBounds возвращает начало и конец календарного дня, в который попадает
// момент t в часовом поясе loc. Используется для проверки «уже получен ли
// бонус сегодня»: интервал [from, to) сравнивается с expire_at записей.
func DayBounds(t time.Time, loc *time.Location) (from, to time.Time) {
	local := t.In(loc)
	from = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	to = from.AddDate(0, 0, 1)
	return from, to
}

// FormatDateTime форматирует время для вывода пользователю.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02 15:04")
}

// GalleryURL собирает ссылку на галерею по id и токену.
func GalleryURL(galleryID, token string) string {
	return fmt.Sprintf("https://e-hentai.org/g/%s/%s/", galleryID, token)
}
