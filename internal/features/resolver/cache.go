// Package resolver — cache.go хранит готовые ссылки на архивы.
// Кэш процессный: ссылки живут сутки, при рестарте теряются — это нормально,
// повторный резолв просто снова сходит на узел. Ключ — пара «пользователь|галерея»,
// потому что ссылка персональная и тарифицируется на конкретный счёт.
package resolver

import (
	"sync"
	"time"
)

type cacheEntry struct {
	url       string
	cost      int64
	expiresAt time.Time
}

// ResultCache — потокобезопасный кэш готовых ссылок.
type ResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

// NewResultCache создаёт кэш с заданным временем жизни записей.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get возвращает ссылку и стоимость, если запись жива.
func (c *ResultCache) Get(key string) (string, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", 0, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", 0, false
	}
	return e.url, e.cost, true
}

// Set записывает готовую ссылку.
func (c *ResultCache) Set(key, url string, cost int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		url:       url,
		cost:      cost,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Cleanup удаляет протухшие записи, возвращает их количество.
// Запускается кроном; Get и сам лениво выкидывает протухшее,
// чистка нужна только чтобы карта не росла от брошенных ключей.
func (c *ResultCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len возвращает текущий размер кэша (для логов и отладки).
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
