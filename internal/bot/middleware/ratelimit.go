// Package middleware — ratelimit.go ограничивает частоту запросов
// на пользователя скользящим окном. Используется и ботом, и HTTP API.
package middleware

import (
	"sync"
	"time"
)

// RateLimiter — потокобезопасный лимитер «N запросов за окно».
type RateLimiter struct {
	mu       sync.Mutex
	requests map[int64][]time.Time
	limit    int
	window   time.Duration
}

// NewRateLimiter создаёт лимитер: limit запросов за window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[int64][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow возвращает true, если запрос пользователя проходит под лимит,
// и регистрирует его в окне.
func (r *RateLimiter) Allow(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	// Выкидываем запросы, выпавшие из окна
	recent := r.requests[userID][:0]
	for _, t := range r.requests[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[userID] = recent
		return false
	}

	r.requests[userID] = append(recent, now)
	return true
}

// Cleanup удаляет пользователей без запросов в окне, чтобы карта не росла.
// Запускается периодически кроном.
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)
	for userID, times := range r.requests {
		active := false
		for _, t := range times {
			if t.After(cutoff) {
				active = true
				break
			}
		}
		if !active {
			delete(r.requests, userID)
		}
	}
}
