package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1), "четвёртый запрос в окне отклоняется")
}

func TestRateLimiter_PerUser(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(2), "лимит индивидуальный")
	assert.False(t, rl.Allow(1))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(1, 30*time.Millisecond)

	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, rl.Allow(1), "окно уехало, запрос снова проходит")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(5, 20*time.Millisecond)

	rl.Allow(1)
	rl.Allow(2)
	time.Sleep(40 * time.Millisecond)
	rl.Allow(3)

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.requests, 1)
	_, ok := rl.requests[3]
	assert.True(t, ok)
}
