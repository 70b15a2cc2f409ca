package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbot.ru/archive-bot/internal/common"
)

func entry(id, amount int64, expireIn time.Duration) *Entry {
	return &Entry{ID: id, Amount: amount, ExpireAt: time.Now().Add(expireIn)}
}

func TestPlanDeduction_SoonestExpiryFirst(t *testing.T) {
	// Записи уже отсортированы по expire_at по возрастанию
	entries := []*Entry{
		entry(1, 30, time.Hour),
		entry(2, 50, 24*time.Hour),
		entry(3, 100, 48*time.Hour),
	}

	changes, deducted := PlanDeduction(entries, 60)
	require.Equal(t, int64(60), deducted)
	require.Len(t, changes, 2)

	// Первая запись тратится целиком, вторая — частично
	assert.Equal(t, int64(1), changes[0].ID)
	assert.Equal(t, int64(0), changes[0].NewAmount)
	assert.Equal(t, int64(2), changes[1].ID)
	assert.Equal(t, int64(20), changes[1].NewAmount)
}

func TestPlanDeduction_ExactAmount(t *testing.T) {
	entries := []*Entry{
		entry(1, 40, time.Hour),
		entry(2, 60, 2*time.Hour),
	}

	changes, deducted := PlanDeduction(entries, 100)
	require.Equal(t, int64(100), deducted)
	require.Len(t, changes, 2)
	assert.Equal(t, int64(0), changes[0].NewAmount)
	assert.Equal(t, int64(0), changes[1].NewAmount)
}

func TestPlanDeduction_InsufficientClipsAtZero(t *testing.T) {
	entries := []*Entry{
		entry(1, 10, time.Hour),
		entry(2, 15, 2*time.Hour),
	}

	changes, deducted := PlanDeduction(entries, 100)
	// Списывается всё, что есть; в минус записи не уходят
	assert.Equal(t, int64(25), deducted)
	for _, ch := range changes {
		assert.GreaterOrEqual(t, ch.NewAmount, int64(0))
	}
}

func TestPlanDeduction_SkipsEmptyEntries(t *testing.T) {
	entries := []*Entry{
		entry(1, 0, time.Hour),
		entry(2, 50, 2*time.Hour),
	}

	changes, deducted := PlanDeduction(entries, 20)
	require.Equal(t, int64(20), deducted)
	require.Len(t, changes, 1)
	assert.Equal(t, int64(2), changes[0].ID)
	assert.Equal(t, int64(30), changes[0].NewAmount)
}

func TestPlanDeduction_ZeroAmount(t *testing.T) {
	entries := []*Entry{entry(1, 50, time.Hour)}
	changes, deducted := PlanDeduction(entries, 0)
	assert.Empty(t, changes)
	assert.Zero(t, deducted)
}

func TestBonusAmount_WithinRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		got := BonusAmount(10000, 20000)
		assert.GreaterOrEqual(t, got, int64(10000))
		assert.LessOrEqual(t, got, int64(20000))
	}
}

func TestBonusAmount_DegenerateRange(t *testing.T) {
	assert.Equal(t, int64(500), BonusAmount(500, 500))
}

// Повторный чекин в пределах одного календарного дня должен обнаружиться:
// бонус утреннего чекина попадает в окно, которое вычислит вечерний.
func TestClaimedInWindow_SecondClaimSameDay(t *testing.T) {
	loc := time.FixedZone("CST", 8*60*60)
	const expireDays = 7

	morning := time.Date(2024, 3, 1, 8, 15, 0, 0, loc)
	granted := morning.AddDate(0, 0, expireDays)

	// Вечером того же дня окно накрывает утренний бонус
	evening := time.Date(2024, 3, 1, 23, 50, 0, 0, loc)
	from, to := common.DayBounds(evening.AddDate(0, 0, expireDays), loc)
	assert.True(t, ClaimedInWindow([]time.Time{granted}, from, to))

	// Назавтра окно сдвигается и вчерашний бонус в него не попадает
	nextDay := time.Date(2024, 3, 2, 0, 5, 0, 0, loc)
	from, to = common.DayBounds(nextDay.AddDate(0, 0, expireDays), loc)
	assert.False(t, ClaimedInWindow([]time.Time{granted}, from, to))
}

func TestClaimedInWindow_Bounds(t *testing.T) {
	loc := time.UTC
	from := time.Date(2024, 3, 8, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)

	// Нижняя граница входит, верхняя — нет
	assert.True(t, ClaimedInWindow([]time.Time{from}, from, to))
	assert.False(t, ClaimedInWindow([]time.Time{to}, from, to))
	assert.False(t, ClaimedInWindow([]time.Time{from.Add(-time.Nanosecond)}, from, to))
	assert.False(t, ClaimedInWindow(nil, from, to))

	// Старые бонусы других дней не мешают сегодняшнему
	history := []time.Time{from.AddDate(0, 0, -3), from.AddDate(0, 0, -1)}
	assert.False(t, ClaimedInWindow(history, from, to))
}

func TestDayBounds_CheckinWindow(t *testing.T) {
	loc := time.FixedZone("CST", 8*60*60)

	// 23:30 по UTC 1 марта = 07:30 по CST 2 марта
	now := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	from, to := common.DayBounds(now, loc)

	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, loc), to)

	// Момент попадает в свои же сутки
	assert.True(t, !now.Before(from) && now.Before(to))
}
