package workers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"arbot.ru/archive-bot/internal/workerapi"
)

func TestClassify(t *testing.T) {
	const floor = int64(50000)

	tests := []struct {
		name string
		snap *workerapi.StatusPayload
		want string
	}{
		{
			name: "транспортная ошибка",
			snap: nil,
			want: StatusNetworkError,
		},
		{
			name: "сайт недоступен",
			snap: &workerapi.StatusPayload{SiteLabel: "", HasFreeQuota: true, GPBalance: 100000},
			want: StatusSiteUnreachable,
		},
		{
			name: "нет бесплатной квоты",
			snap: &workerapi.StatusPayload{SiteLabel: "EH", HasFreeQuota: false, GPBalance: 100000},
			want: StatusQuotaExhausted,
		},
		{
			name: "мало GP",
			snap: &workerapi.StatusPayload{SiteLabel: "EX", HasFreeQuota: true, GPBalance: floor - 1},
			want: StatusLowBalance,
		},
		{
			name: "всё хорошо",
			snap: &workerapi.StatusPayload{SiteLabel: "EX", HasFreeQuota: true, GPBalance: floor},
			want: StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.snap, floor))
		})
	}
}

func TestIsErrorStatus(t *testing.T) {
	assert.True(t, IsErrorStatus(StatusNetworkError))
	assert.True(t, IsErrorStatus(StatusSiteUnreachable))
	assert.True(t, IsErrorStatus(StatusLowBalance))

	assert.False(t, IsErrorStatus(StatusHealthy))
	assert.False(t, IsErrorStatus(StatusQuotaExhausted))
	assert.False(t, IsErrorStatus(StatusSuspended))
}

func TestSplitTiers(t *testing.T) {
	list := []*Worker{
		{ID: 1, Status: StatusHealthy, GPBalance: 1000},
		{ID: 2, Status: StatusHealthy, GPBalance: 10}, // не покрывает стоимость
		{ID: 3, Status: StatusQuotaExhausted, EnableGPSpend: true, GPBalance: 1000},
		{ID: 4, Status: StatusQuotaExhausted, EnableGPSpend: false, GPBalance: 1000}, // трата GP запрещена
		{ID: 5, Status: StatusNetworkError, GPBalance: 1000},
		{ID: 6, Status: StatusSuspended, GPBalance: 1000},
		{ID: 7, Status: StatusSiteUnreachable, GPBalance: 1000},
		{ID: 8, Status: StatusLowBalance, GPBalance: 1000},
	}

	normal, fallback := SplitTiers(list, 100)

	assert.Len(t, normal, 1)
	assert.Equal(t, int64(1), normal[0].ID)

	assert.Len(t, fallback, 1)
	assert.Equal(t, int64(3), fallback[0].ID)
}

func TestSplitTiers_EmptyIsLegal(t *testing.T) {
	normal, fallback := SplitTiers(nil, 100)
	assert.Empty(t, normal)
	assert.Empty(t, fallback)
}

func TestSplitTiers_CostBoundary(t *testing.T) {
	list := []*Worker{
		{ID: 1, Status: StatusHealthy, GPBalance: 100},
	}

	normal, _ := SplitTiers(list, 100)
	assert.Len(t, normal, 1, "резерв ровно в стоимость должен проходить")

	normal, _ = SplitTiers(list, 101)
	assert.Empty(t, normal)
}
