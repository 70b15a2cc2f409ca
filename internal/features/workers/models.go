// Package workers управляет пулом worker-нод: регистрацией, здоровьем и отбором.
// models.go описывает запись узла и машину состояний его статуса.
package workers

import (
	"time"

	"arbot.ru/archive-bot/internal/workerapi"
)

// Статусы узла.
// suspended — «липкий»: выставляется и снимается только владельцем узла,
// монитор его никогда не перезаписывает.
const (
	StatusHealthy         = "healthy"
	StatusQuotaExhausted  = "quota-exhausted"
	StatusSiteUnreachable = "site-unreachable"
	StatusLowBalance      = "low-balance"
	StatusNetworkError    = "network-error"
	StatusSuspended       = "suspended"
)

// Worker представляет worker-ноду в базе данных.
// Поля снимка (site_label, has_free_quota, gp_balance, credits_balance)
// перезаписываются при каждой удачной пробе.
type Worker struct {
	ID         int64  `db:"id"`
	ProviderID int64  `db:"provider_id"` // Владелец узла
	URL        string `db:"url"`
	Status     string `db:"status"`
	// Узел сам сообщает, разрешает ли тратить свои GP на чужие запросы
	EnableGPSpend  bool      `db:"enable_gp_spend"`
	SiteLabel      string    `db:"site_label"`
	HasFreeQuota   bool      `db:"has_free_quota"`
	GPBalance      int64     `db:"gp_balance"`
	CreditsBalance int64     `db:"credits_balance"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// IsErrorStatus сообщает, относится ли статус к «аварийным» —
// таким, о которых владельцу узла отправляется уведомление.
func IsErrorStatus(status string) bool {
	switch status {
	case StatusSiteUnreachable, StatusLowBalance, StatusNetworkError:
		return true
	}
	return false
}

// Classify отображает результат пробы на статус узла.
// snap == nil означает транспортную ошибку (таймаут, обрыв, кривой JSON) —
// это всегда network-error, независимо от прежнего состояния.
// lowBalanceFloor — порог GP-резерва, ниже которого узел считается low-balance.
//
// Classify никогда не возвращает suspended: это состояние
// машина не назначает, оно управляется владельцем узла.
func Classify(snap *workerapi.StatusPayload, lowBalanceFloor int64) string {
	if snap == nil {
		return StatusNetworkError
	}
	if snap.SiteLabel == "" {
		return StatusSiteUnreachable
	}
	if !snap.HasFreeQuota {
		return StatusQuotaExhausted
	}
	if snap.GPBalance < lowBalanceFloor {
		return StatusLowBalance
	}
	return StatusHealthy
}

// SplitTiers раскладывает узлы по уровням отбора для стоимости cost:
//   - normal: healthy с GP-резервом не меньше стоимости;
//   - fallback: quota-exhausted, разрешившие трату GP и покрывающие стоимость.
//
// Узлы в остальных статусах кандидатами не бывают.
func SplitTiers(list []*Worker, cost int64) (normal, fallback []*Worker) {
	for _, w := range list {
		switch w.Status {
		case StatusHealthy:
			if w.GPBalance >= cost {
				normal = append(normal, w)
			}
		case StatusQuotaExhausted:
			if w.EnableGPSpend && w.GPBalance >= cost {
				fallback = append(fallback, w)
			}
		}
	}
	return normal, fallback
}
