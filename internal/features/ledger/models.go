// Package ledger управляет GP-счётом пользователей.
// models.go описывает записи начислений и чистую логику списания:
// каждая запись живёт до expire_at, баланс — сумма живых записей.
package ledger

import (
	"math/rand"
	"time"
)

// Источники начислений GP.
const (
	// SourceCheckin — ежедневный бонус за чекин
	SourceCheckin = "checkin"
	// SourceAdmin — ручное начисление администратором
	SourceAdmin = "admin"
)

// Entry представляет одну запись начисления GP.
// Запись участвует в балансе, пока amount > 0 и expire_at > now.
// Поле amount только уменьшается (списаниями); остальные поля неизменны.
type Entry struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Amount    int64     `db:"amount"`
	ExpireAt  time.Time `db:"expire_at"`
	Source    string    `db:"source"`
	CreatedAt time.Time `db:"created_at"`
}

// EntryChange — запланированное уменьшение одной записи.
type EntryChange struct {
	ID        int64
	NewAmount int64
}

// PlanDeduction распределяет списание amount по записям.
// Записи должны быть отсортированы по expire_at по возрастанию:
// сгорающие раньше тратятся первыми («используй или потеряешь»).
// Записи уменьшаются до нуля, в минус не уходят.
//
// Возвращает список изменений и фактически списанную сумму.
// Если живых GP меньше amount — списывается всё, что есть;
// достаточность баланса проверяет вызывающий ДО списания.
func PlanDeduction(entries []*Entry, amount int64) ([]EntryChange, int64) {
	var changes []EntryChange
	var deducted int64

	for _, e := range entries {
		if deducted >= amount {
			break
		}
		if e.Amount <= 0 {
			continue
		}
		take := e.Amount
		if rest := amount - deducted; take > rest {
			take = rest
		}
		changes = append(changes, EntryChange{ID: e.ID, NewAmount: e.Amount - take})
		deducted += take
	}

	return changes, deducted
}

// ClaimedInWindow определяет, был ли сегодня уже чекин: бонус этого дня —
// запись-чекин, чей expire_at попадает в календарные сутки [from, to)
// опорного часового пояса (сутки «сегодня + срок жизни бонуса»).
func ClaimedInWindow(expireAts []time.Time, from, to time.Time) bool {
	for _, at := range expireAts {
		if !at.Before(from) && at.Before(to) {
			return true
		}
	}
	return false
}

// BonusAmount возвращает случайную сумму бонуса в диапазоне [min, max].
func BonusAmount(min, max int64) int64 {
	if max <= min {
		return min
	}
	return min + rand.Int63n(max-min+1)
}
