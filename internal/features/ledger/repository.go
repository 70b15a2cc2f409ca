// Package ledger — repository.go выполняет все операции с таблицей gp_records.
// Списание и чекин выполняются в транзакциях БД для целостности данных.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository предоставляет методы для работы с GP-записями.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий леджера.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Balance возвращает текущий баланс: сумму живых записей.
// Один запрос — согласованный снимок, безопасно при конкурентных списаниях.
func (r *Repository) Balance(ctx context.Context, userID int64) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM gp_records
		WHERE user_id = $1 AND amount > 0 AND expire_at > NOW()
	`
	var balance int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return balance, nil
}

// Insert добавляет запись начисления и возвращает её id.
func (r *Repository) Insert(ctx context.Context, userID, amount int64, source string, expireAt time.Time) (int64, error) {
	query := `
		INSERT INTO gp_records (user_id, amount, source, expire_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRow(ctx, query, userID, amount, source, expireAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("ошибка начисления: %w", err)
	}
	return id, nil
}

// Deduct списывает amount GP с записей пользователя, сгорающие раньше — первыми.
// Вся операция идёт в одной транзакции: живые записи блокируются FOR UPDATE,
// поэтому два конкурентных списания одного пользователя не потеряют обновления,
// а sweep не удалит запись, которую мы сейчас уменьшаем.
//
// Возвращает фактически списанную сумму (меньше amount, если GP не хватило).
func (r *Repository) Deduct(ctx context.Context, userID, amount int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем живые записи в порядке списания
	rows, err := tx.Query(ctx, `
		SELECT id, amount
		FROM gp_records
		WHERE user_id = $1 AND amount > 0 AND expire_at > NOW()
		ORDER BY expire_at ASC
		FOR UPDATE
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("ошибка выборки записей: %w", err)
	}

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Amount); err != nil {
			rows.Close()
			return 0, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		entries = append(entries, &e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("ошибка чтения записей: %w", err)
	}

	changes, deducted := PlanDeduction(entries, amount)
	for _, ch := range changes {
		if _, err := tx.Exec(ctx,
			`UPDATE gp_records SET amount = $2 WHERE id = $1`,
			ch.ID, ch.NewAmount,
		); err != nil {
			return 0, fmt.Errorf("ошибка списания: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации списания: %w", err)
	}
	return deducted, nil
}

// InsertCheckin атомарно проверяет «бонус за сегодня уже есть» и начисляет новый.
// Строка пользователя блокируется FOR UPDATE, чтобы два одновременных чекина
// не начислили бонус дважды. Окно [from, to) — календарные сутки, на которые
// должен попасть expire_at сегодняшнего бонуса.
//
// Возвращает true, если бонус начислен, и false, если сегодня уже был.
func (r *Repository) InsertCheckin(ctx context.Context, userID, amount int64, expireAt, from, to time.Time) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&id); err != nil {
		return false, fmt.Errorf("пользователь не найден: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT expire_at FROM gp_records WHERE user_id = $1 AND source = $2`,
		userID, SourceCheckin,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки чекина: %w", err)
	}
	var expireAts []time.Time
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			rows.Close()
			return false, fmt.Errorf("ошибка сканирования чекина: %w", err)
		}
		expireAts = append(expireAts, at)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("ошибка чтения чекинов: %w", err)
	}

	if ClaimedInWindow(expireAts, from, to) {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO gp_records (user_id, amount, source, expire_at)
		VALUES ($1, $2, $3, $4)
	`, userID, amount, SourceCheckin, expireAt); err != nil {
		return false, fmt.Errorf("ошибка начисления бонуса: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка фиксации чекина: %w", err)
	}
	return true, nil
}

// SweepExpired удаляет записи, которые больше не участвуют в балансе:
// списанные в ноль или просроченные. Один DELETE — построчная атомарность,
// конкурентное списание либо успеет до удаления, либо не увидит запись.
func (r *Repository) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM gp_records WHERE amount <= 0 OR expire_at <= NOW()`,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки записей: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByUser возвращает живые записи пользователя (для админки и отчётов).
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*Entry, error) {
	query := `
		SELECT id, user_id, amount, expire_at, source, created_at
		FROM gp_records
		WHERE user_id = $1 AND amount > 0 AND expire_at > NOW()
		ORDER BY expire_at ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса записей: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.ExpireAt, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения записей: %w", err)
	}
	return out, nil
}

// ResetUser обнуляет все живые записи пользователя (админ-действие).
func (r *Repository) ResetUser(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE gp_records SET amount = 0 WHERE user_id = $1 AND amount > 0`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("ошибка обнуления GP: %w", err)
	}
	return nil
}
