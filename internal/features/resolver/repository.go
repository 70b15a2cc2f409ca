// Package resolver — repository.go работает с таблицей archive_history.
package resolver

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository предоставляет доступ к истории загрузок в PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий истории.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append записывает успешный резолв в историю.
func (r *Repository) Append(ctx context.Context, h *HistoryEntry) error {
	query := `
		INSERT INTO archive_history (user_id, gallery_id, token, variant, cost, worker_id, download_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		h.UserID, h.GalleryID, h.Token, h.Variant, h.Cost, h.WorkerID, h.DownloadURL)
	if err != nil {
		return fmt.Errorf("ошибка записи истории: %w", err)
	}
	return nil
}

// ListByUser возвращает последние limit загрузок пользователя.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit int) ([]*HistoryEntry, error) {
	query := `
		SELECT id, user_id, gallery_id, token, variant, cost, worker_id, download_url, created_at
		FROM archive_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки истории: %w", err)
	}
	defer rows.Close()

	var list []*HistoryEntry
	for rows.Next() {
		h := &HistoryEntry{}
		if err := rows.Scan(&h.ID, &h.UserID, &h.GalleryID, &h.Token, &h.Variant,
			&h.Cost, &h.WorkerID, &h.DownloadURL, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения истории: %w", err)
		}
		list = append(list, h)
	}
	return list, rows.Err()
}

// CountByUser возвращает число загрузок и суммарные траты пользователя.
func (r *Repository) CountByUser(ctx context.Context, userID int64) (int64, int64, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(cost), 0)
		FROM archive_history
		WHERE user_id = $1`

	var count, spent int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count, &spent); err != nil {
		return 0, 0, fmt.Errorf("ошибка подсчёта истории: %w", err)
	}
	return count, spent, nil
}
