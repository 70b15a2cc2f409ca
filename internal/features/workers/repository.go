// Package workers — repository.go отвечает за все операции с таблицей workers в БД.
package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbot.ru/archive-bot/internal/common"
	"arbot.ru/archive-bot/internal/workerapi"
)

const workerColumns = `id, provider_id, url, status, enable_gp_spend,
	site_label, has_free_quota, gp_balance, credits_balance, created_at, updated_at`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create добавляет узел и возвращает его id.
func (r *Repository) Create(ctx context.Context, w *Worker) (int64, error) {
	query := `
		INSERT INTO workers (provider_id, url, status, enable_gp_spend,
			site_label, has_free_quota, gp_balance, credits_balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRow(ctx, query,
		w.ProviderID, w.URL, w.Status, w.EnableGPSpend,
		w.SiteLabel, w.HasFreeQuota, w.GPBalance, w.CreditsBalance,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания узла: %w", err)
	}
	return id, nil
}

// GetByID: если не найден — common.ErrWorkerNotFound.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Worker, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = $1`, id)
	w, err := scanWorker(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("ошибка чтения узла: %w", err)
	}
	return w, nil
}

// ListByProvider возвращает узлы владельца.
func (r *Repository) ListByProvider(ctx context.Context, providerID int64) ([]*Worker, error) {
	return r.queryWorkers(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE provider_id = $1 ORDER BY id`,
		providerID)
}

// ListNonSuspended возвращает все узлы, кроме остановленных владельцем.
// Их опрашивает монитор.
func (r *Repository) ListNonSuspended(ctx context.Context) ([]*Worker, error) {
	return r.queryWorkers(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE status <> $1 ORDER BY id`,
		StatusSuspended)
}

// ListSelectable возвращает узлы в статусах, допускающих отбор.
func (r *Repository) ListSelectable(ctx context.Context) ([]*Worker, error) {
	return r.queryWorkers(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE status IN ($1, $2)`,
		StatusHealthy, StatusQuotaExhausted)
}

// List возвращает все узлы (для админки).
func (r *Repository) List(ctx context.Context) ([]*Worker, error) {
	return r.queryWorkers(ctx,
		`SELECT `+workerColumns+` FROM workers ORDER BY id`)
}

// UpdateStatus выставляет статус узла.
// suspended никогда не перезаписывается: снять его может только владелец
// через SetSuspended.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `
		UPDATE workers SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> $3
	`
	if _, err := r.db.Exec(ctx, query, id, status, StatusSuspended); err != nil {
		return fmt.Errorf("ошибка обновления статуса: %w", err)
	}
	return nil
}

// UpdateProbe записывает результат пробы: статус и свежий снимок состояния.
// Остановленные узлы не трогаем.
func (r *Repository) UpdateProbe(ctx context.Context, id int64, status string, snap *workerapi.StatusPayload) error {
	query := `
		UPDATE workers
		SET status = $2, site_label = $3, has_free_quota = $4,
		    gp_balance = $5, credits_balance = $6, enable_gp_spend = $7,
		    updated_at = NOW()
		WHERE id = $1 AND status <> $8
	`
	_, err := r.db.Exec(ctx, query, id, status,
		snap.SiteLabel, snap.HasFreeQuota, snap.GPBalance, snap.CreditsBalance,
		snap.EnableGPSpend, StatusSuspended)
	if err != nil {
		return fmt.Errorf("ошибка записи результата пробы: %w", err)
	}
	return nil
}

// SetSuspended останавливает или запускает узел (действие владельца).
// Единственный способ войти в suspended и выйти из него.
func (r *Repository) SetSuspended(ctx context.Context, id int64, suspended bool) error {
	var err error
	if suspended {
		_, err = r.db.Exec(ctx,
			`UPDATE workers SET status = $2, updated_at = NOW() WHERE id = $1`,
			id, StatusSuspended)
	} else {
		// После запуска статус уточнит ближайшая проба
		_, err = r.db.Exec(ctx,
			`UPDATE workers SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
			id, StatusNetworkError, StatusSuspended)
	}
	if err != nil {
		return fmt.Errorf("ошибка смены режима узла: %w", err)
	}
	return nil
}

// UpdateURL меняет адрес узла.
func (r *Repository) UpdateURL(ctx context.Context, id int64, url string) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE workers SET url = $2, updated_at = NOW() WHERE id = $1`,
		id, url); err != nil {
		return fmt.Errorf("ошибка обновления URL: %w", err)
	}
	return nil
}

// Delete удаляет узел. Записи истории не каскадируются:
// внешний ключ archive_history.worker_id объявлен ON DELETE SET NULL.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM workers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("ошибка удаления узла: %w", err)
	}
	return nil
}

func scanWorker(row pgx.Row) (*Worker, error) {
	var w Worker
	err := row.Scan(
		&w.ID, &w.ProviderID, &w.URL, &w.Status, &w.EnableGPSpend,
		&w.SiteLabel, &w.HasFreeQuota, &w.GPBalance, &w.CreditsBalance,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) queryWorkers(ctx context.Context, query string, args ...interface{}) ([]*Worker, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса узлов: %w", err)
	}
	defer rows.Close()

	var out []*Worker
	for rows.Next() {
		var w Worker
		if err := rows.Scan(
			&w.ID, &w.ProviderID, &w.URL, &w.Status, &w.EnableGPSpend,
			&w.SiteLabel, &w.HasFreeQuota, &w.GPBalance, &w.CreditsBalance,
			&w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}
