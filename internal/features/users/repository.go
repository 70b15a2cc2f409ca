// Package users — repository.go отвечает за все операции с таблицей users в БД.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbot.ru/archive-bot/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create добавляет нового пользователя.
// На конфликте по id обновляет только имя (не трогает роль и API-ключ).
func (r *Repository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, name, apikey, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, u.ID, u.Name, u.APIKey, u.Role)
	if err != nil {
		return fmt.Errorf("ошибка создания/обновления пользователя: %w", err)
	}
	return nil
}

// GetByID: если не найден — common.ErrUserNotFound.
func (r *Repository) GetByID(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT id, name, apikey, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanUser(r.db.QueryRow(ctx, query, userID))
}

// GetByAPIKey возвращает пользователя по API-ключу.
func (r *Repository) GetByAPIKey(ctx context.Context, apikey string) (*User, error) {
	query := `
		SELECT id, name, apikey, role, created_at, updated_at
		FROM users
		WHERE apikey = $1
	`
	return r.scanUser(r.db.QueryRow(ctx, query, apikey))
}

func (r *Repository) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.APIKey, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка чтения пользователя: %w", err)
	}
	return &u, nil
}

func (r *Repository) Exists(ctx context.Context, userID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки существования: %w", err)
	}
	return exists, nil
}

// UpdateRole меняет роль пользователя.
func (r *Repository) UpdateRole(ctx context.Context, userID int64, role string) error {
	query := `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, userID, role)
	if err != nil {
		return fmt.Errorf("ошибка обновления роли: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// UpdateAPIKey записывает новый API-ключ.
func (r *Repository) UpdateAPIKey(ctx context.Context, userID int64, apikey string) error {
	query := `UPDATE users SET apikey = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, userID, apikey)
	if err != nil {
		return fmt.Errorf("ошибка обновления API-ключа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// List возвращает всех пользователей (для админки).
func (r *Repository) List(ctx context.Context) ([]*User, error) {
	query := `
		SELECT id, name, apikey, role, created_at, updated_at
		FROM users
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса пользователей: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.APIKey, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}
