// Package users — service.go содержит бизнес-логику управления пользователями.
// Сервис координирует регистрацию, поиск по API-ключу и смену ролей.
package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/common"
)

// Service управляет пользователями.
type Service struct {
	repo *Repository
}

// NewService создаёт новый сервис пользователей.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// EnsureUser гарантирует, что пользователь есть в базе.
// Если нет — создаёт запись с новым API-ключом и ролью ordinary.
// Вызывается при первом контакте (команда /start или первое сообщение).
func (s *Service) EnsureUser(ctx context.Context, userID int64, name string) (*User, error) {
	existing, err := s.repo.GetByID(ctx, userID)
	if err == nil {
		return existing, nil
	}

	u := &User{
		ID:     userID,
		Name:   name,
		APIKey: uuid.NewString(),
		Role:   RoleOrdinary,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("ошибка регистрации пользователя: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"name":    name,
	}).Info("Новый пользователь зарегистрирован")

	return s.repo.GetByID(ctx, userID)
}

// GetByID возвращает пользователя по его Telegram ID.
func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

// GetByAPIKey возвращает пользователя по API-ключу.
// Некорректный ключ маппится на common.ErrInvalidAPIKey.
func (s *Service) GetByAPIKey(ctx context.Context, apikey string) (*User, error) {
	if _, err := uuid.Parse(apikey); err != nil {
		return nil, common.ErrInvalidAPIKey
	}
	u, err := s.repo.GetByAPIKey(ctx, apikey)
	if err != nil {
		if err == common.ErrUserNotFound {
			return nil, common.ErrInvalidAPIKey
		}
		return nil, err
	}
	return u, nil
}

// RegenerateAPIKey выдаёт пользователю новый API-ключ и возвращает его.
func (s *Service) RegenerateAPIKey(ctx context.Context, userID int64) (string, error) {
	key := uuid.NewString()
	if err := s.repo.UpdateAPIKey(ctx, userID, key); err != nil {
		return "", err
	}
	log.WithField("user_id", userID).Info("API-ключ перевыпущен")
	return key, nil
}

// SetRole меняет роль пользователя (админ-действие).
func (s *Service) SetRole(ctx context.Context, userID int64, role string) error {
	switch role {
	case RoleOrdinary, RoleWorkerProvider, RoleBlocked:
	default:
		return fmt.Errorf("неизвестная роль %q", role)
	}
	return s.repo.UpdateRole(ctx, userID, role)
}

// PromoteToProvider назначает роль worker-provider, если пользователь
// ещё ordinary. Заблокированных не трогаем.
func (s *Service) PromoteToProvider(ctx context.Context, userID int64) error {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role != RoleOrdinary {
		return nil
	}
	return s.repo.UpdateRole(ctx, userID, RoleWorkerProvider)
}

// List возвращает всех пользователей.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}
