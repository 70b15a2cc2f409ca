// Package workers — service.go содержит бизнес-логику реестра узлов:
// регистрацию с предварительной пробой и CRUD с проверкой владельца.
package workers

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/common"
	"arbot.ru/archive-bot/internal/features/users"
)

// Service управляет реестром worker-нод.
type Service struct {
	repo    *Repository
	users   *users.Service
	monitor *Monitor
}

// NewService создаёт сервис реестра узлов.
func NewService(repo *Repository, usersService *users.Service, monitor *Monitor) *Service {
	return &Service{
		repo:    repo,
		users:   usersService,
		monitor: monitor,
	}
}

// Register добавляет новый узел.
// Перед записью узел пробуется: транспортная ошибка пробы блокирует
// регистрацию (common.ErrProbeFailed). «Плохой» доменный статус
// (нет квоты, мало GP) регистрацию НЕ блокирует — узел просто попадёт
// в соответствующий статус и подождёт лучших времён.
// Владелец первого узла получает роль worker-provider.
func (s *Service) Register(ctx context.Context, ownerID int64, url string) (*Worker, error) {
	snap, err := s.monitor.ProbeURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProbeFailed, err)
	}

	w := &Worker{
		ProviderID:     ownerID,
		URL:            url,
		Status:         Classify(snap, s.monitor.lowBalanceFloor),
		EnableGPSpend:  snap.EnableGPSpend,
		SiteLabel:      snap.SiteLabel,
		HasFreeQuota:   snap.HasFreeQuota,
		GPBalance:      snap.GPBalance,
		CreditsBalance: snap.CreditsBalance,
	}

	id, err := s.repo.Create(ctx, w)
	if err != nil {
		return nil, err
	}
	w.ID = id

	if err := s.users.PromoteToProvider(ctx, ownerID); err != nil {
		log.WithError(err).WithField("user_id", ownerID).Warn("Не удалось назначить роль worker-provider")
	}

	log.WithFields(log.Fields{
		"worker_id":   id,
		"provider_id": ownerID,
		"url":         url,
		"status":      w.Status,
	}).Info("Узел зарегистрирован")

	return w, nil
}

// getOwned возвращает узел, если им владеет ownerID.
func (s *Service) getOwned(ctx context.Context, ownerID, workerID int64) (*Worker, error) {
	w, err := s.repo.GetByID(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if w.ProviderID != ownerID {
		return nil, common.ErrNotWorkerOwner
	}
	return w, nil
}

// UpdateURL меняет адрес узла (только владелец).
func (s *Service) UpdateURL(ctx context.Context, ownerID, workerID int64, url string) error {
	if _, err := s.getOwned(ctx, ownerID, workerID); err != nil {
		return err
	}
	return s.repo.UpdateURL(ctx, workerID, url)
}

// Delete удаляет узел (только владелец).
// История архивов сохраняется, её ссылка на узел обнуляется на уровне БД.
func (s *Service) Delete(ctx context.Context, ownerID, workerID int64) error {
	if _, err := s.getOwned(ctx, ownerID, workerID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, workerID); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"worker_id":   workerID,
		"provider_id": ownerID,
	}).Info("Узел удалён")
	return nil
}

// Suspend останавливает узел (только владелец). Статус липкий:
// монитор остановленные узлы не опрашивает и не перезаписывает.
func (s *Service) Suspend(ctx context.Context, ownerID, workerID int64) error {
	if _, err := s.getOwned(ctx, ownerID, workerID); err != nil {
		return err
	}
	return s.repo.SetSuspended(ctx, workerID, true)
}

// Resume снова запускает узел (только владелец).
// Фактический статус уточнит ближайшая проба.
func (s *Service) Resume(ctx context.Context, ownerID, workerID int64) error {
	if _, err := s.getOwned(ctx, ownerID, workerID); err != nil {
		return err
	}
	return s.repo.SetSuspended(ctx, workerID, false)
}

// ListByOwner возвращает узлы владельца.
func (s *Service) ListByOwner(ctx context.Context, ownerID int64) ([]*Worker, error) {
	return s.repo.ListByProvider(ctx, ownerID)
}

// List возвращает все узлы (для админки).
func (s *Service) List(ctx context.Context) ([]*Worker, error) {
	return s.repo.List(ctx)
}
