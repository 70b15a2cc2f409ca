// Package ledger — service.go содержит бизнес-логику GP-счёта:
// начисления, списания, ежедневный чекин и периодическую очистку.
package ledger

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/common"
	"arbot.ru/archive-bot/internal/config"
)

// Service управляет GP-счётом.
type Service struct {
	repo *Repository
	cfg  *config.Config
	loc  *time.Location // Опорный часовой пояс для календарных суток чекина
}

// NewService создаёт новый сервис леджера.
func NewService(repo *Repository, cfg *config.Config) *Service {
	return &Service{
		repo: repo,
		cfg:  cfg,
		loc:  cfg.Location(),
	}
}

// Balance возвращает текущий баланс пользователя.
func (s *Service) Balance(ctx context.Context, userID int64) (int64, error) {
	return s.repo.Balance(ctx, userID)
}

// Grant начисляет GP с заданным источником и сроком жизни.
// Используется для админ-начислений.
func (s *Service) Grant(ctx context.Context, userID, amount int64, source string, expireAt time.Time) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	id, err := s.repo.Insert(ctx, userID, amount, source, expireAt)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"source":  source,
	}).Info("GP начислены")

	return id, nil
}

// Deduct списывает amount GP, сгорающие раньше записи тратятся первыми.
// Достаточность баланса НЕ проверяется — это обязанность вызывающего
// (резолвер сверяет баланс со стоимостью до обращения к узлам).
// Возвращает фактически списанную сумму.
func (s *Service) Deduct(ctx context.Context, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	deducted, err := s.repo.Deduct(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	if deducted < amount {
		// Вызывающий обязан был проверить баланс; фиксируем в логе
		log.WithFields(log.Fields{
			"user_id":  userID,
			"amount":   amount,
			"deducted": deducted,
		}).Warn("Списание прошло не полностью")
	}
	return deducted, nil
}

// Checkin выдаёт ежедневный бонус: случайная сумма из настроенного диапазона,
// сгорает ровно через CHECKIN_EXPIRE_DAYS суток. Идемпотентен в пределах
// календарного дня опорного часового пояса: «уже был ли чекин» определяется
// по записи-бонусу, чей expire_at попадает на сегодня + срок жизни.
//
// Возвращает (начислено, новый баланс). При повторном чекине —
// (0, текущий баланс) и common.ErrAlreadyCheckedIn.
func (s *Service) Checkin(ctx context.Context, userID int64) (int64, int64, error) {
	now := time.Now()
	expireAt := now.AddDate(0, 0, s.cfg.CheckinExpireDays)
	from, to := common.DayBounds(expireAt, s.loc)

	amount := BonusAmount(s.cfg.CheckinBonusMin, s.cfg.CheckinBonusMax)
	granted, err := s.repo.InsertCheckin(ctx, userID, amount, expireAt, from, to)
	if err != nil {
		return 0, 0, err
	}

	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	if !granted {
		return 0, balance, common.ErrAlreadyCheckedIn
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
	}).Info("Чекин успешен")

	return amount, balance, nil
}

// Sweep удаляет просроченные и обнулённые записи.
// Запускается кроном раз в сутки.
func (s *Service) Sweep(ctx context.Context) error {
	deleted, err := s.repo.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("ошибка очистки леджера: %w", err)
	}
	if deleted > 0 {
		log.WithField("deleted", deleted).Info("Очистка GP-записей завершена")
	}
	return nil
}

// ListEntries возвращает живые записи пользователя.
func (s *Service) ListEntries(ctx context.Context, userID int64) ([]*Entry, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Reset обнуляет GP пользователя (админ-действие).
func (s *Service) Reset(ctx context.Context, userID int64) error {
	return s.repo.ResetUser(ctx, userID)
}
