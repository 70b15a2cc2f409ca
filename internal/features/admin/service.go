// Package admin — service.go содержит логику аутентификации, управления сессиями
// и state-машину для пошаговых админ-действий: начисление и обнуление GP,
// блокировка пользователей.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"arbot.ru/archive-bot/internal/common"
	"arbot.ru/archive-bot/internal/config"
	"arbot.ru/archive-bot/internal/features/ledger"
	"arbot.ru/archive-bot/internal/features/users"
)

// Админ-начисления живут год: это ручная компенсация, а не ежедневный бонус
const grantTTL = 365 * 24 * time.Hour

// Service управляет админ-панелью.
type Service struct {
	repo     *Repository
	users    *users.Service
	ledger   *ledger.Service
	cfg      *config.Config
	states   map[int64]*DialogState // Состояния диалогов (in-memory)
	statesMu sync.RWMutex
}

// NewService создаёт сервис админ-панели.
func NewService(repo *Repository, usersService *users.Service, ledgerService *ledger.Service, cfg *config.Config) *Service {
	return &Service{
		repo:   repo,
		users:  usersService,
		ledger: ledgerService,
		cfg:    cfg,
		states: make(map[int64]*DialogState),
	}
}

// IsAdmin проверяет, входит ли пользователь в список администраторов.
func (s *Service) IsAdmin(userID int64) bool {
	for _, id := range s.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// VerifyPassword проверяет пароль администратора с использованием Argon2id.
// Включает защиту от brute-force: 3 неудачные попытки = блокировка на 1 час.
func (s *Service) VerifyPassword(ctx context.Context, userID int64, password string) error {
	attempts, err := s.repo.GetRecentAttempts(ctx, userID, 1*time.Hour)
	if err != nil {
		return err
	}
	if attempts >= 3 {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.cfg.AdminPasswordHash)

	if err := s.repo.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).Warn("Не удалось записать попытку входа")
	}

	if !match {
		return common.ErrWrongPassword
	}

	token := generateSecureToken()
	session := &Session{
		UserID:       userID,
		SessionToken: token,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}

	log.WithField("user_id", userID).Info("Администратор авторизован")
	return s.repo.CreateSession(ctx, session)
}

// HasActiveSession проверяет, есть ли у пользователя активная сессия.
func (s *Service) HasActiveSession(ctx context.Context, userID int64) bool {
	session, err := s.repo.GetActiveSession(ctx, userID)
	if err != nil || session == nil {
		return false
	}
	if err := s.repo.UpdateActivity(ctx, userID); err != nil {
		log.WithError(err).Warn("Не удалось обновить активность сессии")
	}
	return true
}

// Logout деактивирует сессии администратора.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	s.ClearState(userID)
	return s.repo.DeactivateSession(ctx, userID)
}

// GetState возвращает текущее состояние диалога.
func (s *Service) GetState(userID int64) *DialogState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil
	}
	if time.Now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(userID int64, stateName string, data interface{}) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	s.states[userID] = &DialogState{
		State:     stateName,
		Data:      data,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}

// --- Админ-действия ---

// GrantGP начисляет пользователю GP вручную.
func (s *Service) GrantGP(ctx context.Context, adminID, userID, amount int64) (int64, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return 0, err
	}
	id, err := s.ledger.Grant(ctx, userID, amount, ledger.SourceAdmin, time.Now().Add(grantTTL))
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"amount":   amount,
	}).Info("Админ-начисление GP")
	return id, nil
}

// ResetGP обнуляет GP-счёт пользователя.
func (s *Service) ResetGP(ctx context.Context, adminID, userID int64) error {
	if err := s.ledger.Reset(ctx, userID); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
	}).Warn("GP-счёт пользователя обнулён")
	return nil
}

// BlockUser переводит пользователя в чёрный список.
func (s *Service) BlockUser(ctx context.Context, adminID, userID int64) error {
	if err := s.users.SetRole(ctx, userID, users.RoleBlocked); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
	}).Warn("Пользователь заблокирован")
	return nil
}

// UnblockUser возвращает пользователя из чёрного списка.
func (s *Service) UnblockUser(ctx context.Context, adminID, userID int64) error {
	if err := s.users.SetRole(ctx, userID, users.RoleOrdinary); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
	}).Info("Пользователь разблокирован")
	return nil
}

// ListUsers возвращает всех пользователей (для сводки в панели).
func (s *Service) ListUsers(ctx context.Context) ([]*users.User, error) {
	return s.users.List(ctx)
}

// --- Криптографические утилиты ---

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравнение в постоянном времени (защита от timing attack)
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// generateSecureToken генерирует криптографически безопасный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
