// Package api — HTTP-интерфейс резолвера для внешних клиентов.
// Конверт ответа фиксированный: {"code": N, "msg": "...", "data": {...}},
// HTTP-статус всегда 200 — клиент смотрит только на code.
// Авторизация по API-ключу в теле запроса; ключ выдаёт бот.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/bot/middleware"
	"arbot.ru/archive-bot/internal/common"
	"arbot.ru/archive-bot/internal/features/resolver"
	"arbot.ru/archive-bot/internal/features/users"
)

// UserAuth находит пользователя по API-ключу.
type UserAuth interface {
	GetByAPIKey(ctx context.Context, apikey string) (*users.User, error)
}

// LedgerService — операции GP-счёта, доступные через API.
type LedgerService interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	Checkin(ctx context.Context, userID int64) (int64, int64, error)
}

// ResolverService выполняет резолв.
type ResolverService interface {
	Resolve(ctx context.Context, u *users.User, req resolver.Request) *resolver.Result
}

// Server — HTTP API резолвера.
type Server struct {
	auth     UserAuth
	ledger   LedgerService
	resolver ResolverService
	limiter  *middleware.RateLimiter
	botURL   string
}

// NewServer создаёт API-сервер.
func NewServer(auth UserAuth, ledger LedgerService, res ResolverService,
	limiter *middleware.RateLimiter, botURL string) *Server {
	return &Server{
		auth:     auth,
		ledger:   ledger,
		resolver: res,
		limiter:  limiter,
		botURL:   botURL,
	}
}

// Handler собирает маршруты API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /resolve", s.handleResolve)
	mux.HandleFunc("POST /balance", s.handleBalance)
	mux.HandleFunc("POST /checkin", s.handleCheckin)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

// ListenAndServe запускает сервер и блокируется до его остановки.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Ошибка остановки HTTP API")
		}
	}()

	log.WithField("addr", addr).Info("HTTP API запущен")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// envelope — фиксированный конверт ответа API.
type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(envelope{Code: code, Msg: msg, Data: data}); err != nil {
		log.WithError(err).Error("Ошибка записи ответа API")
	}
}

// verifyUser разбирает ключ и находит пользователя.
// Ошибки авторизации сразу пишутся в ответ, вызывающий просто выходит.
func (s *Server) verifyUser(w http.ResponseWriter, r *http.Request, apikey string) *users.User {
	if apikey == "" {
		writeEnvelope(w, resolver.CodeBadRequest, "не указан apikey", nil)
		return nil
	}

	u, err := s.auth.GetByAPIKey(r.Context(), apikey)
	if err != nil {
		if errors.Is(err, common.ErrInvalidAPIKey) {
			writeEnvelope(w, resolver.CodeInvalidAPIKey, common.ErrInvalidAPIKey.Error(), nil)
		} else {
			log.WithError(err).Error("Ошибка поиска пользователя по API-ключу")
			writeEnvelope(w, resolver.CodeInternal, "внутренняя ошибка", nil)
		}
		return nil
	}

	if u.IsBlocked() {
		writeEnvelope(w, resolver.CodeBlocked, common.ErrUserBlocked.Error(), nil)
		return nil
	}

	if s.limiter != nil && !s.limiter.Allow(u.ID) {
		writeEnvelope(w, resolver.CodeBadRequest, "слишком много запросов, подождите", nil)
		return nil
	}

	return u
}
