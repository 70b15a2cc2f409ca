// Package resolver — service.go координирует получение ссылки на архив:
// допуск, кэш, схлопывание одинаковых запросов, стоимость, баланс,
// перебор узлов с запасными вариантами и фиксация списания.
//
// Инварианты конвейера:
//   - одновременные запросы одной пары «пользователь|галерея» дают
//     ровно один поход на узлы и ровно одно списание;
//   - списание происходит только после успешного ответа узла;
//   - отказ узла деградирует его синхронно, не дожидаясь планового опроса.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"arbot.ru/archive-bot/internal/common"
	"arbot.ru/archive-bot/internal/features/gallery"
	"arbot.ru/archive-bot/internal/features/users"
	"arbot.ru/archive-bot/internal/features/workers"
	"arbot.ru/archive-bot/internal/workerapi"
)

// CostSource узнаёт стоимость архива на контент-сайте.
type CostSource interface {
	ArchiveCost(ctx context.Context, galleryID, token string) (*gallery.ArchiveCost, error)
}

// Ledger — нужная резолверу часть GP-счёта.
type Ledger interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	Deduct(ctx context.Context, userID, amount int64) (int64, error)
}

// WorkerSelector отбирает узлы-кандидаты под стоимость запроса.
type WorkerSelector interface {
	Select(ctx context.Context, cost int64) ([]*workers.Worker, error)
}

// WorkerMonitor — короткие пути монитора, которые дёргает резолвер.
type WorkerMonitor interface {
	Demote(ctx context.Context, workerID int64)
	ApplySnapshot(ctx context.Context, workerID int64, snap *workerapi.StatusPayload)
}

// NodeClient ходит к узлу за ссылкой.
type NodeClient interface {
	Resolve(ctx context.Context, baseURL string, r workerapi.ResolveRequest) (*workerapi.ResolveResult, error)
}

// HistoryStore пишет успешные резолвы в историю.
type HistoryStore interface {
	Append(ctx context.Context, h *HistoryEntry) error
}

// Service — координатор резолва.
type Service struct {
	cache    *ResultCache
	history  HistoryStore
	ledger   Ledger
	selector WorkerSelector
	monitor  WorkerMonitor
	node     NodeClient
	costs    CostSource

	// Схлопывание: одинаковые запросы в полёте делят один результат
	flights singleflight.Group

	perWorkerTimeout time.Duration
}

// NewService создаёт координатор резолва.
func NewService(
	cache *ResultCache,
	history HistoryStore,
	ledger Ledger,
	selector WorkerSelector,
	monitor WorkerMonitor,
	node NodeClient,
	costs CostSource,
	perWorkerTimeout time.Duration,
) *Service {
	return &Service{
		cache:            cache,
		history:          history,
		ledger:           ledger,
		selector:         selector,
		monitor:          monitor,
		node:             node,
		costs:            costs,
		perWorkerTimeout: perWorkerTimeout,
	}
}

// flightKey — ключ схлопывания и кэша: ссылка персональная,
// поэтому пользователь входит в ключ наравне с галереей.
func flightKey(userID int64, galleryID string) string {
	return fmt.Sprintf("%d|%s", userID, galleryID)
}

// Resolve выполняет полный конвейер получения ссылки.
// Ошибки конвейера не возвращаются как error — они отображаются
// в коды Result, чтобы и HTTP API, и бот отвечали единообразно.
func (s *Service) Resolve(ctx context.Context, u *users.User, req Request) *Result {
	if u.IsBlocked() {
		return &Result{Code: CodeBlocked, Msg: common.ErrUserBlocked.Error()}
	}
	if req.GalleryID == "" || req.Token == "" {
		return &Result{Code: CodeBadRequest, Msg: "не указаны id галереи или токен"}
	}
	if req.Variant != "org" && req.Variant != "res" {
		req.Variant = "org"
	}

	key := flightKey(u.ID, req.GalleryID)

	if !req.Force {
		if url, cost, ok := s.cache.Get(key); ok {
			log.WithFields(log.Fields{
				"user_id":    u.ID,
				"gallery_id": req.GalleryID,
			}).Debug("Ссылка выдана из кэша")
			return &Result{Code: CodeOK, Msg: "готово", DownloadURL: url, RequireGP: cost, Cached: true}
		}
	}

	// Полёт отвязан от контекста вызывающего: если инициатор отвалился,
	// остальные ждущие всё равно получат результат, а списание не повиснет
	// на полпути. singleflight сам убирает ключ по завершении полёта,
	// так что зачистка безусловная даже при панике внутри.
	v, err, shared := s.flights.Do(key, func() (interface{}, error) {
		return s.runFlight(context.WithoutCancel(ctx), u, req, key), nil
	})
	if err != nil {
		// Do возвращает err только если полёт его вернул; наш не возвращает
		log.WithError(err).Error("Неожиданная ошибка схлопывания запросов")
		return &Result{Code: CodeInternal, Msg: "внутренняя ошибка"}
	}
	res := v.(*Result)
	if shared {
		log.WithFields(log.Fields{
			"user_id":    u.ID,
			"gallery_id": req.GalleryID,
		}).Debug("Запрос схлопнут с летящим")
	}
	return res
}

// runFlight — тело полёта: всё, что происходит ровно один раз
// на пачку одновременных одинаковых запросов.
func (s *Service) runFlight(ctx context.Context, u *users.User, req Request, key string) *Result {
	// Повторная проверка кэша: пока запрос ждал своей очереди,
	// предыдущий полёт мог уже положить ссылку
	if !req.Force {
		if url, cost, ok := s.cache.Get(key); ok {
			return &Result{Code: CodeOK, Msg: "готово", DownloadURL: url, RequireGP: cost, Cached: true}
		}
	}

	costs, err := s.costs.ArchiveCost(ctx, req.GalleryID, req.Token)
	if err != nil {
		log.WithError(err).WithField("gallery_id", req.GalleryID).Warn("Стоимость архива не получена")
		return &Result{Code: CodeCostFailed, Msg: common.ErrCostDiscovery.Error()}
	}
	cost := costs.ForVariant(req.Variant)

	balance, err := s.ledger.Balance(ctx, u.ID)
	if err != nil {
		log.WithError(err).WithField("user_id", u.ID).Error("Ошибка чтения баланса")
		return &Result{Code: CodeInternal, Msg: "внутренняя ошибка"}
	}
	if balance < cost {
		return &Result{
			Code:      CodeInsufficient,
			Msg:       common.ErrInsufficientGP.Error(),
			RequireGP: cost,
			CurrentGP: balance,
		}
	}

	candidates, err := s.selector.Select(ctx, cost)
	if err != nil {
		log.WithError(err).Error("Ошибка выборки узлов")
		return &Result{Code: CodeInternal, Msg: "внутренняя ошибка"}
	}
	if len(candidates) == 0 {
		return &Result{Code: CodeNoWorker, Msg: common.ErrNoCapacity.Error()}
	}

	for _, w := range candidates {
		res := s.tryWorker(ctx, w, u, req)
		if res == nil {
			continue
		}
		return s.commit(ctx, u, req, w, res, cost, key)
	}

	return &Result{Code: CodeNoWorker, Msg: common.ErrAllWorkersFailed.Error()}
}

// tryWorker обращается к одному узлу. nil — узел не справился и уже
// деградирован, перебор продолжается.
func (s *Service) tryWorker(ctx context.Context, w *workers.Worker, u *users.User, req Request) *workerapi.ResolveResult {
	wctx, cancel := context.WithTimeout(ctx, s.perWorkerTimeout)
	defer cancel()

	res, err := s.node.Resolve(wctx, w.URL, workerapi.ResolveRequest{
		Username:  u.Name,
		GalleryID: req.GalleryID,
		Token:     req.Token,
		Variant:   req.Variant,
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"worker_id":  w.ID,
			"gallery_id": req.GalleryID,
		}).Warn("Узел не ответил на резолв")
		s.monitor.Demote(ctx, w.ID)
		return nil
	}

	if !res.OK {
		log.WithFields(log.Fields{
			"worker_id":  w.ID,
			"gallery_id": req.GalleryID,
			"msg":        res.Message,
		}).Warn("Узел отказал в резолве")
		// Доменный отказ тоже выводит узел из ротации до следующей пробы:
		// узел, который не может резолвить, не должен ловить следующий запрос.
		// Демотируем ПОСЛЕ снимка, чтобы снимок не вернул узел в ротацию.
		if res.Status != nil {
			s.monitor.ApplySnapshot(ctx, w.ID, res.Status)
		}
		s.monitor.Demote(ctx, w.ID)
		return nil
	}

	// Узел прислал свежий снимок вместе с ответом — применяем попутно
	if res.Status != nil {
		s.monitor.ApplySnapshot(ctx, w.ID, res.Status)
	}
	return res
}

// commit фиксирует успешный резолв: история, списание, кэш.
// Ошибка истории не отменяет выдачу ссылки — узел уже потратился,
// пользователь обязан заплатить.
//
// Списывается ровно разведанная стоимость — та, что прошла проверку
// баланса. Узлам не доверяем: заявленный узлом require_gp идёт только
// в историю, завысить списание узел не может.
func (s *Service) commit(ctx context.Context, u *users.User, req Request, w *workers.Worker,
	res *workerapi.ResolveResult, discoveredCost int64, key string) *Result {

	reported := res.RequireGP
	if reported <= 0 {
		reported = discoveredCost
	}

	workerID := w.ID
	if err := s.history.Append(ctx, &HistoryEntry{
		UserID:      u.ID,
		GalleryID:   req.GalleryID,
		Token:       req.Token,
		Variant:     req.Variant,
		Cost:        reported,
		WorkerID:    &workerID,
		DownloadURL: res.DownloadURL,
	}); err != nil {
		log.WithError(err).WithField("user_id", u.ID).Error("Не удалось записать историю загрузки")
	}

	deducted, err := s.ledger.Deduct(ctx, u.ID, discoveredCost)
	if err != nil && !errors.Is(err, common.ErrInvalidAmount) {
		log.WithError(err).WithFields(log.Fields{
			"user_id": u.ID,
			"cost":    discoveredCost,
		}).Error("Не удалось списать GP за резолв")
	}

	s.cache.Set(key, res.DownloadURL, discoveredCost)

	log.WithFields(log.Fields{
		"user_id":    u.ID,
		"gallery_id": req.GalleryID,
		"worker_id":  w.ID,
		"cost":       discoveredCost,
		"node_gp":    reported,
		"deducted":   deducted,
	}).Info("Резолв успешен")

	return &Result{
		Code:        CodeOK,
		Msg:         "готово",
		DownloadURL: res.DownloadURL,
		RequireGP:   discoveredCost,
	}
}
