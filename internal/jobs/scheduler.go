// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежечасный опрос узлов,
// ежедневную очистку леджера и чистку процессных кэшей.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/bot/middleware"
	"arbot.ru/archive-bot/internal/config"
	"arbot.ru/archive-bot/internal/features/ledger"
	"arbot.ru/archive-bot/internal/features/resolver"
	"arbot.ru/archive-bot/internal/features/workers"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	ledger   *ledger.Service
	monitor  *workers.Monitor
	cache    *resolver.ResultCache
	limiters []*middleware.RateLimiter
}

// NewScheduler создаёт планировщик задач в опорном часовом поясе.
func NewScheduler(cfg *config.Config, ledgerService *ledger.Service,
	monitor *workers.Monitor, cache *resolver.ResultCache,
	limiters ...*middleware.RateLimiter) *Scheduler {

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(cfg.Location())),
		cfg:      cfg,
		ledger:   ledgerService,
		monitor:  monitor,
		cache:    cache,
		limiters: limiters,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	// Плановый опрос узлов (по умолчанию ежечасно)
	s.cron.AddFunc(s.cfg.WorkerProbeSpec, func() {
		log.Debug("[CRON] Плановый опрос узлов")
		if err := s.monitor.ProbeAll(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка опроса узлов")
		}
	})

	// Ежедневная очистка сгоревших GP-записей в 04:00
	s.cron.AddFunc("0 4 * * *", func() {
		log.Info("[CRON] Очистка GP-записей")
		if err := s.ledger.Sweep(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка очистки леджера")
		}
	})

	// Чистка процессных кэшей каждые 10 минут
	s.cron.AddFunc("*/10 * * * *", func() {
		if removed := s.cache.Cleanup(); removed > 0 {
			log.WithField("removed", removed).Debug("[CRON] Кэш результатов почищен")
		}
		for _, rl := range s.limiters {
			rl.Cleanup()
		}
	})

	s.cron.Start()
	log.WithField("timezone", s.cfg.AppTimezone).Info("Планировщик задач запущен")
}

// Stop останавливает планировщик, дождавшись выполняющихся задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
