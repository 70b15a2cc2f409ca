// Package workers — monitor.go следит за здоровьем узлов.
// Плановый обход: параллельно опросить все неостановленные узлы,
// классифицировать ответы и перезаписать статусы. Отдельный короткий путь —
// синхронная деградация узла, провалившего живой резолв.
package workers

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"arbot.ru/archive-bot/internal/workerapi"
)

// NotifyFunc отправляет владельцу узла уведомление (через бота).
type NotifyFunc func(providerID int64, text string)

// Monitor опрашивает узлы и ведёт машину состояний их статусов.
type Monitor struct {
	repo            *Repository
	client          *workerapi.Client
	lowBalanceFloor int64
	notify          NotifyFunc // может быть nil (например, в тестах)
}

// NewMonitor создаёт монитор здоровья узлов.
func NewMonitor(repo *Repository, client *workerapi.Client, lowBalanceFloor int64) *Monitor {
	return &Monitor{
		repo:            repo,
		client:          client,
		lowBalanceFloor: lowBalanceFloor,
	}
}

// SetNotifier подключает канал уведомлений владельцам.
// Вызывается при сборке приложения, когда бот уже создан.
func (m *Monitor) SetNotifier(notify NotifyFunc) {
	m.notify = notify
}

// ProbeURL пробует произвольный адрес (используется при регистрации узла).
func (m *Monitor) ProbeURL(ctx context.Context, url string) (*workerapi.StatusPayload, error) {
	return m.client.Status(ctx, url)
}

// ProbeAll опрашивает все неостановленные узлы параллельно.
// Пробы независимы: каждая трогает только свою запись узла.
// Запускается кроном раз в час.
func (m *Monitor) ProbeAll(ctx context.Context) error {
	list, err := m.repo.ListNonSuspended(ctx)
	if err != nil {
		return fmt.Errorf("ошибка выборки узлов для опроса: %w", err)
	}

	var wg sync.WaitGroup
	for _, w := range list {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			m.probeOne(ctx, w)
		}(w)
	}
	wg.Wait()

	log.WithField("workers", len(list)).Debug("Плановый опрос узлов завершён")
	return nil
}

// probeOne опрашивает один узел и перезаписывает его статус и снимок.
// Переход в аварийный статус в рамках планового обхода — повод один раз
// уведомить владельца (только на границе перехода, не каждый час).
func (m *Monitor) probeOne(ctx context.Context, w *Worker) {
	snap, err := m.client.Status(ctx, w.URL)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"worker_id": w.ID,
			"url":       w.URL,
		}).Warn("Проба узла не удалась")
	}

	newStatus := Classify(snap, m.lowBalanceFloor)

	if snap != nil {
		if err := m.repo.UpdateProbe(ctx, w.ID, newStatus, snap); err != nil {
			log.WithError(err).WithField("worker_id", w.ID).Error("Не удалось записать результат пробы")
			return
		}
	} else {
		// Снимка нет — статус меняем, прежний снимок не затираем
		if err := m.repo.UpdateStatus(ctx, w.ID, newStatus); err != nil {
			log.WithError(err).WithField("worker_id", w.ID).Error("Не удалось обновить статус узла")
			return
		}
	}

	if IsErrorStatus(newStatus) && !IsErrorStatus(w.Status) && m.notify != nil {
		m.notify(w.ProviderID, fmt.Sprintf(
			"⚠️ Узел недоступен\nURL: %s\nСтатус: %s", w.URL, newStatus))
	}
}

// Demote синхронно помечает узел network-error — вызывается резолвером,
// когда узел провалил живой запрос. Так селектор не предложит только что
// упавший узел следующему запросу, не дожидаясь планового обхода.
// Гонка с плановой пробой решается по принципу «последняя запись побеждает».
func (m *Monitor) Demote(ctx context.Context, workerID int64) {
	if err := m.repo.UpdateStatus(ctx, workerID, StatusNetworkError); err != nil {
		log.WithError(err).WithField("worker_id", workerID).Error("Не удалось деградировать узел")
		return
	}
	log.WithField("worker_id", workerID).Info("Узел помечен network-error после неудачного резолва")
}

// ApplySnapshot применяет снимок, который узел прислал вместе с ответом
// на /resolve. Попутная актуализация: резолв уже сходил на узел,
// грех не обновить его запись.
func (m *Monitor) ApplySnapshot(ctx context.Context, workerID int64, snap *workerapi.StatusPayload) {
	if snap == nil {
		return
	}
	status := Classify(snap, m.lowBalanceFloor)
	if err := m.repo.UpdateProbe(ctx, workerID, status, snap); err != nil {
		log.WithError(err).WithField("worker_id", workerID).Error("Не удалось применить снимок узла")
	}
}
