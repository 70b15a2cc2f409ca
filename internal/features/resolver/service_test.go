package resolver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbot.ru/archive-bot/internal/features/gallery"
	"arbot.ru/archive-bot/internal/features/users"
	"arbot.ru/archive-bot/internal/features/workers"
	"arbot.ru/archive-bot/internal/workerapi"
)

// --- фейки коллабораторов ---

type fakeCosts struct {
	calls int64
	cost  int64
	fail  bool
}

func (f *fakeCosts) ArchiveCost(_ context.Context, _, _ string) (*gallery.ArchiveCost, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.fail {
		return nil, fmt.Errorf("сайт не ответил")
	}
	return &gallery.ArchiveCost{Org: f.cost, Res: f.cost / 2}, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	balance  int64
	deducted int64
	deducts  int64
}

func (f *fakeLedger) Balance(_ context.Context, _ int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeLedger) Deduct(_ context.Context, _ int64, amount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deducts++
	f.deducted += amount
	f.balance -= amount
	return amount, nil
}

type fakeSelector struct {
	list []*workers.Worker
}

func (f *fakeSelector) Select(_ context.Context, _ int64) ([]*workers.Worker, error) {
	return f.list, nil
}

type fakeMonitor struct {
	mu        sync.Mutex
	demoted   []int64
	snapshots []int64
}

func (f *fakeMonitor) Demote(_ context.Context, workerID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.demoted = append(f.demoted, workerID)
}

func (f *fakeMonitor) ApplySnapshot(_ context.Context, workerID int64, _ *workerapi.StatusPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, workerID)
}

// fakeNode отвечает по-разному в зависимости от URL узла.
type fakeNode struct {
	calls     int64
	delay     time.Duration
	requireGP int64
}

func (f *fakeNode) Resolve(ctx context.Context, baseURL string, _ workerapi.ResolveRequest) (*workerapi.ResolveResult, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	switch baseURL {
	case "http://down":
		return nil, fmt.Errorf("connection refused")
	case "http://reject":
		return &workerapi.ResolveResult{OK: false, Message: "Rejected"}, nil
	default:
		return &workerapi.ResolveResult{
			OK:          true,
			Message:     "Success",
			DownloadURL: "https://archive.example.org/dl/42",
			RequireGP:   f.requireGP,
			Status:      &workerapi.StatusPayload{SiteLabel: "EH", HasFreeQuota: true, GPBalance: 1000000},
		}, nil
	}
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []*HistoryEntry
}

func (f *fakeHistory) Append(_ context.Context, h *HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, h)
	return nil
}

type env struct {
	svc     *Service
	costs   *fakeCosts
	ledger  *fakeLedger
	monitor *fakeMonitor
	node    *fakeNode
	history *fakeHistory
}

func newEnv(balance int64, list []*workers.Worker, ttl time.Duration) *env {
	e := &env{
		costs:   &fakeCosts{cost: 100},
		ledger:  &fakeLedger{balance: balance},
		monitor: &fakeMonitor{},
		node:    &fakeNode{requireGP: 100},
		history: &fakeHistory{},
	}
	e.svc = NewService(
		NewResultCache(ttl),
		e.history,
		e.ledger,
		&fakeSelector{list: list},
		e.monitor,
		e.node,
		e.costs,
		time.Second,
	)
	return e
}

func testUser() *users.User {
	return &users.User{ID: 777, Name: "tester", Role: users.RoleOrdinary}
}

func okRequest() Request {
	return Request{GalleryID: "3301", Token: "deadbeef42", Variant: "org"}
}

func oneGoodWorker() []*workers.Worker {
	return []*workers.Worker{{ID: 1, URL: "http://good", Status: workers.StatusHealthy}}
}

// --- тесты ---

func TestResolve_Success(t *testing.T) {
	e := newEnv(1000, oneGoodWorker(), time.Hour)

	res := e.svc.Resolve(context.Background(), testUser(), okRequest())

	require.Equal(t, CodeOK, res.Code)
	assert.Equal(t, "https://archive.example.org/dl/42", res.DownloadURL)
	assert.Equal(t, int64(100), res.RequireGP)
	assert.False(t, res.Cached)

	// Списание, история и снимок узла зафиксированы ровно один раз
	assert.Equal(t, int64(1), e.ledger.deducts)
	assert.Equal(t, int64(100), e.ledger.deducted)
	require.Len(t, e.history.entries, 1)
	assert.Equal(t, int64(100), e.history.entries[0].Cost)
	assert.Equal(t, []int64{1}, e.monitor.snapshots)
}

func TestResolve_BlockedUser(t *testing.T) {
	e := newEnv(1000, oneGoodWorker(), time.Hour)

	u := testUser()
	u.Role = users.RoleBlocked
	res := e.svc.Resolve(context.Background(), u, okRequest())

	assert.Equal(t, CodeBlocked, res.Code)
	assert.Zero(t, atomic.LoadInt64(&e.costs.calls), "заблокированный не должен доходить до стоимости")
}

func TestResolve_BadRequest(t *testing.T) {
	e := newEnv(1000, oneGoodWorker(), time.Hour)

	res := e.svc.Resolve(context.Background(), testUser(), Request{GalleryID: "", Token: ""})
	assert.Equal(t, CodeBadRequest, res.Code)
}

func TestResolve_CostDiscoveryFailure(t *testing.T) {
	e := newEnv(1000, oneGoodWorker(), time.Hour)
	e.costs.fail = true

	res := e.svc.Resolve(context.Background(), testUser(), okRequest())

	assert.Equal(t, CodeCostFailed, res.Code)
	assert.Zero(t, atomic.LoadInt64(&e.node.calls), "без стоимости к узлам не ходим")
	assert.Zero(t, e.ledger.deducts)
}

func TestResolve_InsufficientBalance(t *testing.T) {
	e := newEnv(99, oneGoodWorker(), time.Hour)

	res := e.svc.Resolve(context.Background(), testUser(), okRequest())

	require.Equal(t, CodeInsufficient, res.Code)
	assert.Equal(t, int64(100), res.RequireGP)
	assert.Equal(t, int64(99), res.CurrentGP)
	assert.Zero(t, atomic.LoadInt64(&e.node.calls), "при нехватке GP к узлам не ходим")
}

func TestResolve_NoCapacity(t *testing.T) {
	e := newEnv(1000, nil, time.Hour)

	res := e.svc.Resolve(context.Background(), testUser(), okRequest())
	assert.Equal(t, CodeNoWorker, res.Code)
}

func TestResolve_FallbackLoop(t *testing.T) {
	list := []*workers.Worker{
		{ID: 1, URL: "http://down", Status: workers.StatusHealthy},
		{ID: 2, URL: "http://reject", Status: workers.StatusHealthy},
		{ID: 3, URL: "http://good", Status: workers.StatusHealthy},
	}
	e := newEnv(1000, list, time.Hour)

	res := e.svc.Resolve(context.Background(), testUser(), okRequest())

	require.Equal(t, CodeOK, res.Code)
	// Оба неудачника деградированы, третий узел довёл запрос
	assert.Equal(t, []int64{1, 2}, e.monitor.demoted)
	assert.Equal(t, int64(1), e.ledger.deducts)
	require.Len(t, e.history.entries, 1)
	assert.Equal(t, int64(3), *e.history.entries[0].WorkerID)
}

func TestResolve_AllWorkersFailed(t *testing.T) {
	list := []*workers.Worker{
		{ID: 1, URL: "http://down", Status: workers.StatusHealthy},
		{ID: 2, URL: "http://reject", Status: workers.StatusHealthy},
	}
	e := newEnv(1000, list, time.Hour)

	res := e.svc.Resolve(context.Background(), testUser(), okRequest())

	assert.Equal(t, CodeNoWorker, res.Code)
	assert.Equal(t, []int64{1, 2}, e.monitor.demoted)
	assert.Zero(t, e.ledger.deducts, "без успеха списания нет")
}

func TestResolve_CachedSecondCall(t *testing.T) {
	e := newEnv(1000, oneGoodWorker(), time.Hour)

	first := e.svc.Resolve(context.Background(), testUser(), okRequest())
	require.Equal(t, CodeOK, first.Code)

	second := e.svc.Resolve(context.Background(), testUser(), okRequest())
	require.Equal(t, CodeOK, second.Code)
	assert.True(t, second.Cached)
	assert.Equal(t, first.DownloadURL, second.DownloadURL)

	// Второй запрос не трогал ни сайт, ни узлы, ни леджер
	assert.Equal(t, int64(1), atomic.LoadInt64(&e.costs.calls))
	assert.Equal(t, int64(1), atomic.LoadInt64(&e.node.calls))
	assert.Equal(t, int64(1), e.ledger.deducts)
}

func TestResolve_ForceBypassesCache(t *testing.T) {
	e := newEnv(1000, oneGoodWorker(), time.Hour)

	first := e.svc.Resolve(context.Background(), testUser(), okRequest())
	require.Equal(t, CodeOK, first.Code)

	req := okRequest()
	req.Force = true
	second := e.svc.Resolve(context.Background(), testUser(), req)

	require.Equal(t, CodeOK, second.Code)
	assert.False(t, second.Cached)
	assert.Equal(t, int64(2), atomic.LoadInt64(&e.node.calls), "force обязан сходить на узел заново")
	assert.Equal(t, int64(2), e.ledger.deducts, "повторная загрузка тарифицируется повторно")
}

func TestResolve_CacheExpiryTriggersNewRoundTrip(t *testing.T) {
	e := newEnv(1000, oneGoodWorker(), 30*time.Millisecond)

	first := e.svc.Resolve(context.Background(), testUser(), okRequest())
	require.Equal(t, CodeOK, first.Code)

	time.Sleep(50 * time.Millisecond)

	second := e.svc.Resolve(context.Background(), testUser(), okRequest())
	require.Equal(t, CodeOK, second.Code)
	assert.False(t, second.Cached)
	assert.Equal(t, int64(2), atomic.LoadInt64(&e.node.calls))
}

// Ключевое свойство конвейера: пачка одновременных одинаковых запросов
// схлопывается в один поход на узел и одно списание.
func TestResolve_ConcurrentRequestsCollapse(t *testing.T) {
	e := newEnv(1000, oneGoodWorker(), time.Hour)
	e.node.delay = 50 * time.Millisecond // даём запросам время столпиться

	const callers = 50
	results := make([]*Result, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.svc.Resolve(context.Background(), testUser(), okRequest())
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.Equal(t, CodeOK, res.Code, "запрос %d", i)
		assert.Equal(t, "https://archive.example.org/dl/42", res.DownloadURL)
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&e.node.calls), "ровно один поход на узел")
	assert.Equal(t, int64(1), atomic.LoadInt64(&e.costs.calls), "ровно одна разведка стоимости")
	assert.Equal(t, int64(1), e.ledger.deducts, "ровно одно списание")
	require.Len(t, e.history.entries, 1)
}

// Запросы разных пользователей на одну галерею НЕ схлопываются:
// ссылка персональная, тарифицируется каждый счёт отдельно.
func TestResolve_DifferentUsersNotCollapsed(t *testing.T) {
	e := newEnv(1000, oneGoodWorker(), time.Hour)

	u1 := &users.User{ID: 1, Name: "first"}
	u2 := &users.User{ID: 2, Name: "second"}

	res1 := e.svc.Resolve(context.Background(), u1, okRequest())
	res2 := e.svc.Resolve(context.Background(), u2, okRequest())

	require.Equal(t, CodeOK, res1.Code)
	require.Equal(t, CodeOK, res2.Code)
	assert.Equal(t, int64(2), atomic.LoadInt64(&e.node.calls))
	assert.Equal(t, int64(2), e.ledger.deducts)
}

// Сценарий из жизни: баланс 100, архив стоит 80.
// Первая загрузка проходит и оставляет 20; повторная по кэшу бесплатна;
// принудительная повторная требует 80 и упирается в нехватку.
func TestResolve_BalanceScenario(t *testing.T) {
	e := newEnv(100, oneGoodWorker(), time.Hour)
	e.costs.cost = 80
	e.node.requireGP = 80

	first := e.svc.Resolve(context.Background(), testUser(), okRequest())
	require.Equal(t, CodeOK, first.Code)
	assert.Equal(t, int64(20), e.ledger.balance)

	cached := e.svc.Resolve(context.Background(), testUser(), okRequest())
	require.Equal(t, CodeOK, cached.Code)
	assert.True(t, cached.Cached)
	assert.Equal(t, int64(20), e.ledger.balance, "кэш не тарифицируется")

	req := okRequest()
	req.Force = true
	forced := e.svc.Resolve(context.Background(), testUser(), req)
	require.Equal(t, CodeInsufficient, forced.Code)
	assert.Equal(t, int64(80), forced.RequireGP)
	assert.Equal(t, int64(20), forced.CurrentGP)
}

// Узлы не доверены: завышенный require_gp в ответе узла не должен
// увеличить списание сверх разведанной и одобренной стоимости.
func TestResolve_NodeCannotInflateCharge(t *testing.T) {
	e := newEnv(100, oneGoodWorker(), time.Hour)
	e.costs.cost = 100
	e.node.requireGP = 500

	res := e.svc.Resolve(context.Background(), testUser(), okRequest())

	require.Equal(t, CodeOK, res.Code)
	assert.Equal(t, int64(100), e.ledger.deducted, "списывается разведанная стоимость, не заявка узла")
	assert.Equal(t, int64(0), e.ledger.balance)
	assert.Equal(t, int64(100), res.RequireGP)

	// Заявка узла остаётся в истории для разбора
	require.Len(t, e.history.entries, 1)
	assert.Equal(t, int64(500), e.history.entries[0].Cost)
}

// Узел может вообще не сообщить стоимость — история тогда хранит разведанную.
func TestResolve_NodeOmitsCharge(t *testing.T) {
	e := newEnv(1000, oneGoodWorker(), time.Hour)
	e.node.requireGP = 0

	res := e.svc.Resolve(context.Background(), testUser(), okRequest())

	require.Equal(t, CodeOK, res.Code)
	assert.Equal(t, int64(100), e.ledger.deducted)
	require.Len(t, e.history.entries, 1)
	assert.Equal(t, int64(100), e.history.entries[0].Cost)
}

func TestResolve_VariantDefaultsToOrg(t *testing.T) {
	e := newEnv(1000, oneGoodWorker(), time.Hour)

	req := okRequest()
	req.Variant = "weird"
	res := e.svc.Resolve(context.Background(), testUser(), req)

	require.Equal(t, CodeOK, res.Code)
	require.Len(t, e.history.entries, 1)
	assert.Equal(t, "org", e.history.entries[0].Variant)
}
