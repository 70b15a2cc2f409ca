package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbot.ru/archive-bot/internal/bot/middleware"
	"arbot.ru/archive-bot/internal/common"
	"arbot.ru/archive-bot/internal/features/resolver"
	"arbot.ru/archive-bot/internal/features/users"
)

type fakeAuth struct {
	users map[string]*users.User
}

func (f *fakeAuth) GetByAPIKey(_ context.Context, apikey string) (*users.User, error) {
	u, ok := f.users[apikey]
	if !ok {
		return nil, common.ErrInvalidAPIKey
	}
	return u, nil
}

type fakeLedger struct {
	balance   int64
	checkedIn bool
}

func (f *fakeLedger) Balance(_ context.Context, _ int64) (int64, error) {
	return f.balance, nil
}

func (f *fakeLedger) Checkin(_ context.Context, _ int64) (int64, int64, error) {
	if f.checkedIn {
		return 0, f.balance, common.ErrAlreadyCheckedIn
	}
	f.checkedIn = true
	f.balance += 15000
	return 15000, f.balance, nil
}

type fakeResolver struct {
	result *resolver.Result
	called bool
}

func (f *fakeResolver) Resolve(_ context.Context, _ *users.User, _ resolver.Request) *resolver.Result {
	f.called = true
	return f.result
}

func newTestServer(limiter *middleware.RateLimiter) (*Server, *fakeLedger, *fakeResolver) {
	auth := &fakeAuth{users: map[string]*users.User{
		"good-key":    {ID: 1, Name: "tester", Role: users.RoleOrdinary},
		"blocked-key": {ID: 2, Name: "banned", Role: users.RoleBlocked},
	}}
	ledger := &fakeLedger{balance: 5000}
	res := &fakeResolver{result: &resolver.Result{
		Code:        resolver.CodeOK,
		Msg:         "готово",
		DownloadURL: "https://archive.example.org/dl/1",
		RequireGP:   100,
	}}
	return NewServer(auth, ledger, res, limiter, "https://t.me/test_bot"), ledger, res
}

func doPost(t *testing.T, h http.Handler, path string, body any) envelope {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// Конверт всегда ездит поверх HTTP 200
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestResolveEndpoint_Success(t *testing.T) {
	srv, _, fr := newTestServer(nil)

	env := doPost(t, srv.Handler(), "/resolve", map[string]any{
		"apikey": "good-key", "gid": "3301", "token": "deadbeef42",
	})

	assert.Equal(t, resolver.CodeOK, env.Code)
	assert.True(t, fr.called)

	data := env.Data.(map[string]any)
	assert.Equal(t, "https://archive.example.org/dl/1", data["archive_url"])
	assert.Equal(t, float64(100), data["require_gp"])
}

func TestResolveEndpoint_MissingKey(t *testing.T) {
	srv, _, fr := newTestServer(nil)

	env := doPost(t, srv.Handler(), "/resolve", map[string]any{"gid": "3301"})

	assert.Equal(t, resolver.CodeBadRequest, env.Code)
	assert.False(t, fr.called)
}

func TestResolveEndpoint_InvalidKey(t *testing.T) {
	srv, _, fr := newTestServer(nil)

	env := doPost(t, srv.Handler(), "/resolve", map[string]any{
		"apikey": "nope", "gid": "3301", "token": "deadbeef42",
	})

	assert.Equal(t, resolver.CodeInvalidAPIKey, env.Code)
	assert.False(t, fr.called)
}

func TestResolveEndpoint_BlockedUser(t *testing.T) {
	srv, _, fr := newTestServer(nil)

	env := doPost(t, srv.Handler(), "/resolve", map[string]any{
		"apikey": "blocked-key", "gid": "3301", "token": "deadbeef42",
	})

	assert.Equal(t, resolver.CodeBlocked, env.Code)
	assert.False(t, fr.called)
}

func TestResolveEndpoint_MalformedBody(t *testing.T) {
	srv, _, _ := newTestServer(nil)

	req := httptest.NewRequest(http.MethodPost, "/resolve", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, resolver.CodeBadRequest, env.Code)
}

func TestBalanceEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(nil)

	env := doPost(t, srv.Handler(), "/balance", map[string]any{"apikey": "good-key"})

	require.Equal(t, resolver.CodeOK, env.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(5000), data["current_gp"])
}

func TestCheckinEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(nil)
	h := srv.Handler()

	env := doPost(t, h, "/checkin", map[string]any{"apikey": "good-key"})
	require.Equal(t, resolver.CodeOK, env.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(15000), data["get_gp"])

	// Повторный чекин в тот же день — код 7, баланс остаётся в ответе
	env = doPost(t, h, "/checkin", map[string]any{"apikey": "good-key"})
	assert.Equal(t, resolver.CodeCheckedIn, env.Code)
	data = env.Data.(map[string]any)
	assert.Equal(t, float64(20000), data["current_gp"])
}

func TestRootRedirect(t *testing.T) {
	srv, _, _ := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://t.me/test_bot", rec.Header().Get("Location"))
}

func TestRateLimit(t *testing.T) {
	srv, _, _ := newTestServer(middleware.NewRateLimiter(2, time.Minute))
	h := srv.Handler()

	body := map[string]any{"apikey": "good-key"}
	assert.Equal(t, resolver.CodeOK, doPost(t, h, "/balance", body).Code)
	assert.Equal(t, resolver.CodeOK, doPost(t, h, "/balance", body).Code)
	assert.Equal(t, resolver.CodeBadRequest, doPost(t, h, "/balance", body).Code)
}
