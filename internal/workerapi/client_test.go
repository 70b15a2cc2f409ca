package workerapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(2*time.Second, 2*time.Second)
}

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[string]any{
				"site_label":      "EX",
				"has_free_quota":  true,
				"gp_balance":      123456,
				"credits_balance": 7890,
				"enable_gp_spend": true,
			},
		})
	}))
	defer srv.Close()

	got, err := newTestClient().Status(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "EX", got.SiteLabel)
	assert.True(t, got.HasFreeQuota)
	assert.Equal(t, int64(123456), got.GPBalance)
	assert.True(t, got.EnableGPSpend)
}

func TestClient_Status_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	_, err := newTestClient().Status(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestClient_Status_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // сервер уже мёртв

	_, err := newTestClient().Status(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestClient_Resolve_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/resolve", r.URL.Path)

		var req ResolveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2222222", req.GalleryID)
		assert.Equal(t, "org", req.Variant)

		json.NewEncoder(w).Encode(map[string]any{
			"msg":        "Success",
			"d_url":      "https://archive.example/dl/42?autostart=1",
			"require_gp": 80,
			"status": map[string]any{
				"site_label":     "EH",
				"has_free_quota": false,
				"gp_balance":     900,
			},
		})
	}))
	defer srv.Close()

	got, err := newTestClient().Resolve(context.Background(), srv.URL, ResolveRequest{
		Username:  "tester",
		GalleryID: "2222222",
		Token:     "0123456789",
		Variant:   "org",
	})
	require.NoError(t, err)
	assert.True(t, got.OK)
	// ?autostart=1 вырезается из ссылки
	assert.Equal(t, "https://archive.example/dl/42", got.DownloadURL)
	assert.Equal(t, int64(80), got.RequireGP)
	require.NotNil(t, got.Status)
	assert.False(t, got.Status.HasFreeQuota)
}

func TestClient_Resolve_DomainFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"msg":    "Rejected",
			"status": map[string]any{"site_label": "EH", "has_free_quota": true},
		})
	}))
	defer srv.Close()

	got, err := newTestClient().Resolve(context.Background(), srv.URL, ResolveRequest{})
	require.NoError(t, err)
	assert.False(t, got.OK)
	assert.Equal(t, "Rejected", got.Message)
	assert.Empty(t, got.DownloadURL)
}

func TestClient_Resolve_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(time.Second, 50*time.Millisecond)
	_, err := c.Resolve(context.Background(), srv.URL, ResolveRequest{})
	assert.Error(t, err)
}
