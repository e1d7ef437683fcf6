package rates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockRateServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		base := r.URL.Query().Get("base")
		if base == "XXX" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"base": base,
			"rates": map[string]float64{
				"USD": 1.08,
				"GBP": 0.85,
			},
		})
	}))
}

func TestClient_Latest(t *testing.T) {
	srv := mockRateServer(t, nil)
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	rates, err := c.Latest(context.Background(), "eur")
	require.NoError(t, err)
	assert.Equal(t, 1.08, rates["USD"])
}

func TestClient_LatestErrorStatus(t *testing.T) {
	srv := mockRateServer(t, nil)
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	_, err := c.Latest(context.Background(), "XXX")
	assert.Error(t, err)
}

func TestCache_SameCurrencySkipsService(t *testing.T) {
	var hits atomic.Int32
	srv := mockRateServer(t, &hits)
	defer srv.Close()

	cache := NewCache(NewClient(srv.URL, 2*time.Second))
	rate, err := cache.Rate(context.Background(), "USD", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
	assert.Equal(t, int32(0), hits.Load())
}

func TestCache_ColdFetchThenCached(t *testing.T) {
	var hits atomic.Int32
	srv := mockRateServer(t, &hits)
	defer srv.Close()

	cache := NewCache(NewClient(srv.URL, 2*time.Second))
	rate, err := cache.Rate(context.Background(), "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.08, rate)

	// Second lookup on the same base hits the cache.
	_, err = cache.Rate(context.Background(), "EUR", "GBP")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCache_UnknownPair(t *testing.T) {
	srv := mockRateServer(t, nil)
	defer srv.Close()

	cache := NewCache(NewClient(srv.URL, 2*time.Second))
	_, err := cache.Rate(context.Background(), "EUR", "JPY")
	assert.ErrorIs(t, err, ErrRateUnknown)
}

func TestCache_ServiceDownIsAdvisory(t *testing.T) {
	srv := mockRateServer(t, nil)
	srv.Close() // already down

	cache := NewCache(NewClient(srv.URL, time.Second))
	_, err := cache.Rate(context.Background(), "EUR", "USD")
	assert.ErrorIs(t, err, ErrRateUnknown)
}
