package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EarnScan/internal/service/ratelimit"
	"EarnScan/pkg/config"
)

func newAnalytics(t *testing.T, baseURL string, retries int) *HTTPAnalyticsProvider {
	t.Helper()
	cfg := &config.Config{}
	cfg.Providers.Analytics = testProviderConfig(baseURL)
	cfg.Providers.Analytics.Retries = retries
	return NewHTTPAnalyticsProvider(cfg, ratelimit.New())
}

func TestAnalyticsCompute(t *testing.T) {
	var gotBody struct {
		Symbol string `json:"symbol"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/analytics/earnings", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"AAA","ts_slope_0_45":-0.0052,"iv30_rv30":1.31,
			"atm_call_delta":0.52,"atm_put_delta":-0.48,"expected_move":"5.20%"}`)
	}))
	defer srv.Close()

	p := newAnalytics(t, srv.URL, 1)
	got, err := p.Compute(context.Background(), "AAA")
	require.NoError(t, err)

	assert.Equal(t, "AAA", gotBody.Symbol)
	assert.Equal(t, "AAA", got.Symbol)
	assert.Equal(t, -0.0052, got.TermSlope)
	assert.Equal(t, 1.31, got.IV30RV30)
	require.NotNil(t, got.ATMCallDelta)
	assert.Equal(t, 0.52, *got.ATMCallDelta)
	require.NotNil(t, got.ATMPutDelta)
	assert.Equal(t, -0.48, *got.ATMPutDelta)
	assert.Equal(t, "5.20%", got.ExpectedMove)
	assert.Empty(t, got.Error)
}

func TestAnalyticsComputationErrorRidesTheBundle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"AAA","error":"not enough history"}`)
	}))
	defer srv.Close()

	p := newAnalytics(t, srv.URL, 1)
	got, err := p.Compute(context.Background(), "AAA")
	require.NoError(t, err, "a sidecar-reported failure is data, not a transport error")
	assert.Equal(t, "not enough history", got.Error)
}

func TestAnalyticsRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"AAA","ts_slope_0_45":-0.005,"iv30_rv30":1.3,"expected_move":"5%"}`)
	}))
	defer srv.Close()

	p := newAnalytics(t, srv.URL, 3)
	got, err := p.Compute(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, 1.3, got.IV30RV30)
	assert.Equal(t, int64(2), hits.Load(), "first failure triggers exactly one retry")
}

func TestAnalyticsGivesUpAfterRetries(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newAnalytics(t, srv.URL, 2)
	_, err := p.Compute(context.Background(), "AAA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compute analytics for AAA")
	assert.Equal(t, int64(2), hits.Load())
}
