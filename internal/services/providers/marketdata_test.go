package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EarnScan/internal/domain/models"
	domsvc "EarnScan/internal/domain/service"
	svccache "EarnScan/internal/service/cache"
	"EarnScan/internal/service/ratelimit"
	"EarnScan/pkg/config"
)

func newMarketData(t *testing.T, baseURL string, bc svccache.BytesCache) *CachedMarketData {
	t.Helper()
	cfg := &config.Config{}
	cfg.Providers.MarketData.ProviderConfig = testProviderConfig(baseURL)
	cfg.Providers.MarketData.QuoteTTL = time.Minute
	cfg.Providers.MarketData.ExpiryTTL = time.Minute
	cfg.Providers.MarketData.ChainTTL = time.Minute
	return NewCachedMarketData(cfg, ratelimit.New(), bc)
}

func TestQuoteFetchAndCacheHit(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/v1/market/quote/AAA", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"AAA","price":25.5,"avg_volume":2000000,"t":1742565600}`)
	}))
	defer srv.Close()

	md := newMarketData(t, srv.URL, svccache.NewTTLCache())

	q, err := md.Quote(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, "AAA", q.Symbol)
	assert.Equal(t, 25.5, q.Price)
	assert.Equal(t, 2_000_000.0, q.AvgVolume)
	assert.Equal(t, time.Unix(1742565600, 0).UTC(), q.AsOf)

	again, err := md.Quote(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, q, again)
	assert.Equal(t, int64(1), hits.Load(), "second quote must come from the cache")
}

func TestQuoteRejectsUnusablePrices(t *testing.T) {
	cases := map[string]string{
		"zero price":     `{"symbol":"AAA","price":0,"avg_volume":1000}`,
		"reported error": `{"symbol":"AAA","price":25.5,"error":"halted"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			md := newMarketData(t, srv.URL, svccache.NewTTLCache())
			_, err := md.Quote(context.Background(), "AAA")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domsvc.ErrNoData))
		})
	}
}

func TestExpirationsSortedAndCached(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/v1/market/options/AAA", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"AAA","expirations":["2025-04-17","2025-03-21","2025-03-28"]}`)
	}))
	defer srv.Close()

	md := newMarketData(t, srv.URL, svccache.NewTTLCache())

	exps, err := md.Expirations(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-21", "2025-03-28", "2025-04-17"}, exps, "soonest first")

	_, err = md.Expirations(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestExpirationsNoneListed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"AAA","expirations":[]}`)
	}))
	defer srv.Close()

	md := newMarketData(t, srv.URL, svccache.NewTTLCache())
	_, err := md.Expirations(context.Background(), "AAA")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domsvc.ErrNoOptions))
}

func TestChainDecodesGreeksAndCaches(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/v1/market/chain/AAA", r.URL.Path)
		assert.Equal(t, "2025-03-21", r.URL.Query().Get("expiration"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"AAA","expiration":"2025-03-21",
			"calls":[{"strike":25,"bid":1.0,"ask":1.2,"open_interest":1500,"delta":0.52}],
			"puts":[{"strike":25,"bid":0.9,"ask":1.1,"open_interest":1200}]}`)
	}))
	defer srv.Close()

	md := newMarketData(t, srv.URL, svccache.NewTTLCache())

	chain, err := md.Chain(context.Background(), "AAA", "2025-03-21")
	require.NoError(t, err)
	require.Len(t, chain.Calls, 1)
	require.Len(t, chain.Puts, 1)
	require.NotNil(t, chain.Calls[0].Delta)
	assert.Equal(t, 0.52, *chain.Calls[0].Delta)
	assert.Nil(t, chain.Puts[0].Delta, "missing greeks decode as nil, not zero")
	assert.Equal(t, int64(1500), chain.Calls[0].OpenInterest)

	_, err = md.Chain(context.Background(), "AAA", "2025-03-21")
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load())

	// a different expiration is a different cache entry
	_, err = md.Chain(context.Background(), "AAA", "2025-04-17")
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())
}

func TestQuoteWireRoundTrip(t *testing.T) {
	// the websocket pipeline writes quotes the provider must be able to read back
	asOf := time.Unix(1742565600, 0).UTC()
	b, err := EncodeQuote(models.Quote{Symbol: "AAA", Price: 25.5, AvgVolume: 2_000_000, AsOf: asOf})
	require.NoError(t, err)

	q, err := DecodeQuote(b)
	require.NoError(t, err)
	assert.Equal(t, "AAA", q.Symbol)
	assert.Equal(t, 25.5, q.Price)
	assert.Equal(t, asOf, q.AsOf)
}
