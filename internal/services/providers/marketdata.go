package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"EarnScan/internal/domain/models"
	domsvc "EarnScan/internal/domain/service"
	svccache "EarnScan/internal/service/cache"
	svcmetrics "EarnScan/internal/service/metrics"
	"EarnScan/internal/service/ratelimit"
	"EarnScan/pkg/config"
)

const (
	defaultQuoteTTL  = 30 * time.Second
	defaultExpiryTTL = 10 * time.Minute
	defaultChainTTL  = 2 * time.Minute
)

// QuoteCacheKey is the cache key for one symbol's quote. The websocket quote
// pipeline writes through the same key to keep the price gate warm.
func QuoteCacheKey(symbol string) string { return "md:quote:" + symbol }

func expiryCacheKey(symbol string) string { return "md:expiry:" + symbol }

func chainCacheKey(symbol, expiration string) string {
	return "md:chain:" + symbol + ":" + expiration
}

type quoteWire struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	AvgVolume float64 `json:"avg_volume"`
	T         int64   `json:"t"`
	Error     string  `json:"error,omitempty"`
}

// EncodeQuote serializes a quote in the cache representation.
func EncodeQuote(q models.Quote) ([]byte, error) {
	return json.Marshal(quoteWire{
		Symbol:    q.Symbol,
		Price:     q.Price,
		AvgVolume: q.AvgVolume,
		T:         q.AsOf.Unix(),
	})
}

// DecodeQuote parses a cached quote entry.
func DecodeQuote(b []byte) (models.Quote, error) {
	var w quoteWire
	if err := json.Unmarshal(b, &w); err != nil {
		return models.Quote{}, err
	}
	return w.toModel(), nil
}

type expiryWire struct {
	Symbol      string   `json:"symbol"`
	Expirations []string `json:"expirations"`
}

type chainRowWire struct {
	Strike       float64  `json:"strike"`
	Bid          float64  `json:"bid"`
	Ask          float64  `json:"ask"`
	OpenInterest int64    `json:"open_interest"`
	Delta        *float64 `json:"delta,omitempty"`
}

type chainWire struct {
	Symbol     string         `json:"symbol"`
	Expiration string         `json:"expiration"`
	Calls      []chainRowWire `json:"calls"`
	Puts       []chainRowWire `json:"puts"`
}

// CachedMarketData serves quotes, expiration lists and option chains through
// the layered byte cache, falling back to the market-data service on a miss.
type CachedMarketData struct {
	base      *HTTPServiceBase
	cache     svccache.BytesCache
	quoteTTL  time.Duration
	expiryTTL time.Duration
	chainTTL  time.Duration
}

func NewCachedMarketData(cfg *config.Config, limiter *ratelimit.Limiter, bc svccache.BytesCache) *CachedMarketData {
	md := cfg.Providers.MarketData
	m := &CachedMarketData{
		base:      NewHTTPServiceBase("market_data", md.ProviderConfig, limiter),
		cache:     bc,
		quoteTTL:  md.QuoteTTL,
		expiryTTL: md.ExpiryTTL,
		chainTTL:  md.ChainTTL,
	}
	if m.quoteTTL <= 0 {
		m.quoteTTL = defaultQuoteTTL
	}
	if m.expiryTTL <= 0 {
		m.expiryTTL = defaultExpiryTTL
	}
	if m.chainTTL <= 0 {
		m.chainTTL = defaultChainTTL
	}
	return m
}

// Quote returns the last price and trailing average volume for symbol.
func (m *CachedMarketData) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var w quoteWire
	if m.cached(ctx, "quote", QuoteCacheKey(symbol), &w) {
		return w.toModel(), nil
	}

	path := "/api/v1/market/quote/" + url.PathEscape(symbol)
	if err := m.base.GetJSON(ctx, "quote", path, nil, &w); err != nil {
		return models.Quote{}, err
	}
	if w.Error != "" || w.Price <= 0 {
		return models.Quote{}, fmt.Errorf("quote %s: %w", symbol, domsvc.ErrNoData)
	}

	m.store(QuoteCacheKey(symbol), w, m.quoteTTL)
	return w.toModel(), nil
}

func (w quoteWire) toModel() models.Quote {
	return models.Quote{
		Symbol:    w.Symbol,
		Price:     w.Price,
		AvgVolume: w.AvgVolume,
		AsOf:      time.Unix(w.T, 0).UTC(),
	}
}

// Expirations returns the listed option expirations for symbol, soonest first.
func (m *CachedMarketData) Expirations(ctx context.Context, symbol string) ([]string, error) {
	var w expiryWire
	if m.cached(ctx, "expirations", expiryCacheKey(symbol), &w) {
		return w.Expirations, nil
	}

	path := "/api/v1/market/options/" + url.PathEscape(symbol)
	if err := m.base.GetJSON(ctx, "expirations", path, nil, &w); err != nil {
		return nil, err
	}
	if len(w.Expirations) == 0 {
		return nil, fmt.Errorf("expirations %s: %w", symbol, domsvc.ErrNoOptions)
	}
	sort.Strings(w.Expirations) // YYYY-MM-DD sorts chronologically

	m.store(expiryCacheKey(symbol), w, m.expiryTTL)
	return w.Expirations, nil
}

// Chain returns the option chain for one expiration.
func (m *CachedMarketData) Chain(ctx context.Context, symbol, expiration string) (*models.OptionChain, error) {
	var w chainWire
	if m.cached(ctx, "chain", chainCacheKey(symbol, expiration), &w) {
		return w.toModel(), nil
	}

	path := "/api/v1/market/chain/" + url.PathEscape(symbol)
	query := map[string][]string{"expiration": {expiration}}
	if err := m.base.GetJSON(ctx, "chain", path, query, &w); err != nil {
		return nil, err
	}

	m.store(chainCacheKey(symbol, expiration), w, m.chainTTL)
	return w.toModel(), nil
}

func (w chainWire) toModel() *models.OptionChain {
	toRows := func(rows []chainRowWire) []models.OptionQuote {
		out := make([]models.OptionQuote, len(rows))
		for i, r := range rows {
			out[i] = models.OptionQuote{
				Strike:       r.Strike,
				Bid:          r.Bid,
				Ask:          r.Ask,
				OpenInterest: r.OpenInterest,
				Delta:        r.Delta,
			}
		}
		return out
	}
	return &models.OptionChain{
		Symbol:     w.Symbol,
		Expiration: w.Expiration,
		Calls:      toRows(w.Calls),
		Puts:       toRows(w.Puts),
	}
}

// cached loads key into dest, reporting a usable hit.
func (m *CachedMarketData) cached(_ context.Context, op, key string, dest interface{}) bool {
	if m.cache == nil {
		return false
	}
	b, ok, err := m.cache.GetBytes(key)
	if err != nil || !ok {
		return false
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false
	}
	svcmetrics.ProviderCacheHits.WithLabelValues("market_data", op).Inc()
	return true
}

func (m *CachedMarketData) store(key string, v interface{}, ttl time.Duration) {
	if m.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = m.cache.SetBytes(key, b, ttl)
}

var _ domsvc.MarketDataProvider = (*CachedMarketData)(nil)
