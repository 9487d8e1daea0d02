package providers

import (
	"context"
	"fmt"

	"EarnScan/internal/domain/models"
	domsvc "EarnScan/internal/domain/service"
	"EarnScan/internal/service/ratelimit"
	"EarnScan/pkg/config"
)

// HTTPAnalyticsProvider computes the derived-analytics bundle for one symbol
// via the analytics sidecar.
type HTTPAnalyticsProvider struct {
	base    *HTTPServiceBase
	retries int
}

func NewHTTPAnalyticsProvider(cfg *config.Config, limiter *ratelimit.Limiter) *HTTPAnalyticsProvider {
	retries := cfg.Providers.Analytics.Retries
	if retries <= 0 {
		retries = 3
	}
	return &HTTPAnalyticsProvider{
		base:    NewHTTPServiceBase("analytics", cfg.Providers.Analytics, limiter),
		retries: retries,
	}
}

type analyticsReq struct {
	Symbol string `json:"symbol"`
}

type analyticsResp struct {
	Symbol       string   `json:"symbol"`
	TermSlope    float64  `json:"ts_slope_0_45"`
	IV30RV30     float64  `json:"iv30_rv30"`
	ATMCallDelta *float64 `json:"atm_call_delta"`
	ATMPutDelta  *float64 `json:"atm_put_delta"`
	ExpectedMove string   `json:"expected_move"`
	Error        string   `json:"error"`
}

// Compute returns the analytics bundle. A computation error reported by the
// sidecar comes back inside the bundle, not as a transport error.
func (p *HTTPAnalyticsProvider) Compute(ctx context.Context, symbol string) (*models.EventAnalytics, error) {
	var ar analyticsResp
	err := p.base.PostJSONWithRetry(ctx, "compute", "/api/v1/analytics/earnings",
		analyticsReq{Symbol: symbol}, &ar, p.retries)
	if err != nil {
		return nil, fmt.Errorf("compute analytics for %s: %w", symbol, err)
	}

	return &models.EventAnalytics{
		Symbol:       symbol,
		TermSlope:    ar.TermSlope,
		IV30RV30:     ar.IV30RV30,
		ATMCallDelta: ar.ATMCallDelta,
		ATMPutDelta:  ar.ATMPutDelta,
		ExpectedMove: ar.ExpectedMove,
		Error:        ar.Error,
	}, nil
}

var _ domsvc.AnalyticsProvider = (*HTTPAnalyticsProvider)(nil)
