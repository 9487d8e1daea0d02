package models

// Metric keys written by the validation pipeline. A bundle carries only the keys
// computed before the stage that stopped it.
const (
	MetricTicker         = "ticker"
	MetricPrice          = "price"
	MetricDaysToExpiry   = "days_to_expiry"
	MetricOpenInterest   = "open_interest"
	MetricTermStructure  = "term_structure"
	MetricATMCallDelta   = "atm_call_delta"
	MetricATMPutDelta    = "atm_put_delta"
	MetricExpectedMoveUSD = "expected_move_dollars"
	MetricExpectedMovePct = "expected_move_pct"
	MetricVolume         = "volume"
	MetricWinRate        = "win_rate"
	MetricWinQuarters    = "win_quarters"
	MetricIVRVRatio      = "iv_rv_ratio"
	MetricTier           = "tier"
)

// MetricsBundle is the open key-value accumulator threaded through validation.
type MetricsBundle map[string]any

func NewMetricsBundle(symbol string) MetricsBundle {
	return MetricsBundle{MetricTicker: symbol}
}

func (m MetricsBundle) Set(key string, v any) { m[key] = v }

// Float returns the value under key as a float64 when present and numeric.
func (m MetricsBundle) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func (m MetricsBundle) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Clone returns a shallow copy so stored results cannot alias a live bundle.
func (m MetricsBundle) Clone() MetricsBundle {
	out := make(MetricsBundle, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
