package models

// How a ThresholdState was derived, for logs and scan audit.
const (
	ThresholdBasisDefault    = "default"
	ThresholdBasisIndex      = "index"
	ThresholdBasisStaleIndex = "stale-index"
	ThresholdBasisIndexError = "index-error"
)

// ThresholdState holds the volatility-ratio cutoffs for one scan. It is computed
// once before validation starts and passed by value into every validation call,
// so no candidate within a scan can observe a different state.
type ThresholdState struct {
	Pass     float64
	NearMiss float64
	Basis    string
}

// DefaultThresholds is the normal-market state and the fallback whenever the
// reference index sample is missing or unreliable.
func DefaultThresholds() ThresholdState {
	return ThresholdState{Pass: 1.25, NearMiss: 1.00, Basis: ThresholdBasisDefault}
}
