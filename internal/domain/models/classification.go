package models

// Outcome is the final verdict for one candidate.
type Outcome string

const (
	OutcomePass     Outcome = "pass"
	OutcomeNearMiss Outcome = "near_miss"
	OutcomeFail     Outcome = "fail"
)

// Export status labels used by the CSV/JSON boundary.
const (
	StatusRecommended = "RECOMMENDED"
	StatusNearMiss    = "NEAR_MISS"
	StatusFailed      = "FAILED"
)

// Classification is the immutable result of validating one candidate.
// Tier is 1 or 2 only when Outcome is OutcomePass; a NearMiss always carries tier 0.
type Classification struct {
	Symbol  string
	Timing  EventTiming
	Outcome Outcome
	Tier    int
	Reason  string
	Metrics MetricsBundle
}

// Recommended reports whether the candidate made either recommended tier.
func (c Classification) Recommended() bool {
	return c.Outcome == OutcomePass && (c.Tier == 1 || c.Tier == 2)
}

// Status maps the outcome onto the export status label.
func (c Classification) Status() string {
	switch c.Outcome {
	case OutcomePass:
		return StatusRecommended
	case OutcomeNearMiss:
		return StatusNearMiss
	default:
		return StatusFailed
	}
}
