package models

// AnalysisReport is the full single-symbol diagnostic: the verdict plus the
// thresholds and reference ratio that framed it. Unlike a scan, it reports
// every metric regardless of pass/fail status.
type AnalysisReport struct {
	Symbol            string        `json:"symbol"`
	Status            string        `json:"status"`
	Tier              int           `json:"tier"`
	Reason            string        `json:"reason"`
	PassThreshold     float64       `json:"iv_rv_pass_threshold"`
	NearMissThreshold float64       `json:"iv_rv_near_miss_threshold"`
	ThresholdBasis    string        `json:"threshold_basis"`
	ReferenceIVRV     *float64      `json:"spy_iv_rv,omitempty"`
	Metrics           MetricsBundle `json:"metrics"`
	IronFly           *IronFlyPlan  `json:"iron_fly,omitempty"`
}
