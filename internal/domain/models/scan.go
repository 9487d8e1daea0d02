package models

import "time"

// ScanResult aggregates every Classification produced by one scan invocation.
// Classifications keep candidate discovery order.
type ScanResult struct {
	ID              string
	Dates           ScanDates
	Thresholds      ThresholdState
	StartedAt       time.Time
	FinishedAt      time.Time
	Classifications []Classification
}

// Recommended returns the tier 1 and tier 2 passes, discovery order preserved.
func (r *ScanResult) Recommended() []Classification {
	out := make([]Classification, 0, len(r.Classifications))
	for _, c := range r.Classifications {
		if c.Recommended() {
			out = append(out, c)
		}
	}
	return out
}

// TierSymbols returns the symbols classified into the given tier.
func (r *ScanResult) TierSymbols(tier int) []string {
	var out []string
	for _, c := range r.Classifications {
		if c.Outcome == OutcomePass && c.Tier == tier {
			out = append(out, c.Symbol)
		}
	}
	return out
}

// NearMisses maps each near-miss symbol to its reason.
func (r *ScanResult) NearMisses() map[string]string {
	out := map[string]string{}
	for _, c := range r.Classifications {
		if c.Outcome == OutcomeNearMiss {
			out[c.Symbol] = c.Reason
		}
	}
	return out
}

// Failed returns the classifications that failed outright.
func (r *ScanResult) Failed() []Classification {
	var out []Classification
	for _, c := range r.Classifications {
		if c.Outcome == OutcomeFail {
			out = append(out, c)
		}
	}
	return out
}

// ScanCounts summarizes a scan for logs and the stored header row.
type ScanCounts struct {
	Analyzed    int
	Recommended int
	TierOne     int
	TierTwo     int
	NearMisses  int
	Failed      int
}

// Counts tallies the classifications by outcome.
func (r *ScanResult) Counts() ScanCounts {
	counts := ScanCounts{Analyzed: len(r.Classifications)}
	for _, c := range r.Classifications {
		switch {
		case c.Recommended():
			counts.Recommended++
			if c.Tier == 1 {
				counts.TierOne++
			} else {
				counts.TierTwo++
			}
		case c.Outcome == OutcomeNearMiss:
			counts.NearMisses++
		default:
			counts.Failed++
		}
	}
	return counts
}

// ScanSummary is the JSON-serializable export shape for one scan.
type ScanSummary struct {
	Timestamp        string                   `json:"timestamp"`
	RecommendedTier1 []string                 `json:"recommended_tier1"`
	RecommendedTier2 []string                 `json:"recommended_tier2"`
	NearMisses       map[string]string        `json:"near_misses"`
	Metrics          map[string]MetricsBundle `json:"metrics"`
	AllAnalyzed      map[string]MetricsBundle `json:"all_analyzed"`
}

// Summary builds the export shape. Metrics covers recommended and near-miss
// symbols; AllAnalyzed covers every candidate that was looked at.
func (r *ScanResult) Summary() ScanSummary {
	s := ScanSummary{
		Timestamp:        r.StartedAt.Format("20060102_150405"),
		RecommendedTier1: r.TierSymbols(1),
		RecommendedTier2: r.TierSymbols(2),
		NearMisses:       r.NearMisses(),
		Metrics:          map[string]MetricsBundle{},
		AllAnalyzed:      map[string]MetricsBundle{},
	}
	if s.RecommendedTier1 == nil {
		s.RecommendedTier1 = []string{}
	}
	if s.RecommendedTier2 == nil {
		s.RecommendedTier2 = []string{}
	}
	for _, c := range r.Classifications {
		s.AllAnalyzed[c.Symbol] = c.Metrics
		if c.Recommended() || c.Outcome == OutcomeNearMiss {
			s.Metrics[c.Symbol] = c.Metrics
		}
	}
	return s
}
