package models

import "time"

// Quote is the latest trade price plus trailing ~1-month average daily volume.
type Quote struct {
	Symbol    string
	Price     float64
	AvgVolume float64
	AsOf      time.Time
}

// OptionQuote is one row of an option chain. Delta is nil when the upstream
// feed does not publish Greeks.
type OptionQuote struct {
	Strike       float64
	Bid          float64
	Ask          float64
	OpenInterest int64
	Delta        *float64
}

// Mid returns the bid/ask midpoint.
func (q OptionQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// OptionChain is a snapshot of the call and put rows for one expiration.
type OptionChain struct {
	Symbol     string
	Expiration string // YYYY-MM-DD
	Calls      []OptionQuote
	Puts       []OptionQuote
}

// TotalOpenInterest sums open interest across both sides.
func (c *OptionChain) TotalOpenInterest() int64 {
	var total int64
	for _, q := range c.Calls {
		total += q.OpenInterest
	}
	for _, q := range c.Puts {
		total += q.OpenInterest
	}
	return total
}

// HasDeltas reports whether every row on both sides carries a delta, which is
// what strike selection by delta requires.
func (c *OptionChain) HasDeltas() bool {
	if len(c.Calls) == 0 || len(c.Puts) == 0 {
		return false
	}
	for _, q := range c.Calls {
		if q.Delta == nil {
			return false
		}
	}
	for _, q := range c.Puts {
		if q.Delta == nil {
			return false
		}
	}
	return true
}

// EventAnalytics is the derived-analytics bundle for one symbol. ExpectedMove
// keeps the upstream representation (usually a percent string such as "5.20%");
// parsing happens at the gate that consumes it. Error is non-empty when the
// upstream computation failed for this symbol.
type EventAnalytics struct {
	Symbol       string
	TermSlope    float64
	IV30RV30     float64
	ATMCallDelta *float64
	ATMPutDelta  *float64
	ExpectedMove string
	Error        string
}

// WinRateStats is the historical beat-expectations record. The zero value is
// the neutral default returned when the win-rate session is exhausted.
type WinRateStats struct {
	WinRate  float64 // percent, 0-100
	Quarters int
}
