package models

import "time"

// EventTiming is when the earnings event happens relative to the trading session.
type EventTiming string

const (
	PreMarket     EventTiming = "Pre Market"
	PostMarket    EventTiming = "Post Market"
	DuringMarket  EventTiming = "During Market"
	TimingManual  EventTiming = "Manual Check"
	TimingUnknown EventTiming = "Unknown"
)

// ParseEventTiming maps a calendar wire string onto an EventTiming.
// Unrecognized values map to TimingUnknown.
func ParseEventTiming(s string) EventTiming {
	switch EventTiming(s) {
	case PreMarket, PostMarket, DuringMarket:
		return EventTiming(s)
	default:
		return TimingUnknown
	}
}

// Candidate is one symbol reporting earnings on a scan date. Immutable once built.
type Candidate struct {
	Symbol string
	Timing EventTiming
}

// ScanDates holds the two calendar dates one scan covers: post-market events on
// PostMarket and pre-market events on the following business day.
type ScanDates struct {
	PostMarket time.Time
	PreMarket  time.Time
}
