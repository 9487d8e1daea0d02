package service

import (
	"context"
	"errors"
	"time"

	"EarnScan/internal/domain/models"
)

// Sentinel errors shared by provider implementations.
var (
	ErrNoData    = errors.New("no data available")
	ErrNoOptions = errors.New("no options available")
)

// EventCalendarSource lists the symbols reporting earnings on a date.
// May fail or return an empty list; both are non-fatal to a scan.
type EventCalendarSource interface {
	Fetch(ctx context.Context, date time.Time) ([]models.Candidate, error)
}

// MarketDataProvider serves quotes, expirations and option-chain snapshots.
type MarketDataProvider interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	Expirations(ctx context.Context, symbol string) ([]string, error)
	Chain(ctx context.Context, symbol, expiration string) (*models.OptionChain, error)
}

// AnalyticsProvider computes the derived earnings analytics for one symbol.
type AnalyticsProvider interface {
	Compute(ctx context.Context, symbol string) (*models.EventAnalytics, error)
}

// WinRateProvider returns the historical beat-expectations record.
// Implementations own retry, reinitialization and degradation; callers treat it
// as a simple fallible call that may come back with the neutral zero value.
type WinRateProvider interface {
	Fetch(ctx context.Context, symbol string) (models.WinRateStats, error)
}
