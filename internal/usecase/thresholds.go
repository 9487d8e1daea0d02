package usecase

import (
	"context"

	"EarnScan/internal/domain/models"
	domsvc "EarnScan/internal/domain/service"
	applogger "EarnScan/pkg/logger"
)

// staleRatioFloor guards against closed-market reference samples: a ratio below
// it means the index data is unusable, not that volatility is compressed.
const staleRatioFloor = 0.01

// ThresholdAdapter derives the volatility-ratio thresholds for one scan from a
// single reference-index analytics sample.
type ThresholdAdapter struct {
	analytics domsvc.AnalyticsProvider
	reference string
	logger    *applogger.Logger
}

func NewThresholdAdapter(analytics domsvc.AnalyticsProvider, reference string, l *applogger.Logger) *ThresholdAdapter {
	if reference == "" {
		reference = "SPY"
	}
	return &ThresholdAdapter{analytics: analytics, reference: reference, logger: l}
}

// Reference returns the index symbol the adapter samples.
func (a *ThresholdAdapter) Reference() string { return a.reference }

// Adapt fetches one reference sample and maps it onto a ThresholdState.
// It never returns an error: unavailable or unreliable samples fall back to
// the defaults, and the Basis field records which path was taken.
func (a *ThresholdAdapter) Adapt(ctx context.Context) models.ThresholdState {
	state := models.DefaultThresholds()

	sample, err := a.analytics.Compute(ctx, a.reference)
	if err != nil {
		state.Basis = models.ThresholdBasisIndexError
		a.logger.Warn("threshold reference sample failed, keeping defaults",
			applogger.String("reference", a.reference), applogger.Error(err))
		return state
	}
	if sample.Error != "" {
		state.Basis = models.ThresholdBasisIndexError
		a.logger.Warn("threshold reference sample reported error, keeping defaults",
			applogger.String("reference", a.reference), applogger.String("error", sample.Error))
		return state
	}

	r := sample.IV30RV30
	if r < staleRatioFloor {
		state.Basis = models.ThresholdBasisStaleIndex
		a.logger.Warn("reference ratio unreasonably low, keeping defaults",
			applogger.String("reference", a.reference), applogger.Float64("ratio", r))
		return state
	}

	state = ThresholdBand(r)
	a.logger.Info("thresholds adapted to market conditions",
		applogger.String("reference", a.reference),
		applogger.Float64("ratio", r),
		applogger.Float64("pass", state.Pass),
		applogger.Float64("near_miss", state.NearMiss))
	return state
}

// ThresholdBand maps a reference ratio onto exactly one of the four ordered,
// non-overlapping bands. Boundaries are inclusive on the low side of each step.
func ThresholdBand(r float64) models.ThresholdState {
	switch {
	case r <= 0.75:
		return models.ThresholdState{Pass: 0.90, NearMiss: 0.65, Basis: models.ThresholdBasisIndex}
	case r <= 0.85:
		return models.ThresholdState{Pass: 1.00, NearMiss: 0.75, Basis: models.ThresholdBasisIndex}
	case r <= 1.00:
		return models.ThresholdState{Pass: 1.10, NearMiss: 0.85, Basis: models.ThresholdBasisIndex}
	default:
		return models.ThresholdState{Pass: 1.25, NearMiss: 1.00, Basis: models.ThresholdBasisIndex}
	}
}
