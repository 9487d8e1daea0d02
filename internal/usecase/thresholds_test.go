package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"EarnScan/internal/domain/models"
)

func TestThresholdBandBoundaries(t *testing.T) {
	cases := []struct {
		ratio    float64
		pass     float64
		nearMiss float64
	}{
		{0.40, 0.90, 0.65},
		{0.75, 0.90, 0.65}, // boundary belongs to the lower band
		{0.76, 1.00, 0.75},
		{0.85, 1.00, 0.75},
		{0.86, 1.10, 0.85},
		{1.00, 1.10, 0.85},
		{1.01, 1.25, 1.00},
		{3.00, 1.25, 1.00},
	}
	for _, tc := range cases {
		got := ThresholdBand(tc.ratio)
		assert.Equal(t, tc.pass, got.Pass, "ratio %.2f", tc.ratio)
		assert.Equal(t, tc.nearMiss, got.NearMiss, "ratio %.2f", tc.ratio)
		assert.Equal(t, models.ThresholdBasisIndex, got.Basis, "ratio %.2f", tc.ratio)
	}
}

func TestAdaptHealthySample(t *testing.T) {
	an := &stubAnalytics{sample: &models.EventAnalytics{Symbol: "SPY", IV30RV30: 0.95}}
	a := NewThresholdAdapter(an, "", testLogger(t))

	assert.Equal(t, "SPY", a.Reference(), "empty reference falls back to SPY")

	st := a.Adapt(context.Background())
	assert.Equal(t, 1.10, st.Pass)
	assert.Equal(t, 0.85, st.NearMiss)
	assert.Equal(t, models.ThresholdBasisIndex, st.Basis)
}

func TestAdaptProviderError(t *testing.T) {
	an := &stubAnalytics{err: assert.AnError}
	a := NewThresholdAdapter(an, "SPY", testLogger(t))

	st := a.Adapt(context.Background())
	assert.Equal(t, models.DefaultThresholds().Pass, st.Pass)
	assert.Equal(t, models.DefaultThresholds().NearMiss, st.NearMiss)
	assert.Equal(t, models.ThresholdBasisIndexError, st.Basis)
}

func TestAdaptSampleCarriesError(t *testing.T) {
	an := &stubAnalytics{sample: &models.EventAnalytics{Symbol: "SPY", Error: "market closed"}}
	a := NewThresholdAdapter(an, "SPY", testLogger(t))

	st := a.Adapt(context.Background())
	assert.Equal(t, 1.25, st.Pass)
	assert.Equal(t, 1.00, st.NearMiss)
	assert.Equal(t, models.ThresholdBasisIndexError, st.Basis)
}

func TestAdaptStaleSample(t *testing.T) {
	an := &stubAnalytics{sample: &models.EventAnalytics{Symbol: "SPY", IV30RV30: 0.001}}
	a := NewThresholdAdapter(an, "SPY", testLogger(t))

	st := a.Adapt(context.Background())
	assert.Equal(t, 1.25, st.Pass)
	assert.Equal(t, 1.00, st.NearMiss)
	assert.Equal(t, models.ThresholdBasisStaleIndex, st.Basis)
}

func TestAdaptCustomReference(t *testing.T) {
	var sampled string
	an := &stubAnalytics{fn: func(symbol string) (*models.EventAnalytics, error) {
		sampled = symbol
		return &models.EventAnalytics{Symbol: symbol, IV30RV30: 1.40}, nil
	}}
	a := NewThresholdAdapter(an, "QQQ", testLogger(t))

	st := a.Adapt(context.Background())
	assert.Equal(t, "QQQ", sampled)
	assert.Equal(t, 1.25, st.Pass)
	assert.Equal(t, models.ThresholdBasisIndex, st.Basis)
}
