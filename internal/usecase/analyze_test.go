package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EarnScan/internal/domain/models"
	domrepo "EarnScan/internal/domain/repository"
)

func newAnalyzerFixture(t *testing.T, market *stubMarket, analytics *stubAnalytics) *SymbolAnalyzer {
	t.Helper()
	l := testLogger(t)
	wr := &stubWinRate{stats: models.WinRateStats{WinRate: 60, Quarters: 8}}
	validator := NewCandidateValidator(market, analytics, wr, nopMetrics{}, l,
		WithValidatorClock(fixtureClock))
	return NewSymbolAnalyzer(
		NewThresholdAdapter(analytics, "SPY", l),
		validator,
		NewIronFlySelector(market, l),
		analytics,
		l,
	)
}

func TestAnalyzeRecommendedSymbol(t *testing.T) {
	an := &stubAnalytics{fn: func(symbol string) (*models.EventAnalytics, error) {
		if symbol == "SPY" {
			return &models.EventAnalytics{IV30RV30: 0.95}, nil
		}
		return &models.EventAnalytics{TermSlope: -0.005, IV30RV30: 1.30, ExpectedMove: "5.20%"}, nil
	}}
	a := newAnalyzerFixture(t, passingMarket(), an)

	report, err := a.Analyze(context.Background(), "aaa", false)
	require.NoError(t, err)

	assert.Equal(t, "AAA", report.Symbol, "input is normalized to upper case")
	assert.Equal(t, models.StatusRecommended, report.Status)
	assert.Equal(t, 1, report.Tier)
	assert.Equal(t, "Tier 1 Trade", report.Reason)

	// SPY at 0.95 lands in the 1.10/0.85 band
	assert.Equal(t, 1.10, report.PassThreshold)
	assert.Equal(t, 0.85, report.NearMissThreshold)
	assert.Equal(t, models.ThresholdBasisIndex, report.ThresholdBasis)
	require.NotNil(t, report.ReferenceIVRV)
	assert.Equal(t, 0.95, *report.ReferenceIVRV)
	assert.Nil(t, report.IronFly, "not requested")
}

func TestAnalyzeFailedSymbolStillReports(t *testing.T) {
	market := passingMarket()
	market.quote.Price = 9.50
	a := newAnalyzerFixture(t, market, passingAnalytics())

	report, err := a.Analyze(context.Background(), "AAA", false)
	require.NoError(t, err, "a failing verdict is a result, not an error")
	assert.Equal(t, models.StatusFailed, report.Status)
	assert.Zero(t, report.Tier)
	assert.Contains(t, report.Reason, "Price")
}

func TestAnalyzeAttachesIronFly(t *testing.T) {
	market := &stubMarket{
		quote:       models.Quote{Symbol: "AAA", Price: 100.3, AvgVolume: 2_000_000},
		expirations: []string{"2025-03-21"},
		chain:       flyChainWithDeltas(),
	}
	a := newAnalyzerFixture(t, market, passingAnalytics())

	report, err := a.Analyze(context.Background(), "AAA", true)
	require.NoError(t, err)
	require.NotNil(t, report.IronFly)
	assert.Equal(t, 100.0, report.IronFly.ShortCallStrike)
	assert.Equal(t, 100.0, report.IronFly.ShortPutStrike)
}

func TestAnalyzeToleratesIronFlyFailure(t *testing.T) {
	market := passingMarket()
	market.expirations = nil // nothing listed, the plan cannot be built
	a := newAnalyzerFixture(t, market, passingAnalytics())

	report, err := a.Analyze(context.Background(), "AAA", true)
	require.NoError(t, err)
	assert.Nil(t, report.IronFly)
	assert.Equal(t, models.StatusFailed, report.Status, "no options also fails validation")
}

func TestAnalyzeToleratesReferenceOutage(t *testing.T) {
	an := &stubAnalytics{fn: func(symbol string) (*models.EventAnalytics, error) {
		if symbol == "SPY" {
			return nil, errors.New("sidecar down")
		}
		return &models.EventAnalytics{TermSlope: -0.005, IV30RV30: 1.30, ExpectedMove: "5.20%"}, nil
	}}
	a := newAnalyzerFixture(t, passingMarket(), an)

	report, err := a.Analyze(context.Background(), "AAA", false)
	require.NoError(t, err)
	assert.Nil(t, report.ReferenceIVRV)
	assert.Equal(t, models.ThresholdBasisIndexError, report.ThresholdBasis)
	assert.Equal(t, 1.25, report.PassThreshold, "defaults apply when the index is unreadable")
}

func TestAnalyzeRejectsEmptySymbol(t *testing.T) {
	a := newAnalyzerFixture(t, passingMarket(), passingAnalytics())

	_, err := a.Analyze(context.Background(), "   ", false)
	require.Error(t, err)
}

func TestHistoryGetScan(t *testing.T) {
	store := newMockScanStore()
	res := sinkFixtureResult()
	require.NoError(t, store.SaveScan(context.Background(), res))
	uc := NewScanHistoryUseCase(store)

	got, err := uc.GetScan(context.Background(), "scan-42")
	require.NoError(t, err)
	assert.Same(t, res, got)

	_, err = uc.GetScan(context.Background(), "")
	require.Error(t, err)

	_, err = uc.GetScan(context.Background(), "missing")
	require.Error(t, err)
}

func TestHistoryRecentScansClampsLimit(t *testing.T) {
	store := &limitRecordingStore{mockScanStore: newMockScanStore()}
	uc := NewScanHistoryUseCase(store)

	_, err := uc.RecentScans(context.Background(), 0)
	require.NoError(t, err)
	_, err = uc.RecentScans(context.Background(), 250)
	require.NoError(t, err)
	_, err = uc.RecentScans(context.Background(), 25)
	require.NoError(t, err)

	assert.Equal(t, []int{10, 100, 25}, store.limits)
}

type limitRecordingStore struct {
	*mockScanStore
	limits []int
}

func (s *limitRecordingStore) RecentScans(_ context.Context, limit int) ([]domrepo.ScanHeader, error) {
	s.limits = append(s.limits, limit)
	return nil, nil
}
