package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"EarnScan/internal/domain/models"
	domrepo "EarnScan/internal/domain/repository"
	domsvc "EarnScan/internal/domain/service"
	applogger "EarnScan/pkg/logger"
	"EarnScan/pkg/util"
)

// Mandatory gate bounds.
const (
	minPrice           = 10.0
	maxDaysToExpiry    = 9
	minOpenInterest    = 2000
	maxTermSlope       = -0.004
	maxATMDelta        = 0.57
	minExpectedMoveUSD = 0.90
)

// Optional criterion bounds.
const (
	softPriceFail     = 5.0
	softPriceNearMiss = 7.0
	volumeFail        = 1_000_000
	volumeNearMiss    = 1_500_000
	winRateFailPct    = 40.0
	winRatePassPct    = 50.0
)

// tierTwoTermSlope is the stricter backwardation bar a near-miss candidate must
// clear to be promoted to tier 2.
const tierTwoTermSlope = -0.006

// CandidateValidator runs the ordered gate pipeline over one candidate.
// Mandatory gates short-circuit on the first failure; optional criteria
// accumulate. Validate never returns an error: every failure mode, timeouts
// and panics included, becomes a Fail classification.
type CandidateValidator struct {
	market    domsvc.MarketDataProvider
	analytics domsvc.AnalyticsProvider
	winRate   domsvc.WinRateProvider
	metrics   domrepo.Metrics
	logger    *applogger.Logger
	now       func() time.Time
}

// ValidatorOption configures CandidateValidator.
type ValidatorOption func(*CandidateValidator)

// WithValidatorClock overrides the expiry-distance clock, for tests.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *CandidateValidator) { v.now = now }
}

func NewCandidateValidator(
	market domsvc.MarketDataProvider,
	analytics domsvc.AnalyticsProvider,
	winRate domsvc.WinRateProvider,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	opts ...ValidatorOption,
) *CandidateValidator {
	v := &CandidateValidator{
		market:    market,
		analytics: analytics,
		winRate:   winRate,
		metrics:   metrics,
		logger:    l,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// validation carries the state threaded through the gate pipeline.
type validation struct {
	candidate  models.Candidate
	thresholds models.ThresholdState
	metrics    models.MetricsBundle

	quote     models.Quote
	chain     *models.OptionChain
	analytics *models.EventAnalytics

	failed   []string
	nearMiss []string
}

// gateResult is a tagged continue/stop value. A stop carries the reason.
type gateResult struct {
	stop   bool
	reason string
}

func proceed() gateResult              { return gateResult{} }
func stop(reason string) gateResult    { return gateResult{stop: true, reason: reason} }
func stopf(f string, a ...any) gateResult { return gateResult{stop: true, reason: fmt.Sprintf(f, a...)} }

// Validate classifies one candidate against the thresholds in effect for this
// scan. The thresholds are a value: nothing mid-scan can shift them under a
// running validation.
func (v *CandidateValidator) Validate(ctx context.Context, cand models.Candidate, th models.ThresholdState) (out models.Classification) {
	s := &validation{
		candidate:  cand,
		thresholds: th,
		metrics:    models.NewMetricsBundle(cand.Symbol),
	}

	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("validation panicked",
				applogger.String("symbol", cand.Symbol), applogger.Any("panic", r))
			out = v.fail(s, fmt.Sprintf("Validation error: %v", r))
		}
		v.metrics.RecordClassification(string(out.Outcome), out.Tier)
	}()

	gates := []struct {
		name string
		run  func(context.Context, *validation) gateResult
	}{
		{"price", v.gatePrice},
		{"options", v.gateOptions},
		{"open_interest", v.gateOpenInterest},
		{"analytics", v.gateAnalytics},
		{"term_structure", v.gateTermStructure},
		{"atm_delta", v.gateATMDelta},
		{"expected_move", v.gateExpectedMove},
	}
	for _, g := range gates {
		if res := g.run(ctx, s); res.stop {
			v.logger.Debug("mandatory gate stopped candidate",
				applogger.String("symbol", cand.Symbol),
				applogger.String("gate", g.name),
				applogger.String("reason", res.reason))
			return v.fail(s, res.reason)
		}
	}

	v.optionalCriteria(ctx, s)
	return v.classify(s)
}

// --- mandatory gates, in pipeline order ---

func (v *CandidateValidator) gatePrice(ctx context.Context, s *validation) gateResult {
	q, err := v.market.Quote(ctx, s.candidate.Symbol)
	if errors.Is(err, domsvc.ErrNoData) {
		return stop("No price data available")
	}
	if err != nil {
		return stopf("Price fetch error: %v", err)
	}
	s.quote = q
	s.metrics.Set(models.MetricPrice, q.Price)
	if q.Price < minPrice {
		return stopf("Price $%.2f < $10.00", q.Price)
	}
	return proceed()
}

// gateOptions covers both the existence and the near-term expiration checks,
// then loads the nearest chain for the gates behind it.
func (v *CandidateValidator) gateOptions(ctx context.Context, s *validation) gateResult {
	expirations, err := v.market.Expirations(ctx, s.candidate.Symbol)
	if err != nil && !errors.Is(err, domsvc.ErrNoOptions) {
		return stopf("Options fetch error: %v", err)
	}
	if len(expirations) == 0 {
		return stop("No options available")
	}

	expiry, err := time.Parse("2006-01-02", expirations[0])
	if err != nil {
		return stopf("Bad expiration date %q", expirations[0])
	}
	days := util.DaysBetween(v.now(), expiry)
	s.metrics.Set(models.MetricDaysToExpiry, days)
	if days > maxDaysToExpiry {
		return stopf("Next expiration too far: %d days", days)
	}

	chain, err := v.market.Chain(ctx, s.candidate.Symbol, expirations[0])
	if err != nil {
		return stopf("Option chain fetch error: %v", err)
	}
	s.chain = chain
	return proceed()
}

func (v *CandidateValidator) gateOpenInterest(_ context.Context, s *validation) gateResult {
	total := s.chain.TotalOpenInterest()
	s.metrics.Set(models.MetricOpenInterest, total)
	if total < minOpenInterest {
		return stopf("Insufficient open interest: %d", total)
	}
	return proceed()
}

func (v *CandidateValidator) gateAnalytics(ctx context.Context, s *validation) gateResult {
	a, err := v.analytics.Compute(ctx, s.candidate.Symbol)
	if err != nil {
		return stopf("Analysis error - %v", err)
	}
	if a.Error != "" {
		return stopf("Analysis error - %s", a.Error)
	}
	s.analytics = a
	return proceed()
}

func (v *CandidateValidator) gateTermStructure(_ context.Context, s *validation) gateResult {
	slope := s.analytics.TermSlope
	s.metrics.Set(models.MetricTermStructure, slope)
	if slope > maxTermSlope {
		return stopf("Term structure %.4f > -0.004", slope)
	}
	return proceed()
}

// gateATMDelta only applies when the upstream publishes both deltas; missing
// Greeks skip the check rather than failing it.
func (v *CandidateValidator) gateATMDelta(_ context.Context, s *validation) gateResult {
	call, put := s.analytics.ATMCallDelta, s.analytics.ATMPutDelta
	if call == nil || put == nil {
		return proceed()
	}
	s.metrics.Set(models.MetricATMCallDelta, *call)
	s.metrics.Set(models.MetricATMPutDelta, *put)
	if *call > maxATMDelta || abs(*put) > maxATMDelta {
		return stopf("ATM options have delta > 0.57 (call: %.2f, put: %.2f)", *call, *put)
	}
	return proceed()
}

func (v *CandidateValidator) gateExpectedMove(_ context.Context, s *validation) gateResult {
	fraction, err := parseExpectedMove(s.analytics.ExpectedMove)
	if err == nil {
		dollars := s.quote.Price * fraction
		s.metrics.Set(models.MetricExpectedMoveUSD, dollars)
		s.metrics.Set(models.MetricExpectedMovePct, fraction*100)
		if dollars < minExpectedMoveUSD {
			return stopf("Expected move $%.2f < $0.90", dollars)
		}
		return proceed()
	}

	v.logger.Debug("expected move unparsable, trying straddle fallback",
		applogger.String("symbol", s.candidate.Symbol),
		applogger.String("raw", s.analytics.ExpectedMove))

	// Legacy fallback: the ATM straddle mid read directly as a dollar move.
	straddle, ok := atmStraddleMid(s.chain, s.quote.Price)
	if !ok {
		return proceed() // neither estimate computable: skip, not a failure
	}
	s.metrics.Set(models.MetricExpectedMoveUSD, straddle)
	if s.quote.Price > 0 {
		s.metrics.Set(models.MetricExpectedMovePct, straddle/s.quote.Price*100)
	}
	if straddle < minExpectedMoveUSD {
		return stopf("Expected move (fallback) $%.2f < $0.90", straddle)
	}
	return proceed()
}

// --- optional criteria, accumulated ---

func (v *CandidateValidator) optionalCriteria(ctx context.Context, s *validation) {
	price := s.quote.Price
	if price < softPriceFail {
		s.failed = append(s.failed, fmt.Sprintf("Price $%.2f < $5.00", price))
	} else if price < softPriceNearMiss {
		s.nearMiss = append(s.nearMiss, fmt.Sprintf("Price $%.2f < $7.00", price))
	}

	volume := s.quote.AvgVolume
	s.metrics.Set(models.MetricVolume, volume)
	if volume < volumeFail {
		s.failed = append(s.failed, fmt.Sprintf("Volume %s < 1M", util.FormatThousands(volume)))
	} else if volume < volumeNearMiss {
		s.nearMiss = append(s.nearMiss, fmt.Sprintf("Volume %s < 1.5M", util.FormatThousands(volume)))
	}

	// The win-rate session is the slowest dependency; skip it once the
	// candidate already carries an optional failure.
	if len(s.failed) == 0 {
		stats, err := v.winRate.Fetch(ctx, s.candidate.Symbol)
		if err != nil {
			v.logger.Warn("win rate fetch failed, using neutral default",
				applogger.String("symbol", s.candidate.Symbol), applogger.Error(err))
			stats = models.WinRateStats{}
		}
		s.metrics.Set(models.MetricWinRate, stats.WinRate)
		s.metrics.Set(models.MetricWinQuarters, stats.Quarters)
		if stats.WinRate < winRatePassPct {
			if stats.WinRate >= winRateFailPct {
				s.nearMiss = append(s.nearMiss,
					fmt.Sprintf("Winrate %.1f%% < 50%% (over %d earnings)", stats.WinRate, stats.Quarters))
			} else {
				s.failed = append(s.failed,
					fmt.Sprintf("Winrate %.1f%% < 40%% (over %d earnings)", stats.WinRate, stats.Quarters))
			}
		}
	} else {
		s.metrics.Set(models.MetricWinRate, 0.0)
		s.metrics.Set(models.MetricWinQuarters, 0)
	}

	ratio := s.analytics.IV30RV30
	s.metrics.Set(models.MetricIVRVRatio, ratio)
	if ratio < s.thresholds.NearMiss {
		s.failed = append(s.failed, fmt.Sprintf("IV/RV ratio %.2f < %.2f", ratio, s.thresholds.NearMiss))
	} else if ratio < s.thresholds.Pass {
		s.nearMiss = append(s.nearMiss, fmt.Sprintf("IV/RV ratio %.2f < %.2f", ratio, s.thresholds.Pass))
	}
}

// classify folds the accumulated optional signals and the term slope into the
// final outcome. Tier 1 passes everything; tier 2 is a near-miss candidate with
// steep enough backwardation; the rest of the clean near-misses stay tier 0.
func (v *CandidateValidator) classify(s *validation) models.Classification {
	slope := s.analytics.TermSlope

	isPassing := len(s.failed) == 0 && len(s.nearMiss) == 0
	isTierTwo := len(s.failed) == 0 && len(s.nearMiss) > 0 && slope <= tierTwoTermSlope

	var outcome models.Outcome
	var tier int
	switch {
	case isPassing:
		outcome, tier = models.OutcomePass, 1
	case isTierTwo:
		outcome, tier = models.OutcomePass, 2
	case len(s.failed) == 0:
		outcome, tier = models.OutcomeNearMiss, 0
	default:
		outcome, tier = models.OutcomeFail, 0
	}
	s.metrics.Set(models.MetricTier, tier)

	var reason string
	switch {
	case len(s.failed) > 0:
		reason = strings.Join(s.failed, " | ")
	case len(s.nearMiss) > 0:
		reason = strings.Join(s.nearMiss, " | ")
	default:
		reason = "Tier 1 Trade"
	}

	return models.Classification{
		Symbol:  s.candidate.Symbol,
		Timing:  s.candidate.Timing,
		Outcome: outcome,
		Tier:    tier,
		Reason:  reason,
		Metrics: s.metrics,
	}
}

func (v *CandidateValidator) fail(s *validation, reason string) models.Classification {
	s.metrics.Set(models.MetricTier, 0)
	return models.Classification{
		Symbol:  s.candidate.Symbol,
		Timing:  s.candidate.Timing,
		Outcome: models.OutcomeFail,
		Tier:    0,
		Reason:  reason,
		Metrics: s.metrics,
	}
}

// parseExpectedMove converts the provider representation into a fraction of
// price. Percent-suffixed strings ("5.20%") and bare percent numbers ("5.2")
// divide by 100; values already below 1 are taken as fractions.
func parseExpectedMove(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "N/A") {
		return 0, fmt.Errorf("expected move missing")
	}
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse expected move %q: %w", raw, err)
	}
	if percent || f >= 1 {
		return f / 100, nil
	}
	return f, nil
}

// atmStraddleMid prices the call+put mids at the strikes nearest price.
func atmStraddleMid(chain *models.OptionChain, price float64) (float64, bool) {
	if chain == nil || len(chain.Calls) == 0 || len(chain.Puts) == 0 {
		return 0, false
	}
	call := nearestByStrike(chain.Calls, price)
	put := nearestByStrike(chain.Puts, price)
	return call.Mid() + put.Mid(), true
}

// nearestByStrike returns the row whose strike is closest to target.
func nearestByStrike(rows []models.OptionQuote, target float64) models.OptionQuote {
	best := rows[0]
	bestDiff := abs(best.Strike - target)
	for _, r := range rows[1:] {
		if d := abs(r.Strike - target); d < bestDiff {
			best, bestDiff = r, d
		}
	}
	return best
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
