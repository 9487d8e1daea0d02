package usecase

import (
	"context"
	"fmt"
	"strings"

	"EarnScan/internal/domain/models"
	domsvc "EarnScan/internal/domain/service"
	applogger "EarnScan/pkg/logger"
)

// SymbolAnalyzer runs the full validation pipeline against one symbol on
// demand, outside any calendar scan, and reports every metric regardless of
// the verdict.
type SymbolAnalyzer struct {
	thresholds *ThresholdAdapter
	validator  *CandidateValidator
	ironFly    *IronFlySelector
	analytics  domsvc.AnalyticsProvider
	logger     *applogger.Logger
}

func NewSymbolAnalyzer(
	thresholds *ThresholdAdapter,
	validator *CandidateValidator,
	ironFly *IronFlySelector,
	analytics domsvc.AnalyticsProvider,
	l *applogger.Logger,
) *SymbolAnalyzer {
	return &SymbolAnalyzer{
		thresholds: thresholds,
		validator:  validator,
		ironFly:    ironFly,
		analytics:  analytics,
		logger:     l,
	}
}

// Analyze classifies symbol under freshly adapted thresholds. The iron-fly
// plan and the reference ratio are best effort: their absence never fails the
// analysis.
func (a *SymbolAnalyzer) Analyze(ctx context.Context, symbol string, withIronFly bool) (*models.AnalysisReport, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is empty")
	}

	th := a.thresholds.Adapt(ctx)
	c := a.validator.Validate(ctx, models.Candidate{Symbol: symbol, Timing: models.TimingManual}, th)

	report := &models.AnalysisReport{
		Symbol:            symbol,
		Status:            c.Status(),
		Tier:              c.Tier,
		Reason:            c.Reason,
		PassThreshold:     th.Pass,
		NearMissThreshold: th.NearMiss,
		ThresholdBasis:    th.Basis,
		Metrics:           c.Metrics,
	}

	if ref, err := a.analytics.Compute(ctx, a.thresholds.Reference()); err != nil {
		a.logger.Debug("reference ratio unavailable",
			applogger.String("reference", a.thresholds.Reference()), applogger.Error(err))
	} else if ref.Error == "" {
		v := ref.IV30RV30
		report.ReferenceIVRV = &v
	}

	if withIronFly {
		plan, err := a.ironFly.Plan(ctx, symbol)
		if err != nil {
			a.logger.Warn("iron fly plan unavailable",
				applogger.String("symbol", symbol), applogger.Error(err))
		} else {
			report.IronFly = plan
		}
	}

	return report, nil
}
