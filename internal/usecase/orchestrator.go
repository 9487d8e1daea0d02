package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"EarnScan/internal/domain/models"
	domrepo "EarnScan/internal/domain/repository"
	domsvc "EarnScan/internal/domain/service"
	applogger "EarnScan/pkg/logger"
	"EarnScan/pkg/util"
)

const (
	maxParallelWorkers      = 8
	defaultBatchSize        = 8
	defaultBatchPause       = 5 * time.Second
	defaultCandidateTimeout = 60 * time.Second
	defaultCalendarTimeout  = 30 * time.Second
)

// OrchestratorConfig tunes the scan loop. Zero fields fall back to defaults.
type OrchestratorConfig struct {
	BatchSize        int
	BatchPause       time.Duration
	CandidateTimeout time.Duration
	CalendarTimeout  time.Duration
}

func (c *OrchestratorConfig) normalize() {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchPause <= 0 {
		c.BatchPause = defaultBatchPause
	}
	if c.CandidateTimeout <= 0 {
		c.CandidateTimeout = defaultCandidateTimeout
	}
	if c.CalendarTimeout <= 0 {
		c.CalendarTimeout = defaultCalendarTimeout
	}
}

// ScanOptions are the per-run knobs. Workers > 0 selects the bounded-parallel
// policy (capped at 8); Workers == 0 selects sequential batches with a pause.
type ScanOptions struct {
	ID       string // pre-assigned scan id; empty = generate
	Date     string // MM/DD/YYYY, empty = resolve from the clock
	Workers  int
	NoExport bool
}

// ResultExporter writes a finished scan to disk and returns the directory.
type ResultExporter interface {
	Export(result *models.ScanResult) (string, error)
}

// ScanOrchestrator drives a full scan: resolve dates, adapt thresholds, pull
// both calendar sides, validate every candidate under the selected concurrency
// policy, then hand the result to the sink and the exporter. Candidate-level
// problems degrade to Fail classifications; only unusable input stops a run.
type ScanOrchestrator struct {
	calendar   domsvc.EventCalendarSource
	thresholds *ThresholdAdapter
	validator  *CandidateValidator
	sink       ResultSink
	exporter   ResultExporter
	metrics    domrepo.Metrics
	logger     *applogger.Logger
	cfg        OrchestratorConfig

	loc *time.Location
	now func() time.Time
}

// OrchestratorOption configures ScanOrchestrator.
type OrchestratorOption func(*ScanOrchestrator)

// WithExporter attaches a result exporter. Without one, export is skipped.
func WithExporter(e ResultExporter) OrchestratorOption {
	return func(o *ScanOrchestrator) { o.exporter = e }
}

// WithScanClock overrides the scan clock, for tests.
func WithScanClock(now func() time.Time) OrchestratorOption {
	return func(o *ScanOrchestrator) { o.now = now }
}

func NewScanOrchestrator(
	calendar domsvc.EventCalendarSource,
	thresholds *ThresholdAdapter,
	validator *CandidateValidator,
	sink ResultSink,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg OrchestratorConfig,
	loc *time.Location,
	opts ...OrchestratorOption,
) *ScanOrchestrator {
	cfg.normalize()
	if loc == nil {
		loc = time.UTC
	}
	o := &ScanOrchestrator{
		calendar:   calendar,
		thresholds: thresholds,
		validator:  validator,
		sink:       sink,
		metrics:    metrics,
		logger:     l,
		cfg:        cfg,
		loc:        loc,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one scan end to end.
func (o *ScanOrchestrator) Run(ctx context.Context, opts ScanOptions) (*models.ScanResult, error) {
	started := o.now()

	dates, err := ResolveScanDates(opts.Date, started, o.loc)
	if err != nil {
		return nil, fmt.Errorf("resolve scan dates: %w", err)
	}
	o.logger.Info("scan dates resolved",
		applogger.String("post_market", dates.PostMarket.Format(util.DateLayoutUS)),
		applogger.String("pre_market", dates.PreMarket.Format(util.DateLayoutUS)))

	th := o.thresholds.Adapt(ctx)
	o.logger.Info("thresholds in effect",
		applogger.Float64("pass", th.Pass),
		applogger.Float64("near_miss", th.NearMiss),
		applogger.String("basis", th.Basis))

	candidates := o.fetchCandidates(ctx, dates)
	o.logger.Info("candidates selected", applogger.Int("count", len(candidates)))

	mode := "batched"
	if opts.Workers > 0 {
		mode = "parallel"
	}
	classifications := o.validateAll(ctx, candidates, th, opts.Workers)

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	result := &models.ScanResult{
		ID:              id,
		Dates:           dates,
		Thresholds:      th,
		StartedAt:       started,
		FinishedAt:      o.now(),
		Classifications: classifications,
	}

	if o.sink != nil {
		if err := o.sink.Deliver(ctx, result); err != nil {
			o.metrics.RecordError("sink")
			o.logger.Error("result delivery failed", applogger.Error(err),
				applogger.String("scan_id", result.ID))
		}
	}
	if o.exporter != nil && !opts.NoExport && len(classifications) > 0 {
		dir, err := o.exporter.Export(result)
		if err != nil {
			o.metrics.RecordError("export")
			o.logger.Error("export failed", applogger.Error(err))
		} else {
			o.logger.Info("results exported", applogger.String("dir", dir))
		}
	}

	elapsed := result.FinishedAt.Sub(result.StartedAt)
	o.metrics.RecordScan(mode, elapsed.Seconds())

	counts := result.Counts()
	o.logger.Info("scan complete",
		applogger.String("scan_id", result.ID),
		applogger.String("mode", mode),
		applogger.Int("analyzed", counts.Analyzed),
		applogger.Int("tier1", counts.TierOne),
		applogger.Int("tier2", counts.TierTwo),
		applogger.Int("near_misses", counts.NearMisses),
		applogger.Int("failed", counts.Failed),
		applogger.Duration("elapsed", elapsed))

	return result, nil
}

// ListCandidates resolves the scan dates for the given date string (empty =
// from the clock) and returns the filtered candidate universe without
// validating anything. The list command and the quote stream refresh use it.
func (o *ScanOrchestrator) ListCandidates(ctx context.Context, date string) (models.ScanDates, []models.Candidate, error) {
	dates, err := ResolveScanDates(date, o.now(), o.loc)
	if err != nil {
		return models.ScanDates{}, nil, fmt.Errorf("resolve scan dates: %w", err)
	}
	return dates, o.fetchCandidates(ctx, dates), nil
}

// fetchCandidates pulls both calendar sides concurrently under the calendar
// timeout. A side that errors contributes nothing; the scan goes on with
// whatever the other side produced.
func (o *ScanOrchestrator) fetchCandidates(ctx context.Context, dates models.ScanDates) []models.Candidate {
	fetch := func(date time.Time, keep models.EventTiming) []models.Candidate {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.CalendarTimeout)
		defer cancel()
		all, err := o.calendar.Fetch(cctx, date)
		if err != nil {
			o.metrics.RecordError("calendar")
			o.logger.Error("calendar fetch failed",
				applogger.String("date", date.Format(util.DateLayoutUS)),
				applogger.String("timing", string(keep)),
				applogger.Error(err))
			return nil
		}
		kept := make([]models.Candidate, 0, len(all))
		for _, c := range all {
			if c.Timing == keep {
				kept = append(kept, c)
			}
		}
		o.logger.Info("calendar side fetched",
			applogger.String("date", date.Format(util.DateLayoutUS)),
			applogger.String("timing", string(keep)),
			applogger.Int("raw", len(all)),
			applogger.Int("kept", len(kept)))
		return kept
	}

	var post, pre []models.Candidate
	done := make(chan struct{})
	go func() {
		defer close(done)
		pre = fetch(dates.PreMarket, models.PreMarket)
	}()
	post = fetch(dates.PostMarket, models.PostMarket)
	<-done

	return append(post, pre...)
}

// validateAll classifies every candidate, preserving input order.
func (o *ScanOrchestrator) validateAll(ctx context.Context, candidates []models.Candidate, th models.ThresholdState, workers int) []models.Classification {
	if workers > 0 {
		return o.validateParallel(ctx, candidates, th, workers)
	}
	return o.validateBatched(ctx, candidates, th)
}

func (o *ScanOrchestrator) validateParallel(ctx context.Context, candidates []models.Candidate, th models.ThresholdState, workers int) []models.Classification {
	if workers > maxParallelWorkers {
		workers = maxParallelWorkers
	}
	o.logger.Info("validating in parallel", applogger.Int("workers", workers))

	results := make([]models.Classification, len(candidates))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, cand := range candidates {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, o.cfg.CandidateTimeout)
			defer cancel()
			results[i] = o.validator.Validate(cctx, cand, th)
			return nil
		})
	}
	g.Wait() // workers never return errors
	return results
}

func (o *ScanOrchestrator) validateBatched(ctx context.Context, candidates []models.Candidate, th models.ThresholdState) []models.Classification {
	size := o.cfg.BatchSize
	total := (len(candidates) + size - 1) / size
	o.logger.Info("validating in batches",
		applogger.Int("batch_size", size), applogger.Int("batches", total))

	results := make([]models.Classification, 0, len(candidates))
	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}
		for _, cand := range candidates[start:end] {
			cctx, cancel := context.WithTimeout(ctx, o.cfg.CandidateTimeout)
			results = append(results, o.validator.Validate(cctx, cand, th))
			cancel()
		}
		if end < len(candidates) {
			select {
			case <-time.After(o.cfg.BatchPause):
			case <-ctx.Done():
				// no point pausing once the caller has given up; the
				// remaining validations fail fast on the dead context
			}
		}
	}
	return results
}
