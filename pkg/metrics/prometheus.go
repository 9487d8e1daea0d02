package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics on Prometheus. All metrics
// register on the default registry, which /metrics exposes.
type Recorder struct {
	delivered       *prometheus.CounterVec
	errs            *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	stageTime       *prometheus.HistogramVec
	classifications *prometheus.CounterVec
	scansTotal      *prometheus.CounterVec
	scanDuration    *prometheus.HistogramVec
}

// Scans take seconds to minutes, so the default buckets are far too fine.
var scanBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}

// New creates a Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		delivered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "earnscan_results_delivered_total",
				Help: "Scan results handed to the configured backend",
			},
			[]string{"backend", "symbol"},
		),
		errs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "earnscan_errors_total",
				Help: "Errors by pipeline stage",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "earnscan_quote_last_price",
				Help: "Most recent streamed price per symbol",
			},
			[]string{"symbol"},
		),
		stageTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "earnscan_stage_duration_seconds",
				Help:    "Latency of pipeline stages",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		classifications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "earnscan_candidates_validated_total",
				Help: "Candidates validated, by outcome and tier",
			},
			[]string{"outcome", "tier"},
		),
		scansTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "earnscan_scans_total",
				Help: "Completed scans, by concurrency mode",
			},
			[]string{"mode"},
		),
		scanDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "earnscan_scan_duration_seconds",
				Help:    "Wall time of one full scan",
				Buckets: scanBuckets,
			},
			[]string{"mode"},
		),
	}
}

// RecordMessageSent counts one result delivered to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.delivered.WithLabelValues(backend, symbol).Inc()
}

// RecordError counts one failure in the named stage.
func (r *Recorder) RecordError(kind string) {
	r.errs.WithLabelValues(kind).Inc()
}

// RecordLastPrice tracks the latest streamed price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency observes one stage timing in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.stageTime.WithLabelValues(op).Observe(seconds)
}

// RecordClassification counts one validated candidate.
func (r *Recorder) RecordClassification(outcome string, tier int) {
	r.classifications.WithLabelValues(outcome, strconv.Itoa(tier)).Inc()
}

// RecordScan counts one finished scan and observes its wall time.
func (r *Recorder) RecordScan(mode string, seconds float64) {
	r.scansTotal.WithLabelValues(mode).Inc()
	r.scanDuration.WithLabelValues(mode).Observe(seconds)
}
