package usecase

import (
	"context"
	"fmt"
	"time"

	"EarnScan/internal/domain/models"
	domrepo "EarnScan/internal/domain/repository"
)

// ResultSink receives a finished scan and routes it to the configured backend.
type ResultSink interface {
	Deliver(ctx context.Context, res *models.ScanResult) error
	Close()
}

// ScanResultSink routes finished scans either straight into the scan store or
// onto the message bus, where a consumer persists them.
type ScanResultSink struct {
	pub     domrepo.Publisher
	store   domrepo.ScanStore
	metrics domrepo.Metrics
	backend string
}

func NewScanResultSink(
	pub domrepo.Publisher,
	store domrepo.ScanStore,
	metrics domrepo.Metrics,
	backend string,
) *ScanResultSink {
	return &ScanResultSink{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

var _ ResultSink = (*ScanResultSink)(nil)

// Deliver routes one scan result to the configured backend.
func (s *ScanResultSink) Deliver(ctx context.Context, res *models.ScanResult) error {
	if res == nil {
		return fmt.Errorf("scan result is nil")
	}

	start := time.Now()
	var err error

	switch s.backend {
	case "kafka":
		err = s.pub.PublishBatch(ctx, res)
	case "clickhouse":
		err = s.storeDirect(ctx, res)
	default:
		err = fmt.Errorf("unknown backend: %s", s.backend)
	}

	if err != nil {
		s.metrics.RecordError("deliver")
		return fmt.Errorf("deliver scan %s: %w", res.ID, err)
	}

	for _, c := range res.Classifications {
		s.metrics.RecordMessageSent(s.backend, c.Symbol)
	}
	s.metrics.RecordLatency("deliver", time.Since(start).Seconds())

	return nil
}

func (s *ScanResultSink) storeDirect(ctx context.Context, res *models.ScanResult) error {
	if err := s.store.SaveScan(ctx, res); err != nil {
		return fmt.Errorf("save scan header: %w", err)
	}
	if err := s.store.SaveClassifications(ctx, res.ID, res.Dates.PostMarket, res.Classifications); err != nil {
		return fmt.Errorf("save classifications: %w", err)
	}
	return nil
}

// Close closes underlying resources if available.
func (s *ScanResultSink) Close() {
	if s.pub != nil {
		_ = s.pub.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}
