package usecase

import (
	"context"

	"EarnScan/internal/domain/models"
	drepo "EarnScan/internal/domain/repository"
	mid "EarnScan/internal/middleware"
	applogger "EarnScan/pkg/logger"
)

// QuoteCollector keeps the quote cache warm: it reads the live stream, runs
// each tick through the pipeline, and reconnects on stream errors. The
// subscription set follows the current scan day's candidate universe, so the
// price gate usually hits cache during market hours.
type QuoteCollector struct {
	stream       drepo.QuoteStream
	pipe         *mid.QuotePipeline
	orchestrator *ScanOrchestrator
	metrics      drepo.Metrics
	logger       *applogger.Logger
}

func NewQuoteCollector(stream drepo.QuoteStream, pipe *mid.QuotePipeline, orchestrator *ScanOrchestrator, metrics drepo.Metrics, l *applogger.Logger) *QuoteCollector {
	return &QuoteCollector{stream: stream, pipe: pipe, orchestrator: orchestrator, metrics: metrics, logger: l}
}

// IsConnected returns true if the stream is connected.
func (c *QuoteCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes to the current candidate universe, and launches
// the consume loop. A failed initial subscribe is not fatal: the scan path
// falls back to direct provider fetches.
func (c *QuoteCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("initial quote subscription failed", applogger.Error(err))
	}
	c.pipe.Start(ctx)
	qCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, qCh, errCh)
	return nil
}

// Refresh re-resolves the scan day and replaces the subscription set with its
// candidate symbols plus the threshold reference index.
func (c *QuoteCollector) Refresh(ctx context.Context) error {
	_, candidates, err := c.orchestrator.ListCandidates(ctx, "")
	if err != nil {
		return err
	}
	symbols := make([]string, 0, len(candidates)+1)
	for _, cand := range candidates {
		symbols = append(symbols, cand.Symbol)
	}
	symbols = append(symbols, c.orchestrator.thresholds.Reference())
	return c.stream.Subscribe(ctx, symbols)
}

func (c *QuoteCollector) consume(ctx context.Context, qCh <-chan *models.Quote, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				if rerr := c.stream.Reconnect(ctx); rerr != nil {
					c.logger.Error("quote stream reconnect failed", applogger.Error(rerr))
				}
			}
		case q := <-qCh:
			if q == nil {
				continue
			}
			_ = c.pipe.Process(ctx, q)
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *QuoteCollector) Shutdown(ctx context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
