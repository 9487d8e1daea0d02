package repository

import (
	"context"

	"EarnScan/internal/domain/models"
)

// QuoteStream is a live price feed used to keep the quote cache warm between
// provider polls.
type QuoteStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan *models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher emits classification events to the message bus. Every event
// carries the scan envelope so consumers can rebuild the scan without extra
// lookups.
type Publisher interface {
	Publish(ctx context.Context, scan *models.ScanResult, c models.Classification) error
	PublishBatch(ctx context.Context, scan *models.ScanResult) error
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordClassification(outcome string, tier int)
	RecordScan(mode string, seconds float64)
}
