package repository

import (
	"context"
	"errors"
	"time"

	"EarnScan/internal/domain/models"
)

// ErrScanNotFound is returned by ScanStore lookups for unknown scan ids.
var ErrScanNotFound = errors.New("scan not found")

// ScanHeader is the stored per-scan summary row.
type ScanHeader struct {
	ID                string
	PostDate          time.Time
	PreDate           time.Time
	PassThreshold     float64
	NearMissThreshold float64
	ThresholdBasis    string
	StartedAt         time.Time
	FinishedAt        time.Time
	Analyzed          int
	Recommended       int
	NearMisses        int
	Failed            int
}

// ScanStore persists scan results for audit and the read API.
type ScanStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	SaveScan(ctx context.Context, res *models.ScanResult) error
	SaveHeader(ctx context.Context, h ScanHeader) error
	SaveClassifications(ctx context.Context, scanID string, scanDate time.Time, cs []models.Classification) error
	GetScan(ctx context.Context, id string) (*models.ScanResult, error)
	RecentScans(ctx context.Context, limit int) ([]ScanHeader, error)
	Health(ctx context.Context) error // ping
	Close() error
}
