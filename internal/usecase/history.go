package usecase

import (
	"context"
	"fmt"

	"EarnScan/internal/domain/models"
	domrepo "EarnScan/internal/domain/repository"
)

// ScanHistoryUseCase provides business logic for retrieving stored scans.
type ScanHistoryUseCase struct {
	store domrepo.ScanStore
}

func NewScanHistoryUseCase(store domrepo.ScanStore) *ScanHistoryUseCase {
	return &ScanHistoryUseCase{store: store}
}

// GetScan loads one stored scan with all its classifications.
func (uc *ScanHistoryUseCase) GetScan(ctx context.Context, id string) (*models.ScanResult, error) {
	if id == "" {
		return nil, fmt.Errorf("scan id required")
	}
	res, err := uc.store.GetScan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", id, err)
	}
	return res, nil
}

// RecentScans lists the latest scan headers, newest first.
func (uc *ScanHistoryUseCase) RecentScans(ctx context.Context, limit int) ([]domrepo.ScanHeader, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	headers, err := uc.store.RecentScans(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent scans: %w", err)
	}
	return headers, nil
}
