package usecase

import (
	"context"
	"fmt"
	"time"

	pkgcache "EarnScan/pkg/cache"
	applogger "EarnScan/pkg/logger"
	"EarnScan/pkg/queue"
)

// ScanRequestedMessage is the queue message type the scan runner consumes.
const ScanRequestedMessage = "scan.requested"

// scanLockTTL bounds how long a crashed run can hold the dedup lock.
const scanLockTTL = 30 * time.Minute

// ScanRequest is the queued payload for one requested scan. Workers == 0
// selects the batched policy.
type ScanRequest struct {
	ScanID   string `json:"scan_id"`
	Date     string `json:"date,omitempty"`
	Workers  int    `json:"workers"`
	NoExport bool   `json:"no_export"`
}

// ScanRequestJob runs queued scan requests. The API enqueues with a
// pre-assigned scan id so clients can poll the result before the run finishes.
// A per-date lock suppresses duplicate runs when a retry or a second enqueue
// lands while a scan for the same date is in flight.
type ScanRequestJob struct {
	orchestrator *ScanOrchestrator
	locks        pkgcache.Service
	logger       *applogger.Logger
}

func NewScanRequestJob(orchestrator *ScanOrchestrator, locks pkgcache.Service, l *applogger.Logger) *ScanRequestJob {
	return &ScanRequestJob{orchestrator: orchestrator, locks: locks, logger: l}
}

func (j *ScanRequestJob) Name() string { return "scan-runner" }
func (j *ScanRequestJob) Type() string { return ScanRequestedMessage }

func (j *ScanRequestJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[ScanRequest](payload)
	if err != nil {
		return fmt.Errorf("parse scan request: %w", err)
	}

	lockKey := scanLockKey(req.Date)
	if j.locks != nil {
		ok, err := j.locks.TryLock(ctx, lockKey, scanLockTTL)
		if err != nil {
			j.logger.Warn("scan lock unavailable, running anyway",
				applogger.String("scan_id", req.ScanID), applogger.Error(err))
		} else if !ok {
			j.logger.Warn("duplicate scan suppressed",
				applogger.String("scan_id", req.ScanID),
				applogger.String("date", req.Date))
			return nil
		} else {
			defer func() { _ = j.locks.Unlock(context.Background(), lockKey) }()
		}
	}

	j.logger.Info("queued scan starting",
		applogger.String("scan_id", req.ScanID),
		applogger.String("date", req.Date),
		applogger.Int("workers", req.Workers))

	res, err := j.orchestrator.Run(ctx, ScanOptions{
		ID:       req.ScanID,
		Date:     req.Date,
		Workers:  req.Workers,
		NoExport: req.NoExport,
	})
	if err != nil {
		return fmt.Errorf("run queued scan %s: %w", req.ScanID, err)
	}

	counts := res.Counts()
	j.logger.Info("queued scan finished",
		applogger.String("scan_id", res.ID),
		applogger.Int("analyzed", counts.Analyzed),
		applogger.Int("recommended", counts.Recommended))
	return nil
}

func scanLockKey(date string) string {
	if date == "" {
		date = "auto"
	}
	return "scan:lock:" + date
}

var _ queue.Job = (*ScanRequestJob)(nil)
