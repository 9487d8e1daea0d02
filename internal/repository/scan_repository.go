package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"EarnScan/internal/domain/models"
	"EarnScan/internal/domain/repository"
	pkgkafka "EarnScan/pkg/kafka"
)

// ClickHouseScanStore implements ScanStore on ClickHouse.
type ClickHouseScanStore struct {
	db         *sql.DB
	scansTable string
	rowsTable  string
}

// NewClickHouseScanStore creates ClickHouse scan storage.
func NewClickHouseScanStore(db *sql.DB, scansTable, rowsTable string) repository.ScanStore {
	return &ClickHouseScanStore{db: db, scansTable: scansTable, rowsTable: rowsTable}
}

func (s *ClickHouseScanStore) Init(ctx context.Context) error {
	return nil // Schema init in di
}

// SaveScan writes the header row and every classification of one scan.
func (s *ClickHouseScanStore) SaveScan(ctx context.Context, res *models.ScanResult) error {
	counts := res.Counts()
	header := repository.ScanHeader{
		ID:                res.ID,
		PostDate:          res.Dates.PostMarket,
		PreDate:           res.Dates.PreMarket,
		PassThreshold:     res.Thresholds.Pass,
		NearMissThreshold: res.Thresholds.NearMiss,
		ThresholdBasis:    res.Thresholds.Basis,
		StartedAt:         res.StartedAt,
		FinishedAt:        res.FinishedAt,
		Analyzed:          counts.Analyzed,
		Recommended:       counts.Recommended,
		NearMisses:        counts.NearMisses,
		Failed:            counts.Failed,
	}
	if err := s.SaveHeader(ctx, header); err != nil {
		return err
	}
	return s.SaveClassifications(ctx, res.ID, res.Dates.PostMarket, res.Classifications)
}

func (s *ClickHouseScanStore) SaveHeader(ctx context.Context, h repository.ScanHeader) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (id, post_date, pre_date, pass_threshold, near_miss_threshold, threshold_basis, started_at, finished_at, analyzed, recommended, near_misses, failed) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.scansTable)
	_, err := s.db.ExecContext(ctx, q,
		h.ID,
		h.PostDate,
		h.PreDate,
		h.PassThreshold,
		h.NearMissThreshold,
		h.ThresholdBasis,
		h.StartedAt,
		h.FinishedAt,
		uint32(h.Analyzed),
		uint32(h.Recommended),
		uint32(h.NearMisses),
		uint32(h.Failed),
	)
	if err != nil {
		return fmt.Errorf("insert scan header: %w", err)
	}
	return nil
}

func (s *ClickHouseScanStore) SaveClassifications(ctx context.Context, scanID string, scanDate time.Time, cs []models.Classification) error {
	if len(cs) == 0 {
		return nil
	}
	// Chunked multi-row VALUES to reduce round-trips.
	const chunkSize = 2000
	now := time.Now().UTC()
	for start := 0; start < len(cs); start += chunkSize {
		end := start + chunkSize
		if end > len(cs) {
			end = len(cs)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, c := range cs[start:end] {
			if c.Symbol == "" {
				continue
			}
			metricsJSON, err := json.Marshal(c.Metrics)
			if err != nil {
				return fmt.Errorf("marshal metrics for %s: %w", c.Symbol, err)
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				scanID,
				scanDate,
				c.Symbol,
				string(c.Timing),
				string(c.Outcome),
				int32(c.Tier),
				c.Reason,
				string(metricsJSON),
				now,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (scan_id, scan_date, symbol, timing, outcome, tier, reason, metrics, validated_at) VALUES %s",
			s.rowsTable, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert classifications: %w", err)
		}
	}
	return nil
}

// GetScan loads one scan with its classifications, ordered by symbol.
func (s *ClickHouseScanStore) GetScan(ctx context.Context, id string) (*models.ScanResult, error) {
	q := fmt.Sprintf(
		"SELECT id, post_date, pre_date, pass_threshold, near_miss_threshold, threshold_basis, started_at, finished_at FROM %s FINAL WHERE id = ? LIMIT 1",
		s.scansTable)
	var (
		res      models.ScanResult
		postDate time.Time
		preDate  time.Time
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&res.ID,
		&postDate,
		&preDate,
		&res.Thresholds.Pass,
		&res.Thresholds.NearMiss,
		&res.Thresholds.Basis,
		&res.StartedAt,
		&res.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrScanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select scan: %w", err)
	}
	res.Dates = models.ScanDates{PostMarket: postDate, PreMarket: preDate}

	rq := fmt.Sprintf(
		"SELECT symbol, timing, outcome, tier, reason, metrics FROM %s FINAL WHERE scan_id = ? ORDER BY symbol",
		s.rowsTable)
	rows, err := s.db.QueryContext(ctx, rq, id)
	if err != nil {
		return nil, fmt.Errorf("select classifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c           models.Classification
			timing      string
			outcome     string
			tier        int32
			metricsJSON string
		)
		if err := rows.Scan(&c.Symbol, &timing, &outcome, &tier, &c.Reason, &metricsJSON); err != nil {
			return nil, fmt.Errorf("scan classification row: %w", err)
		}
		c.Timing = models.EventTiming(timing)
		c.Outcome = models.Outcome(outcome)
		c.Tier = int(tier)
		if metricsJSON != "" {
			if err := json.Unmarshal([]byte(metricsJSON), &c.Metrics); err != nil {
				return nil, fmt.Errorf("unmarshal metrics for %s: %w", c.Symbol, err)
			}
		}
		res.Classifications = append(res.Classifications, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &res, nil
}

// RecentScans lists scan headers, newest first.
func (s *ClickHouseScanStore) RecentScans(ctx context.Context, limit int) ([]repository.ScanHeader, error) {
	q := fmt.Sprintf(
		"SELECT id, post_date, pre_date, pass_threshold, near_miss_threshold, threshold_basis, started_at, finished_at, analyzed, recommended, near_misses, failed FROM %s FINAL ORDER BY started_at DESC LIMIT ?",
		s.scansTable)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent scans: %w", err)
	}
	defer rows.Close()

	var headers []repository.ScanHeader
	for rows.Next() {
		var (
			h        repository.ScanHeader
			analyzed uint32
			rec      uint32
			near     uint32
			failed   uint32
		)
		if err := rows.Scan(&h.ID, &h.PostDate, &h.PreDate, &h.PassThreshold, &h.NearMissThreshold,
			&h.ThresholdBasis, &h.StartedAt, &h.FinishedAt, &analyzed, &rec, &near, &failed); err != nil {
			return nil, fmt.Errorf("scan header row: %w", err)
		}
		h.Analyzed = int(analyzed)
		h.Recommended = int(rec)
		h.NearMisses = int(near)
		h.Failed = int(failed)
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

func (s *ClickHouseScanStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseScanStore) Close() error {
	return nil // Managed by pkg
}

// KafkaClassificationPublisher implements Publisher on kafka-go.
type KafkaClassificationPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaClassificationPublisher creates the kafka publisher.
func NewKafkaClassificationPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaClassificationPublisher{producer: producer, topic: topic}
}

func (p *KafkaClassificationPublisher) Publish(ctx context.Context, scan *models.ScanResult, c models.Classification) error {
	return p.producer.Publish(ctx, p.topic, []byte(c.Symbol), classificationEvent(scan, c))
}

func (p *KafkaClassificationPublisher) PublishBatch(ctx context.Context, scan *models.ScanResult) error {
	if scan == nil || len(scan.Classifications) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(scan.Classifications))
	for i, c := range scan.Classifications {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(c.Symbol),
			Value: classificationEvent(scan, c),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaClassificationPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// classificationEvent builds the self-contained wire event for one
// classification: the scan envelope plus the row itself.
func classificationEvent(scan *models.ScanResult, c models.Classification) map[string]interface{} {
	counts := scan.Counts()
	return map[string]interface{}{
		"scan_id":             scan.ID,
		"post_date":           scan.Dates.PostMarket.Format("2006-01-02"),
		"pre_date":            scan.Dates.PreMarket.Format("2006-01-02"),
		"pass_threshold":      scan.Thresholds.Pass,
		"near_miss_threshold": scan.Thresholds.NearMiss,
		"threshold_basis":     scan.Thresholds.Basis,
		"started_at":          scan.StartedAt.Unix(),
		"finished_at":         scan.FinishedAt.Unix(),
		"analyzed":            counts.Analyzed,
		"recommended":         counts.Recommended,
		"near_misses":         counts.NearMisses,
		"failed":              counts.Failed,
		"symbol":              c.Symbol,
		"timing":              string(c.Timing),
		"outcome":             string(c.Outcome),
		"tier":                c.Tier,
		"reason":              c.Reason,
		"metrics":             map[string]any(c.Metrics),
		"t":                   time.Now().Unix(),
	}
}

// NoopPublisher drops events. It stands in when the message bus is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *models.ScanResult, models.Classification) error {
	return nil
}
func (NoopPublisher) PublishBatch(context.Context, *models.ScanResult) error { return nil }
func (NoopPublisher) Close() error                                           { return nil }

var _ repository.Publisher = (*KafkaClassificationPublisher)(nil)
var _ repository.Publisher = NoopPublisher{}
