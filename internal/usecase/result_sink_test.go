package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EarnScan/internal/domain/models"
	domrepo "EarnScan/internal/domain/repository"
)

type mockPublisher struct {
	batches    []*models.ScanResult
	publishErr error
	closed     bool
}

func (p *mockPublisher) Publish(_ context.Context, _ *models.ScanResult, _ models.Classification) error {
	return p.publishErr
}

func (p *mockPublisher) PublishBatch(_ context.Context, scan *models.ScanResult) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.batches = append(p.batches, scan)
	return nil
}

func (p *mockPublisher) Close() error {
	p.closed = true
	return nil
}

type mockScanStore struct {
	scans           []*models.ScanResult
	headers         []domrepo.ScanHeader
	classifications map[string][]models.Classification
	classDates      map[string]time.Time
	saveErr         error
	closed          bool
}

func newMockScanStore() *mockScanStore {
	return &mockScanStore{
		classifications: map[string][]models.Classification{},
		classDates:      map[string]time.Time{},
	}
}

func (s *mockScanStore) Init(context.Context) error { return nil }

func (s *mockScanStore) SaveScan(_ context.Context, res *models.ScanResult) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.scans = append(s.scans, res)
	return nil
}

func (s *mockScanStore) SaveHeader(_ context.Context, h domrepo.ScanHeader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.headers = append(s.headers, h)
	return nil
}

func (s *mockScanStore) SaveClassifications(_ context.Context, scanID string, scanDate time.Time, cs []models.Classification) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.classifications[scanID] = cs
	s.classDates[scanID] = scanDate
	return nil
}

func (s *mockScanStore) GetScan(_ context.Context, id string) (*models.ScanResult, error) {
	for _, res := range s.scans {
		if res.ID == id {
			return res, nil
		}
	}
	return nil, domrepo.ErrScanNotFound
}

func (s *mockScanStore) RecentScans(context.Context, int) ([]domrepo.ScanHeader, error) {
	return nil, nil
}

func (s *mockScanStore) Health(context.Context) error { return nil }

func (s *mockScanStore) Close() error {
	s.closed = true
	return nil
}

func sinkFixtureResult() *models.ScanResult {
	return &models.ScanResult{
		ID: "scan-42",
		Dates: models.ScanDates{
			PostMarket: time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC),
			PreMarket:  time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC),
		},
		Thresholds: models.DefaultThresholds(),
		Classifications: []models.Classification{
			{Symbol: "AAA", Outcome: models.OutcomePass, Tier: 1},
			{Symbol: "BBB", Outcome: models.OutcomeFail},
		},
	}
}

func TestDeliverKafkaBackend(t *testing.T) {
	pub := &mockPublisher{}
	store := newMockScanStore()
	metrics := &capMetrics{}
	sink := NewScanResultSink(pub, store, metrics, "kafka")

	res := sinkFixtureResult()
	require.NoError(t, sink.Deliver(context.Background(), res))

	require.Len(t, pub.batches, 1)
	assert.Same(t, res, pub.batches[0])
	assert.Empty(t, store.scans, "kafka backend must not touch the store directly")
	assert.Equal(t, 2, metrics.sent, "one message per classification")
}

func TestDeliverClickHouseBackend(t *testing.T) {
	pub := &mockPublisher{}
	store := newMockScanStore()
	sink := NewScanResultSink(pub, store, &capMetrics{}, "clickhouse")

	res := sinkFixtureResult()
	require.NoError(t, sink.Deliver(context.Background(), res))

	require.Len(t, store.scans, 1)
	assert.Same(t, res, store.scans[0])
	assert.Equal(t, res.Classifications, store.classifications["scan-42"])
	assert.Equal(t, res.Dates.PostMarket, store.classDates["scan-42"])
	assert.Empty(t, pub.batches, "direct storage bypasses the bus")
}

func TestDeliverUnknownBackend(t *testing.T) {
	sink := NewScanResultSink(&mockPublisher{}, newMockScanStore(), &capMetrics{}, "postgres")

	err := sink.Deliver(context.Background(), sinkFixtureResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestDeliverNilResult(t *testing.T) {
	sink := NewScanResultSink(&mockPublisher{}, newMockScanStore(), &capMetrics{}, "kafka")
	require.Error(t, sink.Deliver(context.Background(), nil))
}

func TestDeliverErrorsAreWrapped(t *testing.T) {
	wire := errors.New("broker unreachable")
	pub := &mockPublisher{publishErr: wire}
	metrics := &capMetrics{}
	sink := NewScanResultSink(pub, newMockScanStore(), metrics, "kafka")

	err := sink.Deliver(context.Background(), sinkFixtureResult())
	require.Error(t, err)
	assert.True(t, errors.Is(err, wire))
	assert.Contains(t, err.Error(), "scan-42")
	assert.Contains(t, metrics.errors, "deliver")
	assert.Zero(t, metrics.sent, "failed deliveries count nothing as sent")
}

func TestSinkCloseReleasesBothEnds(t *testing.T) {
	pub := &mockPublisher{}
	store := newMockScanStore()
	sink := NewScanResultSink(pub, store, &capMetrics{}, "kafka")

	sink.Close()
	assert.True(t, pub.closed)
	assert.True(t, store.closed)
}
