package usecase

import (
	"context"
	"encoding/json"
	"time"

	"EarnScan/internal/domain/models"
	domrepo "EarnScan/internal/domain/repository"
	pkgkafka "EarnScan/pkg/kafka"
)

// KafkaResultsHandler consumes classification events and persists them. Each
// event is self-contained: the scan envelope rides along, so the header is
// upserted from whichever events arrive.
type KafkaResultsHandler struct {
	topic   string
	store   domrepo.ScanStore
	metrics domrepo.Metrics
}

func NewKafkaResultsHandler(topic string, store domrepo.ScanStore, metrics domrepo.Metrics) *KafkaResultsHandler {
	return &KafkaResultsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaResultsHandler) Topic() string { return h.topic }

// incoming message schema: scan envelope + one classification
func (h *KafkaResultsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		ScanID            string         `json:"scan_id"`
		PostDate          string         `json:"post_date"`
		PreDate           string         `json:"pre_date"`
		PassThreshold     float64        `json:"pass_threshold"`
		NearMissThreshold float64        `json:"near_miss_threshold"`
		ThresholdBasis    string         `json:"threshold_basis"`
		StartedAt         int64          `json:"started_at"`
		FinishedAt        int64          `json:"finished_at"`
		Analyzed          int            `json:"analyzed"`
		Recommended       int            `json:"recommended"`
		NearMisses        int            `json:"near_misses"`
		Failed            int            `json:"failed"`
		Symbol            string         `json:"symbol"`
		Timing            string         `json:"timing"`
		Outcome           string         `json:"outcome"`
		Tier              int            `json:"tier"`
		Reason            string         `json:"reason"`
		Metrics           map[string]any `json:"metrics"`
		T                 int64          `json:"t"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())

	postDate, _ := time.Parse("2006-01-02", m.PostDate)
	preDate, _ := time.Parse("2006-01-02", m.PreDate)
	header := domrepo.ScanHeader{
		ID:                m.ScanID,
		PostDate:          postDate,
		PreDate:           preDate,
		PassThreshold:     m.PassThreshold,
		NearMissThreshold: m.NearMissThreshold,
		ThresholdBasis:    m.ThresholdBasis,
		StartedAt:         time.Unix(m.StartedAt, 0).UTC(),
		FinishedAt:        time.Unix(m.FinishedAt, 0).UTC(),
		Analyzed:          m.Analyzed,
		Recommended:       m.Recommended,
		NearMisses:        m.NearMisses,
		Failed:            m.Failed,
	}

	c := models.Classification{
		Symbol:  m.Symbol,
		Timing:  models.EventTiming(m.Timing),
		Outcome: models.Outcome(m.Outcome),
		Tier:    m.Tier,
		Reason:  m.Reason,
		Metrics: models.MetricsBundle(m.Metrics),
	}

	start := time.Now()
	if err := h.store.SaveHeader(ctx, header); err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	err := h.store.SaveClassifications(ctx, m.ScanID, postDate, []models.Classification{c})
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", m.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaResultsHandler)(nil)
