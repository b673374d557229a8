package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
	domrepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/service/ratelimit"
	pkgkafka "SignalForge/pkg/kafka"
	"SignalForge/pkg/logger"
)

// KafkaSignalsHandler consumes base signals from Kafka, enriches them and
// publishes the merged result downstream. A per-asset token bucket sheds
// bursts before they reach the provider fan-out.
type KafkaSignalsHandler struct {
	topic     string
	enricher  *Enricher
	publisher domrepo.SignalPublisher
	limiter   *ratelimit.Limiter
	metrics   domrepo.Metrics
	log       *logger.Logger

	rateCapacity float64
	ratePerSec   float64
}

func NewKafkaSignalsHandler(
	topic string,
	enricher *Enricher,
	publisher domrepo.SignalPublisher,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *KafkaSignalsHandler {
	return &KafkaSignalsHandler{
		topic:        topic,
		enricher:     enricher,
		publisher:    publisher,
		limiter:      ratelimit.New(),
		metrics:      metrics,
		log:          log,
		rateCapacity: 10,
		ratePerSec:   5,
	}
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

// incoming message schema: {asset, direction, tier, confidence, created_at, request_id}
func (h *KafkaSignalsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Asset      string  `json:"asset"`
		Direction  string  `json:"direction"`
		Tier       string  `json:"tier"`
		Confidence float64 `json:"confidence"`
		CreatedAt  int64   `json:"created_at"`
		RequestID  string  `json:"request_id"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.Asset == "" {
		h.metrics.RecordError("consumer_empty_asset")
		// malformed but not retryable
		return nil
	}

	if !h.limiter.Allow("signals:"+m.Asset, h.rateCapacity, h.ratePerSec) {
		h.metrics.RecordError("consumer_rate_limited")
		if h.log != nil {
			h.log.Debug("base signal shed by rate limit", logger.String("asset", m.Asset))
		}
		return nil
	}

	created := time.Now()
	if m.CreatedAt > 0 {
		if m.CreatedAt > 1e11 { // ms
			m.CreatedAt = m.CreatedAt / 1000
		}
		created = time.Unix(m.CreatedAt, 0)
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(created).Seconds())

	sig := &models.Signal{
		Asset:      m.Asset,
		Direction:  models.Direction(m.Direction),
		Tier:       models.ParseTier(m.Tier),
		Confidence: m.Confidence,
		CreatedAt:  created,
	}

	enriched, err := h.enricher.Enrich(ctx, EnrichParams{Signal: sig, RequestID: m.RequestID})
	if err != nil {
		h.metrics.RecordError("consumer_enrich")
		return fmt.Errorf("enrich %s: %w", m.Asset, err)
	}

	if err := h.publisher.Publish(ctx, enriched); err != nil {
		h.metrics.RecordError("consumer_publish")
		return fmt.Errorf("publish %s: %w", m.Asset, err)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)
