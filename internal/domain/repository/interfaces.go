package repository

import (
	"context"

	"SignalForge/internal/domain/models"
)

// MarketStream is a live market-data source feeding the volatility features.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SignalPublisher pushes enriched signals downstream (operator surface).
type SignalPublisher interface {
	Publish(ctx context.Context, s *models.EnrichedSignal) error
	Close() error
}

// OutcomeStore archives outcome records for offline analysis and warms the
// predictor on startup.
type OutcomeStore interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, records []models.OutcomeRecord) error
	RecentOutcomes(ctx context.Context, limit int) ([]models.OutcomeRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordProviderCall(provider, disposition string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordCacheLookup(hit bool)
	RecordBreakerState(provider string, state int)
	RecordHealthScore(score float64)
	RecordAggregateConfidence(tier string, confidence float64)
}
