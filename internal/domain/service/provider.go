package service

import (
	"context"

	"SignalForge/internal/domain/models"
)

// Provider is any enrichment dependency the orchestrator can call. A
// provider must be idempotent for a given (signal, context) pair and must
// not retry internally; retries belong to the breaker/predictor layer. It
// writes only under its own namespace in the returned result.
type Provider interface {
	Kind() string
	Enrich(ctx context.Context, s *models.Signal, op models.OperationContext) (models.ProviderResult, error)
}

// FeatureSource supplies runtime features for an operation context.
type FeatureSource interface {
	RecentVolatility(asset string) float64
	SystemLoad() float64
}
