//go:build wireinject
// +build wireinject

package di

import (
	"SignalForge/pkg/config"
	"SignalForge/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Core services
		ProvideConfigStore,
		ProvideBreakerRegistry,
		ProvidePredictor,
		ProvideVersionManager,
		ProvideHealthMonitor,
		ProvideCache,
		ProvideWorkerPool,
		ProvideProviders,
		ProvideVolatilityTracker,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideMarketStream,

		// Repositories
		ProvideOutcomeStore,
		ProvideSignalPublisher,

		// Use cases
		ProvideEnricher,
		ProvideKafkaSignalsHandler,

		// HTTP surface and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
