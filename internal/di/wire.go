//go:build wireinject
// +build wireinject

package di

import (
	"EarnScan/pkg/config"
	applogger "EarnScan/pkg/logger"
	"EarnScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up the serve-mode application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config, l *applogger.Logger) (*server.App, error) {
	wire.Build(
		// Shared infrastructure
		ProvideMetrics,
		ProvideRateLimiter,
		ProvideRedisClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideScanStore,
		ProvideClassificationPublisher,

		// Provider sidecars
		ProvideBytesCache,
		ProvideCalendarSource,
		ProvideMarketData,
		ProvideAnalytics,
		ProvideWinRate,

		// Use cases
		ProvideThresholdAdapter,
		ProvideValidator,
		ProvideIronFlySelector,
		ProvideLocation,
		ProvideExporter,
		ProvideResultSink,
		ProvideOrchestrator,
		ProvideAnalyzer,
		ProvideHistory,
		ProvideLockCache,
		ProvideScanRequestJob,

		// Transport
		ProvideScanEnqueuer,
		ProvideQueueConsumer,
		ProvideKafkaConsumer,
		ProvideResultsHandler,
		ProvideQuoteCollector,
		ProvideScansHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeToolkit wires up the use cases the CLI drives directly.
func InitializeToolkit(cfg *config.Config, l *applogger.Logger) (*Toolkit, error) {
	wire.Build(
		ProvideMetrics,
		ProvideRateLimiter,
		ProvideRedisClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		ProvideScanStore,
		ProvideClassificationPublisher,

		ProvideBytesCache,
		ProvideCalendarSource,
		ProvideMarketData,
		ProvideAnalytics,
		ProvideWinRate,

		ProvideThresholdAdapter,
		ProvideValidator,
		ProvideIronFlySelector,
		ProvideLocation,
		ProvideExporter,
		ProvideResultSink,
		ProvideOrchestrator,
		ProvideAnalyzer,
		ProvideHistory,

		ProvideToolkit,
	)
	return &Toolkit{}, nil
}
