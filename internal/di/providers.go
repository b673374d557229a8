package di

import (
	"context"
	"fmt"
	"time"

	"SignalForge/internal/domain/repository"
	domsvc "SignalForge/internal/domain/service"
	"SignalForge/internal/handler/api"
	internalrepo "SignalForge/internal/repository"
	"SignalForge/internal/service/breaker"
	"SignalForge/internal/service/configstore"
	"SignalForge/internal/service/health"
	"SignalForge/internal/service/marketfeed"
	"SignalForge/internal/service/predictor"
	"SignalForge/internal/service/versioning"
	"SignalForge/internal/services/providers"
	"SignalForge/internal/usecase"
	pkgcache "SignalForge/pkg/cache"
	pkgch "SignalForge/pkg/clickhouse"
	"SignalForge/pkg/config"
	xhttp "SignalForge/pkg/http"
	pkgkafka "SignalForge/pkg/kafka"
	applogger "SignalForge/pkg/logger"
	"SignalForge/pkg/metrics"
	"SignalForge/pkg/queue"
	"SignalForge/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideConfigStore creates the hot-reloadable enrichment config document.
func ProvideConfigStore(cfg *config.Config, log *applogger.Logger) (*configstore.Store, error) {
	store, err := configstore.New(cfg.Enrichment.ConfigPath, cfg.Enrichment.WatchInterval, log)
	if err != nil {
		return nil, fmt.Errorf("config store: %w", err)
	}
	return store, nil
}

// ProvideBreakerRegistry creates per-provider circuit breakers with overrides
// from config.
func ProvideBreakerRegistry(cfg *config.Config, m repository.Metrics, log *applogger.Logger) *breaker.Registry {
	overrides := make(map[string]breaker.Config, len(cfg.Breaker.Providers))
	for kind, bc := range cfg.Breaker.Providers {
		overrides[kind] = breaker.Config{
			FailureThreshold: bc.FailureThreshold,
			Cooldown:         bc.Cooldown,
		}
	}
	return breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
	}, overrides, m, log)
}

// ProvidePredictor creates the failure predictor.
func ProvidePredictor(cfg *config.Config, log *applogger.Logger) *predictor.Predictor {
	return predictor.New(predictor.Config{
		HistorySize:  cfg.Predictor.HistorySize,
		RetrainEvery: cfg.Predictor.RetrainEvery,
		MinSamples:   cfg.Predictor.MinSamples,
		RiskCeiling:  cfg.Predictor.RiskCeiling,
		DefaultRisk:  cfg.Predictor.DefaultRisk,
	}, log)
}

// ProvideVersionManager creates the provider version/rollout manager.
func ProvideVersionManager(cfg *config.Config, log *applogger.Logger) (*versioning.Manager, error) {
	m, err := versioning.New(versioning.Config{
		Dir:           cfg.Versioning.Dir,
		MinSampleSize: cfg.Versioning.MinSampleSize,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("version manager: %w", err)
	}
	return m, nil
}

// ProvideHealthMonitor creates the health monitor and wires its breaker view.
func ProvideHealthMonitor(m repository.Metrics, log *applogger.Logger, breakers *breaker.Registry, provs []domsvc.Provider) *health.Monitor {
	hm := health.New(health.DefaultConfig(), m, log)
	hm.SetBreakerSource(breakers.OpenCount, len(provs))
	return hm
}

// ProvideCache creates the two-tier result cache. Without Redis configured it
// degrades to the in-process tier alone.
func ProvideCache(cfg *config.Config, log *applogger.Logger) pkgcache.Service {
	if !cfg.Cache.Redis.Enabled {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
	}
	redisCache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
		pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		log.Warn("redis unavailable, caching in memory only", applogger.Error(err))
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
	}
	return pkgcache.NewLayeredCache(redisCache, pkgcache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize))
}

// ProvideWorkerPool creates the bounded fan-out pool.
func ProvideWorkerPool(cfg *config.Config, log *applogger.Logger) *queue.Pool {
	return queue.NewPool(queue.PoolConfig{
		Workers:   cfg.Enrichment.Workers,
		QueueSize: cfg.Enrichment.QueueSize,
	}, log)
}

// ProvideProviders builds the enrichment provider set from configured
// endpoints. Providers without an endpoint are omitted.
func ProvideProviders(cfg *config.Config) []domsvc.Provider {
	out := make([]domsvc.Provider, 0, 4)
	timeout := cfg.Providers.Timeout
	if u := cfg.Providers.PricePredictorURL; u != "" {
		out = append(out, providers.NewPricePredictor(providers.NewHTTPServiceBase(u, timeout)))
	}
	if u := cfg.Providers.PolicyEngineURL; u != "" {
		out = append(out, providers.NewPolicyEngine(providers.NewHTTPServiceBase(u, timeout)))
	}
	if u := cfg.Providers.SentimentURL; u != "" {
		out = append(out, providers.NewSentiment(providers.NewHTTPServiceBase(u, timeout)))
	}
	if u := cfg.Providers.ConsensusURL; u != "" {
		out = append(out, providers.NewConsensus(providers.NewHTTPServiceBase(u, timeout)))
	}
	return out
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when archival is
// disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideOutcomeStore creates the outcome archive, initializing its schema.
func ProvideOutcomeStore(ch *pkgch.Client, log *applogger.Logger) (repository.OutcomeStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewCHOutcomeStore(ch)
	store.SetLogger(log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("outcome store schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates the shared Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher creates the enriched-signal publisher.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config, log *applogger.Logger) repository.SignalPublisher {
	if producer == nil {
		return nil
	}
	pub := internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.EnrichedTopic)
	pub.SetLogger(log)
	return pub
}

// ProvideKafkaConsumer creates the base-signal consumer, or nil when Kafka is
// disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMarketStream creates the live market-data stream, or nil when the
// feed is disabled.
func ProvideMarketStream(cfg *config.Config, log *applogger.Logger) repository.MarketStream {
	if !cfg.MarketFeed.Enabled {
		return nil
	}
	return marketfeed.New(
		cfg.MarketFeed.APIKey,
		cfg.MarketFeed.WebSocketURL,
		cfg.MarketFeed.Assets,
		cfg.MarketFeed.ReconnectDelay,
		cfg.MarketFeed.PingInterval,
		log,
	)
}

// ProvideVolatilityTracker creates the feature source fed by the market
// stream.
func ProvideVolatilityTracker() *marketfeed.VolatilityTracker {
	return marketfeed.NewVolatilityTracker(0)
}

// ProvideEnricher assembles the orchestrator.
func ProvideEnricher(
	cfg *config.Config,
	provs []domsvc.Provider,
	breakers *breaker.Registry,
	pred *predictor.Predictor,
	conf *configstore.Store,
	versions *versioning.Manager,
	hm *health.Monitor,
	cache pkgcache.Service,
	pool *queue.Pool,
	tracker *marketfeed.VolatilityTracker,
	m repository.Metrics,
	outcomes repository.OutcomeStore,
	log *applogger.Logger,
) *usecase.Enricher {
	e := usecase.NewEnricher(usecase.EnricherConfig{
		Workers:       cfg.Enrichment.Workers,
		QueueSize:     cfg.Enrichment.QueueSize,
		CallTimeout:   cfg.Enrichment.CallTimeout,
		GlobalTimeout: cfg.Enrichment.GlobalTimeout,
		CacheTTL:      cfg.Enrichment.CacheTTL,
	}, provs, breakers, pred, conf, versions, hm, cache, pool, tracker, m, outcomes, log)
	tracker.SetQueuePressureSource(e.QueuePressure)
	return e
}

// ProvideKafkaSignalsHandler registers the base-signal intake handler.
func ProvideKafkaSignalsHandler(
	cfg *config.Config,
	enricher *usecase.Enricher,
	publisher repository.SignalPublisher,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.KafkaSignalsHandler {
	if publisher == nil {
		return nil
	}
	return usecase.NewKafkaSignalsHandler(cfg.Kafka.SignalsTopic, enricher, publisher, m, log)
}

// ProvideHTTPHandler creates the API surface.
func ProvideHTTPHandler(
	log *applogger.Logger,
	enricher *usecase.Enricher,
	conf *configstore.Store,
	versions *versioning.Manager,
	pred *predictor.Predictor,
	hm *health.Monitor,
	breakers *breaker.Registry,
	cache pkgcache.Service,
) xhttp.Handler {
	return api.NewEnrichHandler(log, enricher, conf, versions, pred, hm, breakers, cache)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	conf *configstore.Store,
	enricher *usecase.Enricher,
	pred *predictor.Predictor,
	versions *versioning.Manager,
	hm *health.Monitor,
	tracker *marketfeed.VolatilityTracker,
	stream repository.MarketStream,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSignalsHandler,
	publisher repository.SignalPublisher,
	producer *pkgkafka.Producer,
	outcomes repository.OutcomeStore,
	pool *queue.Pool,
	httpHandler xhttp.Handler,
) *server.App {
	return server.New(server.Deps{
		Cfg:         cfg,
		Log:         log,
		ConfStore:   conf,
		Enricher:    enricher,
		Predictor:   pred,
		Versions:    versions,
		Health:      hm,
		Tracker:     tracker,
		Stream:      stream,
		Consumer:    consumer,
		KH:          kh,
		Publisher:   publisher,
		Producer:    producer,
		Outcomes:    outcomes,
		Pool:        pool,
		HTTPHandler: httpHandler,
	})
}
