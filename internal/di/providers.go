package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	domrepo "EarnScan/internal/domain/repository"
	domsvc "EarnScan/internal/domain/service"
	"EarnScan/internal/exporter"
	"EarnScan/internal/handler/api"
	mid "EarnScan/internal/middleware"
	internalrepo "EarnScan/internal/repository"
	svccache "EarnScan/internal/service/cache"
	"EarnScan/internal/service/quotes"
	"EarnScan/internal/service/ratelimit"
	prov "EarnScan/internal/services/providers"
	"EarnScan/internal/usecase"
	pkgcache "EarnScan/pkg/cache"
	pkgch "EarnScan/pkg/clickhouse"
	"EarnScan/pkg/config"
	pkgkafka "EarnScan/pkg/kafka"
	applogger "EarnScan/pkg/logger"
	"EarnScan/pkg/metrics"
	"EarnScan/pkg/queue"
	"EarnScan/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideRateLimiter creates the shared keyed limiter for outbound provider
// calls and inbound analyze requests.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideRedisClient creates the shared redis client, or nil when redis is
// disabled. Consumers treat a nil client as "feature off".
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func chDatabase(cfg *config.Config) string {
	if cfg.ClickHouse.Database == "" {
		return "earnscan"
	}
	return cfg.ClickHouse.Database
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the scan
// tables exist.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := chDatabase(cfg)
	stmts := []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.scans (
			id String,
			post_date Date,
			pre_date Date,
			pass_threshold Float64,
			near_miss_threshold Float64,
			threshold_basis String,
			started_at DateTime,
			finished_at DateTime,
			analyzed UInt32,
			recommended UInt32,
			near_misses UInt32,
			failed UInt32
		) ENGINE = ReplacingMergeTree(finished_at) ORDER BY id`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.scan_classifications (
			scan_id String,
			scan_date Date,
			symbol String,
			timing String,
			outcome String,
			tier Int32,
			reason String,
			metrics String,
			validated_at DateTime
		) ENGINE = ReplacingMergeTree(validated_at) ORDER BY (scan_id, symbol)`, db),
	}
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideScanStore creates the ClickHouse-backed scan store.
func ProvideScanStore(chClient *pkgch.Client, cfg *config.Config) domrepo.ScanStore {
	db := chDatabase(cfg)
	return internalrepo.NewClickHouseScanStore(chClient.DB(), db+".scans", db+".scan_classifications")
}

// ProvideKafkaProducer creates a Kafka producer, or nil when nothing in the
// configuration publishes to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != "kafka" && cfg.Kafka.LogsTopic == "" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
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

// ProvideClassificationPublisher routes classification events onto the results
// topic on the kafka backend; otherwise events are dropped and the sink writes
// straight to the store.
func ProvideClassificationPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.Publisher {
	if cfg.Backend.Type == "kafka" && producer != nil {
		return internalrepo.NewKafkaClassificationPublisher(producer, cfg.Kafka.ResultsTopic)
	}
	return internalrepo.NoopPublisher{}
}

// ProvideResultSink creates the backend router for finished scans.
func ProvideResultSink(
	pub domrepo.Publisher,
	store domrepo.ScanStore,
	m domrepo.Metrics,
	cfg *config.Config,
) usecase.ResultSink {
	return usecase.NewScanResultSink(pub, store, m, cfg.Backend.Type)
}

// ProvideBytesCache builds the quote/chain cache: in-process TTL cache alone,
// or layered over redis when redis is enabled.
func ProvideBytesCache(rc *redis.Client) svccache.BytesCache {
	front := svccache.NewTTLCache()
	if rc == nil {
		return front
	}
	return svccache.NewLayered(front, svccache.NewRedisCache(rc, ""))
}

// ProvideCalendarSource creates the earnings-calendar sidecar client.
func ProvideCalendarSource(cfg *config.Config, limiter *ratelimit.Limiter) domsvc.EventCalendarSource {
	return prov.NewHTTPCalendarSource(cfg, limiter)
}

// ProvideMarketData creates the cached market-data sidecar client.
func ProvideMarketData(cfg *config.Config, limiter *ratelimit.Limiter, bc svccache.BytesCache) domsvc.MarketDataProvider {
	return prov.NewCachedMarketData(cfg, limiter, bc)
}

// ProvideAnalytics creates the volatility-analytics sidecar client.
func ProvideAnalytics(cfg *config.Config, limiter *ratelimit.Limiter) domsvc.AnalyticsProvider {
	return prov.NewHTTPAnalyticsProvider(cfg, limiter)
}

// ProvideWinRate creates the historical win-rate client.
func ProvideWinRate(cfg *config.Config, limiter *ratelimit.Limiter, l *applogger.Logger) domsvc.WinRateProvider {
	return prov.NewSessionWinRateProvider(cfg, limiter, l)
}

// ProvideThresholdAdapter creates the reference-index threshold adapter.
func ProvideThresholdAdapter(analytics domsvc.AnalyticsProvider, cfg *config.Config, l *applogger.Logger) *usecase.ThresholdAdapter {
	return usecase.NewThresholdAdapter(analytics, cfg.Scan.Reference, l)
}

// ProvideValidator creates the candidate validation pipeline.
func ProvideValidator(
	market domsvc.MarketDataProvider,
	analytics domsvc.AnalyticsProvider,
	winRate domsvc.WinRateProvider,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.CandidateValidator {
	return usecase.NewCandidateValidator(market, analytics, winRate, m, l)
}

// ProvideIronFlySelector creates the iron-fly strike selector.
func ProvideIronFlySelector(market domsvc.MarketDataProvider, l *applogger.Logger) *usecase.IronFlySelector {
	return usecase.NewIronFlySelector(market, l)
}

// ProvideLocation loads the market clock timezone.
func ProvideLocation(cfg *config.Config) (*time.Location, error) {
	tz := cfg.Scan.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return loc, nil
}

// ProvideExporter creates the CSV/JSON file exporter.
func ProvideExporter(cfg *config.Config) usecase.ResultExporter {
	return exporter.NewFileExporter(cfg.Scan.ExportDir)
}

// ProvideOrchestrator creates the scan orchestrator.
func ProvideOrchestrator(
	calendar domsvc.EventCalendarSource,
	thresholds *usecase.ThresholdAdapter,
	validator *usecase.CandidateValidator,
	sink usecase.ResultSink,
	m domrepo.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
	loc *time.Location,
	exp usecase.ResultExporter,
) *usecase.ScanOrchestrator {
	ocfg := usecase.OrchestratorConfig{
		BatchSize:        cfg.Scan.BatchSize,
		BatchPause:       cfg.Scan.BatchPause,
		CandidateTimeout: cfg.Scan.CandidateTimeout,
		CalendarTimeout:  cfg.Scan.CalendarTimeout,
	}
	return usecase.NewScanOrchestrator(calendar, thresholds, validator, sink, m, l, ocfg, loc,
		usecase.WithExporter(exp))
}

// ProvideAnalyzer creates the single-symbol analyzer.
func ProvideAnalyzer(
	thresholds *usecase.ThresholdAdapter,
	validator *usecase.CandidateValidator,
	ironFly *usecase.IronFlySelector,
	analytics domsvc.AnalyticsProvider,
	l *applogger.Logger,
) *usecase.SymbolAnalyzer {
	return usecase.NewSymbolAnalyzer(thresholds, validator, ironFly, analytics, l)
}

// ProvideHistory creates the stored-scan query use case.
func ProvideHistory(store domrepo.ScanStore) *usecase.ScanHistoryUseCase {
	return usecase.NewScanHistoryUseCase(store)
}

// ProvideLockCache builds the per-date scan dedup lock: redis-backed when redis
// is enabled so the lock holds across instances, in-memory otherwise.
func ProvideLockCache(cfg *config.Config, rc *redis.Client) (pkgcache.Service, error) {
	if rc == nil {
		return pkgcache.NewMemoryCache(), nil
	}
	host, port := splitRedisAddr(cfg.Redis.Addr)
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("earnscan:locks"),
	)
	if err != nil {
		return nil, fmt.Errorf("lock cache: %w", err)
	}
	return c, nil
}

func splitRedisAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// ProvideScanRequestJob creates the queued-scan runner.
func ProvideScanRequestJob(orchestrator *usecase.ScanOrchestrator, locks pkgcache.Service, l *applogger.Logger) *usecase.ScanRequestJob {
	return usecase.NewScanRequestJob(orchestrator, locks, l)
}

// ProvideScanEnqueuer hands the API its scan dispatch path: the redis queue
// when redis is enabled, or an in-process runner otherwise.
func ProvideScanEnqueuer(cfg *config.Config, l *applogger.Logger, rc *redis.Client, job *usecase.ScanRequestJob) api.ScanEnqueuer {
	if rc == nil {
		return directEnqueuer{job: job, logger: l}
	}
	var opts []queue.RedisQueueOption
	if cfg.Queue.KeyPrefix != "" {
		opts = append(opts, queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
	}
	return queue.NewRedisPublisher(l, rc, opts...)
}

// directEnqueuer runs scan requests in-process when the queue is disabled.
// The job keeps its dedup lock semantics, so concurrent posts still collapse.
type directEnqueuer struct {
	job    *usecase.ScanRequestJob
	logger *applogger.Logger
}

func (d directEnqueuer) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	if msgType != usecase.ScanRequestedMessage {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}
	go func() {
		if err := d.job.Handle(context.Background(), payload); err != nil {
			d.logger.Error("inline scan failed", applogger.Error(err))
		}
	}()
	return nil
}

// ProvideQueueConsumer creates the scan-request queue consumer, or nil when
// redis is disabled.
func ProvideQueueConsumer(cfg *config.Config, l *applogger.Logger, rc *redis.Client, job *usecase.ScanRequestJob) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	var opts []queue.RedisQueueOption
	if cfg.Queue.KeyPrefix != "" {
		opts = append(opts, queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
	}
	return queue.NewRedisConsumer(l, qc, rc, []queue.Job{job}, opts...)
}

// ProvideKafkaConsumer creates the results-topic consumer on the kafka
// backend, nil otherwise.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideResultsHandler creates the handler that persists classification
// events from the results topic.
func ProvideResultsHandler(cfg *config.Config, store domrepo.ScanStore, m domrepo.Metrics) pkgkafka.MessageHandler {
	return usecase.NewKafkaResultsHandler(cfg.Kafka.ResultsTopic, store, m)
}

// ProvideQuoteCollector wires the websocket quote stream through the pipeline
// into the quote cache, or returns nil when the stream is disabled.
func ProvideQuoteCollector(
	cfg *config.Config,
	orchestrator *usecase.ScanOrchestrator,
	m domrepo.Metrics,
	bc svccache.BytesCache,
	l *applogger.Logger,
) *usecase.QuoteCollector {
	if !cfg.QuoteStream.Enabled {
		return nil
	}
	stream := quotes.New(
		cfg.QuoteStream.APIKey,
		cfg.QuoteStream.URL,
		cfg.QuoteStream.ReconnectDelay,
		cfg.QuoteStream.PingInterval,
		l,
	)
	writer := mid.NewCacheQuoteWriter(bc, cfg.Providers.MarketData.QuoteTTL)
	pipe := mid.NewQuotePipeline(writer, m,
		mid.WithMaxRPS(10),
		mid.WithBufferSize(1000),
	)
	return usecase.NewQuoteCollector(stream, pipe, orchestrator, m, l)
}

// ProvideScansHandler creates the HTTP route handler.
func ProvideScansHandler(
	l *applogger.Logger,
	enqueuer api.ScanEnqueuer,
	history *usecase.ScanHistoryUseCase,
	analyzer *usecase.SymbolAnalyzer,
	ironFly *usecase.IronFlySelector,
	store domrepo.ScanStore,
) *api.ScansEchoHandler {
	return api.NewScansEchoHandler(l, enqueuer, history, analyzer, ironFly, store)
}

// ProvideApp assembles the serve-mode application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler *api.ScansEchoHandler,
	queueConsumer *queue.RedisQueue,
	resultsConsumer *pkgkafka.Consumer,
	resultsHandler pkgkafka.MessageHandler,
	quoteCollector *usecase.QuoteCollector,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	sink usecase.ResultSink,
) *server.App {
	if resultsConsumer != nil {
		resultsConsumer.WithConsumerHook(pkgkafka.TracingHook())
	}
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      kafkaLogPublisher{producer: producer},
		})
	}
	app := server.New(cfg, l, queueConsumer, resultsConsumer, resultsHandler, quoteCollector, chClient)
	app.SetHTTPHandler(handler)
	app.Sink = sink
	return app
}

// kafkaLogPublisher adapts the kafka producer to the log collector.
type kafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func (p kafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

// Toolkit bundles the use cases the CLI drives directly, without the
// serve-mode app around them.
type Toolkit struct {
	Orchestrator *usecase.ScanOrchestrator
	Analyzer     *usecase.SymbolAnalyzer
	IronFly      *usecase.IronFlySelector
	History      *usecase.ScanHistoryUseCase

	sink usecase.ResultSink
	ch   *pkgch.Client
}

// ProvideToolkit assembles the CLI facade.
func ProvideToolkit(
	orchestrator *usecase.ScanOrchestrator,
	analyzer *usecase.SymbolAnalyzer,
	ironFly *usecase.IronFlySelector,
	history *usecase.ScanHistoryUseCase,
	sink usecase.ResultSink,
	chClient *pkgch.Client,
) *Toolkit {
	return &Toolkit{
		Orchestrator: orchestrator,
		Analyzer:     analyzer,
		IronFly:      ironFly,
		History:      history,
		sink:         sink,
		ch:           chClient,
	}
}

// Close releases the backends the toolkit holds open.
func (t *Toolkit) Close() {
	if t.sink != nil {
		t.sink.Close()
	}
	if t.ch != nil {
		_ = t.ch.Close()
	}
}
