package factory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"whozere-relay/internal/archive"
	"whozere-relay/internal/client"
	"whozere-relay/internal/config"
	"whozere-relay/internal/llm"
	"whozere-relay/internal/notify"
	"whozere-relay/internal/repository"
	redisrepo "whozere-relay/internal/repository/redis"
	"whozere-relay/internal/risk"
	"whozere-relay/internal/service"
	"whozere-relay/internal/tls"
	"whozere-relay/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	logger     *zap.Logger
	location   *time.Location
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Components
	kvStore         repository.KVStore
	loginRepository *repository.LoginRepository
	settings        config.Source
	analyzer        *risk.Analyzer
	notifier        notify.Notifier
	mirrors         []archive.RecordMirror
	serviceFactory  *service.ServiceFactory

	closeOnce sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	logger := util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	location, err := cfg.Location()
	if err != nil {
		util.Warn("Falling back to local timezone", util.ErrorField(err))
	}

	factory := &Factory{
		config:   cfg,
		logger:   logger,
		location: location,
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}, logger.Named("tls"))
	}

	if err := factory.initializeClients(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeComponents(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("timezone", location.String()),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("redis", factory.redisClient != nil),
		util.Bool("kafka", factory.kafkaProducer != nil),
		util.Bool("ai_enabled", cfg.LLM.APIKey != ""),
		util.Int("mirrors", len(factory.mirrors)),
	)

	return factory, nil
}

// initializeClients connects to every configured backend in parallel. Redis is
// always attempted; Kafka, Elasticsearch and ClickHouse only when enabled.
// Outside production, failures are logged and the backend is skipped.
func (f *Factory) initializeClients() error {
	var (
		mu         sync.Mutex
		initErrors []error
	)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		initErrors = append(initErrors, fmt.Errorf("%s: %w", name, err))
	}

	var g errgroup.Group

	g.Go(func() error {
		c, err := client.NewRedisClient(f.config, f.logger)
		if err != nil {
			record("redis", err)
			return nil
		}
		f.redisClient = c
		return nil
	})

	if f.config.Kafka.Enabled {
		g.Go(func() error {
			p, err := client.NewKafkaProducer(f.config, f.logger)
			if err != nil {
				record("kafka", err)
				return nil
			}
			f.kafkaProducer = p
			return nil
		})
	}

	if f.config.Elasticsearch.Enabled {
		g.Go(func() error {
			c, err := client.NewElasticsearchClient(f.config, f.logger)
			if err != nil {
				record("elasticsearch", err)
				return nil
			}
			f.esClient = c
			return nil
		})
	}

	if f.config.Clickhouse.Enabled {
		g.Go(func() error {
			c, err := client.NewClickHouseClient(f.config, f.logger)
			if err != nil {
				record("clickhouse", err)
				return nil
			}
			f.clickhouseClient = c
			return nil
		})
	}

	_ = g.Wait()

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeComponents() error {
	if f.redisClient != nil {
		f.kvStore = redisrepo.NewKVStore(f.redisClient)
		f.settings = config.ChainSource{redisrepo.NewSettingsSource(f.redisClient), config.EnvSource{}}
	} else {
		util.Warn("Redis unavailable - login history is kept in memory and lost on restart")
		f.kvStore = repository.NewMemoryStore()
		f.settings = config.EnvSource{}
	}
	f.loginRepository = repository.NewLoginRepository(f.kvStore, f.logger.Named("repository"))

	// A nil *llm.Client must not reach the analyzer as a non-nil interface.
	var completer risk.Completer
	if f.config.LLM.APIKey != "" {
		c, err := llm.NewClient(f.config.LLM.APIKey, f.config.LLM.BaseURL, f.config.LLM.Model, f.config.LLM.Timeout)
		if err != nil {
			return fmt.Errorf("llm: %w", err)
		}
		completer = c
	} else {
		util.Info("LLM_API_KEY not set - risk analysis runs heuristics only")
	}
	f.analyzer = risk.NewAnalyzer(completer, f.logger.Named("risk"),
		risk.WithLocation(f.location),
		risk.WithAITimeout(f.config.LLM.Timeout),
	)

	if f.kafkaProducer != nil {
		f.notifier = notify.NewKafkaNotifier(f.kafkaProducer, f.config.Kafka.AlertTopic, f.logger.Named("notify"))
	} else {
		f.notifier = notify.NewLogNotifier(f.logger.Named("notify"))
	}

	if f.esClient != nil {
		f.mirrors = append(f.mirrors, archive.NewESMirror(f.esClient, f.config.Elasticsearch.Index))
	}
	if f.clickhouseClient != nil {
		m, err := archive.NewClickHouseMirror(f.clickhouseClient, f.config.Clickhouse.Table)
		if err != nil {
			return fmt.Errorf("clickhouse mirror: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := m.EnsureTable(ctx); err != nil {
			return fmt.Errorf("clickhouse mirror: %w", err)
		}
		f.mirrors = append(f.mirrors, m)
	}

	return nil
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.loginRepository,
			f.analyzer,
			f.notifier,
			f.settings,
			f.location,
			f.mirrors,
			f.logger,
		)
	}
	return f.serviceFactory
}

// NewIngestConsumer builds a consumer on the webhook ingest topic.
func (f *Factory) NewIngestConsumer() (*client.KafkaConsumer, error) {
	if !f.config.Kafka.Enabled {
		return nil, fmt.Errorf("kafka is disabled")
	}
	return client.NewKafkaConsumer(f.config, f.config.Kafka.IngestTopic, f.config.Kafka.GroupID, f.logger.Named("ingest"))
}

// ==============================
// Health Checks
// ==============================

// HealthCheck probes every initialized backend concurrently.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	type probe struct {
		name  string
		check func(context.Context) error
	}
	var probes []probe
	if f.redisClient != nil {
		probes = append(probes, probe{"redis", f.redisClient.HealthCheck})
	}
	if f.kafkaProducer != nil {
		probes = append(probes, probe{"kafka", f.kafkaProducer.HealthCheck})
	}
	if f.esClient != nil {
		probes = append(probes, probe{"elasticsearch", f.esClient.HealthCheck})
	}
	if f.clickhouseClient != nil {
		probes = append(probes, probe{"clickhouse", f.clickhouseClient.HealthCheck})
	}

	var (
		mu           sync.Mutex
		healthErrors = make(map[string]error)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range probes {
		g.Go(func() error {
			if err := p.check(gctx); err != nil {
				mu.Lock()
				healthErrors[p.name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return healthErrors
}

// Ready is the /health probe. Only a Redis failure makes the service unready;
// other backends are logged.
func (f *Factory) Ready(ctx context.Context) error {
	healthErrors := f.HealthCheck(ctx)
	if err, ok := healthErrors["redis"]; ok {
		return fmt.Errorf("redis: %w", err)
	}

	names := make([]string, 0, len(healthErrors))
	for name := range healthErrors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		util.Warn("Optional backend unhealthy", util.String("backend", name), util.ErrorField(healthErrors[name]))
	}
	return nil
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			_ = f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Logger() *zap.Logger {
	return f.logger
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}
