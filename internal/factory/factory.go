package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/audit"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/bucketing"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/cache"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/client"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/event"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/geo"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/hashing"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/keyvalue"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/ratelimit"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository/scylla"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/service"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/tls"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/token"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// Fallback signing secret outside production; Validate rejects an empty
// secret in production before this is ever reached.
const devJWTSecret = "insecure-dev-secret"

// Factory owns the lifecycle of every application dependency: clients,
// managers, repositories and services.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	kvStore     keyvalue.Store
	memoryStore *keyvalue.MemoryStore

	hasher      *hashing.Hasher
	buckets     *bucketing.Manager
	tokens      *token.Manager
	blacklist   *token.Blacklist
	pending     *cache.PendingCache
	limiter     *ratelimit.Limiter
	geoResolver *geo.Resolver
	dispatcher  *event.Dispatcher
	auditor     *audit.Recorder

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}
	f.initializeServices()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("redis_enabled", cfg.Redis.Enabled),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("clickhouse_enabled", cfg.Clickhouse.Enabled),
	)
	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.Redis.Enabled {
		if rc, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = rc
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			} else {
				f.kvStore = keyvalue.NewRedisStore(rc)
				util.Info("Redis client initialized and healthy")
			}
		}
	}
	if f.kvStore == nil {
		f.memoryStore = keyvalue.NewMemoryStore()
		f.kvStore = f.memoryStore
		util.Warn("using in-process key-value store; state will not survive restarts")
	}

	if sc, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = sc
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed, events will be dropped", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	if f.config.Clickhouse.Enabled {
		if ch, err := client.NewClickHouseClient(f.config); err != nil {
			util.Warn("ClickHouse initialization failed, audit trail disabled", util.ErrorField(err))
		} else {
			f.clickhouseClient = ch
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}
	return nil
}

func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(f.config)
	f.buckets = bucketing.NewManager(0)

	jwtCfg := f.config.JWT
	if jwtCfg.Secret == "" {
		jwtCfg.Secret = devJWTSecret
	}
	tokens, err := token.NewManager(jwtCfg)
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}
	f.tokens = tokens

	f.blacklist = token.NewBlacklist(f.kvStore)
	f.pending = cache.NewPendingCache(f.kvStore, f.config.Security.PendingTTL)
	f.limiter = ratelimit.NewLimiter(f.kvStore)
	f.geoResolver = geo.NewResolver(f.config.Geo)
	f.dispatcher = event.NewDispatcher(f.kafkaProducer, f.config.Kafka.EventsTopic, f.config.Kafka.DispatchRetries)
	f.auditor = audit.NewRecorder(f.clickhouseClient)
	return nil
}

func (f *Factory) initializeServices() {
	repos := service.Repositories{
		Users:       scylla.NewUserRepository(f.scyllaClient, f.buckets),
		Devices:     scylla.NewDeviceRepository(f.scyllaClient),
		Sessions:    scylla.NewSessionRepository(f.scyllaClient),
		OTPs:        scylla.NewOTPRepository(f.scyllaClient),
		TOTPs:       scylla.NewTOTPRepository(f.scyllaClient),
		BackupCodes: scylla.NewBackupCodeRepository(f.scyllaClient),
	}
	infra := service.Infrastructure{
		Hasher:      f.hasher,
		Tokens:      f.tokens,
		Blacklist:   f.blacklist,
		Pending:     f.pending,
		Limiter:     f.limiter,
		GeoResolver: f.geoResolver,
		Dispatcher:  f.dispatcher,
		Auditor:     f.auditor,
	}
	f.serviceFactory = service.NewServiceFactory(repos, infra, f.config)
}

// HealthCheck probes every enabled backend in parallel.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var (
		mu     sync.Mutex
		result = make(map[string]error)
	)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		result[name] = err
	}

	g, ctx := errgroup.WithContext(ctx)

	if f.redisClient != nil {
		g.Go(func() error {
			record("redis", f.redisClient.HealthCheck(ctx))
			return nil
		})
	}
	if f.scyllaClient != nil {
		g.Go(func() error {
			record("scylla", f.scyllaClient.HealthCheck())
			return nil
		})
	} else {
		record("scylla", fmt.Errorf("scylla client not initialized"))
	}
	if f.kafkaProducer != nil {
		g.Go(func() error {
			record("kafka", f.kafkaProducer.HealthCheck(ctx))
			return nil
		})
	}
	if f.clickhouseClient != nil {
		g.Go(func() error {
			record("clickhouse", f.clickhouseClient.HealthCheck(ctx))
			return nil
		})
	}

	_ = g.Wait()
	return result
}

// IsHealthy ignores optional backends: only Redis and Scylla gate readiness.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	checks := f.HealthCheck(ctx)
	delete(checks, "kafka")
	delete(checks, "clickhouse")
	for _, err := range checks {
		if err != nil {
			return false
		}
	}
	return true
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		f.auditor.Close()

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}
		if f.memoryStore != nil {
			f.memoryStore.Close()
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})
	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}

func (f *Factory) TokenManager() *token.Manager {
	return f.tokens
}

func (f *Factory) TokenBlacklist() *token.Blacklist {
	return f.blacklist
}
