package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"phone-auth-service/internal/bucketing"
	"phone-auth-service/internal/client"
	"phone-auth-service/internal/config"
	"phone-auth-service/internal/encryption"
	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/repository/memory"
	redisrepo "phone-auth-service/internal/repository/redis"
	"phone-auth-service/internal/repository/scylla"
	"phone-auth-service/internal/service"
	"phone-auth-service/internal/tls"
	"phone-auth-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	// Stores
	accounts service.AccountDirectory
	otpStore service.OTPStore
	attempts service.AttemptStore
	sessions service.SessionStore

	gateway        client.SMSGateway
	events         *service.EventPublisher
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewFactory loads configuration and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&cfg.Server, cfg.Environment)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := factory.initializeClients(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := factory.initializeManagers(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}
	factory.initializeStores()
	if err := factory.initializeGateway(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize sms gateway: %w", err)
	}
	factory.initializeEvents(ctx)

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("redis", factory.redisClient != nil),
		util.Bool("scylla", factory.scyllaClient != nil),
		util.String("sms_provider", cfg.SMS.Provider),
	)

	return factory, nil
}

// initializeClients connects every configured backend. Redis and Scylla are
// required in production; the analytics and audit backends never are.
func (f *Factory) initializeClients(ctx context.Context) error {
	var required, optional []error

	if f.config.Redis.URL != "" {
		if c, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			required = append(required, fmt.Errorf("redis: %w", err))
		} else {
			if err := c.HealthCheck(ctx); err != nil {
				c.Close()
				required = append(required, fmt.Errorf("redis health check: %w", err))
			} else {
				f.redisClient = c
				util.Info("Redis client initialized and healthy")
			}
		}
	}

	if len(f.config.Scylla.Nodes) > 0 {
		if c, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
			required = append(required, fmt.Errorf("scylla: %w", err))
		} else {
			if err := c.EnsureSchema(ctx); err != nil {
				c.Close()
				required = append(required, fmt.Errorf("scylla schema: %w", err))
			} else {
				f.scyllaClient = c
				util.Info("ScyllaDB client initialized and schema ensured")
			}
		}
	}

	if len(f.config.Kafka.Brokers) > 0 {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			optional = append(optional, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	if f.config.Elasticsearch.URL != "" {
		if c, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			optional = append(optional, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
			util.Info("Elasticsearch client initialized")
		}
	}

	if f.config.Clickhouse.URL != "" {
		if c, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			optional = append(optional, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
			util.Info("ClickHouse client initialized")
		}
	}

	for _, err := range optional {
		util.Warn("Optional backend unavailable - proceeding without it", util.ErrorField(err))
	}

	if len(required) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(required...))
		}
		for _, err := range required {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, and bucketing managers
func (f *Factory) initializeManagers(ctx context.Context) error {
	hasher, err := hashing.NewHasher(&f.config.Hashing)
	if err != nil {
		return fmt.Errorf("hasher: %w", err)
	}
	f.hasher = hasher

	var kmsClient encryption.KMSAPI
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("aws config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}

	f.encryptionManager = encryption.NewEncryptionManager(&f.config.KMS, kmsClient)
	f.bucketingManager = bucketing.NewBucketingManager(f.config.Bucketing.AccountBuckets)

	util.Info("Managers initialized successfully",
		util.Int("pepper_version", f.hasher.PepperVersion()),
		util.Bool("kms_client", kmsClient != nil),
		util.Int("account_buckets", f.bucketingManager.AccountBuckets()),
	)
	return nil
}

// initializeStores picks the Redis and Scylla backed stores when those
// clients are up and falls back to process memory otherwise.
func (f *Factory) initializeStores() {
	if f.scyllaClient != nil {
		f.accounts = scylla.NewAccountRepository(f.scyllaClient, f.encryptionManager, f.bucketingManager, util.Get())
	} else {
		util.Warn("ScyllaDB not configured - accounts are kept in memory")
		f.accounts = memory.NewAccountDirectory()
	}

	if f.redisClient != nil {
		f.otpStore = redisrepo.NewOTPCache(f.redisClient)
		f.attempts = redisrepo.NewAttemptCache(f.redisClient, f.config.Attempt.TTL)
		f.sessions = redisrepo.NewSessionCache(f.redisClient, f.config.Attempt.TTL)
	} else {
		util.Warn("Redis not configured - OTPs and attempts are kept in memory")
		f.otpStore = memory.NewOTPStore()
		f.attempts = memory.NewAttemptStore()
		f.sessions = memory.NewSessionStore()
	}
}

func (f *Factory) initializeGateway() error {
	switch f.config.SMS.Provider {
	case config.SMSProviderKafka:
		if f.kafkaProducer == nil {
			return errors.New("kafka sms provider selected but no kafka producer is available")
		}
		f.gateway = client.NewKafkaSMSGateway(f.kafkaProducer, f.config.Kafka.SMSTopic)
	default:
		f.gateway = client.NewQrSmsGateway(f.config.SMS.BaseURL, f.config.SMS.APIKey, f.config.SMS.Timeout, util.Get())
	}
	return nil
}

func (f *Factory) initializeEvents(ctx context.Context) {
	var sinks []service.EventSink

	if f.kafkaProducer != nil && f.config.Kafka.EventsTopic != "" {
		sinks = append(sinks, client.NewKafkaEventSink(f.kafkaProducer, f.config.Kafka.EventsTopic))
	}

	if f.clickhouseClient != nil {
		sink, err := client.NewClickHouseEventSink(f.clickhouseClient, f.config.Clickhouse.EventsTable)
		if err == nil {
			err = sink.EnsureTable(ctx)
		}
		if err != nil {
			util.Warn("ClickHouse event sink disabled", util.ErrorField(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	if f.esClient != nil {
		sinks = append(sinks, client.NewESEventSink(f.esClient, f.config.Elasticsearch.EventsIndex))
	}

	f.events = service.NewEventPublisher(util.Get(), sinks...)
	util.Info("Auth event sinks configured", util.Int("sinks", len(sinks)))
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.accounts,
			f.otpStore,
			f.hasher,
			f.attempts,
			f.sessions,
			f.gateway,
			f.events,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// FlowConfig translates configuration into the auth flow settings.
func (f *Factory) FlowConfig() (service.FlowConfig, error) {
	code, err := service.CountryCode(f.config.Phone.DefaultRegion)
	if err != nil {
		return service.FlowConfig{}, err
	}
	otp := f.config.OTP
	return service.FlowConfig{
		DefaultCountryCode: code,
		OTPTTL:             otp.TTL,
		OTPLength:          otp.Length,
		MaxMismatches:      otp.MaxAttempts,
		DispatchTimeout:    f.config.SMS.Timeout,
		MessageTemplate:    otp.MessageTemplate,
		Strategy: service.Strategy{
			AllowAutoCreate:      otp.AllowAutoCreate,
			MarkVerifiedOnCreate: otp.MarkVerifiedOnCreate,
		},
	}, nil
}

func (f *Factory) AuthFlow() (*service.AuthFlowController, error) {
	cfg, err := f.FlowConfig()
	if err != nil {
		return nil, err
	}
	return f.ServiceFactory().AuthFlow(cfg)
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	checks := map[string]healthChecker{}
	if f.redisClient != nil {
		checks["redis"] = f.redisClient
	}
	if f.scyllaClient != nil {
		checks["scylla"] = f.scyllaClient
	}
	if f.kafkaProducer != nil {
		checks["kafka"] = f.kafkaProducer
	}
	if f.esClient != nil {
		checks["elasticsearch"] = f.esClient
	}
	if f.clickhouseClient != nil {
		checks["clickhouse"] = f.clickhouseClient
	}
	if hc, ok := f.accounts.(healthChecker); ok {
		checks["accounts"] = hc
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]error, len(checks))
	)
	for name, c := range checks {
		name, c := name, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.HealthCheck(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}()
	}
	wg.Wait()

	if f.hasher == nil {
		results["hasher"] = errors.New("hasher not initialized")
	}
	if f.encryptionManager == nil {
		results["encryption"] = errors.New("encryption manager not initialized")
	}
	return results
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
			util.Info("Encryption manager cache cleared")
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}
