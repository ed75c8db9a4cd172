package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

// SMS provider names accepted by SMS_PROVIDER.
const (
	SMSProviderQrSms = "qrsms"
	SMSProviderKafka = "kafka"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	Hashing       HashingConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
	Phone         PhoneConfig
	OTP           OTPConfig
	SMS           SMSConfig
	Attempt       AttemptConfig
}

type ServerConfig struct {
	Port         string
	TLSPort      string
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// RedisConfig is optional outside production; an empty URL selects the
// in-memory stores.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// ScyllaConfig is optional outside production; no nodes selects the
// in-memory account directory.
type ScyllaConfig struct {
	Nodes       []string
	Keyspace    string
	Username    string
	Password    string
	TLSCAFile   string
	TLSCertFile string
	TLSKeyFile  string
}

type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
	SMSTopic    string
}

type ElasticsearchConfig struct {
	URL         string
	Username    string
	Password    string
	EventsIndex string
}

type ClickhouseConfig struct {
	URL         string
	Username    string
	Password    string
	Database    string
	EventsTable string
	CAFile      string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
	// Pepper is the active pepper; PepperVersion tags hashes made with it.
	Pepper        string
	PepperVersion int
	// PreviousPeppers holds "version:value" pairs still accepted on verify.
	PreviousPeppers []string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	AccountBuckets int
}

type PhoneConfig struct {
	// DefaultRegion is an ISO 3166-1 region whose calling code is applied to
	// national-format input.
	DefaultRegion string
}

type OTPConfig struct {
	TTL                  time.Duration
	Length               int
	MaxAttempts          int
	AllowAutoCreate      bool
	MarkVerifiedOnCreate bool
	MessageTemplate      string
}

type SMSConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

type AttemptConfig struct {
	TTL time.Duration
}

var (
	globalConfig *Config
	mu           sync.RWMutex
)

// LoadConfig reads an optional .env file, then the process environment, and
// validates the result.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			TLSPort:      getEnv("TLS_PORT", "8443"),
			EnableTLS:    getEnvBool("ENABLE_TLS", false),
			AutoCert:     getEnvBool("AUTO_CERT", false),
			Domain:       getEnv("DOMAIN", ""),
			CertFile:     getEnv("TLS_CERT_FILE", ""),
			KeyFile:      getEnv("TLS_KEY_FILE", ""),
			AutoCertDir:  getEnv("AUTO_CERT_DIR", "./certs"),
			Email:        getEnv("ACME_EMAIL", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			CORSOrigins:  getEnvSlice("CORS_ORIGINS", []string{"*"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:       getEnvSlice("SCYLLA_NODES", nil),
			Keyspace:    getEnv("SCYLLA_KEYSPACE", "phone_auth"),
			Username:    getEnv("SCYLLA_USERNAME", ""),
			Password:    getEnv("SCYLLA_PASSWORD", ""),
			TLSCAFile:   getEnv("SCYLLA_TLS_CA_FILE", ""),
			TLSCertFile: getEnv("SCYLLA_TLS_CERT_FILE", ""),
			TLSKeyFile:  getEnv("SCYLLA_TLS_KEY_FILE", ""),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvSlice("KAFKA_BROKERS", nil),
			EventsTopic: getEnv("KAFKA_EVENTS_TOPIC", "auth-events"),
			SMSTopic:    getEnv("KAFKA_SMS_TOPIC", "sms-outbound"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:         getEnv("ELASTICSEARCH_URL", ""),
			Username:    getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:    getEnv("ELASTICSEARCH_PASSWORD", ""),
			EventsIndex: getEnv("ELASTICSEARCH_EVENTS_INDEX", "auth-events"),
		},
		Clickhouse: ClickhouseConfig{
			URL:         getEnv("CLICKHOUSE_URL", ""),
			Username:    getEnv("CLICKHOUSE_USERNAME", "default"),
			Password:    getEnv("CLICKHOUSE_PASSWORD", ""),
			Database:    getEnv("CLICKHOUSE_DATABASE", "default"),
			EventsTable: getEnv("CLICKHOUSE_EVENTS_TABLE", "auth_events"),
			CAFile:      getEnv("CLICKHOUSE_CA_FILE", ""),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 64*1024),
			Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 1),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
			Pepper:            getEnv("OTP_PEPPER", ""),
			PepperVersion:     getEnvInt("OTP_PEPPER_VERSION", 1),
			PreviousPeppers:   getEnvSlice("OTP_PREVIOUS_PEPPERS", nil),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("AWS_REGION", "us-east-1"),
		},
		Bucketing: BucketingConfig{
			AccountBuckets: getEnvInt("ACCOUNT_BUCKETS", 1024),
		},
		Phone: PhoneConfig{
			DefaultRegion: strings.ToUpper(getEnv("DEFAULT_REGION", "US")),
		},
		OTP: OTPConfig{
			TTL:                  getEnvDuration("OTP_TTL", 5*time.Minute),
			Length:               getEnvInt("OTP_LENGTH", 6),
			MaxAttempts:          getEnvInt("OTP_MAX_ATTEMPTS", 3),
			AllowAutoCreate:      getEnvBool("OTP_ALLOW_AUTO_CREATE", true),
			MarkVerifiedOnCreate: getEnvBool("OTP_MARK_VERIFIED_ON_CREATE", false),
			MessageTemplate:      getEnv("OTP_MESSAGE_TEMPLATE", "Your verification code is %s"),
		},
		SMS: SMSConfig{
			Provider: strings.ToLower(getEnv("SMS_PROVIDER", SMSProviderQrSms)),
			BaseURL:  getEnv("SMS_BASE_URL", "http://localhost"),
			APIKey:   getEnv("SMS_API_KEY", ""),
			Timeout:  getEnvDuration("SMS_TIMEOUT", 10*time.Second),
		},
		Attempt: AttemptConfig{
			TTL: getEnvDuration("ATTEMPT_TTL", 15*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	globalConfig = cfg
	mu.Unlock()

	return cfg, nil
}

// Get returns the most recently loaded configuration.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.OTP.TTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		errs = append(errs, fmt.Errorf("OTP_LENGTH must be between 4 and 10, got %d", c.OTP.Length))
	}
	if c.OTP.MaxAttempts < 1 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be at least 1"))
	}
	if !strings.Contains(c.OTP.MessageTemplate, "%s") {
		errs = append(errs, errors.New("OTP_MESSAGE_TEMPLATE must contain %s"))
	}
	if c.SMS.Timeout <= 0 {
		errs = append(errs, errors.New("SMS_TIMEOUT must be positive"))
	} else if c.OTP.TTL > 0 && c.SMS.Timeout >= c.OTP.TTL {
		errs = append(errs, errors.New("SMS_TIMEOUT must be shorter than OTP_TTL"))
	}
	switch c.SMS.Provider {
	case SMSProviderQrSms:
		if c.SMS.BaseURL == "" {
			errs = append(errs, errors.New("SMS_BASE_URL is required for the qrsms provider"))
		}
	case SMSProviderKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka SMS provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SMS_PROVIDER %q", c.SMS.Provider))
	}
	if _, err := language.ParseRegion(c.Phone.DefaultRegion); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_REGION %q: %w", c.Phone.DefaultRegion, err))
	}
	if c.Attempt.TTL < c.OTP.TTL {
		errs = append(errs, errors.New("ATTEMPT_TTL must not be shorter than OTP_TTL"))
	}
	if c.Bucketing.AccountBuckets < 1 {
		errs = append(errs, errors.New("ACCOUNT_BUCKETS must be at least 1"))
	}
	if c.Hashing.PepperVersion < 1 {
		errs = append(errs, errors.New("OTP_PEPPER_VERSION must be at least 1"))
	}
	if c.IsProduction() {
		if c.Hashing.Pepper == "" {
			errs = append(errs, errors.New("OTP_PEPPER is required in production"))
		}
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required in production"))
		}
		if len(c.Scylla.Nodes) == 0 {
			errs = append(errs, errors.New("SCYLLA_NODES is required in production"))
		}
		if c.KMS.Enabled && c.KMS.KeyID == "" {
			errs = append(errs, errors.New("KMS_KEY_ID is required when KMS is enabled"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return ":" + c.Server.Port
}

func (c *Config) GetTLSAddress() string {
	return ":" + c.Server.TLSPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
