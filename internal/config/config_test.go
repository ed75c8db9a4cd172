package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SMS_PROVIDER", "")
	t.Setenv("OTP_TTL", "")
	t.Setenv("SMS_TIMEOUT", "")
	t.Setenv("DEFAULT_REGION", "gb")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.OTP.TTL != 5*time.Minute {
		t.Errorf("OTP.TTL = %v, want 5m", cfg.OTP.TTL)
	}
	if cfg.Phone.DefaultRegion != "GB" {
		t.Errorf("DefaultRegion = %q, want GB", cfg.Phone.DefaultRegion)
	}
	if cfg.SMS.Provider != SMSProviderQrSms {
		t.Errorf("SMS.Provider = %q, want %q", cfg.SMS.Provider, SMSProviderQrSms)
	}
	if !cfg.OTP.AllowAutoCreate || cfg.OTP.MarkVerifiedOnCreate {
		t.Errorf("strategy = %+v, want auto-create without verify-on-create", cfg.OTP)
	}
	if Get() != cfg {
		t.Error("Get did not return the loaded config")
	}
}

func TestLoadConfigReadsLists(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	t.Setenv("SMS_PROVIDER", "KAFKA")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Brokers = %q", cfg.Kafka.Brokers)
	}
	if cfg.SMS.Provider != SMSProviderKafka {
		t.Errorf("Provider = %q, want kafka", cfg.SMS.Provider)
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Bucketing:   BucketingConfig{AccountBuckets: 16},
		Hashing:     HashingConfig{PepperVersion: 1},
		Phone:       PhoneConfig{DefaultRegion: "US"},
		OTP: OTPConfig{
			TTL:             5 * time.Minute,
			Length:          6,
			MaxAttempts:     3,
			MessageTemplate: "code %s",
		},
		SMS:     SMSConfig{Provider: SMSProviderQrSms, BaseURL: "http://sms.local", Timeout: 10 * time.Second},
		Attempt: AttemptConfig{TTL: 15 * time.Minute},
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"sms timeout not shorter than ttl", func(c *Config) { c.SMS.Timeout = c.OTP.TTL }, "SMS_TIMEOUT"},
		{"zero ttl", func(c *Config) { c.OTP.TTL = 0 }, "OTP_TTL"},
		{"short code", func(c *Config) { c.OTP.Length = 3 }, "OTP_LENGTH"},
		{"no attempts", func(c *Config) { c.OTP.MaxAttempts = 0 }, "OTP_MAX_ATTEMPTS"},
		{"template without code", func(c *Config) { c.OTP.MessageTemplate = "hello" }, "OTP_MESSAGE_TEMPLATE"},
		{"unknown provider", func(c *Config) { c.SMS.Provider = "carrier-pigeon" }, "SMS_PROVIDER"},
		{"kafka without brokers", func(c *Config) { c.SMS.Provider = SMSProviderKafka }, "KAFKA_BROKERS"},
		{"bad region", func(c *Config) { c.Phone.DefaultRegion = "ZZZZ" }, "DEFAULT_REGION"},
		{"attempt outlives otp", func(c *Config) { c.Attempt.TTL = time.Minute }, "ATTEMPT_TTL"},
		{"production without pepper", func(c *Config) { c.Environment = "production" }, "OTP_PEPPER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}
