// Package config loads payment-orchestrator configuration from the
// environment, following the same getEnv*/struct-per-concern layout the
// control-plane teacher service uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the payment orchestrator.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Stripe   StripeConfig
	PayPal   PayPalConfig
	Razorpay RazorpayConfig
	Exchange ExchangeConfig
	Order    OrderServiceConfig
	Timeout  TimeoutConfig
	Monitoring MonitoringConfig
}

// ServerConfig holds RPC/HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds Postgres configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// StripeConfig holds Stripe provider credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// PayPalConfig holds PayPal provider credentials.
type PayPalConfig struct {
	ClientID      string
	ClientSecret  string
	WebhookID     string
	BaseURL       string
	WebhookSecret string
}

// RazorpayConfig holds Razorpay provider credentials.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

// ExchangeConfig holds the FX-rate provider configuration.
type ExchangeConfig struct {
	BaseURL  string
	CacheTTL time.Duration
}

// OrderServiceConfig holds the Order/Course RPC client configuration.
type OrderServiceConfig struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	MaxRetries     int
}

// TimeoutConfig holds payment-timeout and sweeper tuning.
type TimeoutConfig struct {
	PaymentTTL       time.Duration
	SweepInterval    time.Duration
	SweepBatchSize   int
}

// MonitoringConfig holds observability configuration.
type MonitoringConfig struct {
	Enabled        bool
	PrometheusPort int
	MetricsPath    string
	LogLevel       string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", "30s"),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", "30s"),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", "120s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "payments"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "payments"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		PayPal: PayPalConfig{
			ClientID:      getEnv("PAYPAL_CLIENT_ID", ""),
			ClientSecret:  getEnv("PAYPAL_CLIENT_SECRET", ""),
			WebhookID:     getEnv("PAYPAL_WEBHOOK_ID", ""),
			BaseURL:       getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			WebhookSecret: getEnv("PAYPAL_WEBHOOK_SECRET", ""),
		},
		Razorpay: RazorpayConfig{
			KeyID:         getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:     getEnv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
		},
		Exchange: ExchangeConfig{
			BaseURL:  getEnv("EXCHANGE_BASE_URL", "https://api.frankfurter.app"),
			CacheTTL: getEnvAsDuration("EXCHANGE_CACHE_TTL", "60s"),
		},
		Order: OrderServiceConfig{
			BaseURL:        getEnv("ORDER_SERVICE_URL", "http://order-service.internal"),
			Token:          getEnv("ORDER_SERVICE_TOKEN", ""),
			RequestTimeout: getEnvAsDuration("ORDER_SERVICE_TIMEOUT", "10s"),
			MaxRetries:     getEnvAsInt("ORDER_SERVICE_MAX_RETRIES", 2),
		},
		Timeout: TimeoutConfig{
			PaymentTTL:     getEnvAsDuration("PAYMENT_TIMEOUT", "10m"),
			SweepInterval:  getEnvAsDuration("PAYMENT_SWEEP_INTERVAL", "1m"),
			SweepBatchSize: getEnvAsInt("PAYMENT_SWEEP_BATCH_SIZE", 50),
		},
		Monitoring: MonitoringConfig{
			Enabled:        getEnvAsBool("MONITORING_ENABLED", true),
			PrometheusPort: getEnvAsInt("PROMETHEUS_PORT", 9090),
			MetricsPath:    getEnv("METRICS_PATH", "/metrics"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Stripe.SecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if cfg.Razorpay.KeyID == "" || cfg.Razorpay.KeySecret == "" {
		return nil, fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required")
	}

	return cfg, nil
}

// Helper functions for environment variable parsing, unchanged from the
// control-plane teacher's internal/config/config.go.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ := time.ParseDuration(defaultValue)
		return duration
	}
	return value
}
