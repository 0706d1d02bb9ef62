package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/utafrali/EcommerceGo/webclient/internal/imageopt"
	pkgconfig "github.com/utafrali/EcommerceGo/webclient/pkg/config"
	"github.com/utafrali/EcommerceGo/webclient/pkg/database"
	"github.com/utafrali/EcommerceGo/webclient/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/webclient/pkg/tracing"
)

// Token persistence backends for the durable and legacy scopes.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all configuration for the web client.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn warning error"`

	// Storefront API
	APIBaseURL      string        `env:"API_BASE_URL" envDefault:"http://localhost:8080/api/v1" validate:"required,url"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	MaxConnsPerHost int           `env:"MAX_CONNS_PER_HOST" envDefault:"10" validate:"gte=1"`
	RateLimit       float64       `env:"RATE_LIMIT" envDefault:"0" validate:"gte=0"`
	RateBurst       int           `env:"RATE_BURST" envDefault:"10" validate:"gte=0"`
	HealthPath      string        `env:"API_HEALTH_PATH" envDefault:"/health/ready" validate:"required,startswith=/"`

	// Token refresh
	RefreshPath    string        `env:"REFRESH_PATH" envDefault:"/auth/refresh" validate:"required"`
	RefreshTimeout time.Duration `env:"REFRESH_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	RefreshSkew    time.Duration `env:"REFRESH_SKEW" envDefault:"2m" validate:"gte=0"`

	// Token persistence
	TokenBackend string        `env:"TOKEN_BACKEND" envDefault:"file" validate:"oneof=file redis memory"`
	StateDir     string        `env:"STATE_DIR"`
	TokenKey     string        `env:"TOKEN_KEY" envDefault:"auth_token" validate:"required,safeid"`
	LegacyKey    string        `env:"LEGACY_TOKEN_KEY" envDefault:"token" validate:"omitempty,safeid"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" envDefault:"720h" validate:"gte=0"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379" validate:"gte=1,lte=65535"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0" validate:"gte=0"`

	RedisSlowThreshold time.Duration `env:"REDIS_SLOW_THRESHOLD" envDefault:"100ms" validate:"gte=0"`

	// Kafka. Session audit events are disabled without brokers.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Circuit breaker
	BreakerEnabled      bool          `env:"CIRCUIT_BREAKER_ENABLED" envDefault:"true"`
	BreakerTimeout      time.Duration `env:"CIRCUIT_BREAKER_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	BreakerFailureRatio float64       `env:"CIRCUIT_BREAKER_FAILURE_RATIO" envDefault:"0.5" validate:"gt=0,lte=1"`
	BreakerMinRequests  uint32        `env:"CIRCUIT_BREAKER_MIN_REQUESTS" envDefault:"5" validate:"gte=1"`

	// Tracing
	TracingEnabled  bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TraceSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0" validate:"gte=0,lte=1"`

	// Image preprocessing
	ImageMaxDimension      int     `env:"IMAGE_MAX_DIMENSION" envDefault:"1920" validate:"gte=1"`
	ImageMinBytes          int     `env:"IMAGE_MIN_BYTES" envDefault:"262144" validate:"gte=0"`
	ImageTargetBytes       int     `env:"IMAGE_TARGET_BYTES" envDefault:"1048576" validate:"gte=1"`
	ImageInitialQuality    int     `env:"IMAGE_INITIAL_QUALITY" envDefault:"82" validate:"gte=1,lte=100"`
	ImageQualityStep       int     `env:"IMAGE_QUALITY_STEP" envDefault:"8" validate:"gte=1"`
	ImageMinQuality        int     `env:"IMAGE_MIN_QUALITY" envDefault:"50" validate:"gte=1,ltefield=ImageInitialQuality"`
	ImageMinSavingsPercent float64 `env:"IMAGE_MIN_SAVINGS_PERCENT" envDefault:"3" validate:"gte=0,lt=100"`
	ImageFormat            string  `env:"IMAGE_FORMAT" envDefault:"webp" validate:"oneof=webp jpeg"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load webclient config: %w", err)
	}
	return cfg, nil
}

// StatePath returns the directory holding file-backed tokens, defaulting to
// the user config directory.
func (c *Config) StatePath() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(dir, "webclient"), nil
}

// HTTPClientConfig returns the shared HTTP client settings.
func (c *Config) HTTPClientConfig() httpclient.Config {
	return httpclient.Config{
		Timeout:         c.RequestTimeout,
		MaxConnsPerHost: c.MaxConnsPerHost,
	}
}

// BreakerConfig returns the circuit breaker settings for the API client.
func (c *Config) BreakerConfig() httpclient.CircuitBreakerConfig {
	cfg := httpclient.DefaultCircuitBreakerConfig("storefront-api")
	cfg.Timeout = c.BreakerTimeout
	cfg.FailureRatio = c.BreakerFailureRatio
	cfg.MinRequests = c.BreakerMinRequests
	return cfg
}

// RedisConfig returns the Redis connection settings.
func (c *Config) RedisConfig() database.RedisConfig {
	cfg := database.DefaultRedisConfig()
	cfg.Host = c.RedisHost
	cfg.Port = c.RedisPort
	cfg.Password = c.RedisPassword
	cfg.DB = c.RedisDB
	cfg.SlowCommandThreshold = c.RedisSlowThreshold
	return cfg
}

// TracingConfig returns the OpenTelemetry settings.
func (c *Config) TracingConfig() tracing.Config {
	cfg := tracing.DefaultConfig("webclient")
	cfg.Environment = c.Environment
	cfg.Enabled = c.TracingEnabled
	cfg.OTLPEndpoint = c.OTLPEndpoint
	cfg.SampleRate = c.TraceSampleRate
	return cfg
}

// ImageConfig returns the image optimizer parameters.
func (c *Config) ImageConfig() imageopt.Config {
	return imageopt.Config{
		MaxDimension:      c.ImageMaxDimension,
		MinBytes:          c.ImageMinBytes,
		TargetBytes:       c.ImageTargetBytes,
		InitialQuality:    c.ImageInitialQuality,
		QualityStep:       c.ImageQualityStep,
		MinQuality:        c.ImageMinQuality,
		MinSavingsPercent: c.ImageMinSavingsPercent,
		Format:            c.ImageFormat,
	}
}
