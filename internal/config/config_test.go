package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/webclient/internal/imageopt"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api/v1", cfg.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.RefreshSkew)
	assert.Equal(t, "/auth/refresh", cfg.RefreshPath)
	assert.Equal(t, BackendFile, cfg.TokenBackend)
	assert.Equal(t, "auth_token", cfg.TokenKey)
	assert.Equal(t, "token", cfg.LegacyKey)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.True(t, cfg.BreakerEnabled)
	assert.False(t, cfg.TracingEnabled)
	assert.Zero(t, cfg.RateLimit)

	assert.Equal(t, imageopt.DefaultConfig(), cfg.ImageConfig())
}

func TestLoad_Overrides(t *testing.T) {
	setEnvs(t, map[string]string{
		"API_BASE_URL":                 "https://shop.example.com/api",
		"TOKEN_BACKEND":                "redis",
		"REDIS_HOST":                   "cache",
		"REDIS_PORT":                   "6380",
		"KAFKA_BROKERS":                "k1:9092,k2:9092",
		"REFRESH_SKEW":                 "30s",
		"RATE_LIMIT":                   "2.5",
		"IMAGE_FORMAT":                 "jpeg",
		"IMAGE_MIN_QUALITY":            "40",
		"OTEL_ENABLED":                 "true",
		"OTEL_SAMPLE_RATE":             "0.25",
		"STATE_DIR":                    "/tmp/webclient-state",
		"CIRCUIT_BREAKER_MIN_REQUESTS": "7",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com/api", cfg.APIBaseURL)
	assert.Equal(t, BackendRedis, cfg.TokenBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.RefreshSkew)
	assert.Equal(t, 2.5, cfg.RateLimit)

	redis := cfg.RedisConfig()
	assert.Equal(t, "cache:6380", redis.Addr())

	img := cfg.ImageConfig()
	assert.Equal(t, imageopt.FormatJPEG, img.Format)
	assert.Equal(t, 40, img.MinQuality)

	tr := cfg.TracingConfig()
	assert.True(t, tr.Enabled)
	assert.Equal(t, 0.25, tr.SampleRate)
	assert.Equal(t, "webclient", tr.ServiceName)

	assert.Equal(t, uint32(7), cfg.BreakerConfig().MinRequests)
	assert.Equal(t, "storefront-api", cfg.BreakerConfig().Name)

	dir, err := cfg.StatePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/webclient-state", dir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		field string
	}{
		{"base url", "API_BASE_URL", "not a url", "APIBaseURL"},
		{"backend", "TOKEN_BACKEND", "s3", "TokenBackend"},
		{"token key", "TOKEN_KEY", "../escape", "TokenKey"},
		{"quality", "IMAGE_INITIAL_QUALITY", "101", "ImageInitialQuality"},
		{"floor above initial", "IMAGE_MIN_QUALITY", "90", "ImageMinQuality"},
		{"image format", "IMAGE_FORMAT", "avif", "ImageFormat"},
		{"sample rate", "OTEL_SAMPLE_RATE", "2", "TraceSampleRate"},
		{"log level", "LOG_LEVEL", "verbose", "LogLevel"},
		{"duration", "REQUEST_TIMEOUT", "soon", "RequestTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestHTTPClientConfig(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	hc := cfg.HTTPClientConfig()
	assert.Equal(t, cfg.RequestTimeout, hc.Timeout)
	assert.Equal(t, cfg.MaxConnsPerHost, hc.MaxConnsPerHost)
}
