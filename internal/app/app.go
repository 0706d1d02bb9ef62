package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/EcommerceGo/webclient/internal/auth"
	"github.com/utafrali/EcommerceGo/webclient/internal/config"
	"github.com/utafrali/EcommerceGo/webclient/internal/imageopt"
	"github.com/utafrali/EcommerceGo/webclient/internal/media"
	"github.com/utafrali/EcommerceGo/webclient/internal/session"
	"github.com/utafrali/EcommerceGo/webclient/internal/transport"
	"github.com/utafrali/EcommerceGo/webclient/pkg/database"
	"github.com/utafrali/EcommerceGo/webclient/pkg/health"
	"github.com/utafrali/EcommerceGo/webclient/pkg/httpclient"
	pkgkafka "github.com/utafrali/EcommerceGo/webclient/pkg/kafka"
	"github.com/utafrali/EcommerceGo/webclient/pkg/tracing"
)

// App wires together all dependencies of the web client.
type App struct {
	Store      *auth.TokenStore
	Dispatcher *transport.Dispatcher
	Bus        *session.Bus
	Shell      *session.Shell
	Optimizer  *imageopt.Optimizer
	Media      *media.Client
	Health     *health.Handler

	cfg            *config.Config
	logger         *slog.Logger
	redis          *redis.Client
	producer       *pkgkafka.Producer
	notifier       *session.KafkaNotifier
	shutdownTracer func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger, Health: health.NewHandler()}

	shutdown, err := tracing.InitTracer(ctx, cfg.TracingConfig())
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracer = shutdown

	scopes, err := a.scopes(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Store = auth.NewTokenStore(scopes, logger)

	// One cookie jar behind one breaker: the refresh call must carry the
	// cookie set by login.
	var client httpclient.Doer = httpclient.New(cfg.HTTPClientConfig())
	if cfg.BreakerEnabled {
		client = httpclient.NewCircuitBreakerClient(client, cfg.BreakerConfig(), logger)
	}

	a.Health.Register("api", health.HTTPChecker(client, strings.TrimRight(cfg.APIBaseURL, "/")+cfg.HealthPath))

	refresher := auth.NewRefresher(client, a.Store, auth.RefresherConfig{
		BaseURL: cfg.APIBaseURL,
		Path:    cfg.RefreshPath,
		Timeout: cfg.RefreshTimeout,
	}, logger)

	a.Bus = session.NewBus()
	a.Dispatcher = transport.New(transport.Config{
		BaseURL:   cfg.APIBaseURL,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.RateBurst,
	}, transport.Deps{
		Store:     a.Store,
		Inspector: auth.NewInspector(cfg.RefreshSkew),
		Refresher: refresher,
		Notifier:  a.Bus,
		Client:    client,
	}, logger)

	a.Shell = session.NewShell(a.Dispatcher, a.Store, logger)
	a.Bus.Subscribe(a.Shell.HandleUnauthorized)

	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.notifier = session.NewKafkaNotifier(a.producer, logger)
		a.Bus.Subscribe(a.notifier.Notify)
		a.Health.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	a.Optimizer, err = imageopt.New(cfg.ImageConfig(), logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init image optimizer: %w", err)
	}
	a.Media = media.NewClient(a.Dispatcher, a.Optimizer, logger)

	return a, nil
}

// scopes builds the token persistence scopes for the configured backend.
// The ephemeral scope lives in the temp directory so it does not outlive the
// machine session.
func (a *App) scopes(ctx context.Context) (auth.Scopes, error) {
	cfg := a.cfg
	ephemeralDir := filepath.Join(os.TempDir(), "webclient-"+strconv.Itoa(os.Getuid()))

	switch cfg.TokenBackend {
	case config.BackendMemory:
		return auth.Scopes{
			Durable:   auth.NewMemoryScope(auth.ScopeDurable),
			Ephemeral: auth.NewMemoryScope(auth.ScopeEphemeral),
		}, nil

	case config.BackendRedis:
		client, err := database.NewRedisClient(ctx, cfg.RedisConfig(), a.logger)
		if err != nil {
			return auth.Scopes{}, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		if err := database.RegisterPoolMetrics(client, "webclient"); err != nil {
			a.logger.Warn("redis pool metrics not registered", slog.String("error", err.Error()))
		}
		a.Health.Register("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		a.logger.Info("connected to Redis", slog.String("addr", cfg.RedisConfig().Addr()))

		scopes := auth.Scopes{
			Durable:   auth.NewRedisScope(auth.ScopeDurable, client, cfg.TokenKey, cfg.TokenTTL),
			Ephemeral: auth.NewFileScope(auth.ScopeEphemeral, ephemeralDir, cfg.TokenKey),
		}
		if cfg.LegacyKey != "" {
			scopes.Legacy = auth.ReadOnly(auth.NewRedisScope(auth.ScopeLegacy, client, cfg.LegacyKey, 0))
		}
		return scopes, nil

	default:
		dir, err := cfg.StatePath()
		if err != nil {
			return auth.Scopes{}, err
		}
		scopes := auth.Scopes{
			Durable:   auth.NewFileScope(auth.ScopeDurable, dir, cfg.TokenKey),
			Ephemeral: auth.NewFileScope(auth.ScopeEphemeral, ephemeralDir, cfg.TokenKey),
		}
		if cfg.LegacyKey != "" {
			scopes.Legacy = auth.ReadOnly(auth.NewFileScope(auth.ScopeLegacy, dir, cfg.LegacyKey))
		}
		return scopes, nil
	}
}

// Close flushes pending audit events and releases every connection.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.notifier != nil {
		a.notifier.Wait()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}
