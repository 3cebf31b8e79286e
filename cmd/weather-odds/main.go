package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	httpapi "github.com/i474232898/weather-odds/internal/api/http"
	"github.com/i474232898/weather-odds/internal/config"
	"github.com/i474232898/weather-odds/internal/geocode"
	"github.com/i474232898/weather-odds/internal/observability"
	"github.com/i474232898/weather-odds/internal/scheduler"
	"github.com/i474232898/weather-odds/internal/store"
	"github.com/i474232898/weather-odds/internal/weather"
	"github.com/i474232898/weather-odds/internal/weather/engines"
)

// resultStore is what the service and the prune job need from a backend.
type resultStore interface {
	weather.Store
	scheduler.Pruner
}

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	conditions, err := config.LoadConditions(cfg.ThresholdsPath)
	if err != nil {
		zlog.Fatal("failed to load conditions", zap.Error(err))
	}

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	// Shared HTTP client for outbound calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	engine := buildEngine(cfg, httpClient, clock, zlog, metrics)

	results, err := buildStore(cfg, clock)
	if err != nil {
		zlog.Fatal("failed to init result store", zap.Error(err))
	}

	service := weather.NewService(
		weather.NewAssembler(engine, clock, zlog),
		conditions,
		results,
		clock,
		zlog,
		metrics,
	)

	// Scheduler that periodically prunes stored results.
	sched := scheduler.New(results, cfg.StorePruneInterval, zlog)
	if err := sched.Start(); err != nil {
		zlog.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weather-odds",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.SeriesDeadline + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	deps := httpapi.Deps{
		Service:    service,
		Conditions: conditions,
		Metrics:    promhttp.Handler(),
		Clock:      clock,
		Logger:     zlog,
	}
	if cfg.GeocoderAPIKey != "" {
		deps.Geocoder = geocode.NewGoogle(cfg.GeocoderAPIKey)
	}
	httpapi.RegisterRoutes(app, deps)

	go func() {
		zlog.Info("listening", zap.String("port", cfg.Port), zap.String("engine", engine.Name()))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zlog.Error("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error("error during shutdown", zap.Error(err))
	}
}

func buildEngine(cfg *config.AppConfig, client *http.Client, clock clockwork.Clock, zlog *zap.Logger, metrics *observability.Metrics) weather.Engine {
	httpCfg := engines.HTTPClientConfig{Client: client}
	if cfg.UpstreamRateLimit > 0 {
		httpCfg.Limiter = rate.NewLimiter(rate.Limit(cfg.UpstreamRateLimit), 1)
	}

	switch cfg.Engine {
	case config.EngineEarthdata:
		creds := engines.StaticCredentials{
			Static: engines.Credentials{
				Token:    cfg.EarthdataToken,
				Username: cfg.EarthdataUsername,
				Password: cfg.EarthdataPassword,
			},
			NetrcPath: cfg.NetrcPath,
		}
		fetchCfg := engines.DefaultFetchConfig()
		fetchCfg.AttemptTimeout = cfg.FetchAttemptTimeout
		fetchCfg.TotalDeadline = cfg.FetchTotalDeadline
		fetcher := engines.NewFetcher(engines.NewDAPClient(client, creds), fetchCfg, clock, zlog, metrics)
		return engines.NewEarthdataEngine(
			engines.NewCMRCatalog(httpCfg),
			fetcher,
			creds,
			engines.EarthdataConfig{Concurrency: cfg.FetchConcurrency, SeriesDeadline: cfg.SeriesDeadline},
			clock,
			zlog,
			metrics,
		)
	case config.EngineMeteomatics:
		return engines.NewMeteomaticsEngine(httpCfg, cfg.MeteomaticsUsername, cfg.MeteomaticsPassword, metrics)
	case config.EngineOpenMeteo:
		return engines.NewOpenMeteoEngine(httpCfg, metrics)
	default:
		return engines.NewSyntheticEngine(cfg.SyntheticSeed)
	}
}

func buildStore(cfg *config.AppConfig, clock clockwork.Clock) (resultStore, error) {
	if cfg.ResultStore == config.StoreRedis {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return store.NewRedisStore(client, cfg.ResultTTL), nil
	}
	return store.NewMemoryStore(cfg.StoreMaxEntries, cfg.ResultTTL, clock), nil
}
