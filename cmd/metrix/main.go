package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/noah-isme/metrix/internal/config"
	"github.com/noah-isme/metrix/internal/health"
	"github.com/noah-isme/metrix/internal/obs"
	"github.com/noah-isme/metrix/internal/queue"
	"github.com/noah-isme/metrix/internal/server"
)

const metricsNamespace = "metrix"

func main() {
	cfg, err := config.Load(os.Args[1:])
	switch {
	case errors.Is(err, config.ErrVersionRequested):
		fmt.Printf("metrix %s\n", config.Version)
		return
	case errors.Is(err, pflag.ErrHelp):
		return
	case err != nil:
		fmt.Fprintf(os.Stderr, "metrix: %v\n", err)
		os.Exit(2)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "metrix").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:    "metrix",
			ServiceVersion: config.Version,
			Endpoint:       cfg.OTLPEndpoint,
			Exporter:       cfg.TracingExporter,
			SamplingRatio:  cfg.TracingSamplingRatio,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			cfg.TracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gatherer, err := queue.NewGatherer(cfg.Queues, queue.GathererOptions{
		Registerer: registry,
		Location:   cfg.Location,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise queue gauges")
	}
	pollMetrics := obs.NewPollMetrics(metricsNamespace, registry)

	redisClient := newRedisClient(cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	store := queue.NewRedisStore(redisClient)

	srv := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: server.NewRouter(server.Options{
			Gatherer:       registry,
			Registerer:     registry,
			HTTPMetrics:    obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBucketsMS), registry),
			Health:         health.Handler{Checker: store, RedisTimeout: cfg.ReadyRedisTimeout},
			Logger:         logger,
			Tracing:        cfg.TracingEnabled,
			AllowedOrigins: cfg.CORSAllowedOrigins,
			PprofEnabled:   cfg.PprofEnabled,
			PprofUser:      cfg.PprofUser,
			PprofPass:      cfg.PprofPass,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("metrics server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("metrics server exited unexpectedly")
		}
	}()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("redis_uri", redactedURI(cfg.RedisURI)).Msg("ping redis")
	}

	poller := queue.Poller{
		Gatherer: gatherer,
		Store:    store,
		Interval: cfg.RefreshInterval,
		Logger:   &logger,
		Metrics:  pollMetrics,
	}
	logger.Info().
		Strs("queues", gatherer.Queues()).
		Dur("interval", cfg.RefreshInterval).
		Msg("poller starting")
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("poller stopped with error")
	}

	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown metrics server")
	}
	logger.Info().Msg("shutdown complete")
}

func newRedisClient(cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if cfg.TracingEnabled {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	return redisClient
}
