package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelshrink/internal/api"
	"github.com/dunamismax/pixelshrink/internal/app"
	"github.com/dunamismax/pixelshrink/internal/commands"
	"github.com/dunamismax/pixelshrink/internal/config"
	"github.com/dunamismax/pixelshrink/internal/logging"
	"github.com/dunamismax/pixelshrink/internal/pipeline"
	"github.com/dunamismax/pixelshrink/internal/queue"
	"github.com/dunamismax/pixelshrink/internal/ratelimit"
	"github.com/dunamismax/pixelshrink/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(os.Stderr, "info", "console", "api")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format, "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName + "-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.Fatal().Err(err).Str("backend", pipeline.Backend()).Msg("image backend startup failed")
	}
	defer pipeline.Shutdown()

	registry := telemetry.NewRegistry()
	rt, err := app.Build(ctx, cfg, logger, registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialize command service")
	}
	defer rt.Close()

	var (
		enqueuer commands.Enqueuer
		limiter  api.RateLimiter
	)
	if cfg.Queue.Enabled {
		queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn().Err(err).Msg("queue client close failed")
			}
		}()
		enqueuer = queueClient

		if cfg.RateLimit.Capacity > 0 {
			redisClient := redis.NewClient(cfg.Queue.RedisOptions())
			defer redisClient.Close()
			bucket, err := ratelimit.NewRedisTokenBucket(redisClient, ratelimit.Config{
				Capacity: cfg.RateLimit.Capacity,
				Window:   cfg.RateLimit.Window,
			})
			if err != nil {
				logger.Fatal().Err(err).Msg("rate limiter setup failed")
			}
			limiter = bucket
		}
		logger.Info().Str("queue", cfg.Queue.Name).Str("redis", cfg.Queue.RedisAddr).Msg("queued conversions enabled")
	}

	server := api.NewServer(api.Options{
		Logger:      logger,
		Commands:    commands.NewDefaultRegistry(rt.Service, enqueuer),
		History:     rt.Service,
		RateLimiter: limiter,
		Registry:    registry,
		Tracer:      otel.Tracer("pixelshrink/api"),
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
