package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelshrink/internal/app"
	"github.com/dunamismax/pixelshrink/internal/config"
	"github.com/dunamismax/pixelshrink/internal/logging"
	"github.com/dunamismax/pixelshrink/internal/pipeline"
	"github.com/dunamismax/pixelshrink/internal/telemetry"
	"github.com/dunamismax/pixelshrink/internal/webhook"
	"github.com/dunamismax/pixelshrink/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(os.Stderr, "info", "console", "worker")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName + "-worker",
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

	srv, err := worker.NewServer(worker.Options{
		Logger:   logger,
		Queue:    cfg.Queue,
		Worker:   cfg.Worker,
		Commands: rt.Service,
		Webhooks: webhook.NewClient(webhook.Config{
			SigningSecret: cfg.Webhook.SigningSecret,
			Timeout:       cfg.Webhook.Timeout,
			MaxAttempts:   cfg.Webhook.MaxAttempts,
			MaxBackoff:    30 * time.Second,
		}),
		Registry: registry,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialize worker")
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Worker.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Int("pool_size", cfg.Worker.PoolSize).
		Str("queue", cfg.Queue.Name).
		Str("redis", cfg.Queue.RedisAddr).
		Msg("starting worker")

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("worker failed to start")
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics shutdown failed")
	}
}
