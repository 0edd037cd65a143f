// Package app assembles the command service shared by the bridge and the
// queue worker.
package app

import (
	"context"
	"fmt"

	"github.com/dunamismax/pixelshrink/internal/commands"
	"github.com/dunamismax/pixelshrink/internal/config"
	"github.com/dunamismax/pixelshrink/internal/pipeline"
	"github.com/dunamismax/pixelshrink/internal/pool"
	"github.com/dunamismax/pixelshrink/internal/storage"
	"github.com/dunamismax/pixelshrink/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Runtime struct {
	Service *commands.Service
	closers []func() error
}

// Build wires the processor, worker pool, destinations and history store
// described by cfg. The image backend must already be started. Call Close
// when done.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*Runtime, error) {
	rt := &Runtime{}

	processor, err := pipeline.NewProcessor()
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline: %w", err)
	}

	metrics := commands.NewMetrics(reg)
	workers := pool.New(cfg.Worker.PoolSize, metrics.PoolOption())
	rt.closers = append(rt.closers, func() error {
		workers.Close()
		return nil
	})

	destinations := pipeline.Destinations{Files: pipeline.FileWriter{}}
	if cfg.Storage.Enabled() {
		client, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("initialize storage: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		destinations.Objects = pipeline.ObjectStoreWriter{Storage: client}
		logger.Info().Str("endpoint", cfg.Storage.Endpoint).Str("bucket", client.Bucket()).Msg("object storage enabled")
	}

	history, err := openHistory(ctx, cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if closer, ok := history.(interface{ Close() error }); ok {
		rt.closers = append(rt.closers, closer.Close)
	}

	svc, err := commands.NewService(commands.Options{
		Logger:    logger,
		Processor: processor,
		Pool:      workers,
		Writer:    destinations,
		History:   history,
		Metrics:   metrics,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc

	logger.Info().
		Str("backend", pipeline.Backend()).
		Int("pool_size", cfg.Worker.PoolSize).
		Msg("command service ready")
	return rt, nil
}

func openHistory(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.HistoryStore, error) {
	if cfg.Database.DSN == "" {
		return store.NewMemoryHistoryStore(cfg.History.Capacity), nil
	}

	pg, err := store.NewPostgresHistoryStore(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	logger.Info().Msg("history stored in postgres")
	return pg, nil
}

// Close releases resources in reverse order of creation.
func (r *Runtime) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}
