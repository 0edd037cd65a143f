package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/pixelshrink/internal/commands"
	"github.com/dunamismax/pixelshrink/internal/config"
	"github.com/dunamismax/pixelshrink/internal/domain"
	"github.com/dunamismax/pixelshrink/internal/pipeline"
	"github.com/dunamismax/pixelshrink/internal/queue"
	"github.com/dunamismax/pixelshrink/internal/telemetry"
	"github.com/dunamismax/pixelshrink/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type converter interface {
	Convert(ctx context.Context, req domain.ConvertRequest) (commands.ConvertResult, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Options struct {
	Logger   zerolog.Logger
	Queue    config.QueueConfig
	Worker   config.WorkerConfig
	Commands converter
	Webhooks webhookSender
	Registry *prometheus.Registry
}

// Server consumes queued convert calls and reports each outcome to the
// caller's webhook.
type Server struct {
	logger   zerolog.Logger
	server   *asynq.Server
	commands converter
	webhooks webhookSender
	registry *prometheus.Registry
	metrics  *metrics
	tracer   trace.Tracer
	now      func() time.Time
}

func NewServer(opts Options) (*Server, error) {
	if opts.Commands == nil {
		return nil, errors.New("convert service is required")
	}

	registry := opts.Registry
	if registry == nil {
		registry = telemetry.NewRegistry()
	}

	s := &Server{
		logger:   opts.Logger,
		commands: opts.Commands,
		webhooks: opts.Webhooks,
		registry: registry,
		metrics:  newMetrics(registry),
		tracer:   otel.Tracer("pixelshrink/worker"),
		now:      time.Now,
	}

	logger := opts.Logger
	s.server = asynq.NewServer(
		opts.Queue.RedisClientOpt(),
		asynq.Config{
			Concurrency: max(1, opts.Worker.Concurrency),
			Queues: map[string]int{
				opts.Queue.Name: 1,
			},
			Logger:   asynqLogger{logger: logger},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn().
					Err(err).
					Str("task_type", task.Type()).
					Int("retry", retried).
					Int("max_retry", maxRetry).
					Msg("task failed")
			}),
		},
	)
	return s, nil
}

// Start begins consuming tasks without blocking.
func (s *Server) Start() error {
	return s.server.Start(s.mux())
}

// Shutdown stops fetching tasks and waits for active ones to finish.
func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return telemetry.MetricsHandler(s.registry)
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeConvertImage, s.handleConvertImage)
	return mux
}

func (s *Server) handleConvertImage(ctx context.Context, task *asynq.Task) error {
	startedAt := s.now()
	outcome := domain.StatusFailed

	payload, err := queue.ParseConvertPayload(task)
	if err != nil {
		s.metrics.tasksTotal.WithLabelValues("invalid_payload").Inc()
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.convert_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("image.save_path", payload.Request.SavePath),
		attribute.Int("image.input_bytes", len(payload.Request.ImageBlob)),
	)
	defer span.End()
	defer func() {
		s.metrics.taskDuration.WithLabelValues(outcome).Observe(s.now().Sub(startedAt).Seconds())
		s.metrics.tasksTotal.WithLabelValues(outcome).Inc()
	}()

	s.metrics.activeTasks.Inc()
	defer s.metrics.activeTasks.Dec()

	s.logger.Info().
		Str("job_id", payload.JobID).
		Str("save_path", payload.Request.SavePath).
		Dur("queued_for", startedAt.Sub(payload.RequestedAt)).
		Msg("converting")

	notification := webhook.Notification{
		JobID:       payload.JobID,
		SavePath:    payload.Request.SavePath,
		RequestedAt: payload.RequestedAt,
	}

	result, err := s.commands.Convert(ctx, payload.Request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "convert failed")
		notification.Status = domain.StatusFailed
		notification.Error = err.Error()
		notification.FinishedAt = s.now().UTC()
		if hookErr := s.notify(ctx, payload, webhook.EventConvertFailed, notification); hookErr != nil {
			span.RecordError(hookErr)
		}
		if pipeline.IsUserFacing(err) {
			return fmt.Errorf("convert: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("convert: %w", err)
	}

	outcome = domain.StatusSucceeded
	notification.Status = domain.StatusSucceeded
	notification.Size = result.Size
	notification.FinishedAt = s.now().UTC()
	s.logger.Info().Str("job_id", payload.JobID).Str("size", result.Size).Msg("converted")

	if err := s.notify(ctx, payload, webhook.EventConvertCompleted, notification); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		// The output is already written.
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	span.SetStatus(codes.Ok, "converted")
	return nil
}

func (s *Server) notify(ctx context.Context, payload queue.ConvertPayload, event string, body webhook.Notification) error {
	if payload.WebhookURL == "" || s.webhooks == nil {
		return nil
	}

	if err := s.webhooks.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.metrics.webhookFailures.WithLabelValues(event).Inc()
		s.logger.Error().Err(err).Str("job_id", payload.JobID).Str("event", event).Msg("webhook delivery failed")
		return fmt.Errorf("dispatch webhook: %w", err)
	}
	return nil
}
