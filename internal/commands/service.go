package commands

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/dunamismax/pixelshrink/internal/domain"
	"github.com/dunamismax/pixelshrink/internal/id"
	"github.com/dunamismax/pixelshrink/internal/pipeline"
	"github.com/dunamismax/pixelshrink/internal/pool"
	"github.com/dunamismax/pixelshrink/internal/store"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DataURLPrefix = "data:image/jpeg;base64,"

type imageProcessor interface {
	Process(ctx context.Context, blob []byte, width, height uint32, quality uint8) (pipeline.Result, error)
}

type PreviewResult struct {
	DataURL string `json:"data_url"`
	Size    string `json:"size"`
}

type ConvertResult struct {
	Size string `json:"size"`
}

type Options struct {
	Logger    zerolog.Logger
	Processor imageProcessor
	Pool      *pool.Pool
	Writer    pipeline.Writer
	History   store.HistoryStore
	Metrics   *Metrics
}

// Service implements the preview and convert commands. Pipeline work runs on
// the worker pool; the calling goroutine only waits for its result.
type Service struct {
	logger    zerolog.Logger
	processor imageProcessor
	pool      *pool.Pool
	writer    pipeline.Writer
	history   store.HistoryStore
	metrics   *Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Processor == nil {
		return nil, errors.New("image processor is required")
	}
	if opts.Pool == nil {
		return nil, errors.New("worker pool is required")
	}

	writer := opts.Writer
	if writer == nil {
		writer = pipeline.Destinations{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Service{
		logger:    opts.Logger,
		processor: opts.Processor,
		pool:      opts.Pool,
		writer:    writer,
		history:   opts.History,
		metrics:   metrics,
		tracer:    otel.Tracer("pixelshrink/commands"),
		now:       time.Now,
	}, nil
}

func (s *Service) Preview(ctx context.Context, req domain.PreviewRequest) (PreviewResult, error) {
	ctx, span := s.startSpan(ctx, domain.CommandPreview, req.ImageRequest)
	defer span.End()
	startedAt := s.now()

	result, err := pool.Do(ctx, s.pool, func(ctx context.Context) (pipeline.Result, error) {
		return s.processor.Process(ctx, req.ImageBlob, req.Width, req.Height, req.Quality)
	})
	s.finish(ctx, span, domain.CommandPreview, req.ImageRequest, "", result, err, startedAt)
	if err != nil {
		return PreviewResult{}, err
	}

	return PreviewResult{
		DataURL: DataURLPrefix + base64.StdEncoding.EncodeToString(result.Data),
		Size:    pipeline.FormatBytes(int64(len(result.Data))),
	}, nil
}

// Convert encodes the image and writes it to req.SavePath, replacing any
// existing file. Concurrent converts to one path race.
func (s *Service) Convert(ctx context.Context, req domain.ConvertRequest) (ConvertResult, error) {
	ctx, span := s.startSpan(ctx, domain.CommandConvert, req.ImageRequest)
	span.SetAttributes(attribute.String("image.save_path", req.SavePath))
	defer span.End()
	startedAt := s.now()

	result, err := pool.Do(ctx, s.pool, func(ctx context.Context) (pipeline.Result, error) {
		out, err := s.processor.Process(ctx, req.ImageBlob, req.Width, req.Height, req.Quality)
		if err != nil {
			return pipeline.Result{}, err
		}
		if err := s.writer.Write(ctx, req.SavePath, out.Data); err != nil {
			return pipeline.Result{}, err
		}
		return out, nil
	})
	s.finish(ctx, span, domain.CommandConvert, req.ImageRequest, req.SavePath, result, err, startedAt)
	if err != nil {
		return ConvertResult{}, err
	}

	return ConvertResult{Size: pipeline.FormatBytes(int64(len(result.Data)))}, nil
}

func (s *Service) startSpan(ctx context.Context, command string, req domain.ImageRequest) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "command."+command)
	span.SetAttributes(
		attribute.String("command.name", command),
		attribute.Int("image.input_bytes", len(req.ImageBlob)),
		attribute.Int64("image.target_width", int64(req.Width)),
		attribute.Int64("image.target_height", int64(req.Height)),
		attribute.Int("image.quality", int(req.Quality)),
	)
	return ctx, span
}

func (s *Service) finish(
	ctx context.Context,
	span trace.Span,
	command string,
	req domain.ImageRequest,
	savePath string,
	result pipeline.Result,
	err error,
	startedAt time.Time,
) {
	elapsed := s.now().Sub(startedAt)
	status := statusLabel(err)

	s.metrics.commandsTotal.WithLabelValues(command, status).Inc()
	s.metrics.commandDuration.WithLabelValues(command, status).Observe(elapsed.Seconds())

	conversion := domain.Conversion{
		ID:          id.New(),
		Command:     command,
		SourceBytes: int64(len(req.ImageBlob)),
		Width:       req.Width,
		Height:      req.Height,
		Quality:     req.Quality,
		SavePath:    savePath,
		Status:      domain.StatusSucceeded,
		DurationMS:  elapsed.Milliseconds(),
		CreatedAt:   startedAt.UTC(),
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		conversion.Status = domain.StatusFailed
		conversion.Error = err.Error()
		s.logger.Warn().
			Err(err).
			Str("command", command).
			Str("status", status).
			Dur("elapsed", elapsed).
			Msg("command failed")
	} else {
		s.metrics.outputBytes.WithLabelValues(command).Add(float64(len(result.Data)))
		s.metrics.pixelsProcessed.Add(float64(result.Width * result.Height))
		span.SetStatus(codes.Ok, "processed")
		conversion.SourceFormat = result.SourceFormat
		conversion.OutputBytes = int64(len(result.Data))
		s.logger.Info().
			Str("command", command).
			Str("source_format", result.SourceFormat).
			Int("source_bytes", len(req.ImageBlob)).
			Int("output_bytes", len(result.Data)).
			Uint32("width", req.Width).
			Uint32("height", req.Height).
			Dur("elapsed", elapsed).
			Msg("command completed")
	}

	s.recordHistory(ctx, conversion)
}

func (s *Service) recordHistory(ctx context.Context, conversion domain.Conversion) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(context.WithoutCancel(ctx), conversion); err != nil {
		s.logger.Error().Err(err).Str("conversion_id", conversion.ID).Msg("history write failed")
	}
}

// History returns recent conversions, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]domain.Conversion, error) {
	if s.history == nil {
		return []domain.Conversion{}, nil
	}
	return s.history.Recent(ctx, limit)
}
