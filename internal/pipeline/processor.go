package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result is the JPEG produced by one pipeline call.
type Result struct {
	Data         []byte
	SourceFormat string
	SourceBytes  int
	Width        int
	Height       int
}

type Processor struct {
	transformer Transformer
	tracer      trace.Tracer
}

func NewProcessor() (*Processor, error) {
	transformer, err := newTransformer()
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}
	return NewProcessorWithTransformer(transformer), nil
}

func NewProcessorWithTransformer(transformer Transformer) *Processor {
	return &Processor{
		transformer: transformer,
		tracer:      otel.Tracer("pixelshrink/pipeline"),
	}
}

// Process decodes blob, resamples it to exactly width x height and encodes
// it as JPEG at quality. Quality is handed to the encoder unchecked.
// The call always runs to completion; ctx only carries trace context.
func (p *Processor) Process(ctx context.Context, blob []byte, width, height uint32, quality uint8) (Result, error) {
	_, span := p.tracer.Start(ctx, "pipeline.process")
	span.SetAttributes(
		attribute.Int("image.input_bytes", len(blob)),
		attribute.Int64("image.target_width", int64(width)),
		attribute.Int64("image.target_height", int64(height)),
		attribute.Int("image.quality", int(quality)),
	)
	defer span.End()

	if width == 0 || height == 0 {
		span.SetStatus(codes.Error, "invalid dimensions")
		return Result{}, ErrInvalidDimensions
	}

	result, err := p.transformer.Transform(ctx, blob, int(width), int(height), int(quality))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")
		return Result{}, err
	}

	span.SetAttributes(
		attribute.String("image.source_format", result.SourceFormat),
		attribute.Int("image.output_bytes", len(result.Data)),
	)
	return result, nil
}
