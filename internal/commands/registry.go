package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dunamismax/pixelshrink/internal/domain"
	"github.com/dunamismax/pixelshrink/internal/id"
	"github.com/dunamismax/pixelshrink/internal/queue"
	"github.com/hibiken/asynq"
)

var ErrUnknownCommand = errors.New("unknown command")

// ParamsError reports named parameters that could not be decoded or validated.
type ParamsError struct {
	Err error
}

func (e *ParamsError) Error() string {
	return "invalid parameters: " + e.Err.Error()
}

func (e *ParamsError) Unwrap() error {
	return e.Err
}

// Handler decodes a command's named parameters and runs it.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

type Enqueuer interface {
	EnqueueConvert(ctx context.Context, payload queue.ConvertPayload) (*asynq.TaskInfo, error)
}

type EnqueueResult struct {
	JobID  string `json:"job_id"`
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// NewDefaultRegistry exposes preview and convert, plus enqueue_convert when
// an enqueuer is available.
func NewDefaultRegistry(svc *Service, enqueuer Enqueuer) *Registry {
	r := NewRegistry()
	r.Register(domain.CommandPreview, func(ctx context.Context, params json.RawMessage) (any, error) {
		var req domain.PreviewRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return svc.Preview(ctx, req)
	})
	r.Register(domain.CommandConvert, func(ctx context.Context, params json.RawMessage) (any, error) {
		var req domain.ConvertRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return svc.Convert(ctx, req)
	})
	if enqueuer != nil {
		r.Register(domain.CommandEnqueueConvert, enqueueHandler(enqueuer))
	}
	return r
}

func enqueueHandler(enqueuer Enqueuer) Handler {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		var req domain.EnqueueConvertRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}

		payload := queue.ConvertPayload{
			JobID:       id.New(),
			Request:     req.ConvertRequest,
			WebhookURL:  req.WebhookURL,
			RequestedAt: time.Now().UTC(),
		}
		info, err := enqueuer.EnqueueConvert(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("enqueue convert: %w", err)
		}
		return EnqueueResult{JobID: payload.JobID, TaskID: info.ID, Queue: info.Queue}, nil
	}
}

func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Invoke(ctx context.Context, name string, params json.RawMessage) (any, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return h(ctx, params)
}

type validator interface {
	Validate() error
}

// decodeParams decodes the named parameters strictly and validates them.
func decodeParams(params json.RawMessage, into validator) error {
	if len(bytes.TrimSpace(params)) == 0 {
		return &ParamsError{Err: errors.New("parameters are required")}
	}

	decoder := json.NewDecoder(bytes.NewReader(params))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return &ParamsError{Err: err}
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return &ParamsError{Err: errors.New("multiple JSON values are not allowed")}
	}

	if err := into.Validate(); err != nil {
		return &ParamsError{Err: err}
	}
	return nil
}
