package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dunamismax/pixelshrink/internal/commands"
	"github.com/dunamismax/pixelshrink/internal/domain"
	"github.com/dunamismax/pixelshrink/internal/pipeline"
	"github.com/dunamismax/pixelshrink/internal/queue"
	"github.com/dunamismax/pixelshrink/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestHandleConvertImageNotifiesCompletion(t *testing.T) {
	conv := &fakeConverter{result: commands.ConvertResult{Size: "12.3 kB"}}
	hooks := &captureWebhook{}
	s := newTestServer(conv, hooks)

	task := convertTask(t, "https://hooks.example.com/done")
	require.NoError(t, s.handleConvertImage(context.Background(), task))

	require.Len(t, conv.calls, 1)
	assert.Equal(t, "/tmp/out.jpg", conv.calls[0].SavePath)

	require.Len(t, hooks.sent, 1)
	assert.Equal(t, webhook.EventConvertCompleted, hooks.sent[0].event)
	assert.Equal(t, "https://hooks.example.com/done", hooks.sent[0].endpoint)
	assert.Equal(t, "job-1", hooks.sent[0].body.JobID)
	assert.Equal(t, domain.StatusSucceeded, hooks.sent[0].body.Status)
	assert.Equal(t, "12.3 kB", hooks.sent[0].body.Size)
	assert.Empty(t, hooks.sent[0].body.Error)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.tasksTotal.WithLabelValues(domain.StatusSucceeded)))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.activeTasks))
}

func TestHandleConvertImageNotifiesFailureWithoutRetry(t *testing.T) {
	conv := &fakeConverter{err: &pipeline.DecodeError{Err: errors.New("unknown format")}}
	hooks := &captureWebhook{}
	s := newTestServer(conv, hooks)

	err := s.handleConvertImage(context.Background(), convertTask(t, "https://hooks.example.com/done"))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	require.Len(t, hooks.sent, 1)
	assert.Equal(t, webhook.EventConvertFailed, hooks.sent[0].event)
	assert.Equal(t, domain.StatusFailed, hooks.sent[0].body.Status)
	assert.Equal(t, "Failed to load image: unknown format", hooks.sent[0].body.Error)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.tasksTotal.WithLabelValues(domain.StatusFailed)))
}

func TestHandleConvertImageWithoutWebhook(t *testing.T) {
	conv := &fakeConverter{result: commands.ConvertResult{Size: "1 B"}}
	hooks := &captureWebhook{}
	s := newTestServer(conv, hooks)

	require.NoError(t, s.handleConvertImage(context.Background(), convertTask(t, "")))
	assert.Empty(t, hooks.sent)
}

func TestHandleConvertImageWebhookFailure(t *testing.T) {
	conv := &fakeConverter{result: commands.ConvertResult{Size: "1 B"}}
	hooks := &captureWebhook{err: errors.New("connection refused")}
	s := newTestServer(conv, hooks)

	err := s.handleConvertImage(context.Background(), convertTask(t, "https://hooks.example.com/done"))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.webhookFailures.WithLabelValues(webhook.EventConvertCompleted)))
}

func TestHandleConvertImageRejectsBadPayload(t *testing.T) {
	conv := &fakeConverter{}
	s := newTestServer(conv, nil)

	err := s.handleConvertImage(context.Background(), asynq.NewTask(queue.TypeConvertImage, []byte("{not json")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, conv.calls)
}

func TestNewServerRequiresConverter(t *testing.T) {
	_, err := NewServer(Options{Logger: zerolog.Nop()})
	require.Error(t, err)
}

type fakeConverter struct {
	result commands.ConvertResult
	err    error
	calls  []domain.ConvertRequest
}

func (f *fakeConverter) Convert(_ context.Context, req domain.ConvertRequest) (commands.ConvertResult, error) {
	f.calls = append(f.calls, req)
	return f.result, f.err
}

type sentWebhook struct {
	endpoint string
	event    string
	body     webhook.Notification
}

type captureWebhook struct {
	err  error
	sent []sentWebhook
}

func (c *captureWebhook) Send(_ context.Context, endpoint, event string, payload any) error {
	body, _ := payload.(webhook.Notification)
	c.sent = append(c.sent, sentWebhook{endpoint: endpoint, event: event, body: body})
	return c.err
}

func newTestServer(conv converter, hooks *captureWebhook) *Server {
	s := &Server{
		logger:   zerolog.Nop(),
		commands: conv,
		registry: prometheus.NewRegistry(),
		tracer:   otel.Tracer("test"),
		now:      time.Now,
	}
	if hooks != nil {
		s.webhooks = hooks
	}
	s.metrics = newMetrics(s.registry)
	return s
}

func convertTask(t *testing.T, webhookURL string) *asynq.Task {
	t.Helper()

	task, err := queue.NewConvertImageTask(queue.ConvertPayload{
		JobID: "job-1",
		Request: domain.ConvertRequest{
			ImageRequest: domain.ImageRequest{ImageBlob: []byte{1, 2, 3}, Width: 10, Height: 10, Quality: 80},
			SavePath:     "/tmp/out.jpg",
		},
		WebhookURL:  webhookURL,
		RequestedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return task
}
