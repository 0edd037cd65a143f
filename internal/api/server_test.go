package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dunamismax/pixelshrink/internal/commands"
	"github.com/dunamismax/pixelshrink/internal/pipeline"
	"github.com/dunamismax/pixelshrink/internal/pool"
	"github.com/dunamismax/pixelshrink/internal/ratelimit"
	"github.com/dunamismax/pixelshrink/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewCommand(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := post(t, srv, "/v1/commands/preview", map[string]any{
		"image_blob": buildTestPNG(t, 80, 60),
		"width":      40,
		"height":     30,
		"quality":    80,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body commands.PreviewResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body.DataURL, "data:image/jpeg;base64,"))
	assert.True(t, strings.HasSuffix(body.Size, " kB") || strings.HasSuffix(body.Size, " B"), body.Size)
}

func TestConvertCommandWritesFile(t *testing.T) {
	srv := newTestServer(t, nil)
	target := filepath.Join(t.TempDir(), "exported.jpg")

	rec := post(t, srv, "/v1/commands/convert", map[string]any{
		"image_blob": buildTestPNG(t, 80, 60),
		"width":      20,
		"height":     20,
		"quality":    60,
		"save_path":  target,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	info, err := os.Stat(target)
	require.NoError(t, err)

	var body commands.ConvertResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, pipeline.FormatBytes(info.Size()), body.Size)
}

func TestCommandFailuresMapToStatusCodes(t *testing.T) {
	srv := newTestServer(t, nil)
	missingDir := filepath.Join(t.TempDir(), "nope", "out.jpg")

	cases := []struct {
		name       string
		path       string
		params     map[string]any
		wantStatus int
		wantPrefix string
	}{
		{
			name:       "not an image",
			path:       "/v1/commands/preview",
			params:     map[string]any{"image_blob": []byte("hello"), "width": 10, "height": 10, "quality": 80},
			wantStatus: http.StatusUnprocessableEntity,
			wantPrefix: "Failed to load image: ",
		},
		{
			name:       "unwritable destination",
			path:       "/v1/commands/convert",
			params:     map[string]any{"image_blob": buildTestPNG(t, 10, 10), "width": 5, "height": 5, "quality": 80, "save_path": missingDir},
			wantStatus: http.StatusUnprocessableEntity,
			wantPrefix: "Failed to save image: ",
		},
		{
			name:       "zero width",
			path:       "/v1/commands/preview",
			params:     map[string]any{"image_blob": buildTestPNG(t, 10, 10), "width": 0, "height": 5},
			wantStatus: http.StatusBadRequest,
			wantPrefix: "invalid parameters: ",
		},
		{
			name:       "unknown command",
			path:       "/v1/commands/rotate",
			params:     map[string]any{},
			wantStatus: http.StatusNotFound,
			wantPrefix: "unknown command",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, srv, tc.path, tc.params)
			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.True(t, strings.HasPrefix(body["error"], tc.wantPrefix), body["error"])
		})
	}

	_, err := os.Stat(missingDir)
	assert.True(t, os.IsNotExist(err))
}

func TestHistoryEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	for i := 0; i < 3; i++ {
		rec := post(t, srv, "/v1/commands/preview", map[string]any{
			"image_blob": buildTestPNG(t, 20, 20),
			"width":      10 + i,
			"height":     10,
			"quality":    80,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Conversions []struct {
			Width  uint32 `json:"width"`
			Status string `json:"status"`
		} `json:"conversions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Conversions, 2)
	assert.Equal(t, uint32(12), body.Conversions[0].Width)
	assert.Equal(t, "succeeded", body.Conversions[0].Status)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCommandsAndHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/commands", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"commands":["convert","preview"]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpointReportsRequests(t *testing.T) {
	srv := newTestServer(t, nil)
	post(t, srv, "/v1/commands/preview", map[string]any{"image_blob": []byte("x"), "width": 1, "height": 1})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pixelshrink_api_requests_total{method="POST",route="/v1/commands/preview",status="422"} 1`)
}

func TestBodyLimit(t *testing.T) {
	srv := newTestServerWith(t, nil, 16)
	rec := post(t, srv, "/v1/commands/preview", map[string]any{"image_blob": bytes.Repeat([]byte{1}, 64), "width": 1, "height": 1})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRateLimitOnlyGuardsEnqueue(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}}
	srv := newTestServer(t, limiter)

	req := httptest.NewRequest(http.MethodPost, "/v1/commands/enqueue_convert", strings.NewReader(`{}`))
	req.Header.Set(DefaultClientIDHeader, "desk-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "desk-1:/v1/commands/{name}", limiter.subject)

	limiter.subject = ""
	rec = post(t, srv, "/v1/commands/preview", map[string]any{"image_blob": buildTestPNG(t, 4, 4), "width": 2, "height": 2})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, limiter.subject)
}

type stubLimiter struct {
	decision ratelimit.Decision
	subject  string
}

func (s *stubLimiter) Allow(_ context.Context, subject string) (ratelimit.Decision, error) {
	s.subject = subject
	return s.decision, nil
}

func newTestServer(t *testing.T, limiter RateLimiter) *Server {
	return newTestServerWith(t, limiter, 0)
}

func newTestServerWith(t *testing.T, limiter RateLimiter, maxBody int64) *Server {
	t.Helper()

	processor, err := pipeline.NewProcessor()
	require.NoError(t, err)

	p := pool.New(2)
	t.Cleanup(p.Close)

	registry := prometheus.NewRegistry()
	svc, err := commands.NewService(commands.Options{
		Logger:    zerolog.Nop(),
		Processor: processor,
		Pool:      p,
		History:   store.NewMemoryHistoryStore(20),
		Metrics:   commands.NewMetrics(registry),
	})
	require.NoError(t, err)

	return NewServer(Options{
		Logger:       zerolog.Nop(),
		Commands:     commands.NewDefaultRegistry(svc, nil),
		History:      svc,
		RateLimiter:  limiter,
		Registry:     registry,
		MaxBodyBytes: maxBody,
	})
}

func post(t *testing.T, srv *Server, path string, params map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(params)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
	return rec
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 11), B: 140, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
