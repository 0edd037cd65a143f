package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelshrink/internal/commands"
	"github.com/dunamismax/pixelshrink/internal/domain"
	"github.com/dunamismax/pixelshrink/internal/pipeline"
	"github.com/dunamismax/pixelshrink/internal/pool"
	"github.com/dunamismax/pixelshrink/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const (
	commandsPrefix = "/v1/commands/"

	// DefaultMaxBodyBytes bounds a command body; image_blob is base64 inside it.
	DefaultMaxBodyBytes = 128 << 20
)

type commandInvoker interface {
	Invoke(ctx context.Context, name string, params json.RawMessage) (any, error)
	Names() []string
}

type historyReader interface {
	History(ctx context.Context, limit int) ([]domain.Conversion, error)
}

type Options struct {
	Logger         zerolog.Logger
	Commands       commandInvoker
	History        historyReader
	RateLimiter    RateLimiter
	ClientIDHeader string
	Registry       *prometheus.Registry
	Tracer         trace.Tracer
	MaxBodyBytes   int64
}

// Server is the HTTP bridge the desktop front end uses to invoke commands by
// name with named JSON parameters.
type Server struct {
	logger         zerolog.Logger
	commands       commandInvoker
	history        historyReader
	rateLimiter    RateLimiter
	clientIDHeader string
	registry       *prometheus.Registry
	metrics        *metrics
	tracer         trace.Tracer
	maxBodyBytes   int64
	mux            *http.ServeMux
}

func NewServer(opts Options) *Server {
	registry := opts.Registry
	if registry == nil {
		registry = telemetry.NewRegistry()
	}
	clientIDHeader := opts.ClientIDHeader
	if clientIDHeader == "" {
		clientIDHeader = DefaultClientIDHeader
	}
	maxBodyBytes := opts.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		logger:         opts.Logger,
		commands:       opts.Commands,
		history:        opts.History,
		rateLimiter:    opts.RateLimiter,
		clientIDHeader: clientIDHeader,
		registry:       registry,
		metrics:        newMetrics(registry),
		tracer:         opts.Tracer,
		maxBodyBytes:   maxBodyBytes,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", telemetry.MetricsHandler(s.registry))
	s.mux.HandleFunc("GET /v1/commands", s.handleListCommands)
	s.mux.HandleFunc("POST /v1/commands/{name}", s.handleInvoke)
	s.mux.HandleFunc("GET /v1/history", s.handleHistory)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": pipeline.Backend()})
}

func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"commands": s.commands.Names()})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	params, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}

	result, err := s.commands.Invoke(r.Context(), name, params)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Str("command", name).Msg("command failed")
		}
		writeError(w, status, messageForError(err, status))
		return
	}

	status := http.StatusOK
	if name == domain.CommandEnqueueConvert {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"conversions": []domain.Conversion{}})
		return
	}

	conversions, err := s.history.History(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("load history failed")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversions": conversions})
}

func statusForError(err error) int {
	var paramsErr *commands.ParamsError
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.As(err, &paramsErr):
		return http.StatusBadRequest
	case pipeline.IsUserFacing(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pool.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageForError keeps caller-visible failures verbatim and hides the
// details of unexpected ones.
func messageForError(err error, status int) string {
	switch status {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusServiceUnavailable:
		return "service unavailable: " + err.Error()
	default:
		return err.Error()
	}
}

func (s *Server) routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, commandsPrefix):
		name := strings.TrimPrefix(path, commandsPrefix)
		if s.commands != nil && slices.Contains(s.commands.Names(), name) {
			return commandsPrefix + name
		}
		return commandsPrefix + "{name}"
	case path == "/v1/commands", path == "/v1/history", path == "/healthz", path == "/metrics":
		return path
	default:
		return "other"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
