package commands

import (
	"errors"

	"github.com/dunamismax/pixelshrink/internal/domain"
	"github.com/dunamismax/pixelshrink/internal/pipeline"
	"github.com/dunamismax/pixelshrink/internal/pool"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	outputBytes     *prometheus.CounterVec
	pixelsProcessed prometheus.Counter
	poolInFlight    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshrink_commands_total",
			Help: "Total image commands by name and outcome.",
		}, []string{"command", "status"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelshrink_command_duration_seconds",
			Help:    "Image command latency including time spent waiting for a pool worker.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command", "status"}),
		outputBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshrink_output_bytes_total",
			Help: "Total encoded JPEG bytes produced.",
		}, []string{"command"}),
		pixelsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelshrink_pixels_processed_total",
			Help: "Total output pixels produced by successful commands.",
		}),
		poolInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelshrink_pool_in_flight",
			Help: "Pipeline tasks currently executing on the worker pool.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.commandsTotal,
			m.commandDuration,
			m.outputBytes,
			m.pixelsProcessed,
			m.poolInFlight,
		)
	}
	return m
}

// PoolOption reports pool occupancy through the in-flight gauge.
func (m *Metrics) PoolOption() pool.Option {
	return pool.WithInFlightHook(func(n int64) {
		m.poolInFlight.Set(float64(n))
	})
}

func statusLabel(err error) string {
	if err == nil {
		return domain.StatusSucceeded
	}

	var (
		decodeErr *pipeline.DecodeError
		encodeErr *pipeline.EncodeError
		writeErr  *pipeline.WriteError
	)
	switch {
	case errors.As(err, &decodeErr):
		return "decode_error"
	case errors.As(err, &encodeErr):
		return "encode_error"
	case errors.As(err, &writeErr):
		return "write_error"
	default:
		return domain.StatusFailed
	}
}
