package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	activeTasks     prometheus.Gauge
	webhookFailures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshrink_worker_tasks_total",
			Help: "Total queued conversions by final status.",
		}, []string{"status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelshrink_worker_task_duration_seconds",
			Help:    "Processing duration for each queued conversion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelshrink_worker_active_tasks",
			Help: "Queued conversions currently being processed.",
		}),
		webhookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshrink_worker_webhook_failures_total",
			Help: "Webhook notifications that could not be delivered.",
		}, []string{"event"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.tasksTotal,
			m.taskDuration,
			m.activeTasks,
			m.webhookFailures,
		)
	}
	return m
}
