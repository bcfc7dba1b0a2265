// Package metrics provides Prometheus metrics for onedrived.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one onedrived instance.
// A nil *Metrics records nothing.
type Metrics struct {
	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	bytesUploaded   prometheus.Counter
	bytesDownloaded prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onedrived_tasks_total",
				Help: "Total number of handled tasks",
			},
			[]string{"task", "outcome"},
		),

		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onedrived_task_duration_seconds",
				Help:    "Task duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		),

		bytesUploaded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "onedrived_bytes_uploaded_total",
				Help: "Total bytes uploaded to OneDrive",
			},
		),

		bytesDownloaded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "onedrived_bytes_downloaded_total",
				Help: "Total bytes downloaded from OneDrive",
			},
		),
	}
}

// TaskDone records the outcome of a task.
func (m *Metrics) TaskDone(task string, err error, duration time.Duration) {
	if m == nil {
		return
	}

	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}

	m.tasksTotal.WithLabelValues(task, outcome).Inc()
	m.taskDuration.WithLabelValues(task).Observe(duration.Seconds())
}

func (m *Metrics) Uploaded(n int64) {
	if m == nil || n <= 0 {
		return
	}

	m.bytesUploaded.Add(float64(n))
}

func (m *Metrics) Downloaded(n int64) {
	if m == nil || n <= 0 {
		return
	}

	m.bytesDownloaded.Add(float64(n))
}
