package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueueMetrics tracks the in-process task queue: how much is waiting and how
// long task invocations take. Depth is sampled at enqueue and dequeue time.
type QueueMetrics struct {
	depth        prometheus.Gauge
	enqueued     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
}

func NewQueueMetrics(registerer prometheus.Registerer, cfg Config) *QueueMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	m := &QueueMetrics{
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "queue_depth",
			Help:        "Messages buffered and not yet picked up by a worker.",
			ConstLabels: constLabels,
		}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "queue_enqueued_total",
			Help:        "Messages accepted by task name.",
			ConstLabels: constLabels,
		}, []string{"task"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "queue_task_duration_seconds",
			Help:        "Handler execution time by task and result.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"task", "result"}),
	}
	registerer.MustRegister(m.depth, m.enqueued, m.taskDuration)
	return m
}

func (m *QueueMetrics) SetDepth(n int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(n))
}

func (m *QueueMetrics) IncEnqueued(task string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(task).Inc()
}

func (m *QueueMetrics) ObserveTask(task string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.taskDuration.WithLabelValues(task, result).Observe(d.Seconds())
}
