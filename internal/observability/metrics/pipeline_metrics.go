// Package metrics exposes prometheus instrumentation for the import pipeline.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Config struct {
	ServiceName string
	Environment string
}

func (c Config) constLabels() prometheus.Labels {
	serviceName := strings.TrimSpace(c.ServiceName)
	if serviceName == "" {
		serviceName = "timetiles"
	}
	environment := strings.TrimSpace(c.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

// PipelineMetrics records pipeline, geocode and quota activity.
type PipelineMetrics struct {
	stageDuration    *prometheus.HistogramVec
	stageTransitions *prometheus.CounterVec
	stageFailures    *prometheus.CounterVec
	rowsProcessed    *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	geocodeCache     *prometheus.CounterVec
	quotaDenials     *prometheus.CounterVec
}

// New registers pipeline metrics on the given registerer.
func New(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	constLabels := cfg.constLabels()

	m := &PipelineMetrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "import_stage_duration_seconds",
			Help:        "Execution time of one stage job invocation.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "import_stage_transitions_total",
			Help:        "Accepted stage transitions by target stage.",
			ConstLabels: constLabels,
		}, []string{"to_stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "import_stage_failures_total",
			Help:        "Stage invocations that marked the job failed.",
			ConstLabels: constLabels,
		}, []string{"stage"}),
		rowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "import_rows_processed_total",
			Help:        "Rows handled per stage.",
			ConstLabels: constLabels,
		}, []string{"stage"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "geocode_provider_calls_total",
			Help:        "External geocoding calls by provider and outcome.",
			ConstLabels: constLabels,
		}, []string{"provider", "outcome"}),
		geocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "geocode_cache_lookups_total",
			Help:        "Geocode cache lookups by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		quotaDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quota_denials_total",
			Help:        "Quota checks that returned allowed=false.",
			ConstLabels: constLabels,
		}, []string{"quota"}),
	}

	registerer.MustRegister(
		m.stageDuration,
		m.stageTransitions,
		m.stageFailures,
		m.rowsProcessed,
		m.providerCalls,
		m.geocodeCache,
		m.quotaDenials,
	)
	return m
}

func (m *PipelineMetrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *PipelineMetrics) IncTransition(toStage string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(toStage).Inc()
}

func (m *PipelineMetrics) IncStageFailure(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

func (m *PipelineMetrics) AddRows(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsProcessed.WithLabelValues(stage).Add(float64(n))
}

func (m *PipelineMetrics) IncProviderCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
}

func (m *PipelineMetrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.geocodeCache.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) IncQuotaDenial(quota string) {
	if m == nil {
		return
	}
	m.quotaDenials.WithLabelValues(quota).Inc()
}

// Module provides the metric families on the default prometheus registry.
var Module = fx.Module("observability.metrics",
	fx.Provide(func() *PipelineMetrics {
		return New(prometheus.DefaultRegisterer, Config{})
	}),
	fx.Provide(func() *HTTPMetrics {
		return NewHTTPMetrics(prometheus.DefaultRegisterer, Config{})
	}),
	fx.Provide(func() *QueueMetrics {
		return NewQueueMetrics(prometheus.DefaultRegisterer, Config{})
	}),
)
