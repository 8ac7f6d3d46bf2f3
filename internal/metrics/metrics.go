package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks handled requests by the component that produced the decision
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stability_requests_total",
			Help: "Total number of requests handled",
		},
		[]string{"tier", "strategy"},
	)

	// RequestLatency tracks end-to-end request latency
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stability_request_latency_seconds",
			Help:    "End-to-end request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier"},
	)

	// ComponentExecutions tracks component Execute calls by outcome
	ComponentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stability_component_executions_total",
			Help: "Total number of component executions",
		},
		[]string{"component", "outcome"},
	)

	// ComponentLatency tracks component Execute latency
	ComponentLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stability_component_latency_seconds",
			Help:    "Component execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	// ComponentHealthScore tracks the rolling health score per component
	ComponentHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stability_component_health_score",
			Help: "Rolling health score of a component (0-1)",
		},
		[]string{"component"},
	)

	// CircuitState tracks breaker position (0=closed, 1=half_open, 2=open)
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stability_circuit_state",
			Help: "Circuit breaker state per component",
		},
		[]string{"component"},
	)

	// FallbacksTotal tracks fallback hops by strategy and outcome
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stability_fallbacks_total",
			Help: "Total number of fallback strategy attempts",
		},
		[]string{"strategy", "outcome"},
	)

	// EmergencyFallbacks counts requests answered by the emergency fallback
	EmergencyFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stability_emergency_fallbacks_total",
			Help: "Total number of emergency fallback responses",
		},
	)

	// QualityDegradation tracks the quality degradation of returned responses
	QualityDegradation = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stability_quality_degradation",
			Help:    "Quality degradation of returned responses",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.5, 0.7, 0.9, 1},
		},
	)

	// ThrottleLevel tracks the current throttle level (0=none .. 4=emergency)
	ThrottleLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stability_throttle_level",
			Help: "Current throttle level",
		},
	)

	// ResourceUsage tracks sampled CPU and memory usage in percent
	ResourceUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stability_resource_usage_percent",
			Help: "Sampled resource usage in percent",
		},
		[]string{"resource"},
	)

	// AdmissionRejected counts requests rejected by admission control
	AdmissionRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stability_admission_rejected_total",
			Help: "Total number of requests rejected by admission control",
		},
	)

	// CacheEntries tracks the number of cached responses
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stability_cache_entries",
			Help: "Number of cached responses",
		},
	)
)
