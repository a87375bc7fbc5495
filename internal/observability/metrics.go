package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aura"

type moduleMetrics struct {
	exchangeTotal    *prometheus.CounterVec
	exchangeDuration prometheus.Histogram

	llmCallTotal     *prometheus.CounterVec
	llmCallDuration  *prometheus.HistogramVec
	providerCooldown *prometheus.GaugeVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	memoryOperationDuration *prometheus.HistogramVec
	memoryErrorsTotal       *prometheus.CounterVec
	memoryTurns             prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			exchangeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "exchange_total",
					Help:      "Total user exchanges by outcome.",
				},
				[]string{"outcome"},
			),
			exchangeDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "exchange_duration_seconds",
					Help:      "End-to-end exchange duration in seconds.",
					Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
				},
			),
			llmCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "llm_call_total",
					Help:      "Total LLM completions by provider, phase and status.",
				},
				[]string{"provider", "phase", "status"},
			),
			llmCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "llm_call_duration_seconds",
					Help:      "LLM completion duration in seconds by provider and phase.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"provider", "phase"},
			),
			providerCooldown: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "provider_cooldown_active",
					Help:      "Provider cooldown active state (1 active, 0 inactive).",
				},
				[]string{"provider"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_execution_total",
					Help:      "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "tool_execution_duration_seconds",
					Help:      "Tool execution duration in seconds by tool.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_errors_total",
					Help:      "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			memoryOperationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "memory_operation_duration_seconds",
					Help:      "Conversation memory operation duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"operation"},
			),
			memoryErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "memory_errors_total",
					Help:      "Total conversation memory errors by operation.",
				},
				[]string{"operation"},
			),
			memoryTurns: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "memory_turns",
					Help:      "Turns currently stored for the active conversation.",
				},
			),
			httpRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "http_requests_total",
					Help:      "Total HTTP API requests by route and status code.",
				},
				[]string{"route", "code"},
			),
			httpRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "http_request_duration_seconds",
					Help:      "HTTP API request duration in seconds by route.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"route"},
			),
		}

		prometheus.MustRegister(
			m.exchangeTotal,
			m.exchangeDuration,
			m.llmCallTotal,
			m.llmCallDuration,
			m.providerCooldown,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.memoryOperationDuration,
			m.memoryErrorsTotal,
			m.memoryTurns,
			m.httpRequestsTotal,
			m.httpRequestDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordExchange counts a finished exchange. outcome is a short label such
// as "reply", "no_response", "upstream_error".
func RecordExchange(outcome string, duration time.Duration) {
	m := getMetrics()
	m.exchangeTotal.WithLabelValues(outcome).Inc()
	m.exchangeDuration.Observe(duration.Seconds())
}

func RecordLLMCall(provider, phase string, duration time.Duration, success bool) {
	m := getMetrics()
	m.llmCallTotal.WithLabelValues(provider, phase, status(success)).Inc()
	m.llmCallDuration.WithLabelValues(provider, phase).Observe(duration.Seconds())
}

func SetProviderCooldown(provider string, active bool) {
	m := getMetrics()
	value := 0.0
	if active {
		value = 1.0
	}
	m.providerCooldown.WithLabelValues(provider).Set(value)
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, status(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordMemoryOperation(operation string, duration time.Duration, success bool) {
	m := getMetrics()
	m.memoryOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if !success {
		m.memoryErrorsTotal.WithLabelValues(operation).Inc()
	}
}

func SetMemoryTurns(total int) {
	m := getMetrics()
	m.memoryTurns.Set(float64(total))
}

func RecordHTTPRequest(route string, code int, duration time.Duration) {
	m := getMetrics()
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
