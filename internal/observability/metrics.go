// Package observability holds the Prometheus collectors shared by the gateway.
package observability

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"agentgate/internal/core"
)

// Token usage label values for LLMTokenUsage.
const (
	UsagePrompt     = "prompt"
	UsageCompletion = "completion"
	UsageTotal      = "total"
)

var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total number of API requests",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_api_requests_total",
		Help: "Total number of LLM API requests",
	}, []string{"model"})

	LLMTokenUsage = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_token_usage_total",
		Help: "Total number of tokens used",
	}, []string{"model", "usage_type"})

	LLMLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_api_latency_seconds",
		Help:    "LLM API latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"model"})

	LLMErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_api_errors_total",
		Help: "Total number of LLM API errors",
	}, []string{"model", "error_type"})

	FunctionCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "function_calls_total",
		Help: "Total number of function calls",
	}, []string{"function_name"})

	FunctionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "function_errors_total",
		Help: "Total number of function errors",
	}, []string{"function_name", "error_type"})

	FunctionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "function_duration_seconds",
		Help:    "Function execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"function_name"})

	RedisConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_connections_total",
		Help: "Number of open Redis connections",
	})

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "memory_usage_bytes",
		Help: "Heap memory in use, in bytes",
	}, func() float64 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return float64(m.HeapAlloc)
	})
)

// ObserveLLMCall records one upstream call. usage may be nil when the
// provider did not report token counts.
func ObserveLLMCall(model string, started time.Time, usage *core.Usage, err error) {
	LLMRequests.WithLabelValues(model).Inc()
	LLMLatency.WithLabelValues(model).Observe(time.Since(started).Seconds())
	if err != nil {
		LLMErrors.WithLabelValues(model, ErrorType(err)).Inc()
		return
	}
	if usage != nil {
		LLMTokenUsage.WithLabelValues(model, UsagePrompt).Add(float64(usage.PromptTokens))
		LLMTokenUsage.WithLabelValues(model, UsageCompletion).Add(float64(usage.CompletionTokens))
		LLMTokenUsage.WithLabelValues(model, UsageTotal).Add(float64(usage.TotalTokens))
	}
}

// ErrorType returns the short type name used as the error_type label.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	t := fmt.Sprintf("%T", err)
	if i := strings.LastIndex(t, "."); i >= 0 {
		t = t[i+1:]
	}
	return strings.TrimLeft(t, "*")
}
