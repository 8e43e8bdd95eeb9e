// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	MetricsNamespace         = "toolfinder"
	MetricsSubsystemSystem   = "system"
	MetricsSubsystemHTTP     = "http"
	MetricsSubsystemAPI      = "api"
	MetricsSubsystemLLM      = "llm"
	MetricsSubsystemPipeline = "pipeline"
	MetricsSubsystemSearch   = "search"

	MetricsInstanceLabel = "instance_id"
	MetricsVersionLabel  = "version"
)

type Metrics interface {
	GetRegistry() *prometheus.Registry

	ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64)

	IncrementHTTPRequests()
	IncrementHTTPErrors()

	GetMetricsForAIService(llmName string) LLMetrics

	ObserveTokenUsage(llmName, stage string, inputTokens, outputTokens int)

	ObserveStageDuration(stage string, elapsed float64)
	IncrementFallback(stage string)

	ObserveEmbeddingRequest(operation string, failed bool, elapsed float64)
	ObserveSearchResults(source string, count int)
}

type InstanceInfo struct {
	InstanceID string
	Version    string
}

type metrics struct {
	registry *prometheus.Registry

	startTime prometheus.Gauge
	info      prometheus.Gauge

	apiTime *prometheus.HistogramVec

	httpRequestsTotal prometheus.Counter
	httpErrorsTotal   prometheus.Counter

	llmRequestsTotal *prometheus.CounterVec

	llmInputTokensTotal  *prometheus.CounterVec
	llmOutputTokensTotal *prometheus.CounterVec

	stageTime      *prometheus.HistogramVec
	fallbacksTotal *prometheus.CounterVec

	embeddingTime         *prometheus.HistogramVec
	embeddingErrorsTotal  *prometheus.CounterVec
	searchResultsReturned *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics(info InstanceInfo) Metrics {
	m := &metrics{}

	m.registry = prometheus.NewRegistry()
	options := collectors.ProcessCollectorOpts{
		Namespace: MetricsNamespace,
	}
	m.registry.MustRegister(collectors.NewProcessCollector(options))
	m.registry.MustRegister(collectors.NewGoCollector())

	additionalLabels := map[string]string{}
	if info.InstanceID != "" {
		additionalLabels[MetricsInstanceLabel] = info.InstanceID
	}

	m.startTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemSystem,
		Name:        "start_timestamp_seconds",
		Help:        "The time the service started.",
		ConstLabels: additionalLabels,
	})
	m.startTime.SetToCurrentTime()
	m.registry.MustRegister(m.startTime)

	m.info = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemSystem,
		Name:      "info",
		Help:      "The service version.",
		ConstLabels: map[string]string{
			MetricsInstanceLabel: info.InstanceID,
			MetricsVersionLabel:  info.Version,
		},
	})
	m.info.Set(1)
	m.registry.MustRegister(m.info)

	m.apiTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   MetricsNamespace,
			Subsystem:   MetricsSubsystemAPI,
			Name:        "time_seconds",
			Help:        "Time to execute the api handler",
			ConstLabels: additionalLabels,
		},
		[]string{"handler", "method", "status_code"},
	)
	m.registry.MustRegister(m.apiTime)

	m.httpRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemHTTP,
		Name:        "requests_total",
		Help:        "The total number of http API requests.",
		ConstLabels: additionalLabels,
	})
	m.registry.MustRegister(m.httpRequestsTotal)

	m.httpErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemHTTP,
		Name:        "errors_total",
		Help:        "The total number of http API errors.",
		ConstLabels: additionalLabels,
	})
	m.registry.MustRegister(m.httpErrorsTotal)

	m.llmRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemLLM,
		Name:        "requests_total",
		Help:        "The total number of LLM requests.",
		ConstLabels: additionalLabels,
	}, []string{"llm_name"})
	m.registry.MustRegister(m.llmRequestsTotal)

	m.llmInputTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemLLM,
		Name:        "input_tokens_total",
		Help:        "The total number of input tokens consumed by LLM requests.",
		ConstLabels: additionalLabels,
	}, []string{"llm_name", "stage"})
	m.registry.MustRegister(m.llmInputTokensTotal)

	m.llmOutputTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemLLM,
		Name:        "output_tokens_total",
		Help:        "The total number of output tokens consumed by LLM requests.",
		ConstLabels: additionalLabels,
	}, []string{"llm_name", "stage"})
	m.registry.MustRegister(m.llmOutputTokensTotal)

	m.stageTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemPipeline,
		Name:        "stage_time_seconds",
		Help:        "Time spent in each recommendation pipeline stage.",
		ConstLabels: additionalLabels,
	}, []string{"stage"})
	m.registry.MustRegister(m.stageTime)

	m.fallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemPipeline,
		Name:        "fallbacks_total",
		Help:        "The number of times a pipeline stage degraded to its fallback.",
		ConstLabels: additionalLabels,
	}, []string{"stage"})
	m.registry.MustRegister(m.fallbacksTotal)

	m.embeddingTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemSearch,
		Name:        "embedding_time_seconds",
		Help:        "Time to obtain embeddings from the provider, including retries.",
		ConstLabels: additionalLabels,
	}, []string{"operation", "failed"})
	m.registry.MustRegister(m.embeddingTime)

	m.embeddingErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemSearch,
		Name:        "embedding_errors_total",
		Help:        "The number of embedding requests that failed.",
		ConstLabels: additionalLabels,
	}, []string{"operation"})
	m.registry.MustRegister(m.embeddingErrorsTotal)

	m.searchResultsReturned = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemSearch,
		Name:        "results",
		Help:        "Number of candidates returned by a vector search.",
		Buckets:     []float64{0, 1, 2, 5, 10, 20, 50, 100},
		ConstLabels: additionalLabels,
	}, []string{"source"})
	m.registry.MustRegister(m.searchResultsReturned)

	return m
}

func (m *metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *metrics) ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64) {
	if m != nil {
		m.apiTime.With(prometheus.Labels{"handler": handler, "method": method, "status_code": statusCode}).Observe(elapsed)
	}
}

func (m *metrics) IncrementHTTPRequests() {
	if m != nil {
		m.httpRequestsTotal.Inc()
	}
}

func (m *metrics) IncrementHTTPErrors() {
	if m != nil {
		m.httpErrorsTotal.Inc()
	}
}

func (m *metrics) GetMetricsForAIService(llmName string) LLMetrics {
	if m == nil {
		return nil
	}

	return &llmMetrics{
		llmRequestsTotal: m.llmRequestsTotal.MustCurryWith(prometheus.Labels{"llm_name": llmName}),
	}
}

type LLMetrics interface {
	IncrementLLMRequests()
}

type llmMetrics struct {
	llmRequestsTotal *prometheus.CounterVec
}

func (m *llmMetrics) IncrementLLMRequests() {
	if m != nil && m.llmRequestsTotal != nil {
		m.llmRequestsTotal.With(prometheus.Labels{}).Inc()
	}
}

func (m *metrics) ObserveTokenUsage(llmName, stage string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}

	// Use "unknown" for missing dimensions to allow aggregation
	if llmName == "" {
		llmName = "unknown"
	}
	if stage == "" {
		stage = "unknown"
	}

	labels := prometheus.Labels{
		"llm_name": llmName,
		"stage":    stage,
	}

	if inputTokens > 0 {
		m.llmInputTokensTotal.With(labels).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmOutputTokensTotal.With(labels).Add(float64(outputTokens))
	}
}

func (m *metrics) ObserveStageDuration(stage string, elapsed float64) {
	if m != nil {
		m.stageTime.With(prometheus.Labels{"stage": stage}).Observe(elapsed)
	}
}

func (m *metrics) IncrementFallback(stage string) {
	if m != nil {
		m.fallbacksTotal.With(prometheus.Labels{"stage": stage}).Inc()
	}
}

func (m *metrics) ObserveEmbeddingRequest(operation string, failed bool, elapsed float64) {
	if m == nil {
		return
	}
	m.embeddingTime.With(prometheus.Labels{"operation": operation, "failed": strconv.FormatBool(failed)}).Observe(elapsed)
	if failed {
		m.embeddingErrorsTotal.With(prometheus.Labels{"operation": operation}).Inc()
	}
}

func (m *metrics) ObserveSearchResults(source string, count int) {
	if m != nil {
		m.searchResultsReturned.With(prometheus.Labels{"source": source}).Observe(float64(count))
	}
}
