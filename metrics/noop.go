// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package metrics

import "github.com/prometheus/client_golang/prometheus"

// NoopMetrics satisfies Metrics without recording anything.
type NoopMetrics struct{}

func (n *NoopMetrics) GetRegistry() *prometheus.Registry { return prometheus.NewRegistry() }

func (n *NoopMetrics) ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64) {
}

func (n *NoopMetrics) IncrementHTTPRequests() {}

func (n *NoopMetrics) IncrementHTTPErrors() {}

func (n *NoopMetrics) GetMetricsForAIService(llmName string) LLMetrics { return &llmMetrics{} }

func (n *NoopMetrics) ObserveTokenUsage(llmName, stage string, inputTokens, outputTokens int) {}

func (n *NoopMetrics) ObserveStageDuration(stage string, elapsed float64) {}

func (n *NoopMetrics) IncrementFallback(stage string) {}

func (n *NoopMetrics) ObserveEmbeddingRequest(operation string, failed bool, elapsed float64) {}

func (n *NoopMetrics) ObserveSearchResults(source string, count int) {}
