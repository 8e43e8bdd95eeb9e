// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattermost/mattermost/server/public/shared/mlog"

	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/metrics"
)

// MetricsObserver defines the metrics the wrapper reports to.
type MetricsObserver interface {
	ObserveTokenUsage(llmName, stage string, inputTokens, outputTokens int)
	GetMetricsForAIService(llmName string) metrics.LLMetrics
}

// TokenUsageLoggingWrapper wraps a LanguageModel to log token usage
type TokenUsageLoggingWrapper struct {
	wrapped     LanguageModel
	llmName     string
	tokenLogger logger.Logger
	metrics     MetricsObserver
}

// NewTokenUsageLoggingWrapper creates a new wrapper that logs token usage
func NewTokenUsageLoggingWrapper(wrapped LanguageModel, llmName string, tokenLogger logger.Logger, metrics MetricsObserver) *TokenUsageLoggingWrapper {
	return &TokenUsageLoggingWrapper{
		wrapped:     wrapped,
		llmName:     llmName,
		tokenLogger: tokenLogger,
		metrics:     metrics,
	}
}

// CreateTokenLogger creates a dedicated json file logger for token usage.
func CreateTokenLogger(filename string) (logger.Logger, error) {
	mlogger, err := mlog.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create token logger: %w", err)
	}

	jsonTargetCfg := mlog.TargetCfg{
		Type:   "file",
		Format: "json",
		Levels: []mlog.Level{mlog.LvlInfo, mlog.LvlDebug},
	}
	jsonFileOptions := map[string]interface{}{
		"filename": filename,
		"max_size": 100,  // MB
		"compress": true, // compress rotated files
	}
	jsonOptions, err := json.Marshal(jsonFileOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json file options: %w", err)
	}
	jsonTargetCfg.Options = json.RawMessage(jsonOptions)

	err = mlogger.ConfigureTargets(map[string]mlog.TargetCfg{
		"token_usage": jsonTargetCfg,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to configure token logger targets: %w", err)
	}

	return logger.New(mlogger), nil
}

// ChatCompletion intercepts the streaming response to extract and log token usage
func (w *TokenUsageLoggingWrapper) ChatCompletion(ctx context.Context, request CompletionRequest, opts ...LanguageModelOption) (*TextStreamResult, error) {
	if w.tokenLogger == nil {
		return nil, errors.New("token logger is nil")
	}

	if w.metrics != nil {
		if llmMetrics := w.metrics.GetMetricsForAIService(w.llmName); llmMetrics != nil {
			llmMetrics.IncrementLLMRequests()
		}
	}

	result, err := w.wrapped.ChatCompletion(ctx, request, opts...)
	if err != nil {
		return nil, err
	}

	interceptedStream := make(chan TextStreamEvent)

	go func() {
		defer close(interceptedStream)

		for event := range result.Stream {
			if event.Type != EventTypeUsage {
				interceptedStream <- event
				continue
			}

			usage, ok := event.Value.(TokenUsage)
			if !ok {
				continue
			}

			operation := request.Operation
			if operation == "" {
				operation = "unknown"
			}

			w.tokenLogger.Info("Token Usage",
				"llm", w.llmName,
				"operation", operation,
				"input_tokens", usage.InputTokens,
				"output_tokens", usage.OutputTokens,
				"total_tokens", usage.InputTokens+usage.OutputTokens,
			)

			if w.metrics != nil {
				w.metrics.ObserveTokenUsage(
					w.llmName,
					operation,
					int(usage.InputTokens),
					int(usage.OutputTokens),
				)
			}
		}
	}()

	return &TextStreamResult{Stream: interceptedStream}, nil
}

// ChatCompletionNoStream uses the streaming method internally, so token usage
// logging happens automatically when ReadAll() processes the intercepted stream
func (w *TokenUsageLoggingWrapper) ChatCompletionNoStream(ctx context.Context, request CompletionRequest, opts ...LanguageModelOption) (string, error) {
	result, err := w.ChatCompletion(ctx, request, opts...)
	if err != nil {
		return "", err
	}
	return result.ReadAll()
}

// CountTokens delegates to the wrapped model
func (w *TokenUsageLoggingWrapper) CountTokens(text string) int {
	return w.wrapped.CountTokens(text)
}

// InputTokenLimit delegates to the wrapped model
func (w *TokenUsageLoggingWrapper) InputTokenLimit() int {
	return w.wrapped.InputTokenLimit()
}
