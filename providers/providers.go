// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package providers builds the upstream model clients selected by the
// configuration: the language model behind the recommendation stages and the
// embedding client shared by indexing and retrieval.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/geekhive/toolfinder/anthropic"
	"github.com/geekhive/toolfinder/bedrock"
	"github.com/geekhive/toolfinder/config"
	"github.com/geekhive/toolfinder/embeddings"
	"github.com/geekhive/toolfinder/llm"
	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/metrics"
	"github.com/geekhive/toolfinder/openai"
)

// NewLanguageModel creates the configured model, wrapped so that every call
// reports token usage.
func NewLanguageModel(ctx context.Context, cfg *config.Config, httpClient *http.Client, log logger.Logger, m metrics.Metrics) (llm.LanguageModel, error) {
	serviceConfig := cfg.LLM

	var result llm.LanguageModel
	switch serviceConfig.Type {
	case llm.ServiceTypeOpenAI:
		result = openai.New(config.OpenAIConfigFromServiceConfig(serviceConfig), httpClient)
	case llm.ServiceTypeOpenAICompatible:
		result = openai.NewCompatible(config.OpenAIConfigFromServiceConfig(serviceConfig), httpClient)
	case llm.ServiceTypeAzure:
		result = openai.NewAzure(config.OpenAIConfigFromServiceConfig(serviceConfig), httpClient)
	case llm.ServiceTypeAnthropic:
		result = anthropic.New(serviceConfig, httpClient)
	case llm.ServiceTypeBedrock:
		b, err := bedrock.New(ctx, serviceConfig, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create bedrock client: %w", err)
		}
		result = b
	default:
		return nil, fmt.Errorf("unsupported service type: %s", serviceConfig.Type)
	}

	tokenLogger := log.With("component", "token_usage")
	if cfg.EnableTokenUsageLogging && cfg.TokenUsageLogFile != "" {
		fileLogger, err := llm.CreateTokenLogger(cfg.TokenUsageLogFile)
		if err != nil {
			return nil, err
		}
		tokenLogger = fileLogger
	}

	name := serviceConfig.Name
	if name == "" {
		name = serviceConfig.Type
	}
	if m == nil {
		m = &metrics.NoopMetrics{}
	}

	return llm.NewTokenUsageLoggingWrapper(result, name, tokenLogger, m), nil
}

// NewEmbeddingProvider creates the raw provider for the configured embedding type.
func NewEmbeddingProvider(cfg config.EmbeddingConfig, httpClient *http.Client) (embeddings.EmbeddingProvider, error) {
	switch cfg.Type {
	case config.EmbeddingTypeOpenAI:
		return openai.NewEmbeddings(config.OpenAIConfigFromEmbeddingConfig(cfg), httpClient), nil
	case config.EmbeddingTypeOpenAICompatible:
		return openai.NewCompatibleEmbeddings(config.OpenAIConfigFromEmbeddingConfig(cfg), httpClient), nil
	case config.EmbeddingTypeMock:
		return embeddings.NewMockEmbeddingProvider(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding type: %s", cfg.Type)
	}
}

// EmbeddingModelName is the identity stored next to every tool vector.
func EmbeddingModelName(cfg config.EmbeddingConfig) string {
	if cfg.Type == config.EmbeddingTypeMock {
		return embeddings.MockModelName
	}
	return cfg.Model
}

// NewEmbeddingClient assembles provider, optional Redis cache and client.
// The returned close function releases the Redis connection, if any.
func NewEmbeddingClient(ctx context.Context, cfg *config.Config, httpClient *http.Client, log logger.Logger, m metrics.Metrics) (*embeddings.Client, func() error, error) {
	provider, err := NewEmbeddingProvider(cfg.Embedding, httpClient)
	if err != nil {
		return nil, nil, err
	}

	model := EmbeddingModelName(cfg.Embedding)
	closeFn := func() error { return nil }

	if cfg.Cache.RedisURL != "" {
		redisClient, err := newRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			log.Warn("Embedding cache disabled, redis is unreachable", "error", err)
		} else {
			provider = embeddings.NewRedisCache(provider, redisClient, model, cfg.Cache.TTL(), log)
			closeFn = redisClient.Close
		}
	}

	client := embeddings.NewClient(provider, embeddings.ClientConfig{
		Model:             model,
		Timeout:           cfg.Embedding.Timeout(),
		MaxRetries:        cfg.Embedding.MaxRetries,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		BatchSize:         cfg.Embedding.BatchSize,
	}, log, m)

	return client, closeFn, nil
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
