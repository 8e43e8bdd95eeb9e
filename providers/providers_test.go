// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package providers

import (
	"context"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geekhive/toolfinder/config"
	"github.com/geekhive/toolfinder/embeddings"
	"github.com/geekhive/toolfinder/llm"
	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/metrics"
)

func TestNewLanguageModel(t *testing.T) {
	tests := []struct {
		name    string
		service llm.ServiceConfig
		wantErr bool
	}{
		{name: "openai", service: llm.ServiceConfig{Type: llm.ServiceTypeOpenAI, APIKey: "k"}},
		{name: "openai compatible", service: llm.ServiceConfig{Type: llm.ServiceTypeOpenAICompatible, APIURL: "http://localhost:11434/v1"}},
		{name: "azure", service: llm.ServiceConfig{Type: llm.ServiceTypeAzure, APIKey: "k", APIURL: "https://example.openai.azure.com"}},
		{name: "anthropic", service: llm.ServiceConfig{Type: llm.ServiceTypeAnthropic, APIKey: "k"}},
		{name: "bedrock", service: llm.ServiceConfig{Type: llm.ServiceTypeBedrock, Region: "us-east-1", APIKey: "k"}},
		{name: "unknown", service: llm.ServiceConfig{Type: "cohere"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.LLM = tt.service

			model, err := NewLanguageModel(context.Background(), &cfg, http.DefaultClient, logger.NewNop(), &metrics.NoopMetrics{})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, &llm.TokenUsageLoggingWrapper{}, model)
		})
	}
}

func TestNewEmbeddingProvider(t *testing.T) {
	_, err := NewEmbeddingProvider(config.EmbeddingConfig{Type: "word2vec"}, http.DefaultClient)
	require.Error(t, err)

	provider, err := NewEmbeddingProvider(config.EmbeddingConfig{Type: config.EmbeddingTypeMock, Dimensions: 64}, http.DefaultClient)
	require.NoError(t, err)
	assert.Equal(t, 64, provider.Dimensions())

	provider, err = NewEmbeddingProvider(config.EmbeddingConfig{Type: config.EmbeddingTypeOpenAI, APIKey: "k", Model: "text-embedding-3-small", Dimensions: 1536}, http.DefaultClient)
	require.NoError(t, err)
	assert.Equal(t, 1536, provider.Dimensions())
}

func TestEmbeddingModelName(t *testing.T) {
	assert.Equal(t, embeddings.MockModelName, EmbeddingModelName(config.EmbeddingConfig{Type: config.EmbeddingTypeMock, Model: "ignored"}))
	assert.Equal(t, "text-embedding-3-small", EmbeddingModelName(config.EmbeddingConfig{Type: config.EmbeddingTypeOpenAI, Model: "text-embedding-3-small"}))
}

func TestNewEmbeddingClient(t *testing.T) {
	t.Run("mock without cache", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Embedding.Type = config.EmbeddingTypeMock
		cfg.Embedding.Dimensions = 32

		client, closeFn, err := NewEmbeddingClient(context.Background(), &cfg, http.DefaultClient, logger.NewNop(), nil)
		require.NoError(t, err)
		defer func() { require.NoError(t, closeFn()) }()

		assert.Equal(t, embeddings.MockModelName, client.Model())
		vector, err := client.Embed(context.Background(), "video editing")
		require.NoError(t, err)
		assert.Len(t, vector, 32)
	})

	t.Run("redis cache stores vectors", func(t *testing.T) {
		mr := miniredis.RunT(t)

		cfg := config.Defaults()
		cfg.Embedding.Type = config.EmbeddingTypeMock
		cfg.Embedding.Dimensions = 16
		cfg.Cache.RedisURL = "redis://" + mr.Addr()

		client, closeFn, err := NewEmbeddingClient(context.Background(), &cfg, http.DefaultClient, logger.NewNop(), nil)
		require.NoError(t, err)
		defer func() { require.NoError(t, closeFn()) }()

		_, err = client.Embed(context.Background(), "design tools")
		require.NoError(t, err)
		assert.Len(t, mr.Keys(), 1)
	})

	t.Run("unreachable redis disables the cache", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Embedding.Type = config.EmbeddingTypeMock
		cfg.Cache.RedisURL = "redis://127.0.0.1:1"

		client, closeFn, err := NewEmbeddingClient(context.Background(), &cfg, http.DefaultClient, logger.NewNop(), nil)
		require.NoError(t, err)
		require.NoError(t, closeFn())

		_, err = client.Embed(context.Background(), "still works")
		require.NoError(t, err)
	})
}
