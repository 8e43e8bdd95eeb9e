// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geekhive/toolfinder/llm"
)

func TestPostsToChatCompletionMessages(t *testing.T) {
	tests := []struct {
		name  string
		posts []llm.Post
		check func(t *testing.T, messages []openai.ChatCompletionMessageParamUnion)
	}{
		{
			name: "basic conversation",
			posts: []llm.Post{
				{Role: llm.PostRoleSystem, Message: "You are a helpful assistant"},
				{Role: llm.PostRoleUser, Message: "Hello"},
				{Role: llm.PostRoleBot, Message: "Hi there!"},
			},
			check: func(t *testing.T, messages []openai.ChatCompletionMessageParamUnion) {
				require.Len(t, messages, 3)
				assert.NotNil(t, messages[0].OfSystem)
				assert.NotNil(t, messages[1].OfUser)
				assert.NotNil(t, messages[2].OfAssistant)
			},
		},
		{
			name: "single user prompt",
			posts: []llm.Post{
				{Role: llm.PostRoleUser, Message: "Recommend tools"},
			},
			check: func(t *testing.T, messages []openai.ChatCompletionMessageParamUnion) {
				require.Len(t, messages, 1)
				require.NotNil(t, messages[0].OfUser)
				assert.Equal(t, "Recommend tools", messages[0].OfUser.Content.OfString.Value)
			},
		},
		{
			name:  "empty conversation",
			posts: nil,
			check: func(t *testing.T, messages []openai.ChatCompletionMessageParamUnion) {
				assert.Empty(t, messages)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, postsToChatCompletionMessages(tt.posts))
		})
	}
}

func TestCompletionRequestFromConfig(t *testing.T) {
	o := &OpenAI{config: Config{DefaultModel: "gpt-4o-mini"}}

	t.Run("defaults leave optional fields unset", func(t *testing.T) {
		params := o.completionRequestFromConfig(o.GetDefaultConfig())
		assert.Equal(t, shared.ChatModelGPT4oMini, params.Model)
		assert.False(t, params.Temperature.Valid())
		assert.False(t, params.MaxCompletionTokens.Valid())
		assert.Nil(t, params.ResponseFormat.OfJSONSchema)
	})

	t.Run("options are carried into the request", func(t *testing.T) {
		schema, err := jsonschema.For[struct {
			Name string `json:"name"`
		}](nil)
		require.NoError(t, err)

		cfg := llm.ApplyOptions(o.GetDefaultConfig(), []llm.LanguageModelOption{
			llm.WithTemperature(0.2),
			llm.WithMaxGeneratedTokens(200),
			llm.WithJSONOutput(schema),
		})
		params := o.completionRequestFromConfig(cfg)

		assert.True(t, params.Temperature.Valid())
		assert.InDelta(t, 0.2, params.Temperature.Value, 1e-9)
		assert.Equal(t, int64(200), params.MaxCompletionTokens.Value)
		require.NotNil(t, params.ResponseFormat.OfJSONSchema)
		assert.Equal(t, "output_format", params.ResponseFormat.OfJSONSchema.JSONSchema.Name)
	})
}

func streamHandler(t *testing.T, chunks []string, captured *map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if captured != nil {
			require.NoError(t, json.Unmarshal(body, captured))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestChatCompletionNoStream(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(streamHandler(t, []string{
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"Hello "},"finish_reason":null}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"world"},"finish_reason":"stop"}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":7,"completion_tokens":2,"total_tokens":9}}`,
	}, &captured))
	defer server.Close()

	o := NewCompatible(Config{APIKey: "key", APIURL: server.URL}, server.Client())

	text, err := o.ChatCompletionNoStream(context.Background(),
		llm.NewUserRequest("test", "say hello"),
		llm.WithTemperature(0.7),
	)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.InDelta(t, 0.7, captured["temperature"], 1e-9)
	assert.Equal(t, true, captured["stream"])
}

func TestChatCompletionReportsUsage(t *testing.T) {
	server := httptest.NewServer(streamHandler(t, []string{
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":"stop"}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[],"usage":{"prompt_tokens":11,"completion_tokens":3,"total_tokens":14}}`,
	}, nil))
	defer server.Close()

	o := NewCompatible(Config{APIURL: server.URL, DefaultModel: "m"}, server.Client())
	result, err := o.ChatCompletion(context.Background(), llm.NewUserRequest("test", "hi"))
	require.NoError(t, err)

	var usage llm.TokenUsage
	var text string
	for event := range result.Stream {
		switch event.Type {
		case llm.EventTypeText:
			text += event.Value.(string)
		case llm.EventTypeUsage:
			usage = event.Value.(llm.TokenUsage)
		case llm.EventTypeError:
			t.Fatalf("unexpected error: %v", event.Value)
		}
	}

	assert.Equal(t, "ok", text)
	assert.Equal(t, llm.TokenUsage{InputTokens: 11, OutputTokens: 3}, usage)
}

func TestChatCompletionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	o := NewCompatible(Config{APIURL: server.URL}, server.Client())
	_, err := o.ChatCompletionNoStream(context.Background(), llm.NewUserRequest("test", "hi"))
	require.Error(t, err)
}

func TestBatchCreateEmbeddings(t *testing.T) {
	t.Run("vectors are placed by reported index", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"object":"list","model":"text-embedding-3-small","data":[`+
				`{"object":"embedding","index":1,"embedding":[0.0,1.0]},`+
				`{"object":"embedding","index":0,"embedding":[1.0,0.0]}],`+
				`"usage":{"prompt_tokens":2,"total_tokens":2}}`)
		}))
		defer server.Close()

		o := NewCompatibleEmbeddings(Config{APIURL: server.URL}, server.Client())
		vectors, err := o.BatchCreateEmbeddings(context.Background(), []string{"first", "second"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
	})

	t.Run("count mismatch is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1.0]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`)
		}))
		defer server.Close()

		o := NewCompatibleEmbeddings(Config{APIURL: server.URL}, server.Client())
		_, err := o.BatchCreateEmbeddings(context.Background(), []string{"a", "b"})
		require.Error(t, err)
	})
}

func TestCreateEmbedding(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`)
	}))
	defer server.Close()

	o := NewCompatibleEmbeddings(Config{APIURL: server.URL}, server.Client())
	vector, err := o.CreateEmbedding(context.Background(), "video editing")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vector)
	assert.Equal(t, "text-embedding-3-small", captured["model"])
	assert.InDelta(t, 1536, captured["dimensions"], 0)
}

func TestGetModelConstant(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		expected shared.ChatModel
	}{
		{name: "gpt-4o model", model: "gpt-4o", expected: shared.ChatModelGPT4o},
		{name: "gpt-4o-mini model", model: "gpt-4o-mini", expected: shared.ChatModelGPT4oMini},
		{name: "gpt-4-turbo model", model: "gpt-4-turbo", expected: shared.ChatModelGPT4Turbo},
		{name: "gpt-4 model", model: "gpt-4", expected: shared.ChatModelGPT4},
		{name: "gpt-3.5-turbo model", model: "gpt-3.5-turbo", expected: shared.ChatModelGPT3_5Turbo},
		{name: "custom model", model: "llama3.1:8b", expected: shared.ChatModel("llama3.1:8b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, getModelConstant(tt.model))
		})
	}
}

func TestGetEmbeddingModelConstant(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		expected openai.EmbeddingModel
	}{
		{name: "text-embedding-3-large", model: "text-embedding-3-large", expected: openai.EmbeddingModelTextEmbedding3Large},
		{name: "text-embedding-3-small", model: "text-embedding-3-small", expected: openai.EmbeddingModelTextEmbedding3Small},
		{name: "text-embedding-ada-002", model: "text-embedding-ada-002", expected: openai.EmbeddingModelTextEmbeddingAda002},
		{name: "custom embedding model", model: "nomic-embed-text", expected: openai.EmbeddingModel("nomic-embed-text")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, getEmbeddingModelConstant(tt.model))
		})
	}
}

func TestInputTokenLimit(t *testing.T) {
	tests := []struct {
		name          string
		config        Config
		expectedLimit int
	}{
		{name: "explicit input token limit", config: Config{InputTokenLimit: 50000, DefaultModel: "gpt-4o"}, expectedLimit: 50000},
		{name: "gpt-4o model default", config: Config{DefaultModel: "gpt-4o"}, expectedLimit: 128000},
		{name: "gpt-4-turbo model default", config: Config{DefaultModel: "gpt-4-turbo"}, expectedLimit: 128000},
		{name: "gpt-4 model default", config: Config{DefaultModel: "gpt-4"}, expectedLimit: 8192},
		{name: "gpt-3.5-turbo model default", config: Config{DefaultModel: "gpt-3.5-turbo"}, expectedLimit: 16385},
		{name: "unknown model default", config: Config{DefaultModel: "unknown-model"}, expectedLimit: 128000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &OpenAI{config: tt.config}
			assert.Equal(t, tt.expectedLimit, o.InputTokenLimit())
		})
	}
}

func TestCountTokens(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		minCount int
		maxCount int
	}{
		{name: "empty string", text: "", minCount: 0, maxCount: 0},
		{name: "single word", text: "hello", minCount: 1, maxCount: 3},
		{name: "short sentence", text: "The quick brown fox jumps over the lazy dog", minCount: 8, maxCount: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &OpenAI{}
			result := o.CountTokens(tt.text)
			assert.GreaterOrEqual(t, result, tt.minCount)
			assert.LessOrEqual(t, result, tt.maxCount)
		})
	}
}

func TestDimensions(t *testing.T) {
	assert.Equal(t, 1536, NewEmbeddings(Config{}, http.DefaultClient).Dimensions())
	assert.Equal(t, 3072, (&OpenAI{config: Config{EmbeddingDimensions: 3072}}).Dimensions())
	assert.Equal(t, 0, (&OpenAI{}).Dimensions())
}
