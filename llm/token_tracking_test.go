// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/metrics"
)

// MockLanguageModel is a mock implementation of the LanguageModel interface
type MockLanguageModel struct {
	mock.Mock
}

func (m *MockLanguageModel) ChatCompletion(ctx context.Context, request CompletionRequest, opts ...LanguageModelOption) (*TextStreamResult, error) {
	args := m.Called(request, opts)
	result, _ := args.Get(0).(*TextStreamResult)
	return result, args.Error(1)
}

func (m *MockLanguageModel) ChatCompletionNoStream(ctx context.Context, request CompletionRequest, opts ...LanguageModelOption) (string, error) {
	args := m.Called(request, opts)
	return args.String(0), args.Error(1)
}

func (m *MockLanguageModel) CountTokens(text string) int {
	args := m.Called(text)
	return args.Int(0)
}

func (m *MockLanguageModel) InputTokenLimit() int {
	args := m.Called()
	return args.Int(0)
}

type recordingMetrics struct {
	metrics.NoopMetrics
	stage  string
	input  int
	output int
}

func (r *recordingMetrics) ObserveTokenUsage(llmName, stage string, inputTokens, outputTokens int) {
	r.stage = stage
	r.input = inputTokens
	r.output = outputTokens
}

func TestTokenTrackingWrapper_ChatCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("filters usage events from stream", func(t *testing.T) {
		mockLLM := &MockLanguageModel{}
		rec := &recordingMetrics{}
		wrapper := NewTokenUsageLoggingWrapper(mockLLM, "openai", logger.NewNop(), rec)

		mockStream := make(chan TextStreamEvent, 3)
		mockStream <- TextStreamEvent{Type: EventTypeText, Value: "Hello"}
		mockStream <- TextStreamEvent{Type: EventTypeUsage, Value: TokenUsage{InputTokens: 10, OutputTokens: 5}}
		mockStream <- TextStreamEvent{Type: EventTypeEnd, Value: nil}
		close(mockStream)

		mockLLM.On("ChatCompletion", mock.Anything, mock.Anything).Return(&TextStreamResult{Stream: mockStream}, nil)

		result, err := wrapper.ChatCompletion(ctx, NewUserRequest("rerank", "prompt"))
		require.NoError(t, err)

		var events []TextStreamEvent
		for event := range result.Stream {
			events = append(events, event)
		}

		require.Len(t, events, 2)
		assert.Equal(t, EventTypeText, events[0].Type)
		assert.Equal(t, "Hello", events[0].Value)
		assert.Equal(t, EventTypeEnd, events[1].Type)

		assert.Equal(t, "rerank", rec.stage)
		assert.Equal(t, 10, rec.input)
		assert.Equal(t, 5, rec.output)
		mockLLM.AssertExpectations(t)
	})

	t.Run("handles invalid usage event value", func(t *testing.T) {
		mockLLM := &MockLanguageModel{}
		rec := &recordingMetrics{}
		wrapper := NewTokenUsageLoggingWrapper(mockLLM, "openai", logger.NewNop(), rec)

		mockStream := make(chan TextStreamEvent, 2)
		mockStream <- TextStreamEvent{Type: EventTypeUsage, Value: "invalid_value"}
		mockStream <- TextStreamEvent{Type: EventTypeEnd, Value: nil}
		close(mockStream)

		mockLLM.On("ChatCompletion", mock.Anything, mock.Anything).Return(&TextStreamResult{Stream: mockStream}, nil)

		result, err := wrapper.ChatCompletion(ctx, CompletionRequest{})
		require.NoError(t, err)

		var events []TextStreamEvent
		for event := range result.Stream {
			events = append(events, event)
		}

		assert.Len(t, events, 1)
		assert.Empty(t, rec.stage)
	})

	t.Run("propagates provider errors", func(t *testing.T) {
		mockLLM := &MockLanguageModel{}
		wrapper := NewTokenUsageLoggingWrapper(mockLLM, "openai", logger.NewNop(), nil)
		mockLLM.On("ChatCompletion", mock.Anything, mock.Anything).Return(nil, errors.New("unavailable"))

		_, err := wrapper.ChatCompletion(ctx, CompletionRequest{})
		require.EqualError(t, err, "unavailable")
	})

	t.Run("nil token logger is an error", func(t *testing.T) {
		wrapper := NewTokenUsageLoggingWrapper(&MockLanguageModel{}, "openai", nil, nil)
		_, err := wrapper.ChatCompletion(ctx, CompletionRequest{})
		require.Error(t, err)
	})
}

func TestTokenTrackingWrapper_ChatCompletionNoStream(t *testing.T) {
	mockLLM := &MockLanguageModel{}
	wrapper := NewTokenUsageLoggingWrapper(mockLLM, "openai", logger.NewNop(), &metrics.NoopMetrics{})

	mockLLM.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(NewStreamWithUsage("Hello world", TokenUsage{InputTokens: 3, OutputTokens: 2}), nil)

	text, err := wrapper.ChatCompletionNoStream(context.Background(), NewUserRequest("explain", "p"))
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)

	mockLLM.On("CountTokens", "abc").Return(7)
	mockLLM.On("InputTokenLimit").Return(1000)
	assert.Equal(t, 7, wrapper.CountTokens("abc"))
	assert.Equal(t, 1000, wrapper.InputTokenLimit())
}

func TestReadAll(t *testing.T) {
	t.Run("concatenates text", func(t *testing.T) {
		stream := make(chan TextStreamEvent, 3)
		stream <- TextStreamEvent{Type: EventTypeText, Value: "a"}
		stream <- TextStreamEvent{Type: EventTypeText, Value: "b"}
		stream <- TextStreamEvent{Type: EventTypeEnd}
		close(stream)
		text, err := (&TextStreamResult{Stream: stream}).ReadAll()
		require.NoError(t, err)
		assert.Equal(t, "ab", text)
	})

	t.Run("returns first error", func(t *testing.T) {
		stream := make(chan TextStreamEvent, 3)
		stream <- TextStreamEvent{Type: EventTypeText, Value: "partial"}
		stream <- TextStreamEvent{Type: EventTypeError, Value: errors.New("timeout streaming")}
		stream <- TextStreamEvent{Type: EventTypeEnd}
		close(stream)
		_, err := (&TextStreamResult{Stream: stream}).ReadAll()
		require.EqualError(t, err, "timeout streaming")
	})
}
