// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"context"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

type PostRole int

const (
	PostRoleUser PostRole = iota
	PostRoleBot
	PostRoleSystem
)

// Post is one message of a completion request.
type Post struct {
	Role    PostRole
	Message string
}

// CompletionRequest is a single-turn prompt. Operation names the pipeline
// stage issuing it and is only used for logging and metrics.
type CompletionRequest struct {
	Posts     []Post
	Operation string
}

// NewUserRequest builds a request carrying one user message.
func NewUserRequest(operation, prompt string) CompletionRequest {
	return CompletionRequest{
		Operation: operation,
		Posts:     []Post{{Role: PostRoleUser, Message: prompt}},
	}
}

// LanguageModel is a text-generation provider.
type LanguageModel interface {
	ChatCompletion(ctx context.Context, request CompletionRequest, opts ...LanguageModelOption) (*TextStreamResult, error)
	ChatCompletionNoStream(ctx context.Context, request CompletionRequest, opts ...LanguageModelOption) (string, error)

	CountTokens(text string) int
	InputTokenLimit() int
}

type LanguageModelConfig struct {
	Model              string
	MaxGeneratedTokens int
	// Temperature is left to the provider default when nil.
	Temperature *float64
	// JSONOutputFormat asks providers that support structured output to
	// constrain the response to this schema.
	JSONOutputFormat *jsonschema.Schema
}

type LanguageModelOption func(*LanguageModelConfig)

func WithMaxGeneratedTokens(maxGeneratedTokens int) LanguageModelOption {
	return func(cfg *LanguageModelConfig) {
		cfg.MaxGeneratedTokens = maxGeneratedTokens
	}
}

func WithTemperature(temperature float64) LanguageModelOption {
	return func(cfg *LanguageModelConfig) {
		cfg.Temperature = &temperature
	}
}

func WithJSONOutput(schema *jsonschema.Schema) LanguageModelOption {
	return func(cfg *LanguageModelConfig) {
		cfg.JSONOutputFormat = schema
	}
}

// ApplyOptions returns defaults with opts applied in order.
func ApplyOptions(defaults LanguageModelConfig, opts []LanguageModelOption) LanguageModelConfig {
	cfg := defaults
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// EstimateTokens approximates a token count for providers without a counting
// API, averaging a characters/4 and a words/0.75 estimate.
func EstimateTokens(text string) int {
	chars := float64(len(text)) / 4.0
	words := float64(len(strings.Fields(text))) / 0.75
	return int((chars + words) / 2.0)
}
