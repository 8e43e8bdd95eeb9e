// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import (
	"errors"
	"fmt"

	"github.com/geekhive/toolfinder/llm"
	"github.com/geekhive/toolfinder/logger"
)

// Validate checks the settings every command relies on. LLM credentials are
// checked separately by ValidateLLM since search and indexing never call one.
func (c *Config) Validate() error {
	var errs []error

	switch c.Embedding.Type {
	case EmbeddingTypeOpenAI:
		if c.Embedding.APIKey == "" {
			errs = append(errs, errors.New("embedding.api_key is required for the openai embedding provider"))
		}
	case EmbeddingTypeOpenAICompatible:
		if c.Embedding.APIURL == "" {
			errs = append(errs, errors.New("embedding.api_url is required for the openaicompatible embedding provider"))
		}
	case EmbeddingTypeMock:
	default:
		errs = append(errs, fmt.Errorf("unsupported embedding type %q", c.Embedding.Type))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding.model is required"))
	}
	if c.Embedding.MaxRetries < 0 {
		errs = append(errs, errors.New("embedding.max_retries must not be negative"))
	}

	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		errs = append(errs, fmt.Errorf("search limits must satisfy 0 < default_limit (%d) <= max_limit (%d)",
			c.Search.DefaultLimit, c.Search.MaxLimit))
	}
	if c.Search.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("search.timeout_seconds must be positive"))
	}

	r := c.Recommendation
	if r.ResultSize <= 0 || r.CandidatePoolSize < r.ResultSize {
		errs = append(errs, fmt.Errorf("recommendation sizes must satisfy 0 < result_size (%d) <= candidate_pool_size (%d)",
			r.ResultSize, r.CandidatePoolSize))
	}
	if r.ExplanationConcurrency <= 0 {
		errs = append(errs, errors.New("recommendation.explanation_concurrency must be positive"))
	}
	if r.CompletionTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("recommendation.completion_timeout_seconds must be positive"))
	}
	if r.PromptVersion == "" {
		errs = append(errs, errors.New("recommendation.prompt_version is required"))
	}

	if err := logger.ValidateLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ValidateLLM checks the language model service used by the recommendation pipeline.
func (c *Config) ValidateLLM() error {
	if !llm.IsValidService(c.LLM) {
		return fmt.Errorf("llm service of type %q is missing required settings", c.LLM.Type)
	}
	return nil
}
