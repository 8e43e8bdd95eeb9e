// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TOOLFINDER_LLM_API_KEY
// sets llm.api_key.
const EnvPrefix = "TOOLFINDER"

// NewViper returns a viper instance with defaults and environment bindings
// for every configuration key.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Defaults())
	return v
}

// Every key needs a default for AutomaticEnv to be consulted during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database_url", d.DatabaseURL)
	v.SetDefault("listen_address", d.ListenAddress)
	v.SetDefault("admin_token", d.AdminToken)
	v.SetDefault("enable_token_usage_logging", d.EnableTokenUsageLogging)
	v.SetDefault("token_usage_log_file", d.TokenUsageLogFile)

	v.SetDefault("llm.name", d.LLM.Name)
	v.SetDefault("llm.type", d.LLM.Type)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.org_id", d.LLM.OrgID)
	v.SetDefault("llm.default_model", d.LLM.DefaultModel)
	v.SetDefault("llm.api_url", d.LLM.APIURL)
	v.SetDefault("llm.input_token_limit", d.LLM.InputTokenLimit)
	v.SetDefault("llm.streaming_timeout_seconds", d.LLM.StreamingTimeoutSeconds)
	v.SetDefault("llm.output_token_limit", d.LLM.OutputTokenLimit)
	v.SetDefault("llm.region", d.LLM.Region)
	v.SetDefault("llm.aws_access_key_id", d.LLM.AWSAccessKeyID)
	v.SetDefault("llm.aws_secret_access_key", d.LLM.AWSSecretAccessKey)

	v.SetDefault("embedding.type", d.Embedding.Type)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.api_url", d.Embedding.APIURL)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.timeout_seconds", d.Embedding.TimeoutSeconds)
	v.SetDefault("embedding.max_retries", d.Embedding.MaxRetries)
	v.SetDefault("embedding.requests_per_second", d.Embedding.RequestsPerSecond)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)

	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	v.SetDefault("cache.ttl_seconds", d.Cache.TTLSeconds)

	v.SetDefault("search.timeout_seconds", d.Search.TimeoutSeconds)
	v.SetDefault("search.default_limit", d.Search.DefaultLimit)
	v.SetDefault("search.max_limit", d.Search.MaxLimit)

	v.SetDefault("recommendation.candidate_pool_size", d.Recommendation.CandidatePoolSize)
	v.SetDefault("recommendation.result_size", d.Recommendation.ResultSize)
	v.SetDefault("recommendation.explanation_concurrency", d.Recommendation.ExplanationConcurrency)
	v.SetDefault("recommendation.completion_timeout_seconds", d.Recommendation.CompletionTimeoutSeconds)
	v.SetDefault("recommendation.prompt_version", d.Recommendation.PromptVersion)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.json", d.Log.JSON)
}

// Load reads the optional config file into v and decodes the merged result
// of defaults, file, environment and bound flags.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

// Watch reloads the config file on change and pushes valid results into the
// container. Invalid edits are reported through onError and otherwise ignored.
func Watch(v *viper.Viper, container *Container, onError func(error)) {
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := decode(v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		container.Update(cfg)
	})
	v.WatchConfig()
}
