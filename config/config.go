// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geekhive/toolfinder/llm"
	"github.com/geekhive/toolfinder/openai"
)

const (
	EmbeddingTypeOpenAI           = "openai"
	EmbeddingTypeOpenAICompatible = "openaicompatible"
	EmbeddingTypeMock             = "mock"
)

type Config struct {
	DatabaseURL   string `json:"databaseURL" mapstructure:"database_url"`
	ListenAddress string `json:"listenAddress" mapstructure:"listen_address"`
	// AdminToken guards the /admin routes. They are not served when empty.
	AdminToken string `json:"adminToken" mapstructure:"admin_token"`

	LLM            llm.ServiceConfig    `json:"llm" mapstructure:"llm"`
	Embedding      EmbeddingConfig      `json:"embedding" mapstructure:"embedding"`
	Cache          CacheConfig          `json:"cache" mapstructure:"cache"`
	Search         SearchConfig         `json:"search" mapstructure:"search"`
	Recommendation RecommendationConfig `json:"recommendation" mapstructure:"recommendation"`
	Log            LogConfig            `json:"log" mapstructure:"log"`

	EnableTokenUsageLogging bool   `json:"enableTokenUsageLogging" mapstructure:"enable_token_usage_logging"`
	TokenUsageLogFile       string `json:"tokenUsageLogFile" mapstructure:"token_usage_log_file"`
}

type EmbeddingConfig struct {
	Type              string  `json:"type" mapstructure:"type"`
	APIKey            string  `json:"apiKey" mapstructure:"api_key"`
	APIURL            string  `json:"apiURL" mapstructure:"api_url"`
	Model             string  `json:"model" mapstructure:"model"`
	Dimensions        int     `json:"dimensions" mapstructure:"dimensions"`
	TimeoutSeconds    int     `json:"timeoutSeconds" mapstructure:"timeout_seconds"`
	MaxRetries        int     `json:"maxRetries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `json:"requestsPerSecond" mapstructure:"requests_per_second"`
	BatchSize         int     `json:"batchSize" mapstructure:"batch_size"`
}

func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// CacheConfig enables the Redis embedding cache when RedisURL is set.
type CacheConfig struct {
	RedisURL   string `json:"redisURL" mapstructure:"redis_url"`
	TTLSeconds int    `json:"ttlSeconds" mapstructure:"ttl_seconds"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type SearchConfig struct {
	TimeoutSeconds int `json:"timeoutSeconds" mapstructure:"timeout_seconds"`
	DefaultLimit   int `json:"defaultLimit" mapstructure:"default_limit"`
	MaxLimit       int `json:"maxLimit" mapstructure:"max_limit"`
}

func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type RecommendationConfig struct {
	CandidatePoolSize        int    `json:"candidatePoolSize" mapstructure:"candidate_pool_size"`
	ResultSize               int    `json:"resultSize" mapstructure:"result_size"`
	ExplanationConcurrency   int    `json:"explanationConcurrency" mapstructure:"explanation_concurrency"`
	CompletionTimeoutSeconds int    `json:"completionTimeoutSeconds" mapstructure:"completion_timeout_seconds"`
	PromptVersion            string `json:"promptVersion" mapstructure:"prompt_version"`
}

func (r RecommendationConfig) CompletionTimeout() time.Duration {
	return time.Duration(r.CompletionTimeoutSeconds) * time.Second
}

type LogConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
	JSON  bool   `json:"json" mapstructure:"json"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		ListenAddress: ":8080",
		LLM: llm.ServiceConfig{
			Name:                    "default",
			Type:                    llm.ServiceTypeOpenAI,
			DefaultModel:            openai.DefaultModel,
			StreamingTimeoutSeconds: 30,
		},
		Embedding: EmbeddingConfig{
			Type:           EmbeddingTypeOpenAI,
			Model:          openai.DefaultEmbeddingModel,
			Dimensions:     1536,
			TimeoutSeconds: 30,
			MaxRetries:     2,
			BatchSize:      96,
		},
		Cache: CacheConfig{
			TTLSeconds: 7 * 24 * 60 * 60,
		},
		Search: SearchConfig{
			TimeoutSeconds: 10,
			DefaultLimit:   20,
			MaxLimit:       100,
		},
		Recommendation: RecommendationConfig{
			CandidatePoolSize:        20,
			ResultSize:               5,
			ExplanationConcurrency:   5,
			CompletionTimeoutSeconds: 30,
			PromptVersion:            "v1",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) Clone() *Config {
	clone, err := DeepCopyJSON(*c)
	if err != nil {
		panic(fmt.Sprintf("failed to clone configuration: %v", err))
	}

	return &clone
}

type UpdateListener func()

// Container holds the live configuration. Readers always see a complete
// snapshot; Update swaps it atomically and notifies listeners.
type Container struct {
	cfg atomic.Pointer[Config]

	listenersMu sync.Mutex
	listeners   []UpdateListener
}

func NewContainer(cfg *Config) *Container {
	c := &Container{}
	c.Update(cfg)
	return c
}

// Config returns the whole configuration readonly.
func (c *Container) Config() *Config {
	return c.cfg.Load()
}

func (c *Container) Search() SearchConfig {
	cfg := c.cfg.Load()
	if cfg == nil {
		return Defaults().Search
	}
	return cfg.Search
}

func (c *Container) Recommendation() RecommendationConfig {
	cfg := c.cfg.Load()
	if cfg == nil {
		return Defaults().Recommendation
	}
	return cfg.Recommendation
}

func (c *Container) EnableTokenUsageLogging() bool {
	cfg := c.cfg.Load()
	return cfg != nil && cfg.EnableTokenUsageLogging
}

func (c *Container) RegisterUpdateListener(listener UpdateListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Updates the current configuration
// The new configuration is deep-copied to ensure the new and old
// configurations are independent of each other.
func (c *Container) Update(newConfig *Config) {
	if newConfig == nil {
		c.cfg.Store(nil)
		return
	}
	clone, err := DeepCopyJSON(*newConfig)
	if err != nil {
		panic(fmt.Sprintf("failed to deep copy configuration: %v", err))
	}

	c.cfg.Store(&clone)

	c.listenersMu.Lock()
	listeners := append([]UpdateListener(nil), c.listeners...)
	c.listenersMu.Unlock()

	for _, listener := range listeners {
		listener()
	}
}

// DeepCopyJSON creates a deep copy of JSON-serializable structs
func DeepCopyJSON[T any](src T) (T, error) {
	var dst T
	data, err := json.Marshal(src)
	if err != nil {
		return dst, err
	}
	err = json.Unmarshal(data, &dst)
	return dst, err
}

func OpenAIConfigFromServiceConfig(serviceConfig llm.ServiceConfig) openai.Config {
	streamingTimeout := time.Second * 30
	if serviceConfig.StreamingTimeoutSeconds > 0 {
		streamingTimeout = time.Duration(serviceConfig.StreamingTimeoutSeconds) * time.Second
	}

	return openai.Config{
		APIKey:           serviceConfig.APIKey,
		APIURL:           serviceConfig.APIURL,
		OrgID:            serviceConfig.OrgID,
		DefaultModel:     serviceConfig.DefaultModel,
		InputTokenLimit:  serviceConfig.InputTokenLimit,
		OutputTokenLimit: serviceConfig.OutputTokenLimit,
		StreamingTimeout: streamingTimeout,
	}
}

// OpenAIConfigFromEmbeddingConfig maps the embedding section onto the client config.
func OpenAIConfigFromEmbeddingConfig(embeddingConfig EmbeddingConfig) openai.Config {
	return openai.Config{
		APIKey:              embeddingConfig.APIKey,
		APIURL:              embeddingConfig.APIURL,
		EmbeddingModel:      embeddingConfig.Model,
		EmbeddingDimensions: embeddingConfig.Dimensions,
	}
}
