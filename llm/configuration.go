// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

const (
	ServiceTypeOpenAI           = "openai"
	ServiceTypeOpenAICompatible = "openaicompatible"
	ServiceTypeAzure            = "azure"
	ServiceTypeAnthropic        = "anthropic"
	ServiceTypeBedrock          = "bedrock"
)

type ServiceConfig struct {
	Name         string `json:"name" mapstructure:"name"`
	Type         string `json:"type" mapstructure:"type"`
	APIKey       string `json:"apiKey" mapstructure:"api_key"`
	OrgID        string `json:"orgId" mapstructure:"org_id"`
	DefaultModel string `json:"defaultModel" mapstructure:"default_model"`
	APIURL       string `json:"apiURL" mapstructure:"api_url"`

	InputTokenLimit         int `json:"inputTokenLimit" mapstructure:"input_token_limit"`
	StreamingTimeoutSeconds int `json:"streamingTimeoutSeconds" mapstructure:"streaming_timeout_seconds"`

	// Otherwise known as maxTokens
	OutputTokenLimit int `json:"outputTokenLimit" mapstructure:"output_token_limit"`

	// Bedrock only
	Region             string `json:"region" mapstructure:"region"`
	AWSAccessKeyID     string `json:"awsAccessKeyID" mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `json:"awsSecretAccessKey" mapstructure:"aws_secret_access_key"`
}

// IsValidService validates a service configuration
func IsValidService(service ServiceConfig) bool {
	if service.Type == "" {
		return false
	}

	switch service.Type {
	case ServiceTypeOpenAI:
		return service.APIKey != ""
	case ServiceTypeOpenAICompatible:
		return service.APIURL != ""
	case ServiceTypeAzure:
		return service.APIKey != "" && service.APIURL != ""
	case ServiceTypeAnthropic:
		return service.APIKey != ""
	case ServiceTypeBedrock:
		return service.Region != ""
	default:
		return false
	}
}
