// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go/auth/bearer"

	"github.com/geekhive/toolfinder/llm"
)

const DefaultMaxTokens = 8192

type Bedrock struct {
	client           *bedrockruntime.Client
	defaultModel     string
	inputTokenLimit  int
	outputTokenLimit int
}

// New builds a Bedrock client. Static IAM keys take precedence over a Bedrock
// console API key (bearer token); with neither, the default AWS credential
// chain applies. APIURL overrides the endpoint, e.g. for VPC endpoints.
func New(ctx context.Context, llmService llm.ServiceConfig, httpClient *http.Client) (*Bedrock, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(llmService.Region),
		config.WithHTTPClient(httpClient),
	}
	var clientOpts []func(*bedrockruntime.Options)

	switch {
	case llmService.AWSAccessKeyID != "" && llmService.AWSSecretAccessKey != "":
		static := credentials.NewStaticCredentialsProvider(llmService.AWSAccessKeyID, llmService.AWSSecretAccessKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(aws.NewCredentialsCache(static)))
	case llmService.APIKey != "":
		loadOpts = append(loadOpts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
		clientOpts = append(clientOpts, bearerAuth(llmService.APIKey))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if llmService.APIURL != "" {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(llmService.APIURL)
		})
	}

	return &Bedrock{
		client:           bedrockruntime.NewFromConfig(cfg, clientOpts...),
		defaultModel:     llmService.DefaultModel,
		inputTokenLimit:  llmService.InputTokenLimit,
		outputTokenLimit: llmService.OutputTokenLimit,
	}, nil
}

// bearerAuth makes the API key the only accepted auth scheme.
func bearerAuth(apiKey string) func(*bedrockruntime.Options) {
	return func(o *bedrockruntime.Options) {
		o.Credentials = aws.AnonymousCredentials{}
		o.BearerAuthTokenProvider = bearer.TokenProviderFunc(func(context.Context) (bearer.Token, error) {
			return bearer.Token{Value: apiKey}, nil
		})
		o.AuthSchemePreference = []string{"httpBearerAuth"}
	}
}

// conversationToMessages creates a system prompt and a slice of messages from conversation posts.
func conversationToMessages(posts []llm.Post) ([]types.SystemContentBlock, []types.Message) {
	var systemBlocks []types.SystemContentBlock
	messages := make([]types.Message, 0, len(posts))

	var currentBlocks []types.ContentBlock
	var currentRole types.ConversationRole

	flushCurrentMessage := func() {
		if len(currentBlocks) > 0 {
			messages = append(messages, types.Message{
				Role:    currentRole,
				Content: currentBlocks,
			})
			currentBlocks = nil
		}
	}

	for _, post := range posts {
		switch post.Role {
		case llm.PostRoleSystem:
			// System messages go in a separate array
			systemBlocks = append(systemBlocks, &types.SystemContentBlockMemberText{
				Value: post.Message,
			})
			continue
		case llm.PostRoleBot:
			if currentRole != types.ConversationRoleAssistant {
				flushCurrentMessage()
				currentRole = types.ConversationRoleAssistant
			}
		case llm.PostRoleUser:
			if currentRole != types.ConversationRoleUser {
				flushCurrentMessage()
				currentRole = types.ConversationRoleUser
			}
		default:
			continue
		}

		if post.Message != "" {
			currentBlocks = append(currentBlocks, &types.ContentBlockMemberText{
				Value: post.Message,
			})
		}
	}

	flushCurrentMessage()
	return systemBlocks, messages
}

func (b *Bedrock) GetDefaultConfig() llm.LanguageModelConfig {
	config := llm.LanguageModelConfig{
		Model: b.defaultModel,
	}
	if b.outputTokenLimit == 0 {
		config.MaxGeneratedTokens = DefaultMaxTokens
	} else {
		config.MaxGeneratedTokens = b.outputTokenLimit
	}
	return config
}

func (b *Bedrock) converseInput(request llm.CompletionRequest, cfg llm.LanguageModelConfig) (*bedrockruntime.ConverseInput, error) {
	system, messages := conversationToMessages(request.Posts)

	// Converse has no structured output mode; the schema goes into the system prompt.
	if cfg.JSONOutputFormat != nil {
		schema, err := json.Marshal(cfg.JSONOutputFormat)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal output schema: %w", err)
		}
		system = append(system, &types.SystemContentBlockMemberText{
			Value: "Respond with a single JSON object that conforms to this JSON schema and nothing else:\n" + string(schema),
		})
	}

	params := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(cfg.Model),
		Messages: messages,
	}

	// Only include system messages if non-empty
	if len(system) > 0 {
		params.System = system
	}

	// Check for overflow to avoid int -> int32 conversion issues
	maxTokens := cfg.MaxGeneratedTokens
	if maxTokens > math.MaxInt32 {
		return nil, fmt.Errorf("max token value (%d) exceeds int32 maximum", maxTokens)
	}
	params.InferenceConfig = &types.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(maxTokens)), //nolint:gosec // G115: Overflow checked above
	}
	if cfg.Temperature != nil {
		params.InferenceConfig.Temperature = aws.Float32(float32(*cfg.Temperature))
	}

	return params, nil
}

// ChatCompletion calls the non-streaming Converse API and replays the answer
// as a stream. The pipeline consumes whole responses only.
func (b *Bedrock) ChatCompletion(ctx context.Context, request llm.CompletionRequest, opts ...llm.LanguageModelOption) (*llm.TextStreamResult, error) {
	params, err := b.converseInput(request, llm.ApplyOptions(b.GetDefaultConfig(), opts))
	if err != nil {
		return nil, err
	}

	out, err := b.client.Converse(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("error from bedrock converse: %w", err)
	}

	var text strings.Builder
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
				text.WriteString(textBlock.Value)
			}
		}
	}

	var usage llm.TokenUsage
	if out.Usage != nil {
		usage = llm.TokenUsage{
			InputTokens:  int64(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int64(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}

	return llm.NewStreamWithUsage(text.String(), usage), nil
}

func (b *Bedrock) ChatCompletionNoStream(ctx context.Context, request llm.CompletionRequest, opts ...llm.LanguageModelOption) (string, error) {
	result, err := b.ChatCompletion(ctx, request, opts...)
	if err != nil {
		return "", err
	}
	return result.ReadAll()
}

// CountTokens estimates, since Bedrock has no counting API.
func (b *Bedrock) CountTokens(text string) int {
	return llm.EstimateTokens(text)
}

func (b *Bedrock) InputTokenLimit() int {
	if b.inputTokenLimit > 0 {
		return b.inputTokenLimit
	}
	return 200000
}
