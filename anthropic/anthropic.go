// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/geekhive/toolfinder/llm"
)

const (
	DefaultModel     = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens = 8192
)

type Anthropic struct {
	client           anthropicSDK.Client
	defaultModel     string
	inputTokenLimit  int
	outputTokenLimit int
}

func New(llmService llm.ServiceConfig, httpClient *http.Client) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(llmService.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if llmService.APIURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(llmService.APIURL, "/")+"/"))
	}

	defaultModel := llmService.DefaultModel
	if defaultModel == "" {
		defaultModel = DefaultModel
	}

	return &Anthropic{
		client:           anthropicSDK.NewClient(opts...),
		defaultModel:     defaultModel,
		inputTokenLimit:  llmService.InputTokenLimit,
		outputTokenLimit: llmService.OutputTokenLimit,
	}
}

// conversationToMessages splits the system prompt out of the conversation and
// merges consecutive posts from the same role into a single message.
func conversationToMessages(posts []llm.Post) (string, []anthropicSDK.MessageParam) {
	var system []string
	messages := make([]anthropicSDK.MessageParam, 0, len(posts))

	var currentBlocks []anthropicSDK.ContentBlockParamUnion
	var currentRole anthropicSDK.MessageParamRole

	flushCurrentMessage := func() {
		if len(currentBlocks) > 0 {
			messages = append(messages, anthropicSDK.MessageParam{
				Role:    currentRole,
				Content: currentBlocks,
			})
			currentBlocks = nil
		}
	}

	for _, post := range posts {
		switch post.Role {
		case llm.PostRoleSystem:
			system = append(system, post.Message)
			continue
		case llm.PostRoleBot:
			if currentRole != anthropicSDK.MessageParamRoleAssistant {
				flushCurrentMessage()
				currentRole = anthropicSDK.MessageParamRoleAssistant
			}
		case llm.PostRoleUser:
			if currentRole != anthropicSDK.MessageParamRoleUser {
				flushCurrentMessage()
				currentRole = anthropicSDK.MessageParamRoleUser
			}
		default:
			continue
		}

		if post.Message != "" {
			currentBlocks = append(currentBlocks, anthropicSDK.NewTextBlock(post.Message))
		}
	}

	flushCurrentMessage()
	return strings.Join(system, "\n\n"), messages
}

func (a *Anthropic) GetDefaultConfig() llm.LanguageModelConfig {
	config := llm.LanguageModelConfig{
		Model: a.defaultModel,
	}
	if a.outputTokenLimit == 0 {
		config.MaxGeneratedTokens = DefaultMaxTokens
	} else {
		config.MaxGeneratedTokens = a.outputTokenLimit
	}
	return config
}

// messageParams builds the request. The Messages API has no structured
// output mode, so a requested schema is appended to the system prompt.
func (a *Anthropic) messageParams(request llm.CompletionRequest, cfg llm.LanguageModelConfig) (anthropicSDK.MessageNewParams, error) {
	system, messages := conversationToMessages(request.Posts)

	if cfg.JSONOutputFormat != nil {
		schema, err := json.Marshal(cfg.JSONOutputFormat)
		if err != nil {
			return anthropicSDK.MessageNewParams{}, fmt.Errorf("failed to marshal output schema: %w", err)
		}
		instruction := "Respond with a single JSON object that conforms to this JSON schema and nothing else:\n" + string(schema)
		if system != "" {
			system += "\n\n"
		}
		system += instruction
	}

	params := anthropicSDK.MessageNewParams{
		Model:     anthropicSDK.Model(cfg.Model),
		MaxTokens: int64(cfg.MaxGeneratedTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropicSDK.TextBlockParam{{Text: system}}
	}
	if cfg.Temperature != nil {
		params.Temperature = anthropicSDK.Float(*cfg.Temperature)
	}

	return params, nil
}

func (a *Anthropic) streamChat(ctx context.Context, params anthropicSDK.MessageNewParams, output chan<- llm.TextStreamEvent) {
	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropicSDK.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			output <- llm.TextStreamEvent{
				Type:  llm.EventTypeError,
				Value: fmt.Errorf("error accumulating message: %w", err),
			}
			return
		}

		switch eventVariant := event.AsAny().(type) { //nolint:gocritic
		case anthropicSDK.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) { //nolint:gocritic
			case anthropicSDK.TextDelta:
				output <- llm.TextStreamEvent{
					Type:  llm.EventTypeText,
					Value: deltaVariant.Text,
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		output <- llm.TextStreamEvent{
			Type:  llm.EventTypeError,
			Value: fmt.Errorf("error from anthropic stream: %w", err),
		}
		return
	}

	output <- llm.TextStreamEvent{
		Type: llm.EventTypeUsage,
		Value: llm.TokenUsage{
			InputTokens:  message.Usage.InputTokens,
			OutputTokens: message.Usage.OutputTokens,
		},
	}

	output <- llm.TextStreamEvent{
		Type:  llm.EventTypeEnd,
		Value: nil,
	}
}

func (a *Anthropic) ChatCompletion(ctx context.Context, request llm.CompletionRequest, opts ...llm.LanguageModelOption) (*llm.TextStreamResult, error) {
	params, err := a.messageParams(request, llm.ApplyOptions(a.GetDefaultConfig(), opts))
	if err != nil {
		return nil, err
	}

	eventStream := make(chan llm.TextStreamEvent)
	go func() {
		defer close(eventStream)
		a.streamChat(ctx, params, eventStream)
	}()

	return &llm.TextStreamResult{Stream: eventStream}, nil
}

func (a *Anthropic) ChatCompletionNoStream(ctx context.Context, request llm.CompletionRequest, opts ...llm.LanguageModelOption) (string, error) {
	// This could perform better if we didn't use the streaming API here, but the complexity is not worth it.
	result, err := a.ChatCompletion(ctx, request, opts...)
	if err != nil {
		return "", err
	}
	return result.ReadAll()
}

// CountTokens approximates at four characters per token.
func (a *Anthropic) CountTokens(text string) int {
	return (len(text) + 3) / 4
}

func (a *Anthropic) InputTokenLimit() int {
	if a.inputTokenLimit > 0 {
		return a.inputTokenLimit
	}
	return 100000
}
