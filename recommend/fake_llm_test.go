// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package recommend

import (
	"context"
	"fmt"
	"sync"

	"github.com/geekhive/toolfinder/llm"
)

type fakeCall struct {
	Operation string
	Prompt    string
	Config    llm.LanguageModelConfig
}

// FakeLLM is a test implementation of llm.LanguageModel. Responses are keyed by
// the request operation; Respond, when set, takes precedence.
type FakeLLM struct {
	Responses map[string]string
	Errors    map[string]error
	Respond   func(call fakeCall) (string, error)
	// TokenLimit overrides the reported input token limit when positive.
	TokenLimit int
	// Stall makes every call block until its context is done.
	Stall bool

	mu    sync.Mutex
	calls []fakeCall
}

func (f *FakeLLM) ChatCompletion(ctx context.Context, request llm.CompletionRequest, opts ...llm.LanguageModelOption) (*llm.TextStreamResult, error) {
	text, err := f.ChatCompletionNoStream(ctx, request, opts...)
	if err != nil {
		return nil, err
	}
	return llm.NewStreamFromString(text), nil
}

func (f *FakeLLM) ChatCompletionNoStream(ctx context.Context, request llm.CompletionRequest, opts ...llm.LanguageModelOption) (string, error) {
	call := fakeCall{
		Operation: request.Operation,
		Config:    llm.ApplyOptions(llm.LanguageModelConfig{}, opts),
	}
	if len(request.Posts) > 0 {
		call.Prompt = request.Posts[len(request.Posts)-1].Message
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.Stall {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.Respond != nil {
		return f.Respond(call)
	}
	if err, ok := f.Errors[request.Operation]; ok {
		return "", err
	}
	if response, ok := f.Responses[request.Operation]; ok {
		return response, nil
	}
	return "", fmt.Errorf("no scripted response for %s", request.Operation)
}

func (f *FakeLLM) CountTokens(text string) int {
	return len(text) / 4
}

func (f *FakeLLM) InputTokenLimit() int {
	if f.TokenLimit > 0 {
		return f.TokenLimit
	}
	return 128000
}

func (f *FakeLLM) Calls(operation string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var calls []fakeCall
	for _, c := range f.calls {
		if c.Operation == operation {
			calls = append(calls, c)
		}
	}
	return calls
}
