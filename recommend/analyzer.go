// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package recommend

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/geekhive/toolfinder/llm"
	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/prompts"
)

const (
	analyzerTemperature = 0.3
	notSpecified        = "Not specified"
)

// Analyzer extracts a WorkflowAnalysis from free text.
type Analyzer struct {
	model   llm.LanguageModel
	prompts *llm.Prompts
	schema  *jsonschema.Schema
	timeout time.Duration
	logger  logger.Logger
}

func NewAnalyzer(model llm.LanguageModel, p *llm.Prompts, timeout time.Duration, log logger.Logger) (*Analyzer, error) {
	schema, err := jsonschema.For[WorkflowAnalysis](nil)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		model:   model,
		prompts: p,
		schema:  schema,
		timeout: timeout,
		logger:  log,
	}, nil
}

// Analyze never fails. Unusable model output yields the minimal analysis that
// searches with the raw task text.
func (a *Analyzer) Analyze(ctx context.Context, input WorkflowInput, categoryNames []string) llm.Decoded[WorkflowAnalysis] {
	fallback := func() WorkflowAnalysis { return minimalAnalysis(input) }

	prompt, err := a.prompts.Format(prompts.PromptWorkflowAnalysis, map[string]any{
		"tasks":      input.Tasks,
		"role":       orDefault(input.Role, notSpecified),
		"categories": orDefault(strings.Join(categoryNames, ", "), "None"),
	})
	if err != nil {
		return llm.FallbackValue(fallback(), err)
	}

	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	response, err := a.model.ChatCompletionNoStream(ctx, llm.NewUserRequest(StageAnalyze, prompt),
		llm.WithTemperature(analyzerTemperature),
		llm.WithJSONOutput(a.schema),
	)
	if err != nil {
		return llm.FallbackValue(fallback(), err)
	}

	return llm.DecodeJSON(response, validateAnalysis, fallback)
}

func validateAnalysis(analysis *WorkflowAnalysis) error {
	analysis.SearchQuery = strings.TrimSpace(analysis.SearchQuery)
	analysis.PrimaryTasks = nonEmpty(analysis.PrimaryTasks)
	analysis.InferredNeeds = nonEmpty(analysis.InferredNeeds)
	analysis.TechnicalRequirements = nonEmpty(analysis.TechnicalRequirements)
	if analysis.SearchQuery == "" && len(analysis.PrimaryTasks) == 0 {
		return errors.New("analysis has neither a search query nor primary tasks")
	}
	return nil
}

// minimalAnalysis carries only the raw input: the tasks become the search query.
func minimalAnalysis(input WorkflowInput) WorkflowAnalysis {
	return WorkflowAnalysis{
		PrimaryTasks:          []string{},
		InferredNeeds:         []string{},
		RoleContext:           input.Role,
		TechnicalRequirements: []string{},
		SearchQuery:           input.Tasks,
	}
}

// searchQuery is the text embedded for retrieval.
func searchQuery(analysis WorkflowAnalysis, input WorkflowInput) string {
	if q := strings.TrimSpace(analysis.SearchQuery); q != "" {
		return q
	}
	if len(analysis.PrimaryTasks) > 0 {
		return strings.Join(analysis.PrimaryTasks, ", ")
	}
	return input.Tasks
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// withTimeout bounds one provider call. A zero timeout leaves ctx unchanged.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
