// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package recommend

import (
	"context"
	"strings"
	"time"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/llm"
	"github.com/geekhive/toolfinder/prompts"
)

const (
	explainerTemperature = 0.7
	explainerMaxTokens   = 200
)

// Explainer writes a short justification of why one tool fits the workflow.
type Explainer struct {
	model   llm.LanguageModel
	prompts *llm.Prompts
	timeout time.Duration
}

func NewExplainer(model llm.LanguageModel, p *llm.Prompts, timeout time.Duration) *Explainer {
	return &Explainer{
		model:   model,
		prompts: p,
		timeout: timeout,
	}
}

// Explain returns the trimmed model output, which may be empty. An error
// means no explanation is available; callers decide how to degrade.
func (e *Explainer) Explain(ctx context.Context, tool catalog.Tool, input WorkflowInput, analysis WorkflowAnalysis) (string, error) {
	primaryTasks := input.Tasks
	if len(analysis.PrimaryTasks) > 0 {
		primaryTasks = strings.Join(analysis.PrimaryTasks, ", ")
	}

	prompt, err := e.prompts.Format(prompts.PromptWhyThisFits, map[string]any{
		"toolName":        tool.Name,
		"toolDescription": tool.Description,
		"strengths":       strings.Join(tool.Strengths, ", "),
		"useCasePersonas": strings.Join(tool.UseCasePersonas, ", "),
		"userWorkflow":    input.Tasks,
		"userRole":        orDefault(input.Role, notSpecified),
		"primaryTasks":    primaryTasks,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	response, err := e.model.ChatCompletionNoStream(ctx, llm.NewUserRequest(StageExplain, prompt),
		llm.WithTemperature(explainerTemperature),
		llm.WithMaxGeneratedTokens(explainerMaxTokens),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}
