// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package recommend

import (
	"github.com/geekhive/toolfinder/llm"
	"github.com/geekhive/toolfinder/prompts"
)

// promptVariables lists the placeholders each pipeline template must accept.
var promptVariables = map[string][]string{
	prompts.PromptWorkflowAnalysis: {"tasks", "role", "categories"},
	prompts.PromptToolRerank:       {"workflowAnalysis", "toolSummaries"},
	prompts.PromptWhyThisFits: {
		"toolName", "toolDescription", "strengths", "useCasePersonas",
		"userWorkflow", "userRole", "primaryTasks",
	},
}

// LoadPrompts loads one version of the embedded templates and checks that it
// carries every template the pipeline renders.
func LoadPrompts(version string) (*llm.Prompts, error) {
	if version == "" {
		version = prompts.LatestVersion
	}
	return llm.NewPrompts(prompts.PromptsFolder, version, promptVariables)
}
