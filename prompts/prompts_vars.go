// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package prompts

// Automatically generated convenience vars for the filenames in prompts/
const (
	PromptToolRerank       = "tool_rerank"
	PromptWhyThisFits      = "why_this_fits"
	PromptWorkflowAnalysis = "workflow_analysis"
)
