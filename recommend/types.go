// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package recommend turns a free-text workflow description into a short list
// of catalog tools. Each request runs analysis, retrieval, re-ranking and
// explanation in sequence, and the LLM stages degrade to defined fallbacks
// instead of failing the request.
package recommend

import (
	"github.com/geekhive/toolfinder/catalog"
)

// WorkflowInput is what the user submitted. It is not modified by the pipeline.
type WorkflowInput struct {
	Tasks       string   `json:"tasks"`
	Role        string   `json:"role,omitempty"`
	CategoryIDs []string `json:"categoryIds,omitempty"`
}

// WorkflowAnalysis is the structured intent extracted from a WorkflowInput.
type WorkflowAnalysis struct {
	PrimaryTasks          []string `json:"primaryTasks" jsonschema:"the main tasks the user performs, most important first"`
	InferredNeeds         []string `json:"inferredNeeds" jsonschema:"capabilities needed but not named explicitly"`
	RoleContext           string   `json:"roleContext" jsonschema:"the user's role and its constraints"`
	TechnicalRequirements []string `json:"technicalRequirements" jsonschema:"integrations, platforms, APIs or compliance needs"`
	SearchQuery           string   `json:"searchQuery" jsonschema:"one dense sentence describing the ideal tool"`
}

// RerankResult is the re-ranker's verdict on one candidate. RelevanceScore is
// model assigned and not comparable with vector similarity.
type RerankResult struct {
	ToolID         string  `json:"toolId"`
	RelevanceScore float64 `json:"relevanceScore"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

// Recommendation is one entry of the final answer. WhyThisFits is empty when
// no explanation could be generated.
type Recommendation struct {
	ToolID         string       `json:"toolId"`
	Tool           catalog.Tool `json:"tool"`
	WhyThisFits    string       `json:"whyThisFits"`
	RelevanceScore float64      `json:"relevanceScore"`
}

// Result is the outcome of one recommendation request.
type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	// PromptVersion names the template set that produced this result.
	PromptVersion string `json:"promptVersion"`
	// Degraded lists the stages that fell back to a default.
	Degraded []string `json:"degraded,omitempty"`
}

// Stage names used in logs, metrics and Result.Degraded.
const (
	StageAnalyze = "analyze"
	StageEmbed   = "embed"
	StageSearch  = "search"
	StageRerank  = "rerank"
	StageExplain = "explain"
)
