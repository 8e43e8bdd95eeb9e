// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/llm"
	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/prompts"
)

const (
	rerankerTemperature = 0.2
	fallbackReasoning   = "Ranked by semantic similarity"
)

// ToolSummary is the view of a candidate shown to the re-ranker. It never
// carries the embedding or the similarity score.
type ToolSummary struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Strengths       []string `json:"strengths"`
	UseCasePersonas []string `json:"useCasePersonas"`
	Categories      []string `json:"categories"`
	Tags            []string `json:"tags"`
}

func Summarize(candidates []catalog.Candidate) []ToolSummary {
	summaries := make([]ToolSummary, len(candidates))
	for i, c := range candidates {
		summaries[i] = ToolSummary{
			ID:              c.Tool.ID,
			Name:            c.Tool.Name,
			Description:     c.Tool.Description,
			Strengths:       nonNilStrings(c.Tool.Strengths),
			UseCasePersonas: nonNilStrings(c.Tool.UseCasePersonas),
			Categories:      c.Tool.CategoryNames(),
			Tags:            c.Tool.TagNames(),
		}
	}
	return summaries
}

// Reranker orders candidates against a WorkflowAnalysis.
type Reranker struct {
	model   llm.LanguageModel
	prompts *llm.Prompts
	timeout time.Duration
	logger  logger.Logger
}

func NewReranker(model llm.LanguageModel, p *llm.Prompts, timeout time.Duration, log logger.Logger) *Reranker {
	return &Reranker{
		model:   model,
		prompts: p,
		timeout: timeout,
		logger:  log,
	}
}

// Rerank returns exactly one result per summary, best first. When the model
// output is unusable or does not cover the input exactly, the input order is
// kept with synthesized, strictly decreasing scores.
func (r *Reranker) Rerank(ctx context.Context, analysis WorkflowAnalysis, summaries []ToolSummary) llm.Decoded[[]RerankResult] {
	fallback := func() []RerankResult { return fallbackRanking(summaries) }
	if len(summaries) == 0 {
		return llm.ParsedValue([]RerankResult{})
	}

	analysisJSON, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return llm.FallbackValue(fallback(), err)
	}
	summariesJSON, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return llm.FallbackValue(fallback(), err)
	}

	prompt, err := r.prompts.Format(prompts.PromptToolRerank, map[string]any{
		"workflowAnalysis": string(analysisJSON),
		"toolSummaries":    string(summariesJSON),
	})
	if err != nil {
		return llm.FallbackValue(fallback(), err)
	}
	if tokens, limit := r.model.CountTokens(prompt), r.model.InputTokenLimit(); limit > 0 && tokens > limit {
		return llm.FallbackValue(fallback(), fmt.Errorf("rerank prompt needs about %d tokens, model accepts %d", tokens, limit))
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	// No schema option: a top-level array is not accepted as a structured
	// output format, so the prompt alone asks for the array.
	response, err := r.model.ChatCompletionNoStream(ctx, llm.NewUserRequest(StageRerank, prompt),
		llm.WithTemperature(rerankerTemperature),
	)
	if err != nil {
		return llm.FallbackValue(fallback(), err)
	}

	decoded := llm.DecodeJSON(response, func(results *rerankPayload) error {
		return validateRanking(results.Results, summaries)
	}, func() rerankPayload { return rerankPayload{Results: fallback()} })

	results := decoded.Value.Results
	if !decoded.IsFallback() {
		slices.SortStableFunc(results, func(a, b RerankResult) int {
			switch {
			case a.RelevanceScore > b.RelevanceScore:
				return -1
			case a.RelevanceScore < b.RelevanceScore:
				return 1
			}
			return 0
		})
	}
	return llm.Decoded[[]RerankResult]{Value: results, Outcome: decoded.Outcome, Cause: decoded.Cause}
}

// rerankPayload accepts either a bare array or an object wrapping it under
// "rankings", which some providers produce in JSON mode.
type rerankPayload struct {
	Results []RerankResult
}

func (p *rerankPayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Rankings []RerankResult `json:"rankings"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		if wrapped.Rankings == nil {
			return fmt.Errorf("object has no rankings array")
		}
		p.Results = wrapped.Rankings
		return nil
	}
	return json.Unmarshal(data, &p.Results)
}

// validateRanking requires a one-to-one mapping between results and summaries.
func validateRanking(results []RerankResult, summaries []ToolSummary) error {
	if len(results) != len(summaries) {
		return fmt.Errorf("got %d rankings for %d candidates", len(results), len(summaries))
	}

	expected := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		expected[s.ID] = false
	}
	for _, result := range results {
		seen, ok := expected[result.ToolID]
		if !ok {
			return fmt.Errorf("ranking names unknown tool %q", result.ToolID)
		}
		if seen {
			return fmt.Errorf("ranking names tool %q twice", result.ToolID)
		}
		if math.IsNaN(result.RelevanceScore) || math.IsInf(result.RelevanceScore, 0) {
			return fmt.Errorf("ranking for tool %q has a non-finite score", result.ToolID)
		}
		expected[result.ToolID] = true
	}
	return nil
}

func fallbackRanking(summaries []ToolSummary) []RerankResult {
	results := make([]RerankResult, len(summaries))
	for i, s := range summaries {
		results[i] = RerankResult{
			ToolID:         s.ID,
			RelevanceScore: FallbackScore(i),
			Reasoning:      fallbackReasoning,
		}
	}
	return results
}

// FallbackScore is the synthesized relevance of the candidate at index i.
// It decreases by 0.1 per position down to 0.1 at index 9, then halves per
// position, so it stays positive and strictly decreasing.
func FallbackScore(i int) float64 {
	if i < 0 {
		i = 0
	}
	if i <= 9 {
		return math.Round((1-float64(i)*0.1)*10) / 10
	}
	return 0.1 / math.Pow(2, float64(i-9))
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
