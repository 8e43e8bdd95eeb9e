// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package recommend

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/metrics"
)

const (
	DefaultCandidatePoolSize      = 20
	DefaultResultSize             = 5
	DefaultExplanationConcurrency = 5
)

// Retriever runs the filtered vector search.
type Retriever interface {
	Search(ctx context.Context, vector []float32, topK int, filters catalog.Filters) ([]catalog.Candidate, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CategoryReader resolves category hints to names for the analysis prompt.
type CategoryReader interface {
	GetCategories(ctx context.Context, ids []string) ([]catalog.Category, error)
}

type Options struct {
	CandidatePoolSize      int
	ResultSize             int
	ExplanationConcurrency int
}

func (o Options) withDefaults() Options {
	if o.CandidatePoolSize <= 0 {
		o.CandidatePoolSize = DefaultCandidatePoolSize
	}
	if o.ResultSize <= 0 {
		o.ResultSize = DefaultResultSize
	}
	if o.ExplanationConcurrency <= 0 {
		o.ExplanationConcurrency = DefaultExplanationConcurrency
	}
	return o
}

type Orchestrator struct {
	analyzer      *Analyzer
	reranker      *Reranker
	explainer     *Explainer
	embedder      Embedder
	retriever     Retriever
	categories    CategoryReader
	promptVersion string
	options       atomic.Pointer[Options]
	logger        logger.Logger
	metrics       metrics.Metrics
}

type Dependencies struct {
	Analyzer      *Analyzer
	Reranker      *Reranker
	Explainer     *Explainer
	Embedder      Embedder
	Retriever     Retriever
	Categories    CategoryReader
	PromptVersion string
	Logger        logger.Logger
	Metrics       metrics.Metrics
}

func NewOrchestrator(deps Dependencies, opts Options) *Orchestrator {
	m := deps.Metrics
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	o := &Orchestrator{
		analyzer:      deps.Analyzer,
		reranker:      deps.Reranker,
		explainer:     deps.Explainer,
		embedder:      deps.Embedder,
		retriever:     deps.Retriever,
		categories:    deps.Categories,
		promptVersion: deps.PromptVersion,
		logger:        deps.Logger,
		metrics:       m,
	}
	o.SetOptions(opts)
	return o
}

// SetOptions replaces the pool and result sizes used by subsequent requests.
func (o *Orchestrator) SetOptions(opts Options) {
	opts = opts.withDefaults()
	o.options.Store(&opts)
}

// Recommend runs the full pipeline for one request. It fails only on invalid
// input or when embedding or retrieval is unavailable; the LLM stages fall
// back instead. An empty list means retrieval found no candidates.
func (o *Orchestrator) Recommend(ctx context.Context, input WorkflowInput) (*Result, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		o.metrics.ObserveStageDuration("recommend", time.Since(start).Seconds())
	}()

	opts := *o.options.Load()
	result := &Result{
		Recommendations: []Recommendation{},
		PromptVersion:   o.promptVersion,
	}

	categoryNames, err := o.categoryNames(ctx, input.CategoryIDs)
	if err != nil {
		return nil, err
	}

	stageStart := time.Now()
	analyzed := o.analyzer.Analyze(ctx, input, categoryNames)
	o.metrics.ObserveStageDuration(StageAnalyze, time.Since(stageStart).Seconds())
	if analyzed.IsFallback() {
		o.degrade(result, StageAnalyze, analyzed.Cause)
	}
	analysis := analyzed.Value

	stageStart = time.Now()
	vector, err := o.embedder.Embed(ctx, searchQuery(analysis, input))
	o.metrics.ObserveStageDuration(StageEmbed, time.Since(stageStart).Seconds())
	if err != nil {
		return nil, err
	}

	candidates, err := o.retriever.Search(ctx, vector, opts.CandidatePoolSize, catalog.Filters{
		Status:      catalog.StatusApproved,
		CategoryIDs: input.CategoryIDs,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return result, nil
	}

	stageStart = time.Now()
	ranked := o.reranker.Rerank(ctx, analysis, Summarize(candidates))
	o.metrics.ObserveStageDuration(StageRerank, time.Since(stageStart).Seconds())
	if ranked.IsFallback() {
		o.degrade(result, StageRerank, ranked.Cause)
	}

	byID := make(map[string]catalog.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.Tool.ID] = c
	}

	selected := ranked.Value
	if len(selected) > opts.ResultSize {
		selected = selected[:opts.ResultSize]
	}

	recommendations := make([]Recommendation, 0, len(selected))
	for _, r := range selected {
		c, ok := byID[r.ToolID]
		if !ok {
			continue
		}
		recommendations = append(recommendations, Recommendation{
			ToolID:         c.Tool.ID,
			Tool:           c.Tool,
			RelevanceScore: r.RelevanceScore,
		})
	}

	if failed := o.explainAll(ctx, recommendations, input, analysis, opts.ExplanationConcurrency); failed > 0 {
		result.Degraded = append(result.Degraded, StageExplain)
	}

	result.Recommendations = recommendations
	return result, nil
}

func (o *Orchestrator) categoryNames(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 || o.categories == nil {
		return nil, nil
	}
	categories, err := o.categories.GetCategories(ctx, ids)
	if err != nil {
		return nil, catalog.Unavailable("get categories", err)
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	return names, nil
}

// explainAll fills WhyThisFits in place. Each call is independent: a failure
// leaves that entry empty and does not affect the others. It returns the
// number of failed calls.
func (o *Orchestrator) explainAll(ctx context.Context, recommendations []Recommendation, input WorkflowInput, analysis WorkflowAnalysis, concurrency int) int {
	start := time.Now()
	defer func() {
		o.metrics.ObserveStageDuration(StageExplain, time.Since(start).Seconds())
	}()

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i := range recommendations {
		g.Go(func() error {
			rec := &recommendations[i]
			text, err := o.explainer.Explain(ctx, rec.Tool, input, analysis)
			if err != nil {
				failed.Add(1)
				o.metrics.IncrementFallback(StageExplain)
				o.logger.Warn("Explanation unavailable", "tool_id", rec.ToolID, "error", err)
				return nil
			}
			rec.WhyThisFits = text
			return nil
		})
	}
	_ = g.Wait()

	return int(failed.Load())
}

func (o *Orchestrator) degrade(result *Result, stage string, cause error) {
	result.Degraded = append(result.Degraded, stage)
	o.metrics.IncrementFallback(stage)
	o.logger.Warn("Stage fell back to default", "stage", stage, "error", cause)
}
