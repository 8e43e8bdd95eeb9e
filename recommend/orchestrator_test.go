// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/embeddings"
	"github.com/geekhive/toolfinder/llm"
	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/search"
)

type pipelineFixture struct {
	store    *catalog.MemoryStore
	embedder *embeddings.Client
	engine   *search.Engine
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	ctx := context.Background()
	store := catalog.NewMemoryStore()

	for _, c := range []catalog.Category{
		{ID: "video", Name: "Video", Slug: "video"},
		{ID: "writing", Name: "Writing", Slug: "writing"},
		{ID: "empty", Name: "Empty", Slug: "empty"},
	} {
		require.NoError(t, store.UpsertCategory(ctx, c))
	}

	tools := []struct {
		id, name, description, category string
		status                          catalog.Status
	}{
		{"clipcut", "ClipCut", "Fast video editing with timeline tools", "video", catalog.StatusApproved},
		{"captionpro", "CaptionPro", "Automatic caption generation for video", "video", catalog.StatusApproved},
		{"reelforge", "ReelForge", "Short form video editing and templates", "video", catalog.StatusApproved},
		{"subtitlebot", "SubtitleBot", "Subtitle and caption generation with translation", "video", catalog.StatusApproved},
		{"frameflow", "FrameFlow", "Collaborative video review and editing", "video", catalog.StatusApproved},
		{"voicescribe", "VoiceScribe", "Speech to text transcription", "video", catalog.StatusApproved},
		{"draftdesk", "DraftDesk", "Long form writing and editing", "writing", catalog.StatusApproved},
		{"pendingcut", "PendingCut", "Video editing and caption generation", "video", catalog.StatusPending},
	}

	client := embeddings.NewClient(embeddings.NewMockEmbeddingProvider(128), embeddings.ClientConfig{Model: embeddings.MockModelName}, logger.NewNop(), nil)
	for _, tc := range tools {
		tool := catalog.Tool{
			ID:              tc.id,
			Name:            tc.name,
			Description:     tc.description,
			Strengths:       []string{"easy to learn"},
			UseCasePersonas: []string{"creators"},
			PricingModel:    catalog.PricingFreemium,
			Status:          tc.status,
			Categories:      []catalog.Category{{ID: tc.category}},
		}
		require.NoError(t, store.UpsertTool(ctx, tool))

		stored, err := store.GetTools(ctx, []string{tc.id})
		require.NoError(t, err)
		text := catalog.CanonicalText(stored[0])
		vector, err := client.Embed(ctx, text)
		require.NoError(t, err)
		require.NoError(t, store.UpdateEmbedding(ctx, tc.id, stored[0].Revision, text, vector, client.Model()))
	}

	return &pipelineFixture{
		store:    store,
		embedder: client,
		engine:   search.NewEngine(store, client, search.Options{}, logger.NewNop(), nil),
	}
}

func (f *pipelineFixture) orchestrator(t *testing.T, model llm.LanguageModel, opts Options) *Orchestrator {
	t.Helper()
	return f.orchestratorWithTimeout(t, model, opts, 0)
}

// orchestratorWithTimeout bounds every LLM call of the pipeline by timeout.
func (f *pipelineFixture) orchestratorWithTimeout(t *testing.T, model llm.LanguageModel, opts Options, timeout time.Duration) *Orchestrator {
	t.Helper()
	p := newTestPrompts(t)
	analyzer, err := NewAnalyzer(model, p, timeout, logger.NewNop())
	require.NoError(t, err)

	return NewOrchestrator(Dependencies{
		Analyzer:      analyzer,
		Reranker:      NewReranker(model, p, timeout, logger.NewNop()),
		Explainer:     NewExplainer(model, p, timeout),
		Embedder:      f.embedder,
		Retriever:     f.engine,
		Categories:    f.store,
		PromptVersion: p.Version(),
		Logger:        logger.NewNop(),
	}, opts)
}

func recommendationIDs(recs []Recommendation) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ToolID
	}
	return ids
}

func TestRecommendDegradedPipeline(t *testing.T) {
	fixture := newPipelineFixture(t)
	fake := &FakeLLM{Responses: map[string]string{
		StageAnalyze: "Sorry, I can't produce JSON today.",
		StageRerank:  "Also not JSON.",
		StageExplain: "It handles exactly what you described.",
	}}
	input := WorkflowInput{Tasks: "I need video editing and caption generation for my channel", CategoryIDs: []string{}}

	result, err := fixture.orchestrator(t, fake, Options{}).Recommend(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, "v1", result.PromptVersion)
	assert.Equal(t, []string{StageAnalyze, StageRerank}, result.Degraded)
	require.Len(t, result.Recommendations, 5)

	// With both LLM stages degraded the order is the retrieval order for the raw tasks.
	vector, err := fixture.embedder.Embed(context.Background(), input.Tasks)
	require.NoError(t, err)
	candidates, err := fixture.engine.Search(context.Background(), vector, DefaultCandidatePoolSize, catalog.Filters{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(candidates), 5)

	for i, rec := range result.Recommendations {
		assert.Equal(t, candidates[i].Tool.ID, rec.ToolID)
		assert.Equal(t, rec.ToolID, rec.Tool.ID)
		assert.Equal(t, catalog.StatusApproved, rec.Tool.Status)
		assert.NotEmpty(t, rec.Tool.Name)
		assert.Equal(t, "It handles exactly what you described.", rec.WhyThisFits)
		assert.InDelta(t, FallbackScore(i), rec.RelevanceScore, 1e-9)
	}

	require.Len(t, fake.Calls(StageAnalyze), 1)
	assert.Len(t, fake.Calls(StageExplain), 5)
}

func TestRecommendStalledModel(t *testing.T) {
	fixture := newPipelineFixture(t)
	fake := &FakeLLM{Stall: true}
	orchestrator := fixture.orchestratorWithTimeout(t, fake, Options{}, 50*time.Millisecond)

	started := time.Now()
	result, err := orchestrator.Recommend(context.Background(),
		WorkflowInput{Tasks: "I need video editing and caption generation for my channel"})
	elapsed := time.Since(started)
	require.NoError(t, err)

	assert.Equal(t, []string{StageAnalyze, StageRerank, StageExplain}, result.Degraded)
	require.Len(t, result.Recommendations, 5)
	for i, rec := range result.Recommendations {
		assert.Empty(t, rec.WhyThisFits)
		assert.InDelta(t, FallbackScore(i), rec.RelevanceScore, 1e-9)
	}
	assert.Less(t, elapsed, 2*time.Second)

	assert.Len(t, fake.Calls(StageAnalyze), 1)
	assert.Len(t, fake.Calls(StageRerank), 1)
	assert.Len(t, fake.Calls(StageExplain), 5)
}

func TestRecommendUsesRerankOrder(t *testing.T) {
	fixture := newPipelineFixture(t)
	approved := []string{"voicescribe", "draftdesk", "frameflow", "subtitlebot", "reelforge", "captionpro", "clipcut"}

	var ranking []string
	for i, id := range approved {
		ranking = append(ranking, fmt.Sprintf(`{"toolId":%q,"relevanceScore":%.2f}`, id, 0.95-float64(i)*0.1))
	}
	fake := &FakeLLM{Responses: map[string]string{
		StageAnalyze: `{"primaryTasks":["captioning"],"inferredNeeds":[],"roleContext":"","technicalRequirements":[],"searchQuery":"caption generation"}`,
		StageRerank:  "[" + strings.Join(ranking, ",") + "]",
		StageExplain: "Good fit.",
	}}

	result, err := fixture.orchestrator(t, fake, Options{ResultSize: 3}).Recommend(context.Background(),
		WorkflowInput{Tasks: "Generate captions for interview videos"})
	require.NoError(t, err)

	assert.Empty(t, result.Degraded)
	assert.Equal(t, []string{"voicescribe", "draftdesk", "frameflow"}, recommendationIDs(result.Recommendations))
	assert.InDelta(t, 0.95, result.Recommendations[0].RelevanceScore, 1e-9)
	assert.Len(t, fake.Calls(StageExplain), 3)
}

func TestRecommendExplanationIndependence(t *testing.T) {
	fixture := newPipelineFixture(t)
	fake := &FakeLLM{}
	fake.Respond = func(call fakeCall) (string, error) {
		switch call.Operation {
		case StageAnalyze:
			return "not json", nil
		case StageRerank:
			return "not json", nil
		}
		if strings.Contains(call.Prompt, "why CaptionPro fits") {
			return "", errors.New("provider timeout")
		}
		return "Explained.", nil
	}

	result, err := fixture.orchestrator(t, fake, Options{}).Recommend(context.Background(),
		WorkflowInput{Tasks: "Automatic caption generation for video"})
	require.NoError(t, err)
	require.Len(t, result.Recommendations, 5)
	require.Contains(t, recommendationIDs(result.Recommendations), "captionpro")
	assert.Contains(t, result.Degraded, StageExplain)

	explained := 0
	for _, rec := range result.Recommendations {
		if rec.ToolID == "captionpro" {
			assert.Empty(t, rec.WhyThisFits)
			continue
		}
		assert.Equal(t, "Explained.", rec.WhyThisFits)
		explained++
	}
	assert.Equal(t, 4, explained)
}

func TestRecommendCategoryHints(t *testing.T) {
	fixture := newPipelineFixture(t)

	t.Run("hints filter retrieval and reach the prompt", func(t *testing.T) {
		fake := &FakeLLM{Responses: map[string]string{
			StageAnalyze: "not json",
			StageRerank:  "not json",
			StageExplain: "Fits.",
		}}
		result, err := fixture.orchestrator(t, fake, Options{}).Recommend(context.Background(),
			WorkflowInput{Tasks: "I write long articles every week", CategoryIDs: []string{"writing"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"draftdesk"}, recommendationIDs(result.Recommendations))
		assert.Contains(t, fake.Calls(StageAnalyze)[0].Prompt, "Preferred categories: Writing")
	})

	t.Run("no candidates returns an empty list", func(t *testing.T) {
		fake := &FakeLLM{Responses: map[string]string{StageAnalyze: "not json"}}
		result, err := fixture.orchestrator(t, fake, Options{}).Recommend(context.Background(),
			WorkflowInput{Tasks: "I write long articles every week", CategoryIDs: []string{"empty"}})
		require.NoError(t, err)
		assert.NotNil(t, result.Recommendations)
		assert.Empty(t, result.Recommendations)
		assert.Empty(t, fake.Calls(StageRerank))
		assert.Empty(t, fake.Calls(StageExplain))
	})
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, &embeddings.EmbeddingServiceError{Op: "embed", Err: errors.New("connection refused")}
}

type failingRetriever struct{}

func (failingRetriever) Search(context.Context, []float32, int, catalog.Filters) ([]catalog.Candidate, error) {
	return nil, catalog.Unavailable("rank", errors.New("database is down"))
}

func TestRecommendFailures(t *testing.T) {
	fixture := newPipelineFixture(t)
	input := WorkflowInput{Tasks: "Automatic caption generation for video"}

	t.Run("invalid input calls no provider", func(t *testing.T) {
		fake := &FakeLLM{}
		_, err := fixture.orchestrator(t, fake, Options{}).Recommend(context.Background(), WorkflowInput{Tasks: "short"})
		assert.True(t, IsInputValidation(err))
		assert.Empty(t, fake.Calls(StageAnalyze))
	})

	t.Run("embedding failure propagates", func(t *testing.T) {
		fake := &FakeLLM{Responses: map[string]string{StageAnalyze: "not json"}}
		o := fixture.orchestrator(t, fake, Options{})
		o.embedder = failingEmbedder{}

		_, err := o.Recommend(context.Background(), input)
		require.Error(t, err)
		assert.True(t, embeddings.IsServiceError(err))
	})

	t.Run("catalog failure propagates", func(t *testing.T) {
		fake := &FakeLLM{Responses: map[string]string{StageAnalyze: "not json"}}
		o := fixture.orchestrator(t, fake, Options{})
		o.retriever = failingRetriever{}

		_, err := o.Recommend(context.Background(), input)
		require.Error(t, err)
		assert.True(t, catalog.IsUnavailable(err))
		assert.Empty(t, fake.Calls(StageRerank))
	})
}
