// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/logger"
)

func testSummaries(ids ...string) []ToolSummary {
	summaries := make([]ToolSummary, len(ids))
	for i, id := range ids {
		summaries[i] = ToolSummary{ID: id, Name: "Tool " + id}
	}
	return summaries
}

func resultIDs(results []RerankResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ToolID
	}
	return ids
}

func TestRerank(t *testing.T) {
	summaries := testSummaries("a", "b", "c")

	tests := []struct {
		name         string
		response     string
		err          error
		wantFallback bool
		wantIDs      []string
		wantScores   []float64
	}{
		{
			name:       "array sorted by score",
			response:   `[{"toolId":"a","relevanceScore":0.4},{"toolId":"b","relevanceScore":0.9,"reasoning":"best"},{"toolId":"c","relevanceScore":0.6}]`,
			wantIDs:    []string{"b", "c", "a"},
			wantScores: []float64{0.9, 0.6, 0.4},
		},
		{
			name:       "equal scores keep model order",
			response:   `[{"toolId":"c","relevanceScore":0.5},{"toolId":"a","relevanceScore":0.5},{"toolId":"b","relevanceScore":0.5}]`,
			wantIDs:    []string{"c", "a", "b"},
			wantScores: []float64{0.5, 0.5, 0.5},
		},
		{
			name:       "wrapped in rankings object",
			response:   `{"rankings":[{"toolId":"a","relevanceScore":0.1},{"toolId":"b","relevanceScore":0.2},{"toolId":"c","relevanceScore":0.3}]}`,
			wantIDs:    []string{"c", "b", "a"},
			wantScores: []float64{0.3, 0.2, 0.1},
		},
		{
			name:         "unparseable",
			response:     "Tool b is the best.",
			wantFallback: true,
		},
		{
			name:         "drops a candidate",
			response:     `[{"toolId":"a","relevanceScore":0.4},{"toolId":"b","relevanceScore":0.9}]`,
			wantFallback: true,
		},
		{
			name:         "introduces a candidate",
			response:     `[{"toolId":"a","relevanceScore":0.4},{"toolId":"b","relevanceScore":0.9},{"toolId":"z","relevanceScore":0.6}]`,
			wantFallback: true,
		},
		{
			name:         "duplicates a candidate",
			response:     `[{"toolId":"a","relevanceScore":0.4},{"toolId":"a","relevanceScore":0.9},{"toolId":"c","relevanceScore":0.6}]`,
			wantFallback: true,
		},
		{
			name:         "object without rankings",
			response:     `{"toolId":"a","relevanceScore":0.4}`,
			wantFallback: true,
		},
		{
			name:         "provider failure",
			err:          errors.New("timeout"),
			wantFallback: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &FakeLLM{Responses: map[string]string{StageRerank: tc.response}}
			if tc.err != nil {
				fake.Errors = map[string]error{StageRerank: tc.err}
			}
			reranker := NewReranker(fake, newTestPrompts(t), 0, logger.NewNop())

			decoded := reranker.Rerank(context.Background(), WorkflowAnalysis{SearchQuery: "q"}, summaries)

			if tc.wantFallback {
				require.True(t, decoded.IsFallback())
				assert.Equal(t, []string{"a", "b", "c"}, resultIDs(decoded.Value))
				for i, r := range decoded.Value {
					assert.InDelta(t, FallbackScore(i), r.RelevanceScore, 1e-9)
					assert.Equal(t, fallbackReasoning, r.Reasoning)
				}
				return
			}

			require.False(t, decoded.IsFallback())
			assert.Equal(t, tc.wantIDs, resultIDs(decoded.Value))
			for i, r := range decoded.Value {
				assert.InDelta(t, tc.wantScores[i], r.RelevanceScore, 1e-9)
			}
		})
	}
}

func TestRerankRequest(t *testing.T) {
	fake := &FakeLLM{Responses: map[string]string{StageRerank: `[]`}}
	reranker := NewReranker(fake, newTestPrompts(t), 0, logger.NewNop())

	summaries := Summarize([]catalog.Candidate{{
		Tool: catalog.Tool{
			ID:         "t1",
			Name:       "Descript",
			Embedding:  []float32{0.5, 0.5},
			Categories: []catalog.Category{{ID: "c1", Name: "Video"}},
		},
		Similarity: 0.87,
	}})
	reranker.Rerank(context.Background(), WorkflowAnalysis{SearchQuery: "captions"}, summaries)

	calls := fake.Calls(StageRerank)
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Config.Temperature)
	assert.InDelta(t, 0.2, *calls[0].Config.Temperature, 1e-9)
	assert.Contains(t, calls[0].Prompt, `"name": "Descript"`)
	assert.Contains(t, calls[0].Prompt, `"Video"`)
	assert.NotContains(t, calls[0].Prompt, "0.87")
	assert.NotContains(t, calls[0].Prompt, "embedding")
}

func TestRerankPromptOverTokenLimit(t *testing.T) {
	fake := &FakeLLM{Responses: map[string]string{StageRerank: `[]`}, TokenLimit: 10}
	summaries := testSummaries("a", "b")

	decoded := NewReranker(fake, newTestPrompts(t), 0, logger.NewNop()).Rerank(context.Background(), WorkflowAnalysis{SearchQuery: "q"}, summaries)

	require.True(t, decoded.IsFallback())
	assert.Contains(t, decoded.Cause.Error(), "model accepts 10")
	assert.Equal(t, []string{"a", "b"}, resultIDs(decoded.Value))
	assert.Empty(t, fake.Calls(StageRerank))
}

func TestRerankEmptyInput(t *testing.T) {
	fake := &FakeLLM{}
	decoded := NewReranker(fake, newTestPrompts(t), 0, logger.NewNop()).Rerank(context.Background(), WorkflowAnalysis{}, nil)

	assert.False(t, decoded.IsFallback())
	assert.Empty(t, decoded.Value)
	assert.Empty(t, fake.Calls(StageRerank))
}

func TestFallbackScore(t *testing.T) {
	assert.InDelta(t, 1.0, FallbackScore(0), 1e-9)
	assert.InDelta(t, 0.7, FallbackScore(3), 1e-9)
	assert.InDelta(t, 0.1, FallbackScore(9), 1e-9)
	assert.InDelta(t, 0.05, FallbackScore(10), 1e-9)

	for i := 1; i < 40; i++ {
		assert.Greater(t, FallbackScore(i-1), FallbackScore(i), "index %d", i)
		assert.Greater(t, FallbackScore(i), 0.0, "index %d", i)
	}
}

func TestSummarizeOmitsScoresAndVectors(t *testing.T) {
	summaries := Summarize([]catalog.Candidate{{Tool: catalog.Tool{ID: "t1", Embedding: []float32{1}}, Similarity: 0.5}})
	data, err := json.Marshal(summaries)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"t1","name":"","description":"","strengths":[],"useCasePersonas":[],"categories":[],"tags":[]}]`, string(data))
}
