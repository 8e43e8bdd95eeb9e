// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geekhive/toolfinder/catalog"
)

func TestMockEmbeddingProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMockEmbeddingProvider(64)

	t.Run("deterministic", func(t *testing.T) {
		a, err := p.CreateEmbedding(ctx, "Video editing and captions")
		require.NoError(t, err)
		b, err := p.CreateEmbedding(ctx, "Video editing and captions")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("unit length", func(t *testing.T) {
		v, err := p.CreateEmbedding(ctx, "some words here")
		require.NoError(t, err)
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	})

	t.Run("shared vocabulary is closer", func(t *testing.T) {
		query, _ := p.CreateEmbedding(ctx, "video editing captions")
		near, _ := p.CreateEmbedding(ctx, "AI video editing suite with captions")
		far, _ := p.CreateEmbedding(ctx, "spreadsheet accounting ledger")
		assert.Greater(t, catalog.CosineSimilarity(query, near), catalog.CosineSimilarity(query, far))
	})

	t.Run("default dimensions", func(t *testing.T) {
		assert.Equal(t, defaultMockDimensions, NewMockEmbeddingProvider(0).Dimensions())
	})
}
