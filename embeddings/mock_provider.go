// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	defaultMockDimensions = 256
	MockModelName         = "mock-hashed-bow"
)

// mockEmbeddingProvider generates deterministic embeddings without calling any
// upstream service. Each lowercased word is hashed into a bucket, so texts that
// share vocabulary end up close to each other.
type mockEmbeddingProvider struct {
	dimensions int
}

// NewMockEmbeddingProvider creates a mock provider producing repeatable
// unit-length vectors.
func NewMockEmbeddingProvider(dimensions int) EmbeddingProvider {
	if dimensions <= 0 {
		dimensions = defaultMockDimensions
	}

	return &mockEmbeddingProvider{
		dimensions: dimensions,
	}
}

func (m *mockEmbeddingProvider) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hashedBagOfWords(text, m.dimensions), nil
}

func (m *mockEmbeddingProvider) BatchCreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = hashedBagOfWords(text, m.dimensions)
	}

	return embeddings, nil
}

func (m *mockEmbeddingProvider) Dimensions() int {
	return m.dimensions
}

func hashedBagOfWords(text string, dims int) []float32 {
	embedding := make([]float32, dims)
	hasher := fnv.New32a()

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, word := range words {
		hasher.Reset()
		_, _ = hasher.Write([]byte(word))
		hash := hasher.Sum32()

		// The high bit picks the sign so unrelated words partly cancel out.
		sign := float32(1)
		if hash&0x80000000 != 0 {
			sign = -1
		}
		embedding[int(hash%uint32(dims))] += sign
	}

	var norm float64
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Blank text still gets a valid, non-zero vector.
		embedding[0] = 1
		return embedding
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range embedding {
		embedding[i] *= scale
	}

	return embedding
}
