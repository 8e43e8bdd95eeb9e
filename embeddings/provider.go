// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package embeddings

import "context"

// EmbeddingProvider turns text into vectors. BatchCreateEmbeddings returns
// one vector per input text, in input order.
type EmbeddingProvider interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	BatchCreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
