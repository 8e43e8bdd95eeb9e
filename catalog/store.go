// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package catalog

import "context"

// Ranker orders eligible tools by cosine similarity to a query vector.
// Filters are applied before any distance is computed. Results are sorted by
// descending similarity with ties broken by insertion order, and contain at
// most topK entries.
type Ranker interface {
	RankByVector(ctx context.Context, query []float32, topK int, filters Filters) ([]RankedID, error)
}

// Reader loads catalog records.
type Reader interface {
	// GetTools returns the tools with the given ids. Unknown ids are skipped
	// and the result order is unspecified.
	GetTools(ctx context.Context, ids []string) ([]Tool, error)
	GetCategories(ctx context.Context, ids []string) ([]Category, error)
	// ListToolIDs returns ids of tools in the given status, in insertion order.
	ListToolIDs(ctx context.Context, status Status) ([]string, error)
}

// Writer mutates catalog records. UpsertTool clears the derived search fields
// so an edited tool stays out of search until UpdateEmbedding runs.
type Writer interface {
	UpsertCategory(ctx context.Context, category Category) error
	UpsertTag(ctx context.Context, tag Tag) error
	UpsertTool(ctx context.Context, tool Tool) error
	// UpdateEmbedding sets canonical text, embedding and model in one atomic
	// write, provided the tool is still at the given revision. It returns
	// ErrStaleRevision when the tool was edited in between.
	UpdateEmbedding(ctx context.Context, toolID string, revision int64, canonicalText string, embedding []float32, model string) error
}

// Store is the full catalog surface.
type Store interface {
	Ranker
	Reader
	Writer
	Ping(ctx context.Context) error
}
