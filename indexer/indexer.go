// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package indexer keeps the derived search fields of catalog tools in step
// with the fields they are built from.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/logger"
)

const defaultBatchSize = 32

// Embedder produces vectors for many texts at once, preserving order.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type Store interface {
	catalog.Reader
	catalog.Writer
}

// Report summarizes one indexing run.
type Report struct {
	Indexed int      `json:"indexed"`
	Missing []string `json:"missing,omitempty"`
	// Skipped tools were edited while their batch was being embedded. The
	// edit cleared their derived fields, so the next stale pass picks them up.
	Skipped []string `json:"skipped,omitempty"`
}

// Indexer rebuilds canonical text and embeddings. Runs are serialized so two
// runs never race on the same tool.
type Indexer struct {
	store     Store
	embedder  Embedder
	batchSize int
	logger    logger.Logger

	mu sync.Mutex
}

func New(store Store, embedder Embedder, batchSize int, log logger.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Indexer{
		store:     store,
		embedder:  embedder,
		batchSize: batchSize,
		logger:    log,
	}
}

// ReindexTools recomputes canonical text and embedding for the given tools and
// writes each pair with one atomic update. Unknown ids are reported, not failed.
func (ix *Indexer) ReindexTools(ctx context.Context, ids []string) (Report, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	report := Report{}
	for start := 0; start < len(ids); start += ix.batchSize {
		end := min(start+ix.batchSize, len(ids))
		batch := ids[start:end]

		tools, err := ix.store.GetTools(ctx, batch)
		if err != nil {
			return report, catalog.Unavailable("load tools", err)
		}
		report.Missing = append(report.Missing, missingIDs(batch, tools)...)
		if len(tools) == 0 {
			continue
		}

		if err := ix.indexBatch(ctx, tools, &report); err != nil {
			return report, err
		}
	}

	ix.logger.Info("Reindexed tools",
		"indexed", report.Indexed,
		"missing", len(report.Missing),
		"skipped", len(report.Skipped),
		"model", ix.embedder.Model(),
	)
	return report, nil
}

// ReindexStale indexes every tool whose derived fields are absent or were
// produced by a different embedding model.
func (ix *Indexer) ReindexStale(ctx context.Context) (Report, error) {
	ids, err := ix.StaleToolIDs(ctx)
	if err != nil {
		return Report{}, err
	}
	if len(ids) == 0 {
		return Report{}, nil
	}
	return ix.ReindexTools(ctx, ids)
}

// ReindexAll rebuilds every tool regardless of its current state.
func (ix *Indexer) ReindexAll(ctx context.Context) (Report, error) {
	ids, err := ix.store.ListToolIDs(ctx, "")
	if err != nil {
		return Report{}, catalog.Unavailable("list tools", err)
	}
	return ix.ReindexTools(ctx, ids)
}

func (ix *Indexer) StaleToolIDs(ctx context.Context) ([]string, error) {
	ids, err := ix.store.ListToolIDs(ctx, "")
	if err != nil {
		return nil, catalog.Unavailable("list tools", err)
	}

	model := ix.embedder.Model()
	var stale []string
	for start := 0; start < len(ids); start += ix.batchSize {
		end := min(start+ix.batchSize, len(ids))
		tools, err := ix.store.GetTools(ctx, ids[start:end])
		if err != nil {
			return nil, catalog.Unavailable("load tools", err)
		}
		for _, tool := range tools {
			if !tool.IsIndexed() || tool.EmbeddingModel != model {
				stale = append(stale, tool.ID)
			}
		}
	}
	return stale, nil
}

func (ix *Indexer) indexBatch(ctx context.Context, tools []catalog.Tool, report *Report) error {
	started := time.Now()

	texts := make([]string, len(tools))
	for i, tool := range tools {
		texts[i] = catalog.CanonicalText(tool)
	}

	vectors, err := ix.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(tools) {
		return fmt.Errorf("embedder returned %d vectors for %d tools", len(vectors), len(tools))
	}

	model := ix.embedder.Model()
	for i, tool := range tools {
		err := ix.store.UpdateEmbedding(ctx, tool.ID, tool.Revision, texts[i], vectors[i], model)
		if errors.Is(err, catalog.ErrStaleRevision) {
			ix.logger.Debug("Tool changed during indexing, leaving it for the next pass", "tool_id", tool.ID)
			report.Skipped = append(report.Skipped, tool.ID)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to store embedding for tool %s: %w", tool.ID, err)
		}
		report.Indexed++
	}

	ix.logger.Debug("Indexed batch", "tools", len(tools), "duration", time.Since(started).String())
	return nil
}

func missingIDs(requested []string, found []catalog.Tool) []string {
	present := make(map[string]struct{}, len(found))
	for _, tool := range found {
		present[tool.ID] = struct{}{}
	}
	var missing []string
	for _, id := range requested {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
