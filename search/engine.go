// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package search ranks catalog tools against a query vector under structured
// filters and hydrates the ranked ids into full tool records.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/metrics"
)

const (
	DefaultLimit   = 20
	MaxLimit       = 100
	DefaultTimeout = 10 * time.Second
)

// ErrInvalidRequest marks a search rejected before any provider or store call.
var ErrInvalidRequest = errors.New("invalid search request")

// Embedder turns query text into a vector. Model names the embedding model so
// that only tools embedded by the same model are compared.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Store is the part of the catalog the engine reads.
type Store interface {
	catalog.Ranker
	catalog.Reader
}

type Options struct {
	Timeout      time.Duration
	DefaultLimit int
	MaxLimit     int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = DefaultLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = MaxLimit
	}
	if o.DefaultLimit > o.MaxLimit {
		o.DefaultLimit = o.MaxLimit
	}
	return o
}

// Query is a text search with optional filters.
type Query struct {
	Text    string
	Filters catalog.Filters
	// Limit defaults to Options.DefaultLimit and is capped at Options.MaxLimit.
	Limit int
}

type Engine struct {
	store    Store
	embedder Embedder
	options  atomic.Pointer[Options]
	logger   logger.Logger
	metrics  metrics.Metrics
}

func NewEngine(store Store, embedder Embedder, opts Options, log logger.Logger, m metrics.Metrics) *Engine {
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	e := &Engine{
		store:    store,
		embedder: embedder,
		logger:   log,
		metrics:  m,
	}
	e.SetOptions(opts)
	return e
}

// SetOptions replaces the limits and timeout used by subsequent searches.
func (e *Engine) SetOptions(opts Options) {
	opts = opts.withDefaults()
	e.options.Store(&opts)
}

func (e *Engine) Options() Options {
	return *e.options.Load()
}

// Model is the embedding model query vectors must come from.
func (e *Engine) Model() string {
	return e.embedder.Model()
}

// Search returns up to topK approved tools matching filters, most similar
// first. The distance computation only covers tools that already satisfy the
// filters. An empty result is not an error.
func (e *Engine) Search(ctx context.Context, vector []float32, topK int, filters catalog.Filters) ([]catalog.Candidate, error) {
	start := time.Now()
	defer func() {
		e.metrics.ObserveStageDuration("search", time.Since(start).Seconds())
	}()

	normalized, err := filters.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if topK <= 0 || len(vector) == 0 {
		return []catalog.Candidate{}, nil
	}
	normalized.EmbeddingModel = e.embedder.Model()

	ctx, cancel := context.WithTimeout(ctx, e.Options().Timeout)
	defer cancel()

	ranked, err := e.store.RankByVector(ctx, vector, topK, normalized)
	if err != nil {
		return nil, catalog.Unavailable("rank", err)
	}
	if len(ranked) == 0 {
		e.metrics.ObserveSearchResults("vector", 0)
		return []catalog.Candidate{}, nil
	}

	candidates, err := e.hydrate(ctx, ranked, normalized)
	if err != nil {
		return nil, err
	}

	e.metrics.ObserveSearchResults("vector", len(candidates))
	return candidates, nil
}

// hydrate loads the ranked tools and returns them in the ranked order. Tools
// that vanished or stopped matching between the two reads are dropped.
func (e *Engine) hydrate(ctx context.Context, ranked []catalog.RankedID, filters catalog.Filters) ([]catalog.Candidate, error) {
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ID
	}

	tools, err := e.store.GetTools(ctx, ids)
	if err != nil {
		return nil, catalog.Unavailable("hydrate", err)
	}

	byID := make(map[string]catalog.Tool, len(tools))
	for _, tool := range tools {
		byID[tool.ID] = tool
	}

	candidates := make([]catalog.Candidate, 0, len(ranked))
	for _, r := range ranked {
		tool, ok := byID[r.ID]
		if !ok || !filters.Matches(&tool) {
			e.logger.Debug("Dropping ranked tool changed during search", "tool_id", r.ID)
			continue
		}
		candidates = append(candidates, catalog.Candidate{Tool: tool, Similarity: r.Similarity})
	}
	return candidates, nil
}

// SearchText embeds the query text and runs Search with the query's limit.
func (e *Engine) SearchText(ctx context.Context, query Query) ([]catalog.Candidate, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: query text is required", ErrInvalidRequest)
	}
	if query.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidRequest)
	}
	if _, err := query.Filters.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	opts := e.Options()
	limit := query.Limit
	if limit == 0 {
		limit = opts.DefaultLimit
	}
	limit = min(limit, opts.MaxLimit)

	vector, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	return e.Search(ctx, vector, limit, query.Filters)
}
