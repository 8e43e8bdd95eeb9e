// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/config"
	"github.com/geekhive/toolfinder/embeddings"
	"github.com/geekhive/toolfinder/indexer"
	"github.com/geekhive/toolfinder/llm"
	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/metrics"
	"github.com/geekhive/toolfinder/pgstore"
	"github.com/geekhive/toolfinder/providers"
	"github.com/geekhive/toolfinder/recommend"
	"github.com/geekhive/toolfinder/search"
)

var errDatabaseRequired = errors.New("this command needs a database: set --database-url or TOOLFINDER_DATABASE_URL")

type appOptions struct {
	// requireDatabase refuses to fall back to the in-memory sample catalog.
	requireDatabase bool
	// withRecommender builds the language model and the recommendation pipeline.
	withRecommender bool
	// watchConfig reloads search and pipeline sizes when the config file changes.
	watchConfig bool
}

// app is everything a command may need, assembled from one configuration.
type app struct {
	container    *config.Container
	logger       logger.Logger
	metrics      metrics.Metrics
	store        catalog.Store
	pg           *pgstore.Store
	embedder     *embeddings.Client
	engine       *search.Engine
	indexer      *indexer.Indexer
	orchestrator *recommend.Orchestrator

	closers []func() error
}

func newApp(ctx context.Context, root *rootOptions, opts appOptions) (*app, error) {
	cfg, err := config.Load(root.viper, root.configFile)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.withRecommender {
		if err = cfg.ValidateLLM(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	if opts.requireDatabase && cfg.DatabaseURL == "" {
		return nil, errDatabaseRequired
	}

	log, err := logger.NewWithOptions(logger.Options{
		Level:       cfg.Log.Level,
		LogFile:     cfg.Log.File,
		JSONConsole: cfg.Log.JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{
		container: config.NewContainer(cfg),
		logger:    log,
		metrics:   metrics.NewMetrics(metrics.InstanceInfo{InstanceID: uuid.NewString(), Version: version}),
	}
	a.closers = append(a.closers, log.Flush)

	if err = a.init(ctx, cfg, opts); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.container.RegisterUpdateListener(a.applyConfig)
	if opts.watchConfig && root.configFile != "" {
		config.Watch(root.viper, a.container, func(err error) {
			a.logger.Warn("Ignoring invalid configuration change", "error", err)
		})
	}

	return a, nil
}

func (a *app) init(ctx context.Context, cfg *config.Config, opts appOptions) error {
	httpClient := &http.Client{}

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL, a.logger)
		if err != nil {
			return err
		}
		a.pg = pg
		a.store = pg
		a.closers = append(a.closers, pg.Close)
	} else {
		a.logger.Info("No database configured, serving the sample catalog from memory")
		a.store = catalog.NewMemoryStore()
	}

	embedder, closeEmbedder, err := providers.NewEmbeddingClient(ctx, cfg, httpClient, a.logger, a.metrics)
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	a.embedder = embedder
	a.closers = append(a.closers, closeEmbedder)

	a.indexer = indexer.New(a.store, embedder, cfg.Embedding.BatchSize, a.logger)
	a.engine = search.NewEngine(a.store, embedder, searchOptions(cfg.Search), a.logger, a.metrics)

	if a.pg == nil {
		if err := a.loadSampleCatalog(ctx); err != nil {
			return err
		}
	}

	if opts.withRecommender {
		model, err := providers.NewLanguageModel(ctx, cfg, httpClient, a.logger, a.metrics)
		if err != nil {
			return fmt.Errorf("failed to create language model: %w", err)
		}
		a.orchestrator, err = a.newOrchestrator(cfg, model)
		if err != nil {
			return err
		}
	}

	return nil
}

func (a *app) loadSampleCatalog(ctx context.Context) error {
	seed, err := indexer.SampleCatalog()
	if err != nil {
		return err
	}
	if _, err := indexer.Seed(ctx, a.store, seed); err != nil {
		return err
	}
	report, err := a.indexer.ReindexStale(ctx)
	if err != nil {
		return fmt.Errorf("failed to index sample catalog: %w", err)
	}
	a.logger.Info("Indexed sample catalog", "tools", report.Indexed)
	return nil
}

func (a *app) newOrchestrator(cfg *config.Config, model llm.LanguageModel) (*recommend.Orchestrator, error) {
	p, err := recommend.LoadPrompts(cfg.Recommendation.PromptVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	timeout := cfg.Recommendation.CompletionTimeout()
	analyzer, err := recommend.NewAnalyzer(model, p, timeout, a.logger)
	if err != nil {
		return nil, err
	}

	return recommend.NewOrchestrator(recommend.Dependencies{
		Analyzer:      analyzer,
		Reranker:      recommend.NewReranker(model, p, timeout, a.logger),
		Explainer:     recommend.NewExplainer(model, p, timeout),
		Embedder:      a.embedder,
		Retriever:     a.engine,
		Categories:    a.store,
		PromptVersion: p.Version(),
		Logger:        a.logger,
		Metrics:       a.metrics,
	}, recommendOptions(cfg.Recommendation)), nil
}

// applyConfig pushes reloadable settings into running components. Provider,
// database and prompt changes need a restart.
func (a *app) applyConfig() {
	cfg := a.container.Config()
	if cfg == nil {
		return
	}
	a.engine.SetOptions(searchOptions(cfg.Search))
	if a.orchestrator != nil {
		a.orchestrator.SetOptions(recommendOptions(cfg.Recommendation))
	}
	a.logger.Info("Configuration reloaded",
		"search_default_limit", cfg.Search.DefaultLimit,
		"candidate_pool_size", cfg.Recommendation.CandidatePoolSize,
		"result_size", cfg.Recommendation.ResultSize,
	)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func searchOptions(cfg config.SearchConfig) search.Options {
	return search.Options{
		Timeout:      cfg.Timeout(),
		DefaultLimit: cfg.DefaultLimit,
		MaxLimit:     cfg.MaxLimit,
	}
}

func recommendOptions(cfg config.RecommendationConfig) recommend.Options {
	return recommend.Options{
		CandidatePoolSize:      cfg.CandidatePoolSize,
		ResultSize:             cfg.ResultSize,
		ExplanationConcurrency: cfg.ExplanationConcurrency,
	}
}
