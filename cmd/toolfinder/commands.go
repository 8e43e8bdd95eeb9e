// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/geekhive/toolfinder/api"
	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/indexer"
	"github.com/geekhive/toolfinder/mcpserver"
	"github.com/geekhive/toolfinder/recommend"
	"github.com/geekhive/toolfinder/search"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP streamable HTTP endpoint",
		Long: `Serve the HTTP API:

  POST /recommendations   recommend tools for a workflow
  GET  /search            search the catalog
  POST /admin/reindex     rebuild stale search fields
  GET  /healthz           store health
  GET  /metrics           prometheus metrics
  /mcp                    MCP streamable HTTP transport`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, appOptions{withRecommender: true, watchConfig: true})
			if err != nil {
				return err
			}
			defer a.Close()

			mcpServer := mcpserver.NewServer(mcpserver.Dependencies{
				Recommender: a.orchestrator,
				Searcher:    a.engine,
				Logger:      a.logger,
				Version:     version,
			})

			mux := http.NewServeMux()
			mux.Handle("/mcp", mcpServer.HTTPHandler())
			mux.Handle("/", api.New(api.Dependencies{
				Recommender: a.orchestrator,
				Searcher:    a.engine,
				Reindexer:   a.indexer,
				AdminToken:  a.container.Config().AdminToken,
				Pinger:      a.store,
				Logger:      a.logger,
				Metrics:     a.metrics,
			}))

			server := &http.Server{
				Addr:              a.container.Config().ListenAddress,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("Listening", "address", server.Addr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				a.logger.Error("Server failed", "error", err)
				return err
			case <-ctx.Done():
			}

			a.logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().String("listen", "", "Address to listen on (default :8080)")
	_ = root.viper.BindPFlag("listen_address", cmd.Flags().Lookup("listen"))

	return cmd
}

func newMCPCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve recommend_tools and search_tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{withRecommender: true, watchConfig: true})
			if err != nil {
				return err
			}
			defer a.Close()

			server := mcpserver.NewServer(mcpserver.Dependencies{
				Recommender: a.orchestrator,
				Searcher:    a.engine,
				Logger:      a.logger,
				Version:     version,
			})
			if err := server.ServeStdio(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("MCP server stopped", "error", err)
				return err
			}
			return nil
		},
	}
}

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{requireDatabase: true})
			if err != nil {
				return err
			}
			defer a.Close()

			return a.pg.Migrate(cmd.Context())
		},
	}
}

func newSeedCommand(root *rootOptions) *cobra.Command {
	var index bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the sample catalog into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, appOptions{requireDatabase: true})
			if err != nil {
				return err
			}
			defer a.Close()

			seed, err := indexer.SampleCatalog()
			if err != nil {
				return err
			}
			ids, err := indexer.Seed(ctx, a.store, seed)
			if err != nil {
				return err
			}
			a.logger.Info("Seeded sample catalog", "categories", len(seed.Categories), "tags", len(seed.Tags), "tools", len(ids))

			if !index {
				return nil
			}
			report, err := a.indexer.ReindexTools(ctx, ids)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().BoolVar(&index, "index", true, "Index the seeded tools right away")
	return cmd
}

func newReindexCommand(root *rootOptions) *cobra.Command {
	var (
		all bool
		ids []string
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild canonical text and embeddings",
		Long: `Rebuild canonical text and embeddings.

By default only stale tools are indexed: tools edited since their last
indexing, and tools embedded by a different model than the configured one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, appOptions{requireDatabase: true})
			if err != nil {
				return err
			}
			defer a.Close()

			var report indexer.Report
			switch {
			case len(ids) > 0:
				report, err = a.indexer.ReindexTools(ctx, ids)
			case all:
				report, err = a.indexer.ReindexAll(ctx)
			default:
				report, err = a.indexer.ReindexStale(ctx)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Reindex every tool, not only stale ones")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "Reindex only these tool ids")
	cmd.MarkFlagsMutuallyExclusive("all", "id")
	return cmd
}

func newRecommendCommand(root *rootOptions) *cobra.Command {
	var (
		role        string
		categoryIDs []string
	)

	cmd := &cobra.Command{
		Use:     "recommend <tasks>",
		Short:   "Recommend tools for a workflow description",
		Example: `  toolfinder recommend "I edit YouTube videos and need captions" --role "content creator"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, appOptions{withRecommender: true})
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.orchestrator.Recommend(ctx, recommend.WorkflowInput{
				Tasks:       strings.Join(args, " "),
				Role:        role,
				CategoryIDs: categoryIDs,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Role of the person doing the work")
	cmd.Flags().StringSliceVar(&categoryIDs, "category", nil, "Only consider tools in these category ids")
	return cmd
}

func newSearchCommand(root *rootOptions) *cobra.Command {
	var (
		categoryIDs   []string
		tagIDs        []string
		pricingModels []string
		limit         int
	)

	cmd := &cobra.Command{
		Use:     "search <query>",
		Short:   "Search the catalog without re-ranking",
		Example: `  toolfinder search "meeting notes" --pricing FREEMIUM --api-available`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			filters := catalog.Filters{
				CategoryIDs: categoryIDs,
				TagIDs:      tagIDs,
			}
			for _, p := range pricingModels {
				filters.PricingModels = append(filters.PricingModels, catalog.PricingModel(strings.ToUpper(p)))
			}
			if filters.APIAvailable, err = optionalBool(cmd, "api-available"); err != nil {
				return err
			}
			if filters.EnterpriseReady, err = optionalBool(cmd, "enterprise-ready"); err != nil {
				return err
			}

			results, err := a.engine.SearchText(ctx, search.Query{
				Text:    strings.Join(args, " "),
				Filters: filters,
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().StringSliceVar(&categoryIDs, "category", nil, "Match tools in any of these category ids")
	cmd.Flags().StringSliceVar(&tagIDs, "tag", nil, "Match tools with any of these tag ids")
	cmd.Flags().StringSliceVar(&pricingModels, "pricing", nil, "Match tools with any of these pricing models")
	cmd.Flags().Bool("api-available", false, "Require an API (use =false to require its absence)")
	cmd.Flags().Bool("enterprise-ready", false, "Require enterprise readiness (use =false to require its absence)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (default from search.default_limit)")
	return cmd
}

// optionalBool distinguishes an unset flag from an explicit false.
func optionalBool(cmd *cobra.Command, name string) (*bool, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
