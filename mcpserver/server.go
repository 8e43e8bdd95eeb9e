// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package mcpserver exposes recommendations and catalog search as Model
// Context Protocol tools.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/recommend"
	"github.com/geekhive/toolfinder/search"
)

const serverName = "toolfinder-mcp-server"

type Recommender interface {
	Recommend(ctx context.Context, input recommend.WorkflowInput) (*recommend.Result, error)
}

type Searcher interface {
	SearchText(ctx context.Context, query search.Query) ([]catalog.Candidate, error)
}

type Dependencies struct {
	Recommender Recommender
	Searcher    Searcher
	Logger      logger.Logger
	Version     string
}

// Server owns one MCP server instance shared by every transport.
type Server struct {
	mcpServer   *mcp.Server
	recommender Recommender
	searcher    Searcher
	logger      logger.Logger
	slog        *slog.Logger
}

func NewServer(deps Dependencies) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	s := &Server{
		recommender: deps.Recommender,
		searcher:    deps.Searcher,
		logger:      log,
		slog:        slog.New(newSlogHandler(log)),
	}

	s.mcpServer = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version,
		},
		&mcp.ServerOptions{
			Instructions: "Use recommend_tools to get tool recommendations for a described workflow, and search_tools for direct catalog lookups.",
			Logger:       s.slog,
		},
	)
	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolRecommendTools,
		Description: "Recommend software tools for a workflow. Parameters: tasks (required, 10-5000 characters describing the work), role (optional), categoryIds (optional category filter). Returns up to 5 tools ordered by relevance, each with a short explanation of why it fits. Example: {\"tasks\": \"I edit YouTube videos and need captions\", \"role\": \"content creator\"}",
	}, s.recommendTools)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolSearchTools,
		Description: "Search the tool catalog by meaning. Parameters: query (required), categoryIds, tagIds, pricingModels (FREE, FREEMIUM, PAID, ENTERPRISE, USAGE_BASED), apiAvailable, enterpriseReady, limit (1-100, default 20). Returns matching approved tools, most similar first. Example: {\"query\": \"meeting notes\", \"apiAvailable\": true, \"limit\": 5}",
	}, s.searchTools)
}

// MCPServer returns the underlying server, for transports managed by the caller.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
