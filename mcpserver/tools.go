// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/recommend"
	"github.com/geekhive/toolfinder/search"
)

const (
	toolRecommendTools = "recommend_tools"
	toolSearchTools    = "search_tools"
)

// RecommendToolsArgs represents arguments for the recommend_tools tool
type RecommendToolsArgs struct {
	Tasks       string   `json:"tasks" jsonschema:"Description of the workflow or project, 10 to 5000 characters"`
	Role        string   `json:"role,omitempty" jsonschema:"Optional role of the person doing the work"`
	CategoryIDs []string `json:"categoryIds,omitempty" jsonschema:"Optional category ids; only tools in one of these categories are considered"`
}

// SearchToolsArgs represents arguments for the search_tools tool
type SearchToolsArgs struct {
	Query           string   `json:"query" jsonschema:"Free text describing the tool you are looking for"`
	CategoryIDs     []string `json:"categoryIds,omitempty" jsonschema:"Match tools in any of these categories"`
	TagIDs          []string `json:"tagIds,omitempty" jsonschema:"Match tools with any of these tags"`
	PricingModels   []string `json:"pricingModels,omitempty" jsonschema:"Match tools with any of these pricing models"`
	APIAvailable    *bool    `json:"apiAvailable,omitempty" jsonschema:"Require an API, or require its absence"`
	EnterpriseReady *bool    `json:"enterpriseReady,omitempty" jsonschema:"Require enterprise readiness, or its absence"`
	Limit           int      `json:"limit,omitempty" jsonschema:"Number of results to return (default 20, max 100)"`
}

func (s *Server) recommendTools(ctx context.Context, _ *mcp.CallToolRequest, args RecommendToolsArgs) (*mcp.CallToolResult, any, error) {
	result, err := s.recommender.Recommend(ctx, recommend.WorkflowInput{
		Tasks:       args.Tasks,
		Role:        args.Role,
		CategoryIDs: args.CategoryIDs,
	})
	if err != nil {
		s.logToolError(toolRecommendTools, err)
		return nil, nil, err
	}

	return textResult(formatRecommendations(result)), nil, nil
}

func (s *Server) searchTools(ctx context.Context, _ *mcp.CallToolRequest, args SearchToolsArgs) (*mcp.CallToolResult, any, error) {
	query := search.Query{
		Text:  args.Query,
		Limit: args.Limit,
		Filters: catalog.Filters{
			CategoryIDs:     args.CategoryIDs,
			TagIDs:          args.TagIDs,
			APIAvailable:    args.APIAvailable,
			EnterpriseReady: args.EnterpriseReady,
		},
	}
	for _, p := range args.PricingModels {
		query.Filters.PricingModels = append(query.Filters.PricingModels, catalog.PricingModel(strings.ToUpper(strings.TrimSpace(p))))
	}

	results, err := s.searcher.SearchText(ctx, query)
	if err != nil {
		s.logToolError(toolSearchTools, err)
		return nil, nil, err
	}

	return textResult(formatCandidates(args.Query, results)), nil, nil
}

// logToolError logs infrastructure failures; rejected input is only reported
// back to the client.
func (s *Server) logToolError(tool string, err error) {
	if recommend.IsInputValidation(err) || errors.Is(err, search.ErrInvalidRequest) {
		s.logger.Debug("Tool call rejected", "tool", tool, "error", err)
		return
	}
	s.logger.Error("Tool call failed", "tool", tool, "error", err)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func formatRecommendations(result *recommend.Result) string {
	if len(result.Recommendations) == 0 {
		return "No tools in the catalog match this workflow."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d recommended tools:\n\n", len(result.Recommendations))
	for i, rec := range result.Recommendations {
		fmt.Fprintf(&b, "**%d. %s** (relevance %.2f)\n", i+1, rec.Tool.Name, rec.RelevanceScore)
		writeToolSummary(&b, rec.Tool)
		if rec.WhyThisFits != "" {
			fmt.Fprintf(&b, "Why it fits: %s\n", rec.WhyThisFits)
		}
		b.WriteString("\n")
	}
	if len(result.Degraded) > 0 {
		fmt.Fprintf(&b, "Note: fallbacks were used for %s.\n", strings.Join(result.Degraded, ", "))
	}
	return b.String()
}

func formatCandidates(query string, candidates []catalog.Candidate) string {
	if len(candidates) == 0 {
		return fmt.Sprintf("No tools found matching '%s'.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tools matching '%s':\n\n", len(candidates), query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "**%d. %s** (similarity %.3f)\n", i+1, c.Tool.Name, c.Similarity)
		writeToolSummary(&b, c.Tool)
		b.WriteString("\n")
	}
	return b.String()
}

func writeToolSummary(b *strings.Builder, tool catalog.Tool) {
	description := tool.ShortDescription
	if description == "" {
		description = tool.Description
	}
	if description != "" {
		fmt.Fprintf(b, "%s\n", description)
	}
	if names := tool.CategoryNames(); len(names) > 0 {
		fmt.Fprintf(b, "Categories: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(b, "Pricing: %s | API: %t | Enterprise: %t\n", tool.PricingModel, tool.APIAvailable, tool.EnterpriseReady)
	if tool.Website != "" {
		fmt.Fprintf(b, "Website: %s\n", tool.Website)
	}
	fmt.Fprintf(b, "ID: %s\n", tool.ID)
}
