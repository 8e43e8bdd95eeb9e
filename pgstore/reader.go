// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package pgstore

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/geekhive/toolfinder/catalog"
)

// GetTools hydrates tools with their categories and tags. Unknown ids are skipped.
func (s *Store) GetTools(ctx context.Context, ids []string) ([]catalog.Tool, error) {
	if len(ids) == 0 {
		return []catalog.Tool{}, nil
	}

	query, args, err := s.builder.Select(toolColumns).From("tools").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build tools query")
	}

	var rows []toolRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, unavailable("get tools", err)
	}
	if len(rows) == 0 {
		return []catalog.Tool{}, nil
	}

	toolIDs := make([]string, len(rows))
	for i, row := range rows {
		toolIDs[i] = row.ID
	}

	categories, err := s.categoriesByTool(ctx, toolIDs)
	if err != nil {
		return nil, err
	}
	tags, err := s.tagsByTool(ctx, toolIDs)
	if err != nil {
		return nil, err
	}

	tools := make([]catalog.Tool, len(rows))
	for i, row := range rows {
		tool := row.toTool()
		tool.Categories = nonNilCategories(categories[row.ID])
		tool.Tags = nonNilTags(tags[row.ID])
		tools[i] = tool
	}
	return tools, nil
}

type categoryLink struct {
	ToolID string `db:"tool_id"`
	catalog.Category
}

type tagLink struct {
	ToolID string `db:"tool_id"`
	catalog.Tag
}

func (s *Store) categoriesByTool(ctx context.Context, toolIDs []string) (map[string][]catalog.Category, error) {
	query, args, err := s.builder.
		Select("tc.tool_id", "c.id", "c.name", "c.slug", "c.description").
		From("tool_categories tc").
		Join("categories c ON c.id = tc.category_id").
		Where(sq.Eq{"tc.tool_id": toolIDs}).
		OrderBy("c.name", "c.id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build tool categories query")
	}

	var links []categoryLink
	if err := s.db.SelectContext(ctx, &links, query, args...); err != nil {
		return nil, unavailable("get tool categories", err)
	}

	result := make(map[string][]catalog.Category, len(toolIDs))
	for _, link := range links {
		result[link.ToolID] = append(result[link.ToolID], link.Category)
	}
	return result, nil
}

func (s *Store) tagsByTool(ctx context.Context, toolIDs []string) (map[string][]catalog.Tag, error) {
	query, args, err := s.builder.
		Select("tt.tool_id", "t.id", "t.name", "t.slug").
		From("tool_tags tt").
		Join("tags t ON t.id = tt.tag_id").
		Where(sq.Eq{"tt.tool_id": toolIDs}).
		OrderBy("t.name", "t.id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build tool tags query")
	}

	var links []tagLink
	if err := s.db.SelectContext(ctx, &links, query, args...); err != nil {
		return nil, unavailable("get tool tags", err)
	}

	result := make(map[string][]catalog.Tag, len(toolIDs))
	for _, link := range links {
		result[link.ToolID] = append(result[link.ToolID], link.Tag)
	}
	return result, nil
}

func (s *Store) GetCategories(ctx context.Context, ids []string) ([]catalog.Category, error) {
	if len(ids) == 0 {
		return []catalog.Category{}, nil
	}

	query, args, err := s.builder.
		Select("id", "name", "slug", "description").
		From("categories").
		Where(sq.Eq{"id": ids}).
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build categories query")
	}

	categories := []catalog.Category{}
	if err := s.db.SelectContext(ctx, &categories, query, args...); err != nil {
		return nil, unavailable("get categories", err)
	}
	return categories, nil
}

// ListToolIDs returns ids in insertion order. An empty status lists every tool.
func (s *Store) ListToolIDs(ctx context.Context, status catalog.Status) ([]string, error) {
	builder := s.builder.Select("id").From("tools").OrderBy("seq")
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build tool id query")
	}

	ids := []string{}
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, unavailable("list tool ids", err)
	}
	return ids, nil
}

type rankedRow struct {
	ID         string  `db:"id"`
	Similarity float64 `db:"similarity"`
}

// RankByVector materializes the filtered set before ordering by cosine
// distance, so the planner cannot rank first and filter afterwards. Ties on
// distance fall back to insertion order.
func (s *Store) RankByVector(ctx context.Context, query []float32, topK int, filters catalog.Filters) ([]catalog.RankedID, error) {
	if topK <= 0 || len(query) == 0 {
		return []catalog.RankedID{}, nil
	}

	// Inner query keeps the default ? placeholders; the outer builder numbers
	// every argument once the statement is assembled.
	eligible := sq.Select("t.id", "t.seq", "t.embedding").
		From("tools t").
		Where("t.embedding IS NOT NULL").
		Where("vector_dims(t.embedding) = ?", len(query))
	eligible = applyFilters(eligible, filters)

	vec := pgvector.NewVector(query)
	sqlText, args, err := s.builder.
		Select("id").
		Column(sq.Expr("1 - (embedding <=> ?) AS similarity", vec)).
		PrefixExpr(sq.Expr("WITH eligible AS MATERIALIZED (?)", eligible)).
		From("eligible").
		OrderByClause("embedding <=> ?, seq", vec).
		Limit(uint64(topK)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build rank query")
	}

	var rows []rankedRow
	if err := s.db.SelectContext(ctx, &rows, sqlText, args...); err != nil {
		return nil, unavailable("rank by vector", err)
	}

	ranked := make([]catalog.RankedID, len(rows))
	for i, row := range rows {
		ranked[i] = catalog.RankedID{ID: row.ID, Similarity: catalog.ClampSimilarity(row.Similarity)}
	}
	return ranked, nil
}

// applyFilters pushes every filter predicate into the eligibility query.
func applyFilters(b sq.SelectBuilder, filters catalog.Filters) sq.SelectBuilder {
	status := filters.Status
	if status == "" {
		status = catalog.StatusApproved
	}
	b = b.Where(sq.Eq{"t.status": string(status)})

	if filters.EmbeddingModel != "" {
		b = b.Where(sq.Eq{"t.embedding_model": filters.EmbeddingModel})
	}
	if len(filters.CategoryIDs) > 0 {
		b = b.Where("EXISTS (SELECT 1 FROM tool_categories tc WHERE tc.tool_id = t.id AND tc.category_id = ANY(?))",
			pq.StringArray(filters.CategoryIDs))
	}
	if len(filters.TagIDs) > 0 {
		b = b.Where("EXISTS (SELECT 1 FROM tool_tags tt WHERE tt.tool_id = t.id AND tt.tag_id = ANY(?))",
			pq.StringArray(filters.TagIDs))
	}
	if len(filters.PricingModels) > 0 {
		models := make([]string, len(filters.PricingModels))
		for i, p := range filters.PricingModels {
			models[i] = string(p)
		}
		b = b.Where("t.pricing_model = ANY(?)", pq.StringArray(models))
	}
	if filters.APIAvailable != nil {
		b = b.Where(sq.Eq{"t.api_available": *filters.APIAvailable})
	}
	if filters.EnterpriseReady != nil {
		b = b.Where(sq.Eq{"t.enterprise_ready": *filters.EnterpriseReady})
	}
	return b
}

func nonNilCategories(c []catalog.Category) []catalog.Category {
	if c == nil {
		return []catalog.Category{}
	}
	return c
}

func nonNilTags(t []catalog.Tag) []catalog.Tag {
	if t == nil {
		return []catalog.Tag{}
	}
	return t
}
