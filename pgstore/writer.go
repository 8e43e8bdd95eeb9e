// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/geekhive/toolfinder/catalog"
)

func (s *Store) UpsertCategory(ctx context.Context, category catalog.Category) error {
	if category.ID == "" {
		return fmt.Errorf("category id is required")
	}

	query, args, err := s.builder.
		Insert("categories").
		Columns("id", "name", "slug", "description").
		Values(category.ID, category.Name, category.Slug, category.Description).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, slug = EXCLUDED.slug, description = EXCLUDED.description").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build category upsert")
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return unavailable("upsert category", err)
	}
	return nil
}

func (s *Store) UpsertTag(ctx context.Context, tag catalog.Tag) error {
	if tag.ID == "" {
		return fmt.Errorf("tag id is required")
	}

	query, args, err := s.builder.
		Insert("tags").
		Columns("id", "name", "slug").
		Values(tag.ID, tag.Name, tag.Slug).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, slug = EXCLUDED.slug").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build tag upsert")
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return unavailable("upsert tag", err)
	}
	return nil
}

// UpsertTool writes the editable fields and the category and tag links in one
// transaction. The derived search fields are reset in the same statement.
func (s *Store) UpsertTool(ctx context.Context, tool catalog.Tool) error {
	if tool.ID == "" {
		return fmt.Errorf("tool id is required")
	}
	if tool.Status == "" {
		tool.Status = catalog.StatusPending
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable("begin upsert tool", err)
	}
	defer func() { _ = tx.Rollback() }()

	categoryIDs := tool.CategoryIDs()
	tagIDs := tool.TagIDs()
	if err := s.requireAll(ctx, tx, "categories", "category", categoryIDs); err != nil {
		return err
	}
	if err := s.requireAll(ctx, tx, "tags", "tag", tagIDs); err != nil {
		return err
	}

	now := s.now()
	createdAt := tool.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query, args, err := s.builder.
		Insert("tools").
		Columns("id", "name", "description", "short_description", "website",
			"strengths", "limitations", "use_case_personas", "integrations",
			"pricing_model", "api_available", "enterprise_ready", "status",
			"canonical_text", "embedding", "embedding_model", "created_at", "updated_at").
		Values(tool.ID, tool.Name, tool.Description, tool.ShortDescription, tool.Website,
			pq.StringArray(nonNil(tool.Strengths)), pq.StringArray(nonNil(tool.Limitations)),
			pq.StringArray(nonNil(tool.UseCasePersonas)), pq.StringArray(nonNil(tool.Integrations)),
			string(tool.PricingModel), tool.APIAvailable, tool.EnterpriseReady, string(tool.Status),
			nil, nil, nil, createdAt, now).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			short_description = EXCLUDED.short_description,
			website = EXCLUDED.website,
			strengths = EXCLUDED.strengths,
			limitations = EXCLUDED.limitations,
			use_case_personas = EXCLUDED.use_case_personas,
			integrations = EXCLUDED.integrations,
			pricing_model = EXCLUDED.pricing_model,
			api_available = EXCLUDED.api_available,
			enterprise_ready = EXCLUDED.enterprise_ready,
			status = EXCLUDED.status,
			revision = tools.revision + 1,
			canonical_text = NULL,
			embedding = NULL,
			embedding_model = NULL,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build tool upsert")
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return unavailable("upsert tool", err)
	}

	if err := s.replaceLinks(ctx, tx, "tool_categories", "category_id", tool.ID, categoryIDs); err != nil {
		return err
	}
	if err := s.replaceLinks(ctx, tx, "tool_tags", "tag_id", tool.ID, tagIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit upsert tool", err)
	}
	return nil
}

// requireAll fails with catalog.ErrNotFound if any id is missing from table.
func (s *Store) requireAll(ctx context.Context, tx *sqlx.Tx, table, kind string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := s.builder.Select("id").From(table).Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return errors.Wrapf(err, "failed to build %s lookup", kind)
	}

	var found []string
	if err := tx.SelectContext(ctx, &found, query, args...); err != nil {
		return unavailable("lookup "+table, err)
	}

	present := make(map[string]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			return fmt.Errorf("%s %s: %w", kind, id, catalog.ErrNotFound)
		}
	}
	return nil
}

func (s *Store) replaceLinks(ctx context.Context, tx *sqlx.Tx, table, column, toolID string, ids []string) error {
	query, args, err := s.builder.Delete(table).Where(sq.Eq{"tool_id": toolID}).ToSql()
	if err != nil {
		return errors.Wrapf(err, "failed to build %s delete", table)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return unavailable("clear "+table, err)
	}

	if len(ids) == 0 {
		return nil
	}

	insert := s.builder.Insert(table).Columns("tool_id", column)
	for _, id := range ids {
		insert = insert.Values(toolID, id)
	}
	query, args, err = insert.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return errors.Wrapf(err, "failed to build %s insert", table)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return unavailable("link "+table, err)
	}
	return nil
}

// UpdateEmbedding writes the three derived fields with a single statement,
// guarded by the revision the caller built them from.
func (s *Store) UpdateEmbedding(ctx context.Context, toolID string, revision int64, canonicalText string, embedding []float32, model string) error {
	query, args, err := s.builder.
		Update("tools").
		Set("canonical_text", canonicalText).
		Set("embedding", pgvector.NewVector(embedding)).
		Set("embedding_model", model).
		Where(sq.Eq{"id": toolID, "revision": revision}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build embedding update")
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return unavailable("update embedding", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return unavailable("update embedding", err)
	}
	if affected > 0 {
		return nil
	}

	query, args, err = s.builder.Select("revision").From("tools").Where(sq.Eq{"id": toolID}).ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build revision lookup")
	}
	var current int64
	if err := s.db.GetContext(ctx, &current, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("tool %s: %w", toolID, catalog.ErrNotFound)
		}
		return unavailable("lookup revision", err)
	}
	return fmt.Errorf("tool %s at revision %d, not %d: %w", toolID, current, revision, catalog.ErrStaleRevision)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
