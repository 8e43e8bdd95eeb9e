// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package pgstore is the Postgres implementation of the catalog store. Tool
// vectors live in a pgvector column next to the record they were derived from.
package pgstore

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/logger"
)

type Store struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
	logger  logger.Logger
	now     func() time.Time
}

var _ catalog.Store = (*Store)(nil)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, log logger.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, catalog.Unavailable("connect", errors.Wrap(err, "failed to connect to postgres"))
	}
	return New(db, log), nil
}

func New(db *sqlx.DB, log logger.Logger) *Store {
	return &Store{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:  log,
		now:     time.Now,
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return catalog.Unavailable("ping", errors.Wrap(err, "failed to ping postgres"))
	}
	return nil
}

const toolColumns = `id, seq, name, description, short_description, website, strengths, limitations,
	use_case_personas, integrations, pricing_model, api_available, enterprise_ready, status, revision,
	canonical_text, embedding, embedding_model, created_at, updated_at`

type toolRow struct {
	ID               string           `db:"id"`
	Seq              int64            `db:"seq"`
	Name             string           `db:"name"`
	Description      string           `db:"description"`
	ShortDescription string           `db:"short_description"`
	Website          string           `db:"website"`
	Strengths        pq.StringArray   `db:"strengths"`
	Limitations      pq.StringArray   `db:"limitations"`
	UseCasePersonas  pq.StringArray   `db:"use_case_personas"`
	Integrations     pq.StringArray   `db:"integrations"`
	PricingModel     string           `db:"pricing_model"`
	APIAvailable     bool             `db:"api_available"`
	EnterpriseReady  bool             `db:"enterprise_ready"`
	Status           string           `db:"status"`
	Revision         int64            `db:"revision"`
	CanonicalText    sql.NullString   `db:"canonical_text"`
	Embedding        *pgvector.Vector `db:"embedding"`
	EmbeddingModel   sql.NullString   `db:"embedding_model"`
	CreatedAt        time.Time        `db:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at"`
}

func (r toolRow) toTool() catalog.Tool {
	tool := catalog.Tool{
		ID:               r.ID,
		Name:             r.Name,
		Description:      r.Description,
		ShortDescription: r.ShortDescription,
		Website:          r.Website,
		Strengths:        []string(r.Strengths),
		Limitations:      []string(r.Limitations),
		UseCasePersonas:  []string(r.UseCasePersonas),
		Integrations:     []string(r.Integrations),
		PricingModel:     catalog.PricingModel(r.PricingModel),
		APIAvailable:     r.APIAvailable,
		EnterpriseReady:  r.EnterpriseReady,
		Status:           catalog.Status(r.Status),
		Revision:         r.Revision,
		CanonicalText:    r.CanonicalText.String,
		EmbeddingModel:   r.EmbeddingModel.String,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.Embedding != nil {
		tool.Embedding = r.Embedding.Slice()
	}
	return tool
}

// unavailable wraps a driver error with context and classifies it.
func unavailable(op string, err error) error {
	return catalog.Unavailable(op, errors.Wrap(err, op))
}
