// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package pgstore

import (
	"context"
	"embed"
	"io/fs"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrate applies all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	// The embedded filesystem has files under "migrations/", so strip that
	// prefix to get a flat filesystem of .sql files.
	migrationFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed to create sub filesystem")
	}

	provider, err := goose.NewProvider(database.DialectPostgres, s.db.DB, migrationFS)
	if err != nil {
		return errors.Wrap(err, "failed to create goose provider")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	for _, result := range results {
		s.logger.Info("Applied migration", "version", result.Source.Version, "duration", result.Duration.String())
	}

	return nil
}
