// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/creatorhub/internal/config"
	"codeberg.org/oliverandrich/creatorhub/internal/database"
	"codeberg.org/oliverandrich/creatorhub/internal/server"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

func dbCommand() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply all pending migrations",
				Action: withDB(func(ctx context.Context, _ *cli.Command, db *sqlx.DB) error {
					// Open already migrated up.
					return printVersion(ctx, db)
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back the most recent migration",
				Action: withDB(func(ctx context.Context, _ *cli.Command, db *sqlx.DB) error {
					if err := database.Migrate(ctx, db.DB, database.Down); err != nil {
						return err
					}
					return printVersion(ctx, db)
				}),
			},
			{
				Name:  "reset",
				Usage: "Drop all tables and migrate from scratch",
				Action: withDB(func(ctx context.Context, _ *cli.Command, db *sqlx.DB) error {
					if err := database.Migrate(ctx, db.DB, database.Reset); err != nil {
						return err
					}
					if err := database.Migrate(ctx, db.DB, database.Up); err != nil {
						return err
					}
					return printVersion(ctx, db)
				}),
			},
			{
				Name:  "version",
				Usage: "Print the current schema version",
				Action: withDB(func(ctx context.Context, _ *cli.Command, db *sqlx.DB) error {
					return printVersion(ctx, db)
				}),
			},
		},
	}
}

// withDB opens the configured database for the duration of fn.
func withDB(fn func(context.Context, *cli.Command, *sqlx.DB) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg := config.NewFromCLI(cmd)
		server.SetupLogger(cfg.Log.Level, cfg.Log.Format)

		db, err := database.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("failed to close database", "error", closeErr)
			}
		}()

		return fn(ctx, cmd, db)
	}
}

func printVersion(ctx context.Context, db *sqlx.DB) error {
	version, err := database.Version(ctx, db.DB)
	if err != nil {
		return err
	}
	slog.Info("schema_version", "version", version)
	return nil
}
