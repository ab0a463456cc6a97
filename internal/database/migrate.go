// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Direction selects which goose operation Migrate runs.
type Direction int

const (
	Up    Direction = iota // apply all pending migrations
	Down                   // roll back the last migration
	Reset                  // roll back all migrations
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Reset:
		return "reset"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Migrate runs the embedded goose migrations in the given direction.
func Migrate(ctx context.Context, db *sql.DB, dir Direction) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	var err error
	switch dir {
	case Up:
		err = goose.UpContext(ctx, db, "migrations")
	case Down:
		err = goose.DownContext(ctx, db, "migrations")
	case Reset:
		err = goose.ResetContext(ctx, db, "migrations")
	default:
		return fmt.Errorf("unknown migration direction %v", dir)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}
	return nil
}

// Version returns the current schema version.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}
