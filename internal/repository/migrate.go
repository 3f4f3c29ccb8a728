package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/mysql/*.sql migrations/postgres/*.sql
var migrations embed.FS

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations for the database's dialect.
func Migrate(ctx context.Context, db *DB) error {
	var dir, dialect string
	switch db.Driver {
	case DriverMySQL:
		dir, dialect = "migrations/mysql", "mysql"
	case DriverPostgres:
		dir, dialect = "migrations/postgres", "postgres"
	default:
		return fmt.Errorf("no migrations for driver %q", db.Driver)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db.DB, dir); err != nil {
		return fmt.Errorf("running %s migrations: %w", dialect, err)
	}
	return nil
}
