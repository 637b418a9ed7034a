package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedMigrations embed.FS

// Dir is the migrations directory, relative to the repository root when
// creating new files and relative to the embedded FS otherwise.
const Dir = "sql"

func setup() error {
	goose.SetBaseFS(embedMigrations)
	return goose.SetDialect("postgres")
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, Dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Run executes a goose command (up, down, status, reset) against db.
func Run(ctx context.Context, db *sql.DB, command string) error {
	if err := setup(); err != nil {
		return err
	}

	switch command {
	case "up":
		return goose.UpContext(ctx, db, Dir)
	case "down":
		return goose.DownContext(ctx, db, Dir)
	case "status":
		return goose.StatusContext(ctx, db, Dir)
	case "reset":
		return goose.ResetContext(ctx, db, Dir)
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
