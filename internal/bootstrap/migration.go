package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/slapcommerce/backoffice/internal/config"
)

const migrationsDir = "migrations"

// Migrate runs the named goose command against the write node. The
// simple protocol is forced because goose issues multi-statement SQL.
func Migrate(ctx context.Context, cfg config.Config, cmd string, version int64) error {
	if cfg.Database.WriteDSN == "" {
		return errors.New("db: WriteDSN is required")
	}

	pgxCfg, err := pgx.ParseConfig(cfg.Database.WriteDSN)
	if err != nil {
		return err
	}
	pgxCfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db := stdlib.OpenDB(*pgxCfg)
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	switch cmd {
	case "up":
		return goose.Up(db, migrationsDir)
	case "down":
		return goose.Down(db, migrationsDir)
	case "status":
		return goose.Status(db, migrationsDir)
	case "version":
		return goose.Version(db, migrationsDir)
	case "redo":
		return goose.Redo(db, migrationsDir)
	case "reset":
		return goose.Reset(db, migrationsDir)
	case "up-to":
		return goose.UpTo(db, migrationsDir, version)
	case "down-to":
		return goose.DownTo(db, migrationsDir, version)
	default:
		return fmt.Errorf("unknown migrate command %q", cmd)
	}
}
