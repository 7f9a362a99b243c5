package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/bubuagent/bubu-agent/pkg/logger"
)

// Migrate runs goose migrations from dir against the configured database.
func Migrate(cfg Config, dir string) error {
	var (
		dialect string
		dsn     string
	)
	switch cfg.Driver {
	case DriverPostgres:
		dialect = "postgres"
		dsn = postgresDSN(cfg)
	case DriverSQLite:
		dialect = "sqlite3"
		dsn = cfg.Path
	default:
		return fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}

	if err := goose.SetDialect(dialect); err != nil {
		logger.Fatal(err)
	}

	conn, err := sql.Open(dialect, dsn)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err = goose.Up(conn, dir); err != nil {
		logger.Fatal(err)
	}

	return nil
}
