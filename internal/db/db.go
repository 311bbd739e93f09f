package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultDBName = "eventhub.db"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver    string
	Workspace string
	DSN       string
}

// Dialect adapts "?" placeholder queries to the target driver.
type Dialect string

const (
	SQLite   Dialect = DriverSQLite
	Postgres Dialect = DriverPostgres
)

// Rebind rewrites "?" placeholders into "$n" for Postgres. SQLite queries pass through.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".eventhub", defaultDBName)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".eventhub")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the configured database. SQLite lives under the workspace and
// waits on a busy database instead of failing immediately.
func Open(cfg Config) (*sql.DB, Dialect, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		if cfg.DSN != "" {
			conn, err := sql.Open("sqlite", cfg.DSN)
			return conn, SQLite, err
		}
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, SQLite, err
		}
		dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath(cfg.Workspace))
		conn, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, SQLite, err
		}
		return conn, SQLite, nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, Postgres, fmt.Errorf("database.dsn is required for driver %s", DriverPostgres)
		}
		conn, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, Postgres, err
		}
		return conn, Postgres, nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}
