package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"eventhub/internal/db"
)

//go:embed sql/*.sql
var files embed.FS

// Step is one numbered schema file. Statements are separated by semicolons at
// the end of a line.
type Step struct {
	Version    int
	Name       string
	Statements []string
}

// Steps returns the embedded schema files ordered by version.
func Steps() ([]Step, error) {
	entries, err := fs.ReadDir(files, "sql")
	if err != nil {
		return nil, err
	}
	var steps []Step
	for _, ent := range entries {
		if ent.IsDir() || path.Ext(ent.Name()) != ".sql" {
			continue
		}
		prefix, _, ok := strings.Cut(ent.Name(), "_")
		v, err := strconv.Atoi(prefix)
		if !ok || err != nil {
			return nil, fmt.Errorf("migration %s: name must start with <version>_", ent.Name())
		}
		data, err := files.ReadFile("sql/" + ent.Name())
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Version: v, Name: ent.Name(), Statements: split(string(data))})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	for i := 1; i < len(steps); i++ {
		if steps[i].Version == steps[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", steps[i].Version)
		}
	}
	return steps, nil
}

func split(script string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// Migrate applies pending steps in one transaction and records each in
// schema_migrations. The schema sticks to SQL that SQLite and Postgres share.
func Migrate(conn *sql.DB, dialect db.Dialect) error {
	return MigrateContext(context.Background(), conn, dialect)
}

func MigrateContext(ctx context.Context, conn *sql.DB, dialect db.Dialect) error {
	steps, err := Steps()
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var current int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, s := range steps {
		if s.Version <= current {
			continue
		}
		for i, stmt := range s.Statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s statement %d: %w", s.Name, i+1, err)
			}
		}
		if _, err := tx.ExecContext(ctx, dialect.Rebind(`INSERT INTO schema_migrations(version,name,applied_at) VALUES (?,?,?)`),
			s.Version, s.Name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record migration %s: %w", s.Name, err)
		}
	}
	return tx.Commit()
}

// Version reports the highest applied migration, 0 for a fresh database.
func Version(ctx context.Context, conn *sql.DB) (int, error) {
	var v int
	err := conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}
