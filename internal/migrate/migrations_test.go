package migrate_test

import (
	"context"
	"testing"

	"eventhub/internal/db"
	"eventhub/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	for i := 0; i < 2; i++ {
		if err := migrate.Migrate(conn, dialect); err != nil {
			t.Fatalf("migrate pass %d: %v", i+1, err)
		}
	}
	version, err := migrate.Version(context.Background(), conn)
	if err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected schema version 2, got %d", version)
	}
	var applied int
	if err := conn.QueryRow(`SELECT count(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", applied)
	}
	for _, table := range []string{"events", "scrape_logs", "event_history", "api_keys"} {
		var n int
		if err := conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestStepsSplitStatements(t *testing.T) {
	steps, err := migrate.Steps()
	if err != nil {
		t.Fatalf("steps: %v", err)
	}
	if len(steps) != 2 || steps[0].Version != 1 || steps[1].Version != 2 {
		t.Fatalf("unexpected steps: %+v", steps)
	}
	if len(steps[0].Statements) < 4 {
		t.Fatalf("expected the init schema to hold several statements, got %d", len(steps[0].Statements))
	}
	for _, stmt := range steps[0].Statements {
		if stmt[len(stmt)-1] != ';' {
			t.Fatalf("statement not terminated: %q", stmt)
		}
	}
}
