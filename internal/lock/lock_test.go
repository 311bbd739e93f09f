package lock_test

import (
	"context"
	"errors"
	"testing"

	"eventhub/internal/db"
	"eventhub/internal/lock"
)

func TestLocalIsPerKey(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()
	release, err := l.TryAcquire(ctx, "eventbrite")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.TryAcquire(ctx, "eventbrite"); !errors.Is(err, lock.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	other, err := l.TryAcquire(ctx, "timeout")
	if err != nil {
		t.Fatalf("other key should be free: %v", err)
	}
	other()
	release()
	release()
	again, err := l.TryAcquire(ctx, "eventbrite")
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	again()
}

func TestForPicksLocalForSQLite(t *testing.T) {
	if _, ok := lock.For(nil, db.SQLite).(*lock.Local); !ok {
		t.Fatalf("expected local locker for sqlite")
	}
	if _, ok := lock.For(nil, db.Postgres).(lock.Postgres); !ok {
		t.Fatalf("expected advisory locker for postgres")
	}
}
