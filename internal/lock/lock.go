package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"eventhub/internal/db"
)

// ErrLocked is returned when another run already holds the key.
var ErrLocked = errors.New("run already in progress")

// Locker grants non-blocking mutual exclusion per key.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (release func(), err error)
}

// For picks the locker matching the database dialect.
func For(conn *sql.DB, dialect db.Dialect) Locker {
	if dialect == db.Postgres {
		return Postgres{DB: conn}
	}
	return NewLocal()
}

// Local is an in-process keyed lock.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: map[string]struct{}{}}
}

func (l *Local) TryAcquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Postgres uses session-level advisory locks, held on a dedicated connection
// until release.
type Postgres struct {
	DB *sql.DB
}

func (p Postgres) TryAcquire(ctx context.Context, key string) (func(), error) {
	conn, err := p.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock connection: %w", err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&ok); err != nil {
		conn.Close()
		return nil, fmt.Errorf("try advisory lock %s: %w", key, err)
	}
	if !ok {
		conn.Close()
		return nil, ErrLocked
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key)
			conn.Close()
		})
	}, nil
}
