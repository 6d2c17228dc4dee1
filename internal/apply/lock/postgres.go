package lock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
)

// Postgres holds a session-level advisory lock on a connection taken out of
// the pool for the lifetime of the lock.
type Postgres struct {
	db  *sql.DB
	key int64
}

func NewPostgres(db *sql.DB, key int64) *Postgres {
	return &Postgres{db: db, key: key}
}

func (l *Postgres) TryAcquire(ctx context.Context) (Release, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, ErrHeld
	}

	return func(ctx context.Context) error {
		var released bool
		err := conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, l.key).Scan(&released)
		if err == nil && !released {
			err = errors.New("advisory lock was not held by this session")
		}
		if err != nil {
			// Drop the session instead of pooling it so the server frees
			// the lock.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		_ = conn.Close()
		return err
	}, nil
}
