package joblock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLocker uses a session-scoped Postgres advisory lock.
type PgLocker struct {
	pool *pgxpool.Pool
	key  int64
}

// NewPgLocker binds the locker to a pool and advisory key.
func NewPgLocker(pool *pgxpool.Pool, key int64) *PgLocker {
	return &PgLocker{pool: pool, key: key}
}

// TryAcquire hijacks a connection out of the pool before locking. The session
// then belongs to the lease alone and can never be handed to another caller
// while the lock is held.
func (l *PgLocker) TryAcquire(ctx context.Context) (Lease, bool, error) {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}
	conn := pooled.Hijack()

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		closeConn(conn)
		return nil, false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !ok {
		closeConn(conn)
		return nil, false, nil
	}
	return &pgLease{conn: conn, key: l.key}, true, nil
}

type pgLease struct {
	once sync.Once
	conn *pgx.Conn
	key  int64
	err  error
}

// Release unlocks and closes the dedicated session. Closing alone would drop
// the lock too; the explicit unlock keeps server logs clean.
func (l *pgLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		defer closeConn(l.conn)
		var released bool
		if err := l.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&released); err != nil {
			l.err = fmt.Errorf("pg_advisory_unlock: %w", err)
			return
		}
		if !released {
			l.err = fmt.Errorf("pg_advisory_unlock: lock %d was not held by this session", l.key)
		}
	})
	return l.err
}

func closeConn(conn *pgx.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = conn.Close(ctx)
}
