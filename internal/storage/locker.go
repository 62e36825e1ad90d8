package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLocker serializes work per key across processes using Postgres
// session advisory locks. Each held or awaited lock pins one connection of a
// pool reserved for locking, so waiters cannot starve the store's own pool.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", key, err)
	}

	return func() {
		// The caller's context may already be done; unlocking must still happen.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
			slog.Error("advisory unlock failed", "key", key, "error", err)
			// A connection still holding the lock must not go back to the pool.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}
