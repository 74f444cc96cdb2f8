package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"avatarforge/internal/logging"
)

const applicationName = "avatarforge"

// PostgresConfig sizes the shared pool.
type PostgresConfig struct {
	DSN         string
	MaxConns    int32
	DialTimeout time.Duration
}

// OpenPostgres creates a pgx pool and verifies connectivity within the dial
// timeout. The advisory lock holds one connection for the whole job, so
// MaxConns must leave room for status and entity queries.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if pc.MaxConns < 2 {
		pc.MaxConns = 2
	}
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Debug("postgres pool ready",
		logging.Int("max_conns", int(pc.MaxConns)),
		logging.String("host", pc.ConnConfig.Host),
	)
	return pool, nil
}

// HealthCheck pings the pool with an optional timeout.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	if pool == nil {
		return errors.New("postgres pool not configured")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return pool.Ping(ctx)
}
