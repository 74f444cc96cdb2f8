package database_test

import (
	"context"
	"os"
	"testing"
	"time"

	"avatarforge/internal/database"
	"avatarforge/internal/testsupport"
)

func TestOpenPostgresRequiresDSN(t *testing.T) {
	if _, err := database.OpenPostgres(context.Background(), database.PostgresConfig{}, nil); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestHealthCheckWithoutPool(t *testing.T) {
	if err := database.HealthCheck(context.Background(), nil, time.Second); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestOpenPostgresPingsServer(t *testing.T) {
	dsn := os.Getenv(testsupport.PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testsupport.PostgresDSNEnv)
	}
	ctx := context.Background()
	pool, err := database.OpenPostgres(ctx, database.PostgresConfig{DSN: dsn, MaxConns: 2, DialTimeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer pool.Close()
	if err := database.HealthCheck(ctx, pool, 2*time.Second); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if got := pool.Config().MaxConns; got != 2 {
		t.Fatalf("MaxConns = %d, want 2", got)
	}
}
