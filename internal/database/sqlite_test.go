package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type busyErr struct{}

func (busyErr) Error() string { return "sqlite: busy" }
func (busyErr) Code() int     { return sqliteBusyCode }

func TestRetryOnBusyRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := RetryOnBusy(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return busyErr{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryOnBusy: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	err := RetryOnBusy(context.Background(), func() error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) || attempts != 1 {
		t.Fatalf("expected single failing attempt, got attempts=%d err=%v", attempts, err)
	}
}

func TestIsBusyMatchesMessage(t *testing.T) {
	if !IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatal("expected locked message to count as busy")
	}
	if IsBusy(errors.New("no such table")) {
		t.Fatal("unexpected busy classification")
	}
}

func TestEnsureSQLiteSchemaTracksComponents(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := EnsureSQLiteSchema(ctx, db, "alpha", 1, "CREATE TABLE alpha (id INTEGER)"); err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	if err := EnsureSQLiteSchema(ctx, db, "beta", 3, "CREATE TABLE beta (id INTEGER)"); err != nil {
		t.Fatalf("create beta: %v", err)
	}
	if err := EnsureSQLiteSchema(ctx, db, "alpha", 1, "CREATE TABLE alpha (id INTEGER)"); err != nil {
		t.Fatalf("reopen alpha: %v", err)
	}
	err = EnsureSQLiteSchema(ctx, db, "alpha", 2, "CREATE TABLE alpha (id INTEGER)")
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
