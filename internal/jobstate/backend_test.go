package jobstate_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"avatarforge/internal/entity"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/testsupport"
)

func backends(t *testing.T) map[string]jobstate.Backend {
	t.Helper()
	sqliteBackend, err := jobstate.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = sqliteBackend.Close() })
	out := map[string]jobstate.Backend{
		"sqlite": sqliteBackend,
		"memory": jobstate.NewMemoryBackend(),
	}
	if os.Getenv(testsupport.PostgresDSNEnv) != "" {
		out["postgres"] = pgBackend(t)
	}
	return out
}

func pgBackend(t *testing.T) *jobstate.PgBackend {
	t.Helper()
	backend, err := jobstate.NewPgBackend(context.Background(), testsupport.PostgresPool(t))
	if err != nil {
		t.Fatalf("NewPgBackend: %v", err)
	}
	return backend
}

func TestBackendStartsIdle(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			status, err := backend.Read(context.Background())
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if status.Status != jobstate.StatusIdle || status.Progress != 0 || status.JobID != "" {
				t.Fatalf("unexpected initial status %+v", status)
			}
		})
	}
}

func TestBackendAdmissionAndProgress(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	targets := []entity.Ref{entity.FAQAnswer(7)}
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := backend.Write(ctx, jobstate.Admitted("job-1", jobstate.KindSingle, targets, started)); err != nil {
				t.Fatalf("Write admitted: %v", err)
			}
			if err := backend.Write(ctx, jobstate.Step(50, "rendering")); err != nil {
				t.Fatalf("Write step: %v", err)
			}
			// Lower progress must not move the bar backwards.
			if err := backend.Write(ctx, jobstate.Step(25, "late update")); err != nil {
				t.Fatalf("Write stale step: %v", err)
			}

			status, err := backend.Read(ctx)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if status.Status != jobstate.StatusQueued || status.JobID != "job-1" || status.Kind != jobstate.KindSingle {
				t.Fatalf("unexpected status %+v", status)
			}
			if status.Progress != 50 || status.Message != "late update" {
				t.Fatalf("expected progress 50 with latest message, got %d %q", status.Progress, status.Message)
			}
			if len(status.Targets) != 1 || status.Targets[0] != targets[0] {
				t.Fatalf("unexpected targets %v", status.Targets)
			}
			if status.StartedAt == nil || !status.StartedAt.Equal(started) {
				t.Fatalf("unexpected started_at %v", status.StartedAt)
			}

			// A new admission restarts progress.
			if err := backend.Write(ctx, jobstate.Admitted("job-2", jobstate.KindSingle, targets, started)); err != nil {
				t.Fatalf("Write readmit: %v", err)
			}
			status, _ = backend.Read(ctx)
			if status.Progress != 0 || status.JobID != "job-2" {
				t.Fatalf("expected restarted progress, got %+v", status)
			}
		})
	}
}

func TestBackendCancelOnlyWhileActive(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := backend.RequestCancel(ctx)
			if err != nil || ok {
				t.Fatalf("cancel while idle: ok=%v err=%v", ok, err)
			}

			if err := backend.Write(ctx, jobstate.Admitted("job-1", jobstate.KindPaired, entity.ChatbotPair(3), time.Now())); err != nil {
				t.Fatalf("Write: %v", err)
			}
			for i := 0; i < 2; i++ {
				ok, err = backend.RequestCancel(ctx)
				if err != nil || !ok {
					t.Fatalf("cancel #%d while queued: ok=%v err=%v", i+1, ok, err)
				}
			}
			status, _ := backend.Read(ctx)
			if !status.CancelRequested {
				t.Fatal("expected cancel flag to be set")
			}
		})
	}
}

func TestBackendResetKeepsLastOutcome(t *testing.T) {
	finished := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = backend.Write(ctx, jobstate.Admitted("job-9", jobstate.KindSingle, []entity.Ref{entity.FAQAnswer(1)}, finished))
			_ = backend.Write(ctx, jobstate.Finished(jobstate.StatusError, "render failed", "exit status 1"))

			last := &jobstate.Outcome{JobID: "job-9", Status: jobstate.StatusError, Message: "render failed", Error: "exit status 1", FinishedAt: finished}
			if err := backend.Reset(ctx, last); err != nil {
				t.Fatalf("Reset: %v", err)
			}
			status, err := backend.Read(ctx)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if status.Status != jobstate.StatusIdle || status.JobID != "" || status.Progress != 0 || status.CancelRequested || status.Error != "" {
				t.Fatalf("expected clean idle record, got %+v", status)
			}
			if status.Last == nil || status.Last.JobID != "job-9" || status.Last.Status != jobstate.StatusError || !status.Last.FinishedAt.Equal(finished) {
				t.Fatalf("unexpected last outcome %+v", status.Last)
			}

			// A heal reset without an outcome leaves the previous one in place.
			if err := backend.Reset(ctx, nil); err != nil {
				t.Fatalf("Reset heal: %v", err)
			}
			status, _ = backend.Read(ctx)
			if status.Last == nil || status.Last.JobID != "job-9" {
				t.Fatalf("heal reset dropped last outcome: %+v", status.Last)
			}
		})
	}
}

func TestSQLiteBackendSharedAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	writer, err := jobstate.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	t.Cleanup(func() { _ = writer.Close() })
	reader, err := jobstate.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	t.Cleanup(func() { _ = reader.Close() })

	_ = writer.Write(ctx, jobstate.Admitted("job-x", jobstate.KindSingle, []entity.Ref{entity.FAQAnswer(2)}, time.Now()))
	_ = writer.Write(ctx, jobstate.Transition(jobstate.StatusProcessing, "working"))

	status, err := reader.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if status.Status != jobstate.StatusProcessing || status.JobID != "job-x" {
		t.Fatalf("reader saw %+v", status)
	}
}

func TestPgBackendSeedSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.PostgresPool(t)
	first, err := jobstate.NewPgBackend(ctx, pool)
	if err != nil {
		t.Fatalf("NewPgBackend: %v", err)
	}
	if err := first.Write(ctx, jobstate.Admitted("job-pg", jobstate.KindSingle, []entity.Ref{entity.FAQAnswer(3)}, time.Now())); err != nil {
		t.Fatalf("Write admitted: %v", err)
	}
	if err := first.Write(ctx, jobstate.Step(40, "rendering")); err != nil {
		t.Fatalf("Write step: %v", err)
	}

	// A second worker host opening the backend must not reseed the row.
	second, err := jobstate.NewPgBackend(ctx, pool)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	status, err := second.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if status.JobID != "job-pg" || status.Progress != 40 || !status.Status.Active() {
		t.Fatalf("reopen lost the running job: %+v", status)
	}
	if ok, err := second.RequestCancel(ctx); err != nil || !ok {
		t.Fatalf("cancel from second host: ok=%v err=%v", ok, err)
	}
	status, err = first.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !status.CancelRequested {
		t.Fatalf("first host did not see the cancel flag: %+v", status)
	}
}
