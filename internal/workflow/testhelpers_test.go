package workflow_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"avatarforge/internal/config"
	"avatarforge/internal/entity"
	"avatarforge/internal/joblock"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/logging"
	"avatarforge/internal/metrics"
	"avatarforge/internal/render"
	"avatarforge/internal/staging"
	"avatarforge/internal/synth"
	"avatarforge/internal/testsupport"
	"avatarforge/internal/toolexec"
	"avatarforge/internal/workflow"
)

// recordingBackend remembers every status a patch moved the record to.
type recordingBackend struct {
	*jobstate.SQLiteBackend
	mu       sync.Mutex
	statuses []jobstate.Status
}

func (r *recordingBackend) Write(ctx context.Context, patch jobstate.Patch) error {
	if patch.Status != nil {
		r.mu.Lock()
		r.statuses = append(r.statuses, *patch.Status)
		r.mu.Unlock()
	}
	return r.SQLiteBackend.Write(ctx, patch)
}

func (r *recordingBackend) Statuses() []jobstate.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobstate.Status(nil), r.statuses...)
}

// manualLauncher holds runner bodies until the test releases them.
type manualLauncher struct {
	mu      sync.Mutex
	pending []func()
}

func (l *manualLauncher) Launch(run func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, run)
}

func (l *manualLauncher) RunAll() {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, run := range pending {
		run()
	}
}

type harness struct {
	cfg      *config.Config
	store    *testsupport.EntityStore
	staging  *staging.Manager
	backend  *recordingBackend
	tracker  *jobstate.Tracker
	locker   *joblock.FileLocker
	pipeline *render.Pipeline
	recorder *metrics.Recorder
	manager  *workflow.Manager
}

type harnessOptions struct {
	launch   workflow.Launcher
	renderer workflow.Renderer
	config   []testsupport.ConfigOption
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, opts.config...)
	logger := logging.NewNop()

	sqlite, err := jobstate.OpenSQLite(ctx, cfg.Database.SQLitePath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	backend := &recordingBackend{SQLiteBackend: sqlite}
	tracker := jobstate.NewTracker(backend, logger)
	t.Cleanup(func() { _ = tracker.Close() })

	locker, err := joblock.NewFileLocker(cfg.LockFilePath())
	if err != nil {
		t.Fatalf("NewFileLocker: %v", err)
	}
	stagingMgr, err := staging.NewManager(cfg.Paths.ResultsDir, logger)
	if err != nil {
		t.Fatalf("staging.NewManager: %v", err)
	}
	recorder := metrics.New()
	runner := toolexec.NewRunner(cfg.PollInterval(), logger).WithTermGrace(2 * time.Second)
	store := testsupport.NewEntityStore()
	pipeline, err := render.New(render.Options{
		Store:            store,
		Staging:          stagingMgr,
		Speech:           synth.NewSpeech(cfg.Speech, runner),
		Video:            synth.NewVideo(cfg.Video, runner, logger),
		AvatarDir:        cfg.Paths.AvatarDir,
		GreetingTemplate: cfg.Job.GreetingTemplate,
		Observer:         recorder,
		Logger:           logger,
		NewRunID:         func() string { return "run" },
	})
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}

	var renderer workflow.Renderer = pipeline
	if opts.renderer != nil {
		renderer = opts.renderer
	}
	var seq atomic.Int64
	manager, err := workflow.NewManager(ctx, workflow.Options{
		Locker:             locker,
		Tracker:            tracker,
		Renderer:           renderer,
		Metrics:            recorder,
		Logger:             logger,
		CancelPollInterval: cfg.CancelPollInterval(),
		Launch:             opts.launch,
		NewJobID:           func() string { return fmt.Sprintf("job-%d", seq.Add(1)) },
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = manager.Shutdown(shutdownCtx)
	})

	return &harness{
		cfg:      cfg,
		store:    store,
		staging:  stagingMgr,
		backend:  backend,
		tracker:  tracker,
		locker:   locker,
		pipeline: pipeline,
		recorder: recorder,
		manager:  manager,
	}
}

func (h *harness) admit(t *testing.T, req workflow.Request) workflow.Admission {
	t.Helper()
	admission, err := h.manager.RequestJob(context.Background(), req)
	if err != nil {
		t.Fatalf("RequestJob(%+v): %v", req, err)
	}
	return admission
}

// waitFor polls the healed status until cond holds.
func (h *harness) waitFor(t *testing.T, what string, cond func(jobstate.JobStatus) bool) jobstate.JobStatus {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		status := h.manager.Status(context.Background())
		if cond(status) {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last status %+v", what, status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (h *harness) lastOutcome(t *testing.T) *jobstate.Outcome {
	t.Helper()
	status := h.manager.Status(context.Background())
	if status.Status != jobstate.StatusIdle {
		t.Fatalf("expected idle after epilogue, got %s", status.Status)
	}
	if status.Last == nil {
		t.Fatal("expected a last outcome after epilogue")
	}
	return status.Last
}

func (h *harness) assertLockFree(t *testing.T) {
	t.Helper()
	free, err := joblock.IsFree(context.Background(), h.locker)
	if err != nil {
		t.Fatalf("IsFree: %v", err)
	}
	if !free {
		t.Fatal("job lock still held after epilogue")
	}
}

func (h *harness) assertNoWorkspace(t *testing.T, refs ...entity.Ref) {
	t.Helper()
	for _, ref := range refs {
		tmp := filepath.Join(h.staging.TargetDir(ref), staging.TmpDirName, "run")
		if _, err := os.Stat(tmp); !os.IsNotExist(err) {
			t.Fatalf("workspace %s still exists (err=%v)", tmp, err)
		}
	}
}
