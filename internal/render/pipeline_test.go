package render_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"avatarforge/internal/config"
	"avatarforge/internal/entity"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/logging"
	"avatarforge/internal/render"
	"avatarforge/internal/services"
	"avatarforge/internal/staging"
	"avatarforge/internal/synth"
	"avatarforge/internal/testsupport"
	"avatarforge/internal/toolexec"
)

type fixture struct {
	cfg      *config.Config
	store    *testsupport.EntityStore
	staging  *staging.Manager
	pipeline *render.Pipeline
	stages   *stageLog
}

type stageLog struct {
	mu     sync.Mutex
	stages []string
}

func (s *stageLog) ObserveStage(stage string, _ time.Duration, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, stage)
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	logger := logging.NewNop()
	runner := toolexec.NewRunner(cfg.PollInterval(), logger).WithTermGrace(2 * time.Second)
	manager, err := staging.NewManager(cfg.Paths.ResultsDir, logger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	store := testsupport.NewEntityStore()
	stages := &stageLog{}
	pipeline, err := render.New(render.Options{
		Store:            store,
		Staging:          manager,
		Speech:           synth.NewSpeech(cfg.Speech, runner),
		Video:            synth.NewVideo(cfg.Video, runner, logger),
		AvatarDir:        cfg.Paths.AvatarDir,
		GreetingTemplate: cfg.Job.GreetingTemplate,
		Observer:         stages,
		Logger:           logger,
		NewRunID:         func() string { return "run" },
	})
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	return &fixture{cfg: cfg, store: store, staging: manager, pipeline: pipeline, stages: stages}
}

func assertNoWorkspace(t *testing.T, f *fixture, refs ...entity.Ref) {
	t.Helper()
	for _, ref := range refs {
		tmp := filepath.Join(f.staging.TargetDir(ref), staging.TmpDirName, "run")
		if _, err := os.Stat(tmp); !os.IsNotExist(err) {
			t.Fatalf("workspace %s still exists (err=%v)", tmp, err)
		}
	}
}

func TestRenderSingleFAQ(t *testing.T) {
	f := newFixture(t)
	icon := testsupport.WriteAvatar(t, f.cfg, "ana.png")
	ref := f.store.AddFAQ(7, "Abrimos às nove.", "f", icon)

	var progress []int
	artifacts, err := f.pipeline.Render(context.Background(), render.Job{ID: "job", Kind: jobstate.KindSingle, Targets: []entity.Ref{ref}},
		render.Hooks{Progress: func(p int, _ string) { progress = append(progress, p) }})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := filepath.Join(f.cfg.Paths.ResultsDir, "faq", "7", "answer.mp4")
	if len(artifacts) != 1 || artifacts[0].Path != want {
		t.Fatalf("unexpected artifacts %+v", artifacts)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if f.store.Marker(ref) != entity.MarkerReady || f.store.Artifact(ref) != want {
		t.Fatalf("marker=%s path=%s", f.store.Marker(ref), f.store.Artifact(ref))
	}
	if got := f.store.History(ref); len(got) != 2 || got[0] != entity.MarkerProcessing {
		t.Fatalf("unexpected marker history %v", got)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}
	if progress[0] != 10 || progress[len(progress)-1] != 100 {
		t.Fatalf("unexpected progress bounds %v", progress)
	}
	assertNoWorkspace(t, f, ref)
}

func TestRenderEmptyTextFailsValidation(t *testing.T) {
	f := newFixture(t)
	icon := testsupport.WriteAvatar(t, f.cfg, "ana.png")
	ref := f.store.AddFAQ(8, "   ", "", icon)

	_, err := f.pipeline.Render(context.Background(), render.Job{Kind: jobstate.KindSingle, Targets: []entity.Ref{ref}}, render.Hooks{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if f.store.Marker(ref) != entity.MarkerFailed {
		t.Fatalf("expected failed marker, got %s", f.store.Marker(ref))
	}
}

func TestRenderMissingAvatarFailsValidation(t *testing.T) {
	f := newFixture(t)
	ref := f.store.AddFAQ(9, "Olá", "m", "/static/icons/missing.png")
	_, err := f.pipeline.Render(context.Background(), render.Job{Kind: jobstate.KindSingle, Targets: []entity.Ref{ref}}, render.Hooks{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRenderPairedIdleFailureKeepsGreeting(t *testing.T) {
	f := newFixture(t, testsupport.WithVideoStep(`if [ "$idle" = 1 ]; then echo "idle mode crashed" >&2; exit 2; fi`))
	icon := testsupport.WriteAvatar(t, f.cfg, "rui.png")
	refs := f.store.AddChatbot(3, "Rui", "m", icon)

	artifacts, err := f.pipeline.Render(context.Background(), render.Job{Kind: jobstate.KindPaired, Targets: refs}, render.Hooks{})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].Ref != refs[0] {
		t.Fatalf("expected greeting artifact only, got %+v", artifacts)
	}
	greeting, idle := refs[0], refs[1]
	if f.store.Marker(greeting) != entity.MarkerReady || f.store.Artifact(greeting) == "" {
		t.Fatalf("greeting should stay ready: marker=%s path=%q", f.store.Marker(greeting), f.store.Artifact(greeting))
	}
	if f.store.Marker(idle) != entity.MarkerFailed || f.store.Artifact(idle) != "" {
		t.Fatalf("idle should be failed without artifact: marker=%s path=%q", f.store.Marker(idle), f.store.Artifact(idle))
	}
	assertNoWorkspace(t, f, refs...)
}

func TestRenderPairedGreetingFailureMarksBothSlots(t *testing.T) {
	f := newFixture(t, testsupport.WithVideoStep(`exit 1`))
	icon := testsupport.WriteAvatar(t, f.cfg, "rui.png")
	refs := f.store.AddChatbot(4, "Rui", "m", icon)

	if _, err := f.pipeline.Render(context.Background(), render.Job{Kind: jobstate.KindPaired, Targets: refs}, render.Hooks{}); err == nil {
		t.Fatal("expected failure")
	}
	for _, ref := range refs {
		if f.store.Marker(ref) != entity.MarkerFailed {
			t.Fatalf("%s marker = %s, want failed", ref, f.store.Marker(ref))
		}
	}
}

func TestRenderCancelDuringVideo(t *testing.T) {
	f := newFixture(t, testsupport.WithVideoStep(`trap 'exit 143' TERM; sleep 0.3 & wait; sleep 5 & wait`))
	icon := testsupport.WriteAvatar(t, f.cfg, "ana.png")
	ref := f.store.AddFAQ(11, "Olá", "f", icon)
	f.store.SetArtifact(ref, "/old/answer.mp4")

	var flag atomic.Bool
	hooks := render.Hooks{
		Progress: func(p int, msg string) {
			if p >= 50 {
				time.AfterFunc(50*time.Millisecond, func() { flag.Store(true) })
			}
		},
		Cancelled: flag.Load,
	}
	_, err := f.pipeline.Render(context.Background(), render.Job{Kind: jobstate.KindSingle, Targets: []entity.Ref{ref}}, hooks)
	if !services.IsCancellation(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if f.store.Marker(ref) != entity.MarkerCancelled || f.store.Artifact(ref) != "" {
		t.Fatalf("marker=%s path=%q", f.store.Marker(ref), f.store.Artifact(ref))
	}
	if _, err := os.Stat(f.staging.ArtifactPath(ref)); !os.IsNotExist(err) {
		t.Fatal("no artifact may be promoted for a cancelled run")
	}
	assertNoWorkspace(t, f, ref)
}

func TestRenderMarkerWriteFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t)
	icon := testsupport.WriteAvatar(t, f.cfg, "ana.png")
	ref := f.store.AddFAQ(12, "Olá", "", icon)
	f.store.FailWrites(errors.New("db down"))

	artifacts, err := f.pipeline.Render(context.Background(), render.Job{Kind: jobstate.KindSingle, Targets: []entity.Ref{ref}}, render.Hooks{})
	if err != nil || len(artifacts) != 1 {
		t.Fatalf("marker failures must not fail the job: %v", err)
	}
}

func TestResolveAvatar(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "bot.png"), 8)

	got, err := render.ResolveAvatar(dir, "/static/icons/bot.png")
	if err != nil || got != filepath.Join(dir, "bot.png") {
		t.Fatalf("ResolveAvatar = %q, %v", got, err)
	}
	for _, icon := range []string{"", "/", "../../etc/passwd"} {
		if _, err := render.ResolveAvatar(dir, icon); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("ResolveAvatar(%q) expected validation error, got %v", icon, err)
		}
	}
}
