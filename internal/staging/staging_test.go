package staging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"avatarforge/internal/entity"
	"avatarforge/internal/logging"
	"avatarforge/internal/services"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWorkspaceLayout(t *testing.T) {
	m := newManager(t)
	ref := entity.FAQAnswer(7)
	ws, err := m.Open(ref, "run-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := filepath.Join(m.Root(), "faq", "7", "_tmp", "run-1")
	if ws.Dir() != want {
		t.Fatalf("workspace dir %s, want %s", ws.Dir(), want)
	}
	if ws.ArtifactPath() != filepath.Join(m.Root(), "faq", "7", "answer.mp4") {
		t.Fatalf("unexpected artifact path %s", ws.ArtifactPath())
	}
	if _, err := m.Open(ref, "../escape"); err == nil {
		t.Fatal("expected invalid run id to be rejected")
	}
}

func TestDiscoverPicksNestedNewestClip(t *testing.T) {
	m := newManager(t)
	ws, err := m.Open(entity.FAQAnswer(1), "run")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	writeFile(t, ws.Path("speech.wav"), "wav", time.Time{})
	writeFile(t, ws.Path("old.mp4"), "old", now.Add(-time.Minute))
	writeFile(t, filepath.Join(ws.Dir(), "2026_03_01_12.00.00", "avatar##speech.mp4"), "new", now)
	writeFile(t, ws.Path("empty.mp4"), "", now.Add(time.Minute))

	got, err := ws.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if filepath.Base(got) != "avatar##speech.mp4" {
		t.Fatalf("Discover picked %s", got)
	}
}

func TestDiscoverIgnoresSiblingRuns(t *testing.T) {
	m := newManager(t)
	ref := entity.FAQAnswer(2)
	other, _ := m.Open(ref, "other")
	writeFile(t, other.Path("clip.mp4"), "other run", time.Time{})

	ws, _ := m.Open(ref, "mine")
	writeFile(t, ws.Path("notes.txt"), "log", time.Time{})

	_, err := ws.Discover()
	if !errors.Is(err, services.ErrOutputNotFound) {
		t.Fatalf("expected ErrOutputNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "notes.txt") {
		t.Fatalf("expected listing in error, got %v", err)
	}
}

func TestPromoteReplacesArtifactAndCleanupRemovesWorkspace(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	ref := entity.ChatbotPair(4)[0]
	writeFile(t, m.ArtifactPath(ref), "previous", time.Time{})

	ws, _ := m.Open(ref, "run")
	writeFile(t, filepath.Join(ws.Dir(), "sub", "out.mp4"), "fresh", time.Time{})
	clip, err := ws.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	artifact, err := ws.Promote(clip)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	data, _ := os.ReadFile(artifact)
	if string(data) != "fresh" {
		t.Fatalf("artifact content %q", data)
	}

	if err := ws.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if err := ws.Cleanup(ctx); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Fatal("workspace should be removed")
	}
	if _, err := os.Stat(filepath.Join(m.TargetDir(ref), TmpDirName)); !os.IsNotExist(err) {
		t.Fatal("empty _tmp folder should be removed")
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("artifact should survive cleanup: %v", err)
	}
}

func TestPromoteRejectsOutsideSource(t *testing.T) {
	m := newManager(t)
	ws, _ := m.Open(entity.FAQAnswer(3), "run")
	outside := filepath.Join(m.Root(), "elsewhere.mp4")
	writeFile(t, outside, "x", time.Time{})
	if _, err := ws.Promote(outside); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCleanStaleRemovesOldWorkspaces(t *testing.T) {
	m := newManager(t)
	old, _ := m.Open(entity.FAQAnswer(5), "old")
	recent, _ := m.Open(entity.ChatbotPair(6)[1], "recent")
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old.Dir(), past, past); err != nil {
		t.Fatal(err)
	}

	result := m.CleanStale(context.Background(), time.Hour)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
	if len(result.Removed) != 1 || result.Removed[0] != old.Dir() {
		t.Fatalf("unexpected removals %v", result.Removed)
	}
	if _, err := os.Stat(recent.Dir()); err != nil {
		t.Fatal("recent workspace should remain")
	}
}

func TestCleanStaleMissingRoot(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "missing"), nil)
	if err != nil {
		t.Fatal(err)
	}
	result := m.CleanStale(context.Background(), time.Hour)
	if len(result.Removed) != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}
