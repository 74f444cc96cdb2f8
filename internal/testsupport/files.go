package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"avatarforge/internal/config"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteStubTool writes an executable /bin/sh script and returns its path.
func WriteStubTool(t testing.TB, dir, name, body string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// WriteAvatar creates an avatar image in the configured avatar directory and
// returns the icon path as the backoffice stores it.
func WriteAvatar(t testing.TB, cfg *config.Config, name string) string {
	t.Helper()

	WriteFile(t, filepath.Join(cfg.Paths.AvatarDir, name), 64)
	return "/static/icons/" + name
}
