package staging

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"avatarforge/internal/logging"
)

// CleanStaleResult contains the outcome of a stale workspace sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes run workspaces older than maxAge from every
// {scope}/{id}/_tmp folder under the results root. A running job keeps its
// workspace fresh, so only leftovers of crashed runs qualify.
func (m *Manager) CleanStale(ctx context.Context, maxAge time.Duration) CleanStaleResult {
	result := CleanStaleResult{}

	tmpDirs, err := filepath.Glob(filepath.Join(m.root, "*", "*", TmpDirName))
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: m.root, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, tmpDir := range tmpDirs {
		if ctx.Err() != nil {
			break
		}
		entries, err := os.ReadDir(tmpDir)
		if err != nil {
			if !os.IsNotExist(err) {
				result.Errors = append(result.Errors, CleanupError{Path: tmpDir, Error: err})
			}
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dirPath := filepath.Join(tmpDir, entry.Name())
			info, err := entry.Info()
			if err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.RemoveAll(dirPath); err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
				logging.WarnWithContext(m.logger, "failed to remove stale workspace",
					"staging_cleanup_failed",
					logging.String("path", dirPath),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check results_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
				continue
			}
			result.Removed = append(result.Removed, dirPath)
			m.logger.Info("removed stale workspace",
				logging.String("path", dirPath),
				logging.Duration("age", time.Since(info.ModTime())),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
		_ = os.Remove(tmpDir)
	}
	return result
}
