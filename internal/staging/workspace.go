package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"avatarforge/internal/entity"
	"avatarforge/internal/fileutil"
	"avatarforge/internal/logging"
	"avatarforge/internal/services"
)

const maxListingEntries = 40

// Workspace is one run's ephemeral directory.
type Workspace struct {
	dir      string
	ref      entity.Ref
	artifact string
	logger   *slog.Logger
}

// Dir is the workspace root; tools write their output here.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace root.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// ArtifactPath is where Promote puts the clip.
func (w *Workspace) ArtifactPath() string {
	return w.artifact
}

// Discover finds the rendered clip. The video tool may write directly into
// the workspace or into a timestamped subfolder, so the whole tree is
// searched. Only this run's workspace is considered; mtime only breaks ties
// between several clips of the same run.
func (w *Workspace) Discover() (string, error) {
	var (
		best     string
		bestTime time.Time
	)
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".mp4") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || info.Size() == 0 {
			return nil
		}
		if best == "" || info.ModTime().After(bestTime) {
			best, bestTime = path, info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", services.Wrap(services.ErrOutputNotFound, "staging", "discover output", "scan workspace", err)
	}
	if best == "" {
		return "", services.Wrap(services.ErrOutputNotFound, "staging", "discover output",
			fmt.Sprintf("no mp4 under %s; contents: %s", w.dir, w.listing()), nil)
	}
	return best, nil
}

// listing renders the workspace tree for diagnostics.
func (w *Workspace) listing() string {
	var entries []string
	_ = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == w.dir {
			return nil
		}
		rel, relErr := filepath.Rel(w.dir, path)
		if relErr != nil {
			rel = path
		}
		if d.IsDir() {
			rel += "/"
		}
		entries = append(entries, rel)
		return nil
	})
	if len(entries) == 0 {
		return "(empty)"
	}
	sort.Strings(entries)
	if len(entries) > maxListingEntries {
		extra := len(entries) - maxListingEntries
		entries = append(entries[:maxListingEntries], fmt.Sprintf("... %d more", extra))
	}
	return strings.Join(entries, ", ")
}

// Promote moves src over the canonical artifact and returns its path.
func (w *Workspace) Promote(src string) (string, error) {
	rel, err := filepath.Rel(w.dir, src)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", services.Wrap(services.ErrValidation, "staging", "promote", "source outside workspace: "+src, nil)
	}
	if err := os.MkdirAll(filepath.Dir(w.artifact), 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "staging", "promote", "create target directory", err)
	}
	if err := fileutil.MoveFile(src, w.artifact); err != nil {
		return "", services.Wrap(services.ErrTransient, "staging", "promote", "move artifact", err)
	}
	w.logger.Info("artifact promoted",
		logging.String("source", rel),
		logging.String("artifact", w.artifact),
		logging.String(logging.FieldEventType, "artifact_promoted"),
	)
	return w.artifact, nil
}

// Cleanup removes the workspace and, when empty, the parent _tmp folder.
// It is safe to call more than once.
func (w *Workspace) Cleanup(ctx context.Context) error {
	if err := os.RemoveAll(w.dir); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, w.logger), "failed to remove workspace",
			"workspace_cleanup_failed",
			logging.String("path", w.dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check results_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed until the stale sweep"),
		)
		return err
	}
	parent := filepath.Dir(w.dir)
	if err := os.Remove(parent); err != nil && !errors.Is(err, fs.ErrNotExist) && !isNotEmpty(err) {
		w.logger.Debug("tmp folder not removed", logging.String("path", parent), logging.Error(err))
	}
	return nil
}

func isNotEmpty(err error) bool {
	return errors.Is(err, unix.ENOTEMPTY) || errors.Is(err, unix.EEXIST)
}
