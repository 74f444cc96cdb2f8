package staging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"avatarforge/internal/entity"
	"avatarforge/internal/logging"
)

// TmpDirName is the per-target directory holding run workspaces.
const TmpDirName = "_tmp"

// Manager resolves durable and ephemeral paths under the results root.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager returns a manager rooted at resultsDir.
func NewManager(resultsDir string, logger *slog.Logger) (*Manager, error) {
	resultsDir = strings.TrimSpace(resultsDir)
	if resultsDir == "" {
		return nil, errors.New("results directory is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{root: resultsDir, logger: logging.NewComponentLogger(logger, "staging")}, nil
}

// Root returns the results root.
func (m *Manager) Root() string {
	return m.root
}

// TargetDir is the durable folder of one entity.
func (m *Manager) TargetDir(ref entity.Ref) string {
	return filepath.Join(m.root, string(ref.Scope), strconv.FormatInt(ref.ID, 10))
}

// ArtifactPath is the canonical location of the promoted clip for ref.
func (m *Manager) ArtifactPath(ref entity.Ref) string {
	return filepath.Join(m.TargetDir(ref), ref.ArtifactName())
}

// Open creates the workspace for one run.
func (m *Manager) Open(ref entity.Ref, runID string) (*Workspace, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}
	dir := filepath.Join(m.TargetDir(ref), TmpDirName, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{
		dir:      dir,
		ref:      ref,
		artifact: m.ArtifactPath(ref),
		logger:   m.logger.With(logging.Target(ref)),
	}, nil
}
