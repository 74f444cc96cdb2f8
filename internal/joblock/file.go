package joblock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// FileLocker guards the render slot with flock(2) on a shared file.
type FileLocker struct {
	path string
}

// NewFileLocker prepares the lock file directory.
func NewFileLocker(path string) (*FileLocker, error) {
	if path == "" {
		return nil, fmt.Errorf("job lock path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &FileLocker{path: path}, nil
}

// Path returns the lock file location.
func (l *FileLocker) Path() string {
	return l.path
}

// TryAcquire opens a fresh descriptor per attempt. flock locks belong to the
// open file description, so two attempts in one process still exclude each
// other.
func (l *FileLocker) TryAcquire(ctx context.Context) (Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil {
		_ = fl.Close()
		return nil, false, fmt.Errorf("try lock %s: %w", l.path, err)
	}
	if !ok {
		_ = fl.Close()
		return nil, false, nil
	}
	return &fileLease{lock: fl}, true, nil
}

type fileLease struct {
	once sync.Once
	lock *flock.Flock
	err  error
}

func (l *fileLease) Release(context.Context) error {
	l.once.Do(func() {
		if err := l.lock.Unlock(); err != nil {
			l.err = fmt.Errorf("unlock %s: %w", l.lock.Path(), err)
		}
	})
	return l.err
}
