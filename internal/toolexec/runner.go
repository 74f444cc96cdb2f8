package toolexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"avatarforge/internal/logging"
	"avatarforge/internal/services"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultTermGrace    = 10 * time.Second
	outputTailBytes     = 4096
)

// Command describes one child process.
type Command struct {
	// Name labels the stage in logs and errors.
	Name   string
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// Result summarises a finished child.
type Result struct {
	Duration time.Duration
	Output   string
}

// CancelFunc reports whether the job has been asked to stop.
type CancelFunc func() bool

// Runner executes commands with the poll loop.
type Runner struct {
	poll      time.Duration
	termGrace time.Duration
	logger    *slog.Logger
}

// NewRunner creates a runner polling at interval.
func NewRunner(interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{poll: interval, termGrace: defaultTermGrace, logger: logging.NewComponentLogger(logger, "toolexec")}
}

// WithTermGrace sets how long Run waits for a terminated child to exit before
// giving up on it.
func (r *Runner) WithTermGrace(d time.Duration) *Runner {
	clone := *r
	clone.termGrace = d
	return &clone
}

// Run starts cmd and waits for it. cancelled may be nil. A cancelled ctx is
// treated like a cancel request.
func (r *Runner) Run(ctx context.Context, cmd Command, cancelled CancelFunc) (Result, error) {
	logger := logging.WithContext(ctx, r.logger).With(logging.String("tool", cmd.Name))
	if err := ctx.Err(); err != nil {
		return Result{}, services.Wrap(services.ErrCancelled, cmd.Name, "start", "cancelled before start", err)
	}
	if cancelled != nil && cancelled() {
		return Result{}, services.Wrap(services.ErrCancelled, cmd.Name, "start", "cancelled before start", nil)
	}

	tail := newTailBuffer(outputTailBytes)
	child := exec.Command(cmd.Binary, cmd.Args...) //nolint:gosec
	child.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		child.Env = append(os.Environ(), cmd.Env...)
	}
	child.Stdout = tail
	child.Stderr = tail
	child.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	started := time.Now()
	if err := child.Start(); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, cmd.Name, "start", cmd.Binary, err)
	}
	logger.Debug("tool started",
		logging.Int("pid", child.Process.Pid),
		logging.String("command", cmd.String()),
		logging.String(logging.FieldEventType, "tool_start"),
	)

	done := make(chan error, 1)
	go func() { done <- child.Wait() }()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			result := Result{Duration: time.Since(started), Output: tail.String()}
			if err != nil {
				return result, exitError(cmd, err, result.Output)
			}
			logger.Debug("tool finished",
				logging.Duration("duration", result.Duration),
				logging.String(logging.FieldEventType, "tool_complete"),
			)
			return result, nil
		case <-ticker.C:
			if ctx.Err() == nil && (cancelled == nil || !cancelled()) {
				continue
			}
			result := r.terminate(logger, child.Process.Pid, done)
			result.Duration = time.Since(started)
			result.Output = tail.String()
			return result, services.Wrap(services.ErrCancelled, cmd.Name, "run", "terminated on cancel request", ctx.Err())
		}
	}
}

// terminate asks the process group to stop and waits up to the grace period.
// A group that ignores SIGTERM is left running; Run returns anyway so the
// job epilogue can release the lock.
func (r *Runner) terminate(logger *slog.Logger, pid int, done <-chan error) Result {
	logger.Info("terminating tool on cancel request",
		logging.Int("pid", pid),
		logging.String(logging.FieldEventType, "tool_terminate"),
	)
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		logging.WarnWithContext(logger, "failed to signal tool process group",
			"tool_signal_failed",
			logging.Int("pid", pid),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the tool may keep running until it finishes"),
			logging.String(logging.FieldImpact, "GPU remains busy"),
		)
	}
	if r.termGrace <= 0 {
		return Result{}
	}
	timer := time.NewTimer(r.termGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logging.WarnWithContext(logger, "tool still running after terminate",
			"tool_terminate_timeout",
			logging.Int("pid", pid),
			logging.Duration("grace", r.termGrace),
			logging.String(logging.FieldErrorHint, "the tool ignores SIGTERM"),
			logging.String(logging.FieldImpact, "output written after cleanup is left for the stale sweep"),
		)
	}
	return Result{}
}

func exitError(cmd Command, err error, output string) error {
	detail := cmd.Binary
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail = fmt.Sprintf("exit status %d", exitErr.ExitCode())
	}
	if tail := lastLines(output, 5); tail != "" {
		detail += ": " + tail
	}
	return services.Wrap(services.ErrExternalTool, cmd.Name, "run", detail, err)
}

func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
