package jobstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"avatarforge/internal/logging"
)

// Tracker is the job status store used by the runner and the status surface.
type Tracker struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache JobStatus
}

// NewTracker wraps backend. A nil logger discards output.
func NewTracker(backend Backend, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	now := func() time.Time { return time.Now().UTC() }
	return &Tracker{
		backend: backend,
		logger:  logging.NewComponentLogger(logger, "jobstate"),
		now:     now,
		cache:   Idle(now(), nil),
	}
}

// Read returns the durable snapshot. When the backend fails the last known
// in-process state is returned with Degraded set.
func (t *Tracker) Read(ctx context.Context) JobStatus {
	status, err := t.backend.Read(ctx)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, t.logger), "job status read failed; serving cached state",
			"jobstate_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database connectivity"),
			logging.String(logging.FieldImpact, "status may be stale"),
		)
		t.mu.Lock()
		defer t.mu.Unlock()
		cached := cloneStatus(t.cache)
		cached.Degraded = true
		return cached
	}
	t.mu.Lock()
	t.cache = cloneStatus(status)
	t.mu.Unlock()
	return status
}

// Write applies patch to the cache and the backend. Backend failures are
// logged and swallowed.
func (t *Tracker) Write(ctx context.Context, patch Patch) {
	t.mu.Lock()
	patch.Apply(&t.cache, t.now())
	t.mu.Unlock()

	if err := t.backend.Write(ctx, patch); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, t.logger), "job status write failed",
			"jobstate_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database connectivity"),
			logging.String(logging.FieldImpact, "other workers may see stale progress"),
		)
	}
}

// RequestCancel sets the durable cancel flag and reports whether a job was
// active. When the backend is unreachable it reports false: the cached record
// may describe a job in another process, which only the durable flag reaches.
// A job owned by the caller is cancelled through its in-memory flag instead.
func (t *Tracker) RequestCancel(ctx context.Context) bool {
	ok, err := t.backend.RequestCancel(ctx)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, t.logger), "durable cancel request failed",
			"jobstate_cancel_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database connectivity"),
			logging.String(logging.FieldImpact, "runners in other processes will not see the request"),
		)
		return false
	}
	if ok {
		t.mu.Lock()
		t.cache.CancelRequested = true
		t.mu.Unlock()
	}
	return ok
}

// CancelRequested reads the durable flag for the active job. Read failures
// fall back to the cache.
func (t *Tracker) CancelRequested(ctx context.Context) bool {
	return t.Read(ctx).CancelRequested
}

// Reset returns the record to idle, keeping last as the previous outcome.
func (t *Tracker) Reset(ctx context.Context, last *Outcome) {
	t.mu.Lock()
	prev := t.cache.Last
	if last != nil {
		prev = cloneOutcome(last)
	}
	t.cache = Idle(t.now(), prev)
	t.mu.Unlock()

	if err := t.backend.Reset(ctx, last); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, t.logger), "job status reset failed",
			"jobstate_reset_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next status read heals the record once the lock is free"),
			logging.String(logging.FieldImpact, "status may report a finished job as active"),
		)
	}
}

// ClearCache forgets in-process state, keeping the last outcome.
func (t *Tracker) ClearCache() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = Idle(t.now(), t.cache.Last)
}

// Close closes the backend.
func (t *Tracker) Close() error {
	return t.backend.Close()
}
