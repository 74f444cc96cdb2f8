package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"avatarforge/internal/entity"
	"avatarforge/internal/joblock"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/logging"
	"avatarforge/internal/metrics"
	"avatarforge/internal/notifications"
	"avatarforge/internal/render"
)

// Renderer is the slice of render.Pipeline the runner drives.
type Renderer interface {
	Render(ctx context.Context, job render.Job, hooks render.Hooks) ([]render.Artifact, error)
	Abandon(ctx context.Context, refs []entity.Ref, err error)
	MarkQueued(ctx context.Context, refs []entity.Ref)
}

// Launcher starts the runner body. The default runs it on a new goroutine.
type Launcher func(run func())

// Options wires a Manager. Locker, Tracker and Renderer are required.
type Options struct {
	Locker   joblock.Locker
	Tracker  *jobstate.Tracker
	Renderer Renderer
	Notifier notifications.Service
	Metrics  *metrics.Recorder
	Logger   *slog.Logger

	// CancelPollInterval bounds how often the durable cancel flag is read.
	CancelPollInterval time.Duration
	Launch             Launcher
	NewJobID           func() string
}

// Manager is the admission surface and the owner of the running job.
type Manager struct {
	locker     joblock.Locker
	tracker    *jobstate.Tracker
	renderer   Renderer
	notifier   notifications.Service
	metrics    *metrics.Recorder
	logger     *slog.Logger
	cancelPoll time.Duration
	launch     Launcher
	newJobID   func() string
	now        func() time.Time

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active *activeJob
}

// NewManager validates opts. Jobs run under a context derived from ctx;
// Shutdown cancels it.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	switch {
	case opts.Locker == nil:
		return nil, errors.New("workflow: job locker is required")
	case opts.Tracker == nil:
		return nil, errors.New("workflow: status tracker is required")
	case opts.Renderer == nil:
		return nil, errors.New("workflow: renderer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	cancelPoll := opts.CancelPollInterval
	if cancelPoll <= 0 {
		cancelPoll = time.Second
	}
	launch := opts.Launch
	if launch == nil {
		launch = func(run func()) { go run() }
	}
	newJobID := opts.NewJobID
	if newJobID == nil {
		newJobID = uuid.NewString
	}
	runCtx, stop := context.WithCancel(ctx)
	return &Manager{
		locker:     opts.Locker,
		tracker:    opts.Tracker,
		renderer:   opts.Renderer,
		notifier:   notifier,
		metrics:    opts.Metrics,
		logger:     logging.NewComponentLogger(logger, "workflow"),
		cancelPoll: cancelPoll,
		launch:     launch,
		newJobID:   newJobID,
		now:        func() time.Time { return time.Now().UTC() },
		ctx:        runCtx,
		stop:       stop,
	}, nil
}

// Wait blocks until every launched runner has finished its epilogue.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels the running job, if any, and waits for its epilogue or
// for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) current() *activeJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
