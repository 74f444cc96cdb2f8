package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"avatarforge/internal/app"
	"avatarforge/internal/logging"
	"avatarforge/internal/preflight"
)

// Daemon owns the API server and the lifecycle of the render manager.
type Daemon struct {
	app    *app.App
	logger *slog.Logger
	api    *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon around a built component graph.
func New(a *app.App, logger *slog.Logger) (*Daemon, error) {
	if a == nil || a.Config == nil || a.Manager == nil {
		return nil, errors.New("daemon requires a built app")
	}
	if logger == nil {
		logger = a.Logger
	}
	var metricsHandler http.Handler
	if a.Metrics != nil {
		metricsHandler = a.Metrics.Handler()
	}
	return &Daemon{
		app:    a,
		logger: logging.NewComponentLogger(logger, "daemon"),
		api:    newAPIServer(a.Config.Paths.APIBind, a.Config.Paths.APIToken, a.Manager, metricsHandler, logger),
	}, nil
}

// Start sweeps stale workspaces, logs preflight failures and starts the API
// server. It returns once the listener is bound.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.sweepStaging(runCtx)
	d.logPreflight(runCtx)
	// Heals a record left behind by a worker that died before its epilogue.
	status := d.app.Manager.Status(runCtx)

	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.running.Store(false)
		return err
	}
	d.logger.Info("avatarforge daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("driver", d.app.Config.Database.Driver),
		logging.String("job_status", string(status.Status)),
	)
	return nil
}

// Stop shuts the API down and cancels any running job, waiting up to grace
// for its epilogue.
func (d *Daemon) Stop(grace time.Duration) error {
	if !d.running.CompareAndSwap(true, false) {
		return nil
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := d.app.Manager.Shutdown(ctx); err != nil {
		return fmt.Errorf("wait for running job: %w", err)
	}
	d.logger.Info("avatarforge daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return nil
}

// Addr is the bound API address, empty before Start.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Handler exposes the HTTP routes for in-process tests.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

func (d *Daemon) sweepStaging(ctx context.Context) {
	result := d.app.Staging.CleanStale(ctx, d.app.Config.StaleWorkspaceAge())
	for _, failure := range result.Errors {
		logging.WarnWithContext(d.logger, "stale workspace cleanup failed", "staging_cleanup_failed",
			logging.String("path", failure.Path),
			logging.Error(failure.Error),
			logging.String(logging.FieldErrorHint, "check permissions under results_dir"),
			logging.String(logging.FieldImpact, "leftover run files keep using disk space"),
		)
	}
	if len(result.Removed) > 0 {
		d.logger.Info("removed stale workspaces",
			logging.Int("count", len(result.Removed)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
}

func (d *Daemon) logPreflight(ctx context.Context) {
	app.LogDependencySnapshot(d.logger, d.app.Config)
	for _, failed := range preflight.Failed(preflight.RunAll(ctx, d.app.Config)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "run avatarforge doctor"),
			logging.String(logging.FieldImpact, "renders that need this dependency will fail"),
		)
	}
}
