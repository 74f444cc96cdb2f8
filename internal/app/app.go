package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"avatarforge/internal/config"
	"avatarforge/internal/database"
	"avatarforge/internal/entity"
	"avatarforge/internal/joblock"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/logging"
	"avatarforge/internal/metrics"
	"avatarforge/internal/notifications"
	"avatarforge/internal/preflight"
	"avatarforge/internal/render"
	"avatarforge/internal/staging"
	"avatarforge/internal/synth"
	"avatarforge/internal/toolexec"
	"avatarforge/internal/workflow"
)

// App holds the wired components. Close releases database handles.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Locker   joblock.Locker
	Tracker  *jobstate.Tracker
	Entities entity.Store
	Staging  *staging.Manager
	Pipeline *render.Pipeline
	Metrics  *metrics.Recorder
	Notifier notifications.Service
	Manager  *workflow.Manager

	closers []func() error
}

// Option adjusts Build.
type Option func(*buildOptions)

type buildOptions struct {
	entities entity.Store
	notifier notifications.Service
	launch   workflow.Launcher
}

// WithEntityStore replaces the driver's entity store.
func WithEntityStore(store entity.Store) Option {
	return func(o *buildOptions) { o.entities = store }
}

// WithNotifier replaces the ntfy notifier.
func WithNotifier(n notifications.Service) Option {
	return func(o *buildOptions) { o.notifier = n }
}

// WithLauncher replaces the goroutine launcher of the workflow manager.
func WithLauncher(l workflow.Launcher) Option {
	return func(o *buildOptions) { o.launch = l }
}

// Build opens storage for the configured driver and wires every component.
// Jobs run under ctx.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var options buildOptions
	for _, opt := range opts {
		opt(&options)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}
	var (
		backend  jobstate.Backend
		entities entity.Store
		err      error
	)
	if cfg.UsesPostgres() {
		backend, entities, err = a.openPostgres(ctx)
	} else {
		backend, entities, err = a.openSQLite(ctx)
	}
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if options.entities != nil {
		entities = options.entities
	}
	a.Entities = entities
	a.Tracker = jobstate.NewTracker(backend, logger)
	a.closers = append(a.closers, a.Tracker.Close)

	a.Staging, err = staging.NewManager(cfg.Paths.ResultsDir, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}
	a.Notifier = options.notifier
	if a.Notifier == nil {
		a.Notifier = notifications.NewService(cfg)
	}

	runner := toolexec.NewRunner(cfg.PollInterval(), logger)
	var observer render.StageObserver
	if a.Metrics != nil {
		observer = a.Metrics
	}
	a.Pipeline, err = render.New(render.Options{
		Store:            entities,
		Staging:          a.Staging,
		Speech:           synth.NewSpeech(cfg.Speech, runner),
		Video:            synth.NewVideo(cfg.Video, runner, logger),
		AvatarDir:        cfg.Paths.AvatarDir,
		GreetingTemplate: cfg.Job.GreetingTemplate,
		Observer:         observer,
		Logger:           logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Manager, err = workflow.NewManager(ctx, workflow.Options{
		Locker:             a.Locker,
		Tracker:            a.Tracker,
		Renderer:           a.Pipeline,
		Notifier:           a.Notifier,
		Metrics:            a.Metrics,
		Logger:             logger,
		CancelPollInterval: cfg.CancelPollInterval(),
		Launch:             options.launch,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openSQLite(ctx context.Context) (jobstate.Backend, entity.Store, error) {
	cfg := a.Config
	locker, err := joblock.NewFileLocker(cfg.LockFilePath())
	if err != nil {
		return nil, nil, err
	}
	a.Locker = locker

	db, err := database.OpenSQLite(cfg.Database.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, db.Close)

	backend, err := jobstate.NewSQLiteBackend(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("open job status: %w", err)
	}
	store, err := entity.NewSQLiteStore(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("open entity store: %w", err)
	}
	return backend, store, nil
}

func (a *App) openPostgres(ctx context.Context) (jobstate.Backend, entity.Store, error) {
	cfg := a.Config
	pool, err := database.OpenPostgres(ctx, database.PostgresConfig{
		DSN:         cfg.Database.DSN,
		MaxConns:    cfg.Database.MaxConns,
		DialTimeout: cfg.DialTimeout(),
	}, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	a.Locker = joblock.NewPgLocker(pool, cfg.Database.AdvisoryLockKey)

	backend, err := jobstate.NewPgBackend(ctx, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("open job status: %w", err)
	}
	store := entity.NewPgStore(pool)
	if err := store.EnsureColumns(ctx); err != nil {
		return nil, nil, fmt.Errorf("prepare entity columns: %w", err)
	}
	return backend, store, nil
}

// Close releases storage in reverse order of opening.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

var snapshotKey = strings.NewReplacer(" ", "_", "(", "", ")", "")

// LogDependencySnapshot records which external tools and models were found.
func LogDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("driver", cfg.Database.Driver),
		logging.Int("video_size", cfg.Video.Size),
		logging.String("preprocess", cfg.Video.Preprocess),
	}
	for _, status := range preflight.CheckSystemDeps(cfg) {
		attrs = append(attrs, logging.Bool(snapshotKey.Replace(strings.ToLower(status.Name))+"_available", status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
