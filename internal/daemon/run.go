package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"avatarforge/internal/app"
	"avatarforge/internal/config"
	"avatarforge/internal/logging"
)

const shutdownGrace = 30 * time.Second

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	a, err := app.Build(context.WithoutCancel(signalCtx), cfg, logger)
	if err != nil {
		logger.Error("build components", logging.Error(err))
		return err
	}
	defer a.Close()

	pidPath := filepath.Join(cfg.Paths.StateDir, fmt.Sprintf("avatarforge-%d.pid", os.Getpid()))
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := New(a, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("avatarforge daemon shutting down")
	return d.Stop(shutdownGrace)
}
