package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"avatarforge/internal/app"
	"avatarforge/internal/config"
	"avatarforge/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := c.flagPath()
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) flagPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// cliLogger writes to stderr so command output on stdout stays parseable.
func (c *commandContext) cliLogger(cfg *config.Config) (*slog.Logger, error) {
	level := "warn"
	if cfg != nil && strings.EqualFold(strings.TrimSpace(cfg.Logging.Level), "debug") {
		level = "debug"
	}
	return logging.New(logging.Options{Level: level, Format: "console", OutputPaths: []string{"stderr"}})
}

// withApp builds the component graph for one command and closes it after fn.
// Jobs started by the command outlive cancellation of the command context so
// the epilogue always runs; interrupts are turned into cancel requests instead.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.cliLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cliCfg := *cfg
	cliCfg.Metrics.Enabled = false
	a, err := app.Build(context.WithoutCancel(ctx), &cliCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
