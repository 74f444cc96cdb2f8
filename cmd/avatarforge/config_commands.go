package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"avatarforge/internal/config"
)

const redacted = "********"

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create, check and print the configuration",
	}
	configCmd.AddCommand(
		newConfigInitCommand(),
		newConfigValidateCommand(ctx),
		newConfigShowCommand(ctx),
	)
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Point speech.voice_* at piper models and video.workdir at a SadTalker checkout, then run avatarforge doctor.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func initTarget(flagValue string) (string, error) {
	if target := strings.TrimSpace(flagValue); target != "" {
		expanded, err := config.ExpandPath(target)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return expanded, nil
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return path, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and summarise what it resolves to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			source := ctx.configPath
			if _, err := os.Stat(source); errors.Is(err, fs.ErrNotExist) {
				source += " (missing, defaults used)"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderFields(configSummary(cfg, source), shouldColorize(out)))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

// configSummary lists the settings operators most often get wrong: which
// database holds the lock and where the render tools live.
func configSummary(cfg *config.Config, source string) [][]string {
	lock := cfg.LockFilePath()
	if cfg.UsesPostgres() {
		lock = fmt.Sprintf("advisory key %d", cfg.Database.AdvisoryLockKey)
	}
	return [][]string{
		{"Config", source},
		{"Database", cfg.Database.Driver},
		{"Location", databaseLocation(cfg)},
		{"Job lock", lock},
		{"Results", cfg.Paths.ResultsDir},
		{"Speech", cfg.Speech.Binary},
		{"Video", cfg.Video.Workdir},
		{"API", cfg.Paths.APIBind},
	}
}

// databaseLocation names the database without leaking credentials.
func databaseLocation(cfg *config.Config) string {
	if !cfg.UsesPostgres() {
		return cfg.Database.SQLitePath
	}
	pc, err := pgx.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return "unparseable dsn"
	}
	return fmt.Sprintf("%s@%s:%d/%s", pc.User, pc.Host, pc.Port, pc.Database)
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			masked := *cfg
			if masked.Database.DSN != "" {
				masked.Database.DSN = redacted
			}
			if masked.Paths.APIToken != "" {
				masked.Paths.APIToken = redacted
			}
			encoded, err := toml.Marshal(masked)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(encoded)
			return err
		},
	}
}
