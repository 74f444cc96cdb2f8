package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	ResultsDir string `toml:"results_dir"`
	AvatarDir  string `toml:"avatar_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Database selects where the job lock, job status and entity markers live.
type Database struct {
	// Driver is "sqlite" for a single host or "postgres" for a shared database.
	Driver             string `toml:"driver"`
	DSN                string `toml:"dsn"`
	SQLitePath         string `toml:"sqlite_path"`
	MaxConns           int32  `toml:"max_conns"`
	DialTimeoutSeconds int    `toml:"dial_timeout_seconds"`
	AdvisoryLockKey    int64  `toml:"advisory_lock_key"`
}

// Speech configures the piper text-to-speech executable.
type Speech struct {
	Binary       string   `toml:"binary"`
	VoiceMale    string   `toml:"voice_male"`
	VoiceFemale  string   `toml:"voice_female"`
	VoiceDefault string   `toml:"voice_default"`
	ExtraArgs    []string `toml:"extra_args"`
}

// Video configures the SadTalker inference invocation.
type Video struct {
	Python          string `toml:"python"`
	Module          string `toml:"module"`
	Workdir         string `toml:"workdir"`
	CheckpointDir   string `toml:"checkpoint_dir"`
	Size            int    `toml:"size"`
	BatchSize       int    `toml:"batch_size"`
	Preprocess      string `toml:"preprocess"`
	Enhancer        string `toml:"enhancer"`
	EnhancerWeights string `toml:"enhancer_weights"`
	IdleSeconds     int    `toml:"idle_seconds"`
}

// Job contains runner timing and text settings.
type Job struct {
	PollIntervalMS       int    `toml:"poll_interval_ms"`
	CancelPollIntervalMS int    `toml:"cancel_poll_interval_ms"`
	GreetingTemplate     string `toml:"greeting_template"`
	StaleWorkspaceHours  int    `toml:"stale_workspace_hours"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
	Cancelled      bool   `toml:"cancelled"`
}

// Metrics toggles the Prometheus endpoint on the API server.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for avatarforge.
//
// Configuration sections by subsystem:
//   - Paths: results, avatars, state, logs and API bind address
//   - Database: lock/status/entity backend selection
//   - Speech: piper binary and voice models
//   - Video: SadTalker invocation
//   - Job: poll cadence, greeting text, stale workspace age
//   - Notifications: ntfy push notification settings
//   - Metrics: Prometheus exposition
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Database      Database      `toml:"database"`
	Speech        Speech        `toml:"speech"`
	Video         Video         `toml:"video"`
	Job           Job           `toml:"job"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A .env file next to
// the config file or in the working directory is applied before environment
// overrides. The returned config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("avatarforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for rendering.
// The avatar directory is owned by the content side and is never created here.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ResultsDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockFilePath is the flock target used by the sqlite driver.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.StateDir, "render.lock")
}

// PollInterval is the child-process completion poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Job.PollIntervalMS) * time.Millisecond
}

// CancelPollInterval bounds how often the durable cancel flag is read.
func (c *Config) CancelPollInterval() time.Duration {
	return time.Duration(c.Job.CancelPollIntervalMS) * time.Millisecond
}

// StaleWorkspaceAge is the age after which leftover run workspaces are swept.
func (c *Config) StaleWorkspaceAge() time.Duration {
	return time.Duration(c.Job.StaleWorkspaceHours) * time.Hour
}

// DialTimeout bounds the initial database connection.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Database.DialTimeoutSeconds) * time.Second
}

// UsesPostgres reports whether the shared-database driver is selected.
func (c *Config) UsesPostgres() bool {
	return c.Database.Driver == DriverPostgres
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
