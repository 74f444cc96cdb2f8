package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	if err := c.normalizeTools(); err != nil {
		return err
	}
	c.normalizeJob()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ResultsDir, err = expandPath(c.Paths.ResultsDir); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	if c.Paths.AvatarDir, err = expandPath(c.Paths.AvatarDir); err != nil {
		return fmt.Errorf("paths.avatar_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeDatabase() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = defaultDriver
	}
	if c.Database.Driver == "postgresql" || c.Database.Driver == "pg" {
		c.Database.Driver = DriverPostgres
	}
	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	if strings.TrimSpace(c.Database.SQLitePath) == "" {
		c.Database.SQLitePath = filepath.Join(c.Paths.StateDir, "avatarforge.db")
	}
	var err error
	if c.Database.SQLitePath, err = expandPath(c.Database.SQLitePath); err != nil {
		return fmt.Errorf("database.sqlite_path: %w", err)
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = defaultMaxConns
	}
	if c.Database.DialTimeoutSeconds <= 0 {
		c.Database.DialTimeoutSeconds = defaultDialTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeTools() error {
	var err error
	c.Speech.Binary = strings.TrimSpace(c.Speech.Binary)
	if c.Speech.Binary == "" {
		c.Speech.Binary = defaultPiperBinary
	}
	if c.Speech.Binary, err = expandBinary(c.Speech.Binary); err != nil {
		return fmt.Errorf("speech.binary: %w", err)
	}
	if strings.TrimSpace(c.Speech.VoiceDefault) == "" {
		c.Speech.VoiceDefault = c.Speech.VoiceFemale
	}
	for name, target := range map[string]*string{
		"speech.voice_male":    &c.Speech.VoiceMale,
		"speech.voice_female":  &c.Speech.VoiceFemale,
		"speech.voice_default": &c.Speech.VoiceDefault,
	} {
		if *target, err = expandPath(strings.TrimSpace(*target)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	c.Video.Python = strings.TrimSpace(c.Video.Python)
	if c.Video.Python == "" {
		c.Video.Python = defaultPython
	}
	if c.Video.Python, err = expandBinary(c.Video.Python); err != nil {
		return fmt.Errorf("video.python: %w", err)
	}
	c.Video.Module = strings.TrimSpace(c.Video.Module)
	if c.Video.Module == "" {
		c.Video.Module = defaultVideoModule
	}
	if c.Video.Workdir, err = expandPath(strings.TrimSpace(c.Video.Workdir)); err != nil {
		return fmt.Errorf("video.workdir: %w", err)
	}
	if c.Video.CheckpointDir, err = expandPath(strings.TrimSpace(c.Video.CheckpointDir)); err != nil {
		return fmt.Errorf("video.checkpoint_dir: %w", err)
	}
	if c.Video.EnhancerWeights, err = expandPath(strings.TrimSpace(c.Video.EnhancerWeights)); err != nil {
		return fmt.Errorf("video.enhancer_weights: %w", err)
	}
	c.Video.Preprocess = strings.ToLower(strings.TrimSpace(c.Video.Preprocess))
	if c.Video.Preprocess == "" {
		c.Video.Preprocess = defaultPreprocess
	}
	c.Video.Enhancer = strings.TrimSpace(c.Video.Enhancer)
	if c.Video.Size == 0 {
		c.Video.Size = defaultVideoSize
	}
	if c.Video.BatchSize == 0 {
		c.Video.BatchSize = defaultBatchSize
	}
	if c.Video.IdleSeconds <= 0 {
		c.Video.IdleSeconds = defaultIdleSeconds
	}
	return nil
}

func (c *Config) normalizeJob() {
	if c.Job.PollIntervalMS == 0 {
		c.Job.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Job.CancelPollIntervalMS == 0 {
		c.Job.CancelPollIntervalMS = defaultCancelPollIntervalMS
	}
	if strings.TrimSpace(c.Job.GreetingTemplate) == "" {
		c.Job.GreetingTemplate = defaultGreetingTemplate
	}
	if c.Job.StaleWorkspaceHours <= 0 {
		c.Job.StaleWorkspaceHours = defaultStaleWorkspaceHours
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = defaultLogFormat
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

// expandBinary expands values that look like paths and leaves bare command
// names for PATH lookup.
func expandBinary(value string) (string, error) {
	if strings.ContainsRune(value, '/') || strings.HasPrefix(value, "~") {
		return expandPath(value)
	}
	return value, nil
}
