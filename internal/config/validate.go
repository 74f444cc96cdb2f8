package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validateJob(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ResultsDir == "" {
		return errors.New("paths.results_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("database.dsn is required for the postgres driver. Set DATABASE_URL or edit %s", defaultPath)
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	return nil
}

func (c *Config) validateVideo() error {
	if c.Video.Size != 256 && c.Video.Size != 512 {
		return fmt.Errorf("video.size must be 256 or 512, got %d", c.Video.Size)
	}
	if c.Video.BatchSize < 1 || c.Video.BatchSize > 16 {
		return fmt.Errorf("video.batch_size must be between 1 and 16, got %d", c.Video.BatchSize)
	}
	switch c.Video.Preprocess {
	case PreprocessCrop, PreprocessFull, PreprocessExtFull:
	default:
		return fmt.Errorf("video.preprocess must be crop, full, or extfull, got %q", c.Video.Preprocess)
	}
	if c.Video.IdleSeconds > 60 {
		return errors.New("video.idle_seconds must be at most 60")
	}
	return nil
}

func (c *Config) validateJob() error {
	if c.Job.PollIntervalMS <= 0 {
		return errors.New("job.poll_interval_ms must be positive")
	}
	if c.Job.CancelPollIntervalMS <= 0 || c.Job.CancelPollIntervalMS > 1000 {
		return fmt.Errorf("job.cancel_poll_interval_ms must be between 1 and 1000, got %d", c.Job.CancelPollIntervalMS)
	}
	if !strings.Contains(c.Job.GreetingTemplate, "%s") {
		return errors.New("job.greeting_template must contain %s for the chatbot name")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
