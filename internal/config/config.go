// Package config holds the hiring-data-sync configuration file model.
//
// Values come from a yaml file, then from the environment, then defaults
// fill whatever is still empty. Finalize runs those last two steps and
// validates the result.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"hiring-data-sync/internal/database"
	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/logging"

	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration
type Config struct {
	Database  database.DatabaseConfig `mapstructure:"database" yaml:"database"`
	Snapshot  SnapshotConfig          `mapstructure:"snapshot" yaml:"snapshot"`
	Migration MigrationConfig         `mapstructure:"migration" yaml:"migration"`
	Logging   LoggingConfig           `mapstructure:"logging" yaml:"logging"`
	Lock      LockConfig              `mapstructure:"lock" yaml:"lock"`
	// Timeout bounds a single command run; zero means no limit
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LoggingConfig selects log level, format and an optional log file
type LoggingConfig struct {
	Level      logging.LogLevel `mapstructure:"level" yaml:"level"`
	Format     string           `mapstructure:"format" yaml:"format"`
	ShowCaller bool             `mapstructure:"show_caller" yaml:"show_caller"`
	LogFile    string           `mapstructure:"log_file" yaml:"log_file"`
}

// LockConfig controls the cross-process table lease
type LockConfig struct {
	// Advisory adds a MySQL GET_LOCK lease on top of the in-process lock
	Advisory bool          `mapstructure:"advisory" yaml:"advisory"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
}

// fileLayout is the config file as written. The display section belongs to
// the CLI and is not validated here.
type fileLayout struct {
	Config  `yaml:",inline"`
	Display yaml.Node `yaml:"display"`
}

// Load reads a yaml config file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigurationError("cannot read config file "+path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file fileLayout
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, errors.NewConfigurationError("cannot parse config file "+path, err)
	}
	return &file.Config, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Marshal renders the configuration as yaml
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Finalize applies environment overrides and defaults, then validates
func (c *Config) Finalize() error {
	if err := c.LoadFromEnvironment(); err != nil {
		return err
	}
	c.SetDefaults()
	return c.Validate()
}

// LoadFromEnvironment applies DATABASE_URL and the S3 variables
func (c *Config) LoadFromEnvironment() error {
	if err := c.Database.LoadFromEnvironment(); err != nil {
		return errors.NewConfigurationError("invalid database environment", err)
	}
	c.Migration.LoadFromEnvironment()
	c.Snapshot.LoadFromEnvironment()
	return nil
}

// SetDefaults sets default values for every section
func (c *Config) SetDefaults() {
	c.Database.SetDefaults()
	c.Snapshot.SetDefaults()
	c.Migration.SetDefaults()
	c.Logging.SetDefaults()
	c.Lock.SetDefaults()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := c.Snapshot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("snapshot: %w", err))
	}
	if err := c.Migration.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("migration: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Lock.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("lock: %w", err))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout cannot be negative"))
	}

	if len(errs) > 0 {
		return errors.NewConfigurationError(fmt.Sprintf("configuration validation failed: %v", errs), nil)
	}
	return nil
}

// SetDefaults sets default values for logging configuration
func (lc *LoggingConfig) SetDefaults() {
	if lc.Level == "" {
		lc.Level = logging.LogLevelNormal
	}
	if lc.Format == "" {
		lc.Format = "text"
	}
}

// Validate validates the logging configuration
func (lc *LoggingConfig) Validate() error {
	switch lc.Level {
	case logging.LogLevelQuiet, logging.LogLevelNormal, logging.LogLevelVerbose, logging.LogLevelDebug:
	default:
		return fmt.Errorf("invalid log level %q", lc.Level)
	}
	if lc.Format != "text" && lc.Format != "json" {
		return fmt.Errorf("invalid log format %q", lc.Format)
	}
	return nil
}

// Logger converts the section into a logger configuration
func (lc LoggingConfig) Logger() logging.Config {
	return logging.Config{
		Level:      lc.Level,
		Format:     lc.Format,
		ShowCaller: lc.ShowCaller,
		LogFile:    lc.LogFile,
	}
}

// SetDefaults sets default values for lock configuration
func (lc *LockConfig) SetDefaults() {
	if lc.Timeout == 0 {
		lc.Timeout = 10 * time.Second
	}
	if lc.Prefix == "" {
		lc.Prefix = "hiring-data-sync"
	}
}

// Validate validates the lock configuration
func (lc *LockConfig) Validate() error {
	if lc.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}
