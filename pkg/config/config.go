package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sdejongh/davsync/internal/platform"
	"github.com/sdejongh/davsync/pkg/models"
	"github.com/sdejongh/davsync/pkg/state"
)

// Config represents the application configuration
type Config struct {
	WebDAV  WebDAVConfig  `yaml:"webdav"`
	Sync    SyncConfig    `yaml:"sync"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Exclude []string      `yaml:"exclude"`
}

// WebDAVConfig holds the server connection
type WebDAVConfig struct {
	URL                string `yaml:"url"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	RemoteFolder       string `yaml:"remote_folder"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	BandwidthLimit     string `yaml:"bandwidth_limit"` // e.g. "2MiB"; empty = unlimited
}

// SyncConfig holds sync-related settings
type SyncConfig struct {
	LocalRoot        string `yaml:"local_root"`
	AutoSync         bool   `yaml:"auto_sync"`
	IntervalMinutes  int    `yaml:"interval_minutes"`
	DirSettleDelayMS int    `yaml:"dir_settle_delay_ms"`
	HashWorkers      int    `yaml:"hash_workers"`
	StateFile        string `yaml:"state_file"` // empty = derived from url, folder and local root
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format   string `yaml:"format"`   // "human" or "json"
	Progress bool   `yaml:"progress"` // Show progress bars
	Quiet    bool   `yaml:"quiet"`    // Suppress non-error output
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format     string `yaml:"format"` // "json" or "text"
	File       string `yaml:"file"`   // Log file path (empty = console only)
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		WebDAV: WebDAVConfig{
			RemoteFolder:   "davsync",
			TimeoutSeconds: 300,
		},
		Sync: SyncConfig{
			AutoSync:         true,
			IntervalMinutes:  15,
			DirSettleDelayMS: int(models.DefaultDirSettleDelay / time.Millisecond),
			HashWorkers:      models.DefaultHashWorkers,
		},
		Output: OutputConfig{
			Format:   "human",
			Progress: false,
			Quiet:    false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Exclude: []string{
			"*.tmp",
			"node_modules/",
		},
	}
}

// Validate checks if the configuration is valid. Connection settings may be
// empty here; commands that talk to the server call ValidateConnection.
func (c *Config) Validate() error {
	if c.WebDAV.URL != "" {
		u, err := url.Parse(c.WebDAV.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &models.ValidationError{
				Field:   "webdav.url",
				Message: "must be an http or https URL",
			}
		}
	}

	if c.WebDAV.TimeoutSeconds < 0 {
		return &models.ValidationError{
			Field:   "webdav.timeout_seconds",
			Message: "cannot be negative",
		}
	}

	if _, err := c.BandwidthLimit(); err != nil {
		return &models.ValidationError{
			Field:   "webdav.bandwidth_limit",
			Message: err.Error(),
		}
	}

	if c.Sync.IntervalMinutes < 1 {
		return &models.ValidationError{
			Field:   "sync.interval_minutes",
			Message: "must be at least 1",
		}
	}

	if c.Sync.DirSettleDelayMS < 0 {
		return &models.ValidationError{
			Field:   "sync.dir_settle_delay_ms",
			Message: "cannot be negative",
		}
	}

	if c.Sync.HashWorkers < 0 {
		return &models.ValidationError{
			Field:   "sync.hash_workers",
			Message: "cannot be negative",
		}
	}

	if c.Sync.LocalRoot != "" {
		if err := platform.ValidatePath(c.Sync.LocalRoot); err != nil {
			return &models.ValidationError{Field: "sync.local_root", Message: err.Error()}
		}
	}

	validFormats := map[string]bool{"human": true, "json": true}
	if !validFormats[c.Output.Format] {
		return &models.ValidationError{
			Field:   "output.format",
			Message: "must be 'human' or 'json'",
		}
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return &models.ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'text'",
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return &models.ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return &models.ValidationError{
			Field:   "logging",
			Message: "rotation settings cannot be negative",
		}
	}

	return nil
}

// ValidateConnection checks the settings needed to reach the server
func (c *Config) ValidateConnection() error {
	if c.WebDAV.URL == "" {
		return &models.ValidationError{Field: "webdav.url", Message: "is required"}
	}
	return nil
}

// ValidateSync checks the settings needed to run a pass
func (c *Config) ValidateSync() error {
	if err := c.ValidateConnection(); err != nil {
		return err
	}
	if c.Sync.LocalRoot == "" {
		return &models.ValidationError{Field: "sync.local_root", Message: "is required"}
	}
	if strings.Trim(c.WebDAV.RemoteFolder, "/ ") == "" {
		return &models.ValidationError{Field: "webdav.remote_folder", Message: "is required"}
	}
	return nil
}

// Timeout returns the per-request timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.WebDAV.TimeoutSeconds) * time.Second
}

// BandwidthLimit parses webdav.bandwidth_limit into bytes per second.
// An empty value or "0" means unlimited.
func (c *Config) BandwidthLimit() (int64, error) {
	v := strings.TrimSpace(c.WebDAV.BandwidthLimit)
	if v == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(strings.TrimSuffix(v, "/s"))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", v)
	}
	return int64(n), nil
}

// Interval returns the time between automatic passes
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// LocalRoot returns the local root with ~ expanded
func (c *Config) LocalRoot() string {
	return platform.NormalizePath(c.Sync.LocalRoot)
}

// PassOptions builds the options for a sync pass
func (c *Config) PassOptions() models.PassOptions {
	return models.PassOptions{
		LocalRoot:       c.LocalRoot(),
		RemoteRoot:      c.WebDAV.RemoteFolder,
		ExcludePatterns: append([]string(nil), c.Exclude...),
		DirSettleDelay:  time.Duration(c.Sync.DirSettleDelayMS) * time.Millisecond,
		HashWorkers:     c.Sync.HashWorkers,
	}
}

// StatePath returns the state file for this configuration
func (c *Config) StatePath() string {
	if c.Sync.StateFile != "" {
		return platform.NormalizePath(c.Sync.StateFile)
	}
	return state.DefaultPath(c.WebDAV.URL, c.WebDAV.RemoteFolder, c.LocalRoot())
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Exclude = append([]string(nil), c.Exclude...)
	if cp.WebDAV.Password != "" {
		cp.WebDAV.Password = "********"
	}
	return &cp
}
