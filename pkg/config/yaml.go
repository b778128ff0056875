package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sdejongh/davsync/internal/platform"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "DAVSYNC_"

// LoadFromFile loads configuration from a YAML file and applies
// environment overrides
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a YAML file. The file holds the server
// password, so it is only readable by its owner.
func SaveToFile(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() string {
	return filepath.Join(platform.ConfigDir(), "config.yaml")
}

// Load reads the configuration at path, or the default location when path
// is empty. A missing default file yields the defaults; a missing explicit
// file is an error. A .env file in the working directory is loaded first so
// its DAVSYNC_* values take part in the overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path != "" {
		return LoadFromFile(platform.ExpandHome(path))
	}

	path = DefaultConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.ApplyEnv(); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	return LoadFromFile(path)
}

// LoadDefault attempts to load configuration from the default location
// If the file doesn't exist, returns the default configuration
func LoadDefault() (*Config, error) {
	return Load("")
}

// ApplyEnv overrides settings from DAVSYNC_* environment variables
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"URL":             &c.WebDAV.URL,
		"USERNAME":        &c.WebDAV.Username,
		"PASSWORD":        &c.WebDAV.Password,
		"REMOTE_FOLDER":   &c.WebDAV.RemoteFolder,
		"LOCAL_ROOT":      &c.Sync.LocalRoot,
		"STATE_FILE":      &c.Sync.StateFile,
		"LOG_LEVEL":       &c.Logging.Level,
		"LOG_FORMAT":      &c.Logging.Format,
		"LOG_FILE":        &c.Logging.File,
		"OUTPUT":          &c.Output.Format,
		"BANDWIDTH_LIMIT": &c.WebDAV.BandwidthLimit,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TIMEOUT_SECONDS":     &c.WebDAV.TimeoutSeconds,
		"INTERVAL_MINUTES":    &c.Sync.IntervalMinutes,
		"DIR_SETTLE_DELAY_MS": &c.Sync.DirSettleDelayMS,
		"HASH_WORKERS":        &c.Sync.HashWorkers,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"AUTO_SYNC":            &c.Sync.AutoSync,
		"INSECURE_SKIP_VERIFY": &c.WebDAV.InsecureSkipVerify,
	}
	for key, dst := range bools {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
	}

	if v, ok := os.LookupEnv(EnvPrefix + "EXCLUDE"); ok {
		c.Exclude = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Exclude = append(c.Exclude, p)
			}
		}
	}

	return nil
}
