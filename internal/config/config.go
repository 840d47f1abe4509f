// Package config loads and validates the file-operations engine's
// configuration: cache sizing, execution concurrency, transaction snapshot
// budgets, validator command definitions, and logging. Configuration is
// loaded from <root>/.fileops/config.yaml with environment-variable
// overrides applied on top, mirroring the teacher's layered Load/
// applyEnvOverrides pattern.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"fileops/internal/logging"

	"gopkg.in/yaml.v3"
)

// Config holds the engine's full configuration.
type Config struct {
	Root string `yaml:"root" json:"root,omitempty"`

	Cache       CacheConfig       `yaml:"cache" json:"cache,omitempty"`
	Execution   ExecutionConfig   `yaml:"execution" json:"execution,omitempty"`
	Transaction TransactionConfig `yaml:"transaction" json:"transaction,omitempty"`
	Validator   ValidatorConfig   `yaml:"validator" json:"validator,omitempty"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging,omitempty"`

	// Ignore lists glob patterns excluded from glob expansion, scanning,
	// and watching by default (node_modules, .git, vendor, and so on).
	Ignore []string `yaml:"ignore" json:"ignore,omitempty"`
}

// DefaultConfig returns the engine's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			MaxSizeBytes:   256 * 1024 * 1024,
			MaxEntries:     10000,
			TTLMs:          5 * 60 * 1000,
			EnableWatching: true,
		},
		Execution: ExecutionConfig{
			MaxConcurrency:   8,
			DefaultTimeoutMs: 30000,
			ContinueOnError:  false,
		},
		Transaction: TransactionConfig{
			MaxSnapshots:    1000,
			SweepIntervalMs: 60000,
			MaxAgeMs:        30 * 60 * 1000,
			Dir:             "",
		},
		Validator: ValidatorConfig{
			ExternalCommands: map[string][]string{},
		},
		Logging: LoggingConfig{
			Level:      "info",
			JSONFormat: false,
			DebugMode:  false,
		},
		Ignore: []string{
			"**/node_modules/**", "**/.git/**", "**/vendor/**",
			"**/dist/**", "**/build/**", "**/.fileops/**",
		},
	}
}

// Load reads configuration from path, falling back to defaults if the file
// does not exist, then applies environment-variable overrides.
func Load(root, path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Root = root
	logging.Get(logging.CategoryBoot).Debug("loading config from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Get(logging.CategoryBoot).Info("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Root = root

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to path as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config: create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides layers environment variables over file/default values,
// following the teacher's precedence-chain convention in env_override_test.go.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FILEOPS_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Execution.MaxConcurrency = n
		}
	}
	if v := os.Getenv("FILEOPS_DEFAULT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Execution.DefaultTimeoutMs = n
		}
	}
	if v := os.Getenv("FILEOPS_CONTINUE_ON_ERROR"); v != "" {
		c.Execution.ContinueOnError = v == "true" || v == "1"
	}

	if v := os.Getenv("FILEOPS_CACHE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Cache.MaxSizeBytes = n
		}
	}
	if v := os.Getenv("FILEOPS_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("FILEOPS_CACHE_TTL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Cache.TTLMs = n
		}
	}
	if v := os.Getenv("FILEOPS_CACHE_WATCH"); v != "" {
		c.Cache.EnableWatching = v == "true" || v == "1"
	}

	if v := os.Getenv("FILEOPS_TRANSACTION_DIR"); v != "" {
		c.Transaction.Dir = v
	}
	if v := os.Getenv("FILEOPS_TRANSACTION_MAX_SNAPSHOTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Transaction.MaxSnapshots = n
		}
	}

	if v := os.Getenv("FILEOPS_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "true" || v == "1"
	}
	if v := os.Getenv("FILEOPS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FILEOPS_LOG_JSON"); v != "" {
		c.Logging.JSONFormat = v == "true" || v == "1"
	}
}

// DefaultTimeout returns the execution default timeout as a duration.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Execution.DefaultTimeoutMs) * time.Millisecond
}

// SweepInterval returns the transaction sweep interval as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Transaction.SweepIntervalMs) * time.Millisecond
}

// MaxAge returns the transaction max age as a duration.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Transaction.MaxAgeMs) * time.Millisecond
}

// TTL returns the cache TTL as a duration.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.Cache.TTLMs) * time.Millisecond
}

// TransactionDir resolves the transaction snapshot directory, defaulting to
// <root>/.fileops/transactions when unset.
func (c *Config) TransactionDir() string {
	if c.Transaction.Dir != "" {
		return c.Transaction.Dir
	}
	return filepath.Join(c.Root, ".fileops", "transactions")
}

// Validate checks the configuration for internally-inconsistent values.
func (c *Config) Validate() error {
	if c.Execution.MaxConcurrency < 1 {
		return fmt.Errorf("config: execution.max_concurrency must be >= 1, got %d", c.Execution.MaxConcurrency)
	}
	if c.Cache.MaxSizeBytes < 0 {
		return fmt.Errorf("config: cache.max_size_bytes must be >= 0, got %d", c.Cache.MaxSizeBytes)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("config: cache.max_entries must be >= 0, got %d", c.Cache.MaxEntries)
	}
	if c.Transaction.MaxSnapshots < 1 {
		return fmt.Errorf("config: transaction.max_snapshots must be >= 1, got %d", c.Transaction.MaxSnapshots)
	}
	return nil
}
