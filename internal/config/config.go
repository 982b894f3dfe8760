// Package config loads knot's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file name inside the config directory
const FileName = "config.yaml"

// Environment overrides
const (
	EnvVaultDir = "KNOT_VAULT_DIR"
	EnvLogLevel = "KNOT_LOG_LEVEL"
	EnvAutoLock = "KNOT_AUTO_LOCK"
)

// MaxFileSize bounds the config file read into memory.
const MaxFileSize = 64 * 1024

var (
	// ErrNotFound is returned when the config file does not exist
	ErrNotFound = errors.New("config: file not found")
	// ErrInsecure is returned when the config file is readable by others
	ErrInsecure = errors.New("config: file has insecure permissions")
	// ErrSymlink is returned when the config path is a symlink
	ErrSymlink = errors.New("config: file is a symlink")
	// ErrNotOwnedByUser is returned when the config file belongs to another user
	ErrNotOwnedByUser = errors.New("config: file not owned by current user")
)

// Log holds logging settings.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the on-disk configuration.
type Config struct {
	VaultDir string        `yaml:"vault_dir"`
	AutoLock time.Duration `yaml:"auto_lock"`
	Audit    *bool         `yaml:"audit"`
	Log      Log           `yaml:"log"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	audit := true
	return &Config{
		VaultDir: defaultVaultDir(),
		Audit:    &audit,
		Log: Log{
			Level:  "warn",
			Format: "console",
		},
	}
}

func defaultVaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".knot"
	}
	return filepath.Join(home, ".knot")
}

// DefaultPath returns ~/.config/knot/config.yaml, or the platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to find config directory: %w", err)
	}
	return filepath.Join(dir, "knot", FileName), nil
}

// AuditEnabled reports whether audit logging is on. Defaults to true.
func (c *Config) AuditEnabled() bool {
	return c.Audit == nil || *c.Audit
}

// Load reads the config at path over the defaults and applies environment
// overrides. A missing file is not an error when optional is true.
//
// The file is opened without following symlinks and checked through the
// open descriptor, so it cannot be swapped between check and read.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()

	err := cfg.readFile(path)
	switch {
	case errors.Is(err, ErrNotFound) && optional:
	case err != nil:
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := openConfigFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("config: failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("config: %s is not a regular file", path)
	}
	if err := checkPermissions(info); err != nil {
		return err
	}
	if err := checkFileOwnership(info); err != nil {
		return err
	}

	content, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return fmt.Errorf("config: failed to read file: %w", err)
	}
	if len(content) > MaxFileSize {
		return fmt.Errorf("config: file exceeds %d bytes", MaxFileSize)
	}

	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if dir := os.Getenv(EnvVaultDir); dir != "" {
		c.VaultDir = dir
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Log.Level = level
	}
	if raw := os.Getenv(EnvAutoLock); raw != "" {
		d, err := parseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: invalid %s: %w", EnvAutoLock, err)
		}
		c.AutoLock = d
	}
	return nil
}

// parseDuration accepts Go durations and a bare number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.VaultDir) == "" {
		return errors.New("config: vault_dir must not be empty")
	}
	if c.AutoLock < 0 {
		return fmt.Errorf("config: auto_lock must not be negative, got %s", c.AutoLock)
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: invalid log format %q (must be 'console' or 'json')", c.Log.Format)
	}
	return nil
}
