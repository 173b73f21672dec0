// Package config loads the keysmith configuration file.
//
// The file lives at ~/.keysmith/config.yaml (or $KEYSMITH_DIR/config.yaml)
// and holds only process settings: where data lives and how to log.
// Preferences that travel with the vault data are in pkg/settings.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/forest6511/keysmith/internal/logging"
)

// FileName is the name of the config file inside the base directory.
const FileName = "config.yaml"

// Environment overrides.
const (
	EnvDir      = "KEYSMITH_DIR"
	EnvLogLevel = "KEYSMITH_LOG_LEVEL"
)

var (
	// ErrInsecure is returned when the config file is readable by others.
	ErrInsecure = errors.New("config: file has insecure permissions")
	// ErrSymlink is returned when the config file is a symlink.
	ErrSymlink = errors.New("config: file is a symlink")
	// ErrNotOwnedByUser is returned when the file belongs to another user.
	ErrNotOwnedByUser = errors.New("config: file not owned by current user")
)

// Config is the contents of config.yaml.
type Config struct {
	DataDir      string `yaml:"data_dir"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	DefaultVault string `yaml:"default_vault,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default(base string) *Config {
	return &Config{
		DataDir:   base,
		LogLevel:  "warn",
		LogFormat: logging.FormatText,
	}
}

// BaseDir returns $KEYSMITH_DIR or ~/.keysmith.
func BaseDir() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home directory: %w", err)
	}
	return filepath.Join(home, ".keysmith"), nil
}

// Load reads config.yaml from base. A missing file yields Default(base).
// Environment overrides are applied last.
func Load(base string) (*Config, error) {
	cfg := Default(base)

	content, err := ReadPrivateFile(filepath.Join(base, FileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", FileName, err)
		}
	}

	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}
	if cfg.DataDir == "" {
		cfg.DataDir = base
	}
	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(base, cfg.DataDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadPrivateFile reads a file that must not be a symlink and must be
// private to the current user. Other files under the base directory that
// carry settings (the MCP policy) are read the same way.
func ReadPrivateFile(path string) ([]byte, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := checkFile(f); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filepath.Base(path), err)
	}
	return content, nil
}

// Validate checks the logging fields.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.LogFormat {
	case logging.FormatText, logging.FormatJSON, "":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	return nil
}

// Save writes c to base/config.yaml with 0600 permissions.
func (c *Config) Save(base string) error {
	if err := os.MkdirAll(base, 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	path := filepath.Join(base, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}
