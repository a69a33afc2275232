// Package config provides TOML configuration file loading for the debug host.
// The configuration file lives at ~/.tabris/config.toml by default, but can be
// overridden with the --config flag. CLI flags always take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
)

// Config represents the host configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// Addr is the host:port for the debug server.
	// Default: 0.0.0.0:8080
	Addr string `toml:"addr"`

	// PublicHost is the host:port printed in the connect URL. Devices must
	// be able to reach it. If empty, the first non-loopback IPv4 address of
	// this machine is combined with the port of Addr.
	PublicHost string `toml:"public_host"`

	// HeartbeatMs is the ping interval in milliseconds.
	// Default: 5000
	HeartbeatMs int `toml:"heartbeat_ms"`

	// SessionDB is the path to the SQLite session journal.
	// Default: ~/.tabris/sessions.db
	SessionDB string `toml:"session_db"`

	// MdnsEnabled advertises the debug server on the local network.
	// Default: false
	MdnsEnabled bool `toml:"mdns_enabled"`

	// QR prints the connect URL as a QR code as well.
	// Default: false
	QR bool `toml:"qr"`

	// LogFile receives the diagnostic log. If empty, diagnostics are shown
	// in the console when Verbose is set and discarded otherwise.
	LogFile string `toml:"log_file"`

	// Verbose shows diagnostic log lines in the console.
	// Default: false
	Verbose bool `toml:"verbose"`
}

// HeartbeatInterval returns HeartbeatMs as a duration, or the default.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.HeartbeatMs <= 0 {
		return DefaultHeartbeatInterval
	}
	return time.Duration(c.HeartbeatMs) * time.Millisecond
}

// Dir returns the directory for host state: ~/.tabris.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tabris"), nil
}

// DefaultConfigPath returns the default config file location: ~/.tabris/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultSessionDBPath returns the default journal location: ~/.tabris/sessions.db.
func DefaultSessionDBPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions.db"), nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location (~/.tabris/config.toml).
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns a config.not_found error if the file doesn't exist.
//   - Returns a config.invalid error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		// No explicit path: try default location, but don't error if missing.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.CodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", path))
		}
	}

	// Parse the TOML file. Any parse error is fatal since the user expects
	// the config to be applied.
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, apperrors.New(apperrors.CodeConfigInvalid,
			fmt.Sprintf("unknown key %q in config file %s", undecoded[0].String(), path))
	}
	if cfg.HeartbeatMs < 0 {
		return nil, apperrors.New(apperrors.CodeConfigInvalid,
			fmt.Sprintf("heartbeat_ms must not be negative in %s", path))
	}

	return cfg, nil
}
