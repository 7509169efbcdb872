// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/pivd/lib/logging"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "PIVD_CONFIG"

// Token backends.
const (
	BackendPIV      = "piv"
	BackendSoftware = "software"
)

// Log formats. FormatAuto picks text on a terminal and JSON otherwise.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the complete pivd configuration.
type Config struct {
	// SocketPath is where the daemon listens. Anything already at this
	// path is deleted at startup.
	// Default: /tmp/signal-piv.sock
	SocketPath string `yaml:"socket_path"`

	// SocketMode is the octal permission mode applied to the socket.
	// Default: 0600
	SocketMode string `yaml:"socket_mode"`

	// AllowedUIDs restricts which local users may connect. Empty allows
	// anyone who can open the socket file.
	AllowedUIDs []uint32 `yaml:"allowed_uids"`

	// ReadTimeout and WriteTimeout are Go durations ("5s"). Empty or
	// "0" means no timeout.
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`

	// Log configures the daemon's structured logger.
	Log LogConfig `yaml:"log"`

	// Token selects and unlocks the key holder.
	Token TokenConfig `yaml:"token"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is auto, text, or json.
	// Default: auto
	Format string `yaml:"format"`
}

// TokenConfig selects the token backend.
type TokenConfig struct {
	// Backend is "piv" (hardware) or "software" (development key file).
	// Default: piv
	Backend string `yaml:"backend"`

	// Card is a substring of the PC/SC reader name. Empty picks the
	// first card. PIV only.
	Card string `yaml:"card"`

	// PINFile holds the PIV PIN, or "-" for the first line of stdin.
	// PIV only.
	PINFile string `yaml:"pin_file"`

	// PINPrompt asks for the PIN on the terminal at startup when no
	// PINFile is set. PIV only.
	PINPrompt bool `yaml:"pin_prompt"`

	// KeyFile is the software token's YAML key file. Software only.
	KeyFile string `yaml:"key_file"`

	// AgeIdentity decrypts KeyFile when set. Software only.
	AgeIdentity string `yaml:"age_identity"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		SocketPath: "/tmp/signal-piv.sock",
		SocketMode: "0600",
		Log: LogConfig{
			Level:  "info",
			Format: FormatAuto,
		},
		Token: TokenConfig{
			Backend: BackendPIV,
		},
	}
}

// Load loads the file named by PIVD_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your pivd.yaml, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads path on top of Default and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.ExpandVariables()
	return cfg, nil
}

// ExpandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) ExpandVariables() {
	c.SocketPath = expandVars(c.SocketPath)
	c.Token.PINFile = expandVars(c.Token.PINFile)
	c.Token.KeyFile = expandVars(c.Token.KeyFile)
	c.Token.AgeIdentity = expandVars(c.Token.AgeIdentity)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// FileMode parses SocketMode.
func (c *Config) FileMode() (os.FileMode, error) {
	mode, err := strconv.ParseUint(c.SocketMode, 8, 32)
	if err != nil || mode > 0o777 {
		return 0, fmt.Errorf("socket_mode %q is not an octal permission mode", c.SocketMode)
	}
	return os.FileMode(mode), nil
}

// Timeouts parses ReadTimeout and WriteTimeout.
func (c *Config) Timeouts() (read, write time.Duration, err error) {
	if read, err = parseTimeout("read_timeout", c.ReadTimeout); err != nil {
		return 0, 0, err
	}
	if write, err = parseTimeout("write_timeout", c.WriteTimeout); err != nil {
		return 0, 0, err
	}
	return read, write, nil
}

func parseTimeout(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return duration, nil
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.SocketPath == "" {
		errs = append(errs, fmt.Errorf("socket_path is required"))
	}
	if _, err := c.FileMode(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.Timeouts(); err != nil {
		errs = append(errs, err)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	formats := []string{FormatAuto, FormatText, FormatJSON}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	switch c.Token.Backend {
	case BackendPIV:
		if c.Token.KeyFile != "" || c.Token.AgeIdentity != "" {
			errs = append(errs, fmt.Errorf("token.key_file and token.age_identity apply only to the software backend"))
		}
	case BackendSoftware:
		if c.Token.KeyFile == "" {
			errs = append(errs, fmt.Errorf("token.key_file is required for the software backend"))
		}
		if c.Token.PINFile != "" || c.Token.PINPrompt {
			errs = append(errs, fmt.Errorf("token.pin_file and token.pin_prompt apply only to the piv backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("token.backend must be %q or %q, got %q", BackendPIV, BackendSoftware, c.Token.Backend))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
