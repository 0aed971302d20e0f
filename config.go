// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the host configuration, usually read from a TOML file.
//
//	log_level = "info"
//	coordinator_queue = 64
//	scripts_dir = "scripts"
//	watch = true
//	max_points = 65536
type Config struct {
	LogLevel         string `toml:"log_level"`
	CoordinatorQueue int    `toml:"coordinator_queue"`
	ScriptsDir       string `toml:"scripts_dir"`
	Watch            bool   `toml:"watch"`
	MaxPoints        int    `toml:"max_points"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		LogLevel:         "info",
		CoordinatorQueue: 64,
		ScriptsDir:       "scripts",
		MaxPoints:        1 << 16,
	}
}

// LoadConfig reads path over DefaultConfig. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := ParseConfig(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes TOML data into cfg and validates the result.
func ParseConfig(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.CoordinatorQueue <= 0 {
		return fmt.Errorf("coordinator_queue must be positive, got %d", c.CoordinatorQueue)
	}
	if c.MaxPoints <= 0 {
		return fmt.Errorf("max_points must be positive, got %d", c.MaxPoints)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Logger builds the DefaultLogger for c.LogLevel.
func (c Config) Logger() Logger {
	return NewDefaultLogger(ParseLevel(c.LogLevel))
}
