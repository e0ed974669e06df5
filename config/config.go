// Package config loads the optional weave.yml configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/grovetools/weave/logging"
	"github.com/grovetools/weave/pkg/paths"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration. Every field has a working zero value;
// a missing weave.yml yields Default().
type Config struct {
	Logging logging.Config `yaml:"logging"`
	Restore RestoreConfig  `yaml:"restore"`
	Tunnel  TunnelConfig   `yaml:"tunnel"`

	// Extensions holds unrecognized top-level sections for embedders.
	Extensions map[string]interface{} `yaml:",inline"`
}

// RestoreConfig controls start-up session restoration.
type RestoreConfig struct {
	// Enabled restores persisted sessions at daemon start.
	Enabled *bool `yaml:"enabled"`
	// Lazy registers restored sessions as closed records instead of
	// spawning their PTYs; restart activates them on first use.
	Lazy bool `yaml:"lazy"`
}

// TunnelConfig tunes the peer fabric.
type TunnelConfig struct {
	// Disabled turns the peer fabric off even when an identity exists.
	Disabled bool `yaml:"disabled"`
}

// RestoreEnabled returns the restore flag with its default of true.
func (c *Config) RestoreEnabled() bool {
	if c.Restore.Enabled == nil {
		return true
	}
	return *c.Restore.Enabled
}

// Default returns the configuration used when no weave.yml exists.
func Default() *Config {
	return &Config{}
}

// Load reads a weave.yml from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault reads the user's weave.yml, falling back to defaults when the
// file does not exist.
func LoadDefault() (*Config, error) {
	cfg, err := Load(paths.ConfigFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// UnmarshalExtension decodes an unrecognized top-level section into the
// provided target struct. The target must be a pointer. A missing key
// leaves the target zero-valued.
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}
	return nil
}
