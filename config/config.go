package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// TomlChannel represents a channel to seed
type TomlChannel struct {
	Name      string `toml:"name"`
	CreatedBy string `toml:"created_by,omitempty"`
}

// TomlConfig represents the top-level seed configuration
type TomlConfig struct {
	Channels []TomlChannel `toml:"channels"`
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	for i, channel := range config.Channels {
		if strings.TrimSpace(channel.Name) == "" {
			return nil, fmt.Errorf("channel %d in %s has no name", i+1, path)
		}
	}

	return &config, nil
}
