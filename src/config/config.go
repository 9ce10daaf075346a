// Package config loads the .stagecraft.yml project configuration: where
// the collaborator source trees live, how each stage invokes its external
// tools, and where work and cache directories go. Variant selection is NOT
// configured here — it comes exclusively from the build flag map.
package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".stagecraft.yml"

// Config is the top-level Stagecraft configuration.
type Config struct {
	Workspace string       `yaml:"workspace"`
	Cache     CacheConfig  `yaml:"cache"`
	Stages    StagesConfig `yaml:"stages"`
	Fetch     FetchConfig  `yaml:"fetch"`
	Workers   int          `yaml:"workers"`
	Image     ImageConfig  `yaml:"image"`
}

// Load reads configuration from a YAML file.
// If path is empty, it tries the default file.
// Returns sensible defaults if the file doesn't exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Workspace: ".stagecraft",
		Cache:     DefaultCacheConfig(),
		Stages:    DefaultStagesConfig(),
		Fetch:     DefaultFetchConfig(),
		Workers:   0, // one worker per stage
		Image:     DefaultImageConfig(),
	}
}
