package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourceEntry is one option-chain snapshot to load. Exactly one of Path or
// URL is set; URL may use http, https or s3.
type SourceEntry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
	URL  string `yaml:"url"`
}

// Sources is the manifest of inputs for one run.
type Sources struct {
	Sources []SourceEntry `yaml:"sources"`
}

// LoadSources loads a sources manifest from the given path.
func LoadSources(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	var cfg Sources
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	for i, s := range cfg.Sources {
		if (s.Path == "") == (s.URL == "") {
			return nil, fmt.Errorf("sources[%d]: exactly one of path or url is required", i)
		}
		if s.Name == "" {
			if s.Path != "" {
				cfg.Sources[i].Name = s.Path
			} else {
				cfg.Sources[i].Name = s.URL
			}
		}
	}
	return &cfg, nil
}
