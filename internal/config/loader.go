package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*RunConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	expandSecrets(cfg)
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.promptbatch/config.json
// Project: .promptbatch/config.json (relative to cwd)
func LoadDefault() (*RunConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".promptbatch", "config.json")
	projectPath := filepath.Join(".promptbatch", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile overlays a JSON config file onto the base config. Fields
// absent from the file keep their current values; provider entries merge by
// key. Missing files are silently skipped.
func mergeConfigFile(base *RunConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

// expandSecrets resolves ${VAR} references in API keys against the
// environment, so keys never need to live in the config files themselves.
func expandSecrets(cfg *RunConfig) {
	for name, p := range cfg.Providers {
		p.APIKey = os.Expand(p.APIKey, func(key string) string {
			return os.Getenv(key)
		})
		cfg.Providers[name] = p
	}
}
