package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global
// config, defaults. Missing files are not errors; malformed JSON is.
func Load(globalPath, projectPath string) (*Config, error) {
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

	return cfg, nil
}

// LoadDefault loads configuration from the conventional paths:
// ~/.agentflow/config.json and .agentflow/config.json under the cwd.
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".agentflow", "config.json")
	projectPath := filepath.Join(".agentflow", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for key, provider := range loaded.Providers {
		base.Providers[key] = provider
	}
	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}
	mergeRun(&base.Run, loaded.Run)
	if loaded.StorePath != "" {
		base.StorePath = loaded.StorePath
	}

	return nil
}

// mergeRun overlays non-zero run settings onto the base.
func mergeRun(base *RunConfig, loaded RunConfig) {
	if loaded.Strategy != "" {
		base.Strategy = loaded.Strategy
	}
	if len(loaded.DefaultAgents) > 0 {
		base.DefaultAgents = loaded.DefaultAgents
	}
	if loaded.MaxTurns > 0 {
		base.MaxTurns = loaded.MaxTurns
	}
	if loaded.MaxCallsPerTurn > 0 {
		base.MaxCallsPerTurn = loaded.MaxCallsPerTurn
	}
	if loaded.MaxTaskTurns > 0 {
		base.MaxTaskTurns = loaded.MaxTaskTurns
	}
	if loaded.Parallelism > 0 {
		base.Parallelism = loaded.Parallelism
	}
}
