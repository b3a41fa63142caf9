package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON is.
func Load(globalPath, projectPath string) (*SwarmConfig, error) {
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

// LoadDefault loads configuration from conventional paths.
// Global: ~/.swarm/config.json
// Project: .swarm/config.json (relative to cwd)
func LoadDefault() (*SwarmConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".swarm", "config.json")
	projectPath := filepath.Join(".swarm", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into base.
func mergeConfigFile(base *SwarmConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded SwarmConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.BaseBranch != "" {
		base.BaseBranch = loaded.BaseBranch
	}
	if loaded.WorktreeDir != "" {
		base.WorktreeDir = loaded.WorktreeDir
	}
	if loaded.MaxWorkers > 0 {
		base.MaxWorkers = loaded.MaxWorkers
	}
	if loaded.WorkerTimeout != "" {
		base.WorkerTimeout = loaded.WorkerTimeout
	}
	if loaded.AllowlistPath != "" {
		base.AllowlistPath = loaded.AllowlistPath
	}
	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}
	if loaded.QA.MaxIterations > 0 {
		base.QA.MaxIterations = loaded.QA.MaxIterations
	}
	if loaded.QA.RecurringThreshold > 0 {
		base.QA.RecurringThreshold = loaded.QA.RecurringThreshold
	}
	if loaded.QA.SimilarityThreshold > 0 {
		base.QA.SimilarityThreshold = loaded.QA.SimilarityThreshold
	}

	return nil
}
