package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveCreatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := &Config{
		Providers: map[string]ProviderConfig{
			"test": {Command: "test-cmd", Type: "command"},
		},
		Agents: map[string]AgentConfig{
			"test-agent": {Provider: "test", Model: "test-model"},
		},
	}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}

	if loaded.Providers["test"].Command != "test-cmd" {
		t.Errorf("Expected provider command 'test-cmd', got '%s'", loaded.Providers["test"].Command)
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "deep", "config.json")

	cfg := &Config{
		Providers: map[string]ProviderConfig{},
		Agents:    map[string]AgentConfig{},
	}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Config file was not created: %s", path)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := &Config{
		Providers: map[string]ProviderConfig{
			"claude": {Command: "claude", Type: "claude"},
			"goose":  {Command: "goose", Type: "command", Args: []string{"--verbose"}},
		},
		Agents: map[string]AgentConfig{
			"worker": {
				Provider:     "claude",
				Model:        "large",
				Instructions: "You carry out tasks.",
			},
			"reviewer": {
				Provider:     "claude",
				Model:        "small",
				Instructions: "You review results.",
			},
		},
		Run: RunConfig{
			Strategy:        "popcorn",
			DefaultAgents:   []string{"worker", "reviewer"},
			MaxTurns:        20,
			MaxCallsPerTurn: 5,
		},
		StorePath: filepath.Join(tmpDir, "state.db"),
	}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Providers["claude"].Command != "claude" {
		t.Errorf("Claude provider command mismatch: got '%s'", loaded.Providers["claude"].Command)
	}
	if len(loaded.Providers["goose"].Args) != 1 || loaded.Providers["goose"].Args[0] != "--verbose" {
		t.Errorf("Goose provider args mismatch: got %v", loaded.Providers["goose"].Args)
	}

	if loaded.Agents["worker"].Model != "large" {
		t.Errorf("Worker model mismatch: got '%s'", loaded.Agents["worker"].Model)
	}

	if loaded.Run.Strategy != "popcorn" {
		t.Errorf("Strategy mismatch: got '%s'", loaded.Run.Strategy)
	}
	if loaded.Run.MaxTurns != 20 || loaded.Run.MaxCallsPerTurn != 5 {
		t.Errorf("Budgets mismatch: got %d/%d", loaded.Run.MaxTurns, loaded.Run.MaxCallsPerTurn)
	}
	if loaded.StorePath != cfg.StorePath {
		t.Errorf("StorePath mismatch: got '%s'", loaded.StorePath)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg1 := &Config{
		Providers: map[string]ProviderConfig{
			"test": {Command: "first-value", Type: "command"},
		},
	}
	if err := Save(cfg1, path); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	cfg2 := &Config{
		Providers: map[string]ProviderConfig{
			"test": {Command: "second-value", Type: "command"},
		},
	}
	if err := Save(cfg2, path); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if loaded.Providers["test"].Command != "second-value" {
		t.Errorf("Expected 'second-value', got '%s'", loaded.Providers["test"].Command)
	}
}
