package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name            string
		globalConfig    *Config
		projectConfig   *Config
		expectProviders int
		expectAgents    int
		checkAgent      string
		expectProvider  string
		expectModel     string
		expectStrategy  string
	}{
		{
			name:            "No config files - returns defaults",
			expectProviders: 3,
			expectAgents:    3,
			expectStrategy:  "round_robin",
		},
		{
			name: "Global only - adds new agent",
			globalConfig: &Config{
				Agents: map[string]AgentConfig{
					"archivist": {
						Provider:     "goose",
						Instructions: "You keep notes on everything.",
					},
				},
			},
			expectProviders: 3,
			expectAgents:    4, // 3 defaults + 1 new
			checkAgent:      "archivist",
			expectProvider:  "goose",
			expectStrategy:  "round_robin",
		},
		{
			name: "Project only - overrides agent provider",
			projectConfig: &Config{
				Agents: map[string]AgentConfig{
					"worker": {
						Provider: "codex",
					},
				},
			},
			expectProviders: 3,
			expectAgents:    3, // Same count, but worker modified
			checkAgent:      "worker",
			expectProvider:  "codex",
			expectStrategy:  "round_robin",
		},
		{
			name: "Project overrides global - project wins",
			globalConfig: &Config{
				Agents: map[string]AgentConfig{
					"worker": {Provider: "claude", Model: "model-x"},
				},
				Run: RunConfig{Strategy: "random"},
			},
			projectConfig: &Config{
				Agents: map[string]AgentConfig{
					"worker": {Provider: "codex", Model: "model-y"},
				},
				Run: RunConfig{Strategy: "popcorn"},
			},
			expectProviders: 3,
			expectAgents:    3,
			checkAgent:      "worker",
			expectProvider:  "codex",
			expectModel:     "model-y",
			expectStrategy:  "popcorn",
		},
		{
			name: "Run settings merge field by field",
			globalConfig: &Config{
				Run: RunConfig{MaxTurns: 7},
			},
			projectConfig: &Config{
				Run: RunConfig{MaxCallsPerTurn: 2},
			},
			expectProviders: 3,
			expectAgents:    3,
			expectStrategy:  "round_robin", // Untouched default survives both merges
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			writeConfig := func(name string, cfg *Config) string {
				if cfg == nil {
					return ""
				}
				path := filepath.Join(tmpDir, name)
				data, err := json.Marshal(cfg)
				if err != nil {
					t.Fatalf("marshaling %s: %v", name, err)
				}
				if err := os.WriteFile(path, data, 0644); err != nil {
					t.Fatalf("writing %s: %v", name, err)
				}
				return path
			}

			globalPath := writeConfig("global.json", tt.globalConfig)
			projectPath := writeConfig("project.json", tt.projectConfig)

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := len(cfg.Providers); got != tt.expectProviders {
				t.Errorf("providers count = %d, want %d", got, tt.expectProviders)
			}
			if got := len(cfg.Agents); got != tt.expectAgents {
				t.Errorf("agents count = %d, want %d", got, tt.expectAgents)
			}
			if cfg.Run.Strategy != tt.expectStrategy {
				t.Errorf("strategy = %q, want %q", cfg.Run.Strategy, tt.expectStrategy)
			}

			if tt.checkAgent != "" {
				agentCfg, exists := cfg.Agents[tt.checkAgent]
				if !exists {
					t.Fatalf("expected agent %q not found", tt.checkAgent)
				}
				if tt.expectProvider != "" && agentCfg.Provider != tt.expectProvider {
					t.Errorf("agent %q provider = %q, want %q", tt.checkAgent, agentCfg.Provider, tt.expectProvider)
				}
				if tt.expectModel != "" && agentCfg.Model != tt.expectModel {
					t.Errorf("agent %q model = %q, want %q", tt.checkAgent, agentCfg.Model, tt.expectModel)
				}
			}
		})
	}
}

func TestLoadRunDefaultsSurviveMerge(t *testing.T) {
	tmpDir := t.TempDir()

	globalPath := filepath.Join(tmpDir, "global.json")
	data, _ := json.Marshal(&Config{Run: RunConfig{MaxTurns: 7}})
	if err := os.WriteFile(globalPath, data, 0644); err != nil {
		t.Fatalf("writing global config: %v", err)
	}

	cfg, err := Load(globalPath, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.MaxTurns != 7 {
		t.Errorf("max_turns = %d, want 7", cfg.Run.MaxTurns)
	}
	if cfg.Run.MaxCallsPerTurn != DefaultConfig().Run.MaxCallsPerTurn {
		t.Errorf("max_calls_per_turn = %d, want the default", cfg.Run.MaxCallsPerTurn)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()

	globalPath := filepath.Join(tmpDir, "global.json")
	if err := os.WriteFile(globalPath, []byte("{invalid json"), 0644); err != nil {
		t.Fatalf("writing malformed config: %v", err)
	}

	if _, err := Load(globalPath, ""); err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}

	if len(cfg.Providers) != 3 {
		t.Errorf("providers count = %d, want 3", len(cfg.Providers))
	}
	if len(cfg.Agents) != 3 {
		t.Errorf("agents count = %d, want 3", len(cfg.Agents))
	}
}
