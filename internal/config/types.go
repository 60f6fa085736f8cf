package config

// ProviderConfig defines a generation transport (CLI command, args,
// adapter type). Providers are separate from agents -- multiple agents
// can share one provider.
type ProviderConfig struct {
	Command string   `json:"command"`        // CLI binary name (e.g., "claude")
	Args    []string `json:"args,omitempty"` // Default args appended to every invocation
	Type    string   `json:"type"`           // Adapter type: "claude" or "command"
}

// AgentConfig defines a named agent bound to a provider and model.
type AgentConfig struct {
	Provider     string `json:"provider"`               // Key into Providers map
	Model        string `json:"model,omitempty"`        // Model override, empty for provider default
	Instructions string `json:"instructions,omitempty"` // Role-specific system instructions
}

// RunConfig holds the run-level defaults threaded into flow settings.
// These are the global end of the fallback chain: a task or flow value
// always wins over them.
type RunConfig struct {
	Strategy        string   `json:"strategy,omitempty"`           // Turn strategy name
	DefaultAgents   []string `json:"default_agents,omitempty"`     // Global fallback roster
	MaxTurns        int      `json:"max_turns,omitempty"`          // Session turn budget, 0 = unbounded
	MaxCallsPerTurn int      `json:"max_calls_per_turn,omitempty"` // Generation calls per turn
	MaxTaskTurns    int      `json:"max_task_turns,omitempty"`     // Runaway ceiling multiplier
	Parallelism     int      `json:"parallelism,omitempty"`        // Concurrent independent flows
}

// Config is the top-level configuration.
type Config struct {
	Providers map[string]ProviderConfig `json:"providers"`
	Agents    map[string]AgentConfig    `json:"agents"`
	Run       RunConfig                 `json:"run"`
	StorePath string                    `json:"store_path,omitempty"` // SQLite path, empty for the default
}
