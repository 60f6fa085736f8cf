package config

// DefaultConfig returns the built-in providers, agents and run
// defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"claude": {
				Command: "claude",
				Type:    "claude",
			},
			"codex": {
				Command: "codex",
				Type:    "command",
			},
			"goose": {
				Command: "goose",
				Type:    "command",
			},
		},
		Agents: map[string]AgentConfig{
			"planner": {
				Provider:     "claude",
				Instructions: "You break objectives into tasks and coordinate the other agents.",
			},
			"worker": {
				Provider:     "claude",
				Instructions: "You carry out tasks and report validated results.",
			},
			"reviewer": {
				Provider:     "claude",
				Instructions: "You check candidate results against the task objective before completion.",
			},
		},
		Run: RunConfig{
			Strategy:        "round_robin",
			DefaultAgents:   []string{"worker"},
			MaxTurns:        50,
			MaxCallsPerTurn: 10,
			MaxTaskTurns:    100,
			Parallelism:     4,
		},
	}
}
