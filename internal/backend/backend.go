// Package backend adapts external model CLIs to the agent.Generator
// interface. Every adapter runs the CLI as a subprocess per generation
// call and speaks a small JSON action protocol over stdout.
package backend

import (
	"fmt"

	"github.com/aristath/agentflow/internal/agent"
)

// Config describes one provider-backed generator.
type Config struct {
	Type      string   // "claude" for the Claude CLI envelope, "command" for generic CLIs
	Command   string   // Executable to run; defaults per adapter
	Args      []string // Fixed leading arguments for command adapters
	WorkDir   string   // Subprocess working directory
	SessionID string   // Resume an existing session, empty to start fresh
	Model     string   // Model override, empty for provider default
}

// New builds a generator for the configured provider type.
func New(cfg Config, pm *ProcessManager) (agent.Generator, error) {
	switch cfg.Type {
	case "claude":
		return NewClaudeAdapter(cfg, pm)
	case "command":
		return NewCommandAdapter(cfg, pm)
	default:
		return nil, fmt.Errorf("unknown backend type: %q", cfg.Type)
	}
}
