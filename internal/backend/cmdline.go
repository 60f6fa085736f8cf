package backend

import (
	"context"
	"fmt"

	"github.com/aristath/agentflow/internal/agent"
)

// CommandAdapter drives any CLI that accepts a prompt as its final
// argument and prints actions on stdout, either as a JSON array or as
// newline-delimited JSON objects. Codex- and goose-style tools fit this
// shape; the adapter is stateless, so the full turn context is rebuilt
// into every prompt.
type CommandAdapter struct {
	command string
	args    []string
	workDir string
	model   string
	procMgr *ProcessManager
}

// NewCommandAdapter creates a generic CLI adapter from the provider
// configuration. cfg.Command is required.
func NewCommandAdapter(cfg Config, procMgr *ProcessManager) (*CommandAdapter, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("command adapter requires a command")
	}

	return &CommandAdapter{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		workDir: cfg.WorkDir,
		model:   cfg.Model,
		procMgr: procMgr,
	}, nil
}

// Act runs one CLI invocation with the rendered prompt and parses the
// actions from stdout.
func (c *CommandAdapter) Act(ctx context.Context, tc agent.TurnContext) ([]agent.Action, error) {
	args := append([]string(nil), c.args...)
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	args = append(args, BuildPrompt(tc))

	cmd := newCommand(ctx, c.command, args...)
	cmd.Dir = c.workDir

	stdout, stderr, err := executeCommand(ctx, cmd, c.procMgr)
	if err != nil {
		return nil, fmt.Errorf("%s command failed: %w", c.command, err)
	}

	actions, err := ParseActions(stdout)
	if err != nil {
		return nil, fmt.Errorf("parsing %s output: %w (stderr: %s)", c.command, err, string(stderr))
	}

	return actions, nil
}
