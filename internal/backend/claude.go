package backend

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aristath/agentflow/internal/agent"
)

// ClaudeAdapter drives the Claude Code CLI as a generation backend. Each
// Act call is one subprocess invocation; the CLI's session mechanism
// carries conversational state between calls.
type ClaudeAdapter struct {
	command   string
	sessionID string
	workDir   string
	model     string
	started   bool
	procMgr   *ProcessManager
}

// claudeResponse is the JSON envelope the CLI prints with
// --output-format json. The model's own output is the text content
// inside the result.
type claudeResponse struct {
	SessionID string `json:"session_id"`
	Result    struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
}

// NewClaudeAdapter creates a Claude CLI adapter. An empty cfg.SessionID
// gets a fresh UUID. A nil ProcessManager disables subprocess tracking.
func NewClaudeAdapter(cfg Config, procMgr *ProcessManager) (*ClaudeAdapter, error) {
	sessionID := cfg.SessionID
	if sessionID == "" {
		var err error
		sessionID, err = generateUUID()
		if err != nil {
			return nil, fmt.Errorf("generating session ID: %w", err)
		}
	}

	command := cfg.Command
	if command == "" {
		command = "claude"
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
	}

	return &ClaudeAdapter{
		command:   command,
		sessionID: sessionID,
		workDir:   workDir,
		model:     cfg.Model,
		procMgr:   procMgr,
	}, nil
}

// Act renders the turn context into a prompt, runs the CLI, and parses
// the actions out of the model's reply. The first call starts the
// session with --session-id; later calls resume it.
func (a *ClaudeAdapter) Act(ctx context.Context, tc agent.TurnContext) ([]agent.Action, error) {
	prompt := BuildPrompt(tc)
	args := a.buildArgs(prompt, a.started)

	cmd := newCommand(ctx, a.command, args...)
	cmd.Dir = a.workDir

	stdout, stderr, err := executeCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return nil, fmt.Errorf("claude command failed: %w", err)
	}

	content, err := parseClaudeResponse(stdout)
	if err != nil {
		return nil, fmt.Errorf("parsing claude response: %w (stderr: %s)", err, string(stderr))
	}

	a.started = true

	return ParseActions([]byte(content))
}

// SessionID returns the session identifier used for resume.
func (a *ClaudeAdapter) SessionID() string {
	return a.sessionID
}

// buildArgs constructs the CLI arguments. isResume switches between
// --session-id (first call) and --resume (subsequent calls).
func (a *ClaudeAdapter) buildArgs(prompt string, isResume bool) []string {
	args := []string{"-p", prompt, "--output-format", "json"}

	if isResume {
		args = append(args, "--resume", a.sessionID)
	} else {
		args = append(args, "--session-id", a.sessionID)
	}

	if a.model != "" {
		args = append(args, "--model", a.model)
	}

	return args
}

// parseClaudeResponse unwraps the CLI's JSON envelope and returns the
// concatenated text content.
func parseClaudeResponse(data []byte) (string, error) {
	var cr claudeResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", fmt.Errorf("unmarshaling envelope: %w", err)
	}

	var content string
	for _, item := range cr.Result.Content {
		if item.Type == "text" {
			content += item.Text
		}
	}

	if content == "" {
		return "", fmt.Errorf("envelope contained no text content")
	}

	return content, nil
}

// generateUUID returns a version 4 UUID.
func generateUUID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80

	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]), nil
}
