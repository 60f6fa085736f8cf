package backend

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/agentflow/internal/agent"
)

// wireAction is the JSON form of a single action as emitted by a CLI
// backend. Adapters parse one or more of these out of the model output
// and hand them to the orchestrator as agent.Actions.
type wireAction struct {
	Action  string         `json:"action"`
	TaskID  string         `json:"task_id,omitempty"`
	Content string         `json:"content,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Result  any            `json:"result,omitempty"`
	Next    string         `json:"next,omitempty"`
}

// historyTail is how many trailing history entries a prompt carries.
// Older context is summarized by its absence; the tasks section always
// restates the live objectives.
const historyTail = 30

// BuildPrompt renders a turn context into the text prompt sent to a CLI
// backend. The layout is stable so session resume keeps the model
// oriented: instructions, ready tasks, upstream inputs, recent history,
// tools, feedback, then the output protocol.
func BuildPrompt(tc agent.TurnContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are agent %q in a multi-agent task orchestration run.\n", tc.Agent.Name)
	if tc.Agent.Instructions != "" {
		b.WriteString(tc.Agent.Instructions)
		b.WriteString("\n")
	}

	b.WriteString("\n## Ready tasks\n")
	if len(tc.Tasks) == 0 {
		b.WriteString("(none assigned to you this turn)\n")
	}
	for _, task := range tc.Tasks {
		fmt.Fprintf(&b, "- %s: %s", task.ID, task.Objective)
		if shape, ok := task.Contract.(agent.Shape); ok {
			fmt.Fprintf(&b, " (result must be a %s)", shape)
		}
		b.WriteString("\n")
	}

	if len(tc.Inputs) > 0 {
		b.WriteString("\n## Inputs from completed tasks\n")
		ids := make([]string, 0, len(tc.Inputs))
		for id := range tc.Inputs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s: %s\n", id, renderResult(tc.Inputs[id]))
		}
	}

	history := tc.History
	if len(history) > historyTail {
		history = history[len(history)-historyTail:]
	}
	if len(history) > 0 {
		b.WriteString("\n## Recent history\n")
		for _, entry := range history {
			fmt.Fprintf(&b, "[%s]", entry.Kind)
			if entry.Agent != "" {
				fmt.Fprintf(&b, " %s", entry.Agent)
			}
			if entry.TaskID != "" {
				fmt.Fprintf(&b, " (task %s)", entry.TaskID)
			}
			if entry.Content != "" {
				fmt.Fprintf(&b, ": %s", entry.Content)
			}
			b.WriteString("\n")
		}
	}

	if len(tc.Tools) > 0 {
		b.WriteString("\n## Tools\n")
		for _, tool := range tc.Tools {
			fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
		}
	}

	if len(tc.Feedback) > 0 {
		b.WriteString("\n## Feedback on your earlier actions this turn\n")
		for _, fb := range tc.Feedback {
			fmt.Fprintf(&b, "- %s\n", fb)
		}
	}

	b.WriteString(`
## Output format
Respond with a JSON array of actions and nothing else. Each action is an
object with an "action" field:
- {"action": "message", "content": "..."} posts a note to the shared history
- {"action": "tool_call", "task_id": "...", "tool": "...", "args": {...}} invokes a tool
- {"action": "mark_successful", "task_id": "...", "result": ...} completes a task
- {"action": "mark_failed", "task_id": "...", "content": "reason"} fails a task
- {"action": "end_turn", "next": "agent-name-or-empty"} yields your turn
`)

	return b.String()
}

// renderResult formats a task result for a prompt. JSON keeps structured
// results unambiguous; anything unmarshalable falls back to fmt.
func renderResult(v any) string {
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

// ParseActions extracts actions from model output. Accepted forms, in
// order: a JSON array of actions, a single action object, the same
// wrapped in a fenced code block, and newline-delimited JSON objects.
func ParseActions(data []byte) ([]agent.Action, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("empty model output")
	}

	if block := extractFencedBlock(text); block != "" {
		text = block
	}

	var wires []wireAction
	if err := json.Unmarshal([]byte(text), &wires); err == nil {
		return convertActions(wires)
	}

	var single wireAction
	if err := json.Unmarshal([]byte(text), &single); err == nil && single.Action != "" {
		return convertActions([]wireAction{single})
	}

	// Some CLIs stream one JSON object per line.
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var w wireAction
		if err := json.Unmarshal([]byte(line), &w); err == nil && w.Action != "" {
			wires = append(wires, w)
		}
	}
	if len(wires) > 0 {
		return convertActions(wires)
	}

	return nil, fmt.Errorf("no actions found in model output")
}

// extractFencedBlock returns the contents of the first ``` fence, or ""
// when the text has none.
func extractFencedBlock(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop a language tag like "json" on the fence line.
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func convertActions(wires []wireAction) ([]agent.Action, error) {
	actions := make([]agent.Action, 0, len(wires))
	for _, w := range wires {
		action, err := convertAction(w)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("no actions found in model output")
	}
	return actions, nil
}

func convertAction(w wireAction) (agent.Action, error) {
	var kind agent.ActionKind
	switch w.Action {
	case "message":
		kind = agent.ActionMessage
	case "tool_call":
		kind = agent.ActionToolCall
	case "mark_successful":
		kind = agent.ActionMarkSuccessful
	case "mark_failed":
		kind = agent.ActionMarkFailed
	case "end_turn":
		kind = agent.ActionEndTurn
	default:
		return agent.Action{}, fmt.Errorf("unknown action %q", w.Action)
	}

	return agent.Action{
		Kind:    kind,
		TaskID:  w.TaskID,
		Content: w.Content,
		Tool:    w.Tool,
		Args:    w.Args,
		Result:  w.Result,
		Next:    w.Next,
	}, nil
}
