package backend

import (
	"strings"
	"testing"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/graph"
)

func TestParseActions(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantKinds []agent.ActionKind
		wantErr   bool
	}{
		{
			name:      "JSON array",
			input:     `[{"action": "message", "content": "hi"}, {"action": "end_turn"}]`,
			wantKinds: []agent.ActionKind{agent.ActionMessage, agent.ActionEndTurn},
		},
		{
			name:      "single object",
			input:     `{"action": "mark_failed", "task_id": "t1", "content": "no route"}`,
			wantKinds: []agent.ActionKind{agent.ActionMarkFailed},
		},
		{
			name:      "fenced code block with language tag",
			input:     "Here is my plan:\n```json\n[{\"action\": \"mark_successful\", \"task_id\": \"t1\", \"result\": 42}]\n```\nDone.",
			wantKinds: []agent.ActionKind{agent.ActionMarkSuccessful},
		},
		{
			name: "newline-delimited objects",
			input: `{"action": "tool_call", "task_id": "t1", "tool": "search", "args": {"q": "go"}}
{"action": "end_turn", "next": "reviewer"}`,
			wantKinds: []agent.ActionKind{agent.ActionToolCall, agent.ActionEndTurn},
		},
		{
			name:    "empty output",
			input:   "   \n  ",
			wantErr: true,
		},
		{
			name:    "prose without actions",
			input:   "I think we should refactor the parser first.",
			wantErr: true,
		},
		{
			name:    "unknown action kind",
			input:   `[{"action": "launch_missiles"}]`,
			wantErr: true,
		},
		{
			name:    "empty array",
			input:   `[]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions, err := ParseActions([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", actions)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(actions) != len(tt.wantKinds) {
				t.Fatalf("got %d actions, want %d", len(actions), len(tt.wantKinds))
			}
			for i, kind := range tt.wantKinds {
				if actions[i].Kind != kind {
					t.Errorf("action %d kind = %q, want %q", i, actions[i].Kind, kind)
				}
			}
		})
	}
}

func TestParseActionsPreservesFields(t *testing.T) {
	input := `[{"action": "tool_call", "task_id": "t7", "tool": "register_task", "args": {"id": "sub1"}}]`

	actions, err := ParseActions([]byte(input))
	if err != nil {
		t.Fatalf("ParseActions: %v", err)
	}

	a := actions[0]
	if a.TaskID != "t7" || a.Tool != "register_task" {
		t.Errorf("fields not preserved: %+v", a)
	}
	if got, ok := a.Args["id"].(string); !ok || got != "sub1" {
		t.Errorf("args not preserved: %v", a.Args)
	}
}

func TestBuildPromptSections(t *testing.T) {
	tc := agent.TurnContext{
		Agent: agent.Ref{Name: "worker", Instructions: "You carry out tasks."},
		Tasks: []*graph.Task{
			{ID: "t1", Objective: "Summarize the report", Contract: agent.ShapeString},
			{ID: "t2", Objective: "Count the widgets"},
		},
		History: []agent.HistoryEntry{
			{Kind: "message", Agent: "planner", Content: "start with t1"},
		},
		Tools: []agent.Tool{
			{Name: "search", Description: "Full-text search over project files"},
		},
		Feedback: []string{"result validation failed: expected string, got float64"},
	}

	prompt := BuildPrompt(tc)

	for _, want := range []string{
		`agent "worker"`,
		"You carry out tasks.",
		"t1: Summarize the report",
		"(result must be a string)",
		"t2: Count the widgets",
		"start with t1",
		"search: Full-text search over project files",
		"expected string, got float64",
		`"mark_successful"`,
		`"end_turn"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptRendersInputs(t *testing.T) {
	tc := agent.TurnContext{
		Agent: agent.Ref{Name: "worker"},
		Tasks: []*graph.Task{{ID: "summarize", Objective: "Summarize the readings"}},
		Inputs: map[string]any{
			"fetch-b": "plain text reading",
			"fetch-a": map[string]any{"temp": 42.5},
		},
	}

	prompt := BuildPrompt(tc)

	if !strings.Contains(prompt, "## Inputs from completed tasks") {
		t.Fatal("prompt missing the inputs section")
	}
	for _, want := range []string{
		`fetch-a: {"temp":42.5}`,
		`fetch-b: "plain text reading"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	// Stable ordering regardless of map iteration.
	if strings.Index(prompt, "fetch-a") > strings.Index(prompt, "fetch-b") {
		t.Error("inputs not rendered in task ID order")
	}

	empty := BuildPrompt(agent.TurnContext{Agent: agent.Ref{Name: "worker"}})
	if strings.Contains(empty, "## Inputs") {
		t.Error("inputs section rendered with no inputs")
	}
}

func TestBuildPromptTruncatesHistory(t *testing.T) {
	tc := agent.TurnContext{Agent: agent.Ref{Name: "worker"}}
	for i := 0; i < historyTail+20; i++ {
		content := "old-entry"
		if i >= 20 {
			content = "recent-entry"
		}
		tc.History = append(tc.History, agent.HistoryEntry{Kind: "message", Content: content})
	}

	prompt := BuildPrompt(tc)

	if strings.Contains(prompt, "old-entry") {
		t.Error("prompt should drop history older than the tail window")
	}
	if !strings.Contains(prompt, "recent-entry") {
		t.Error("prompt should keep recent history")
	}
}
