package agent

import (
	"context"

	"github.com/aristath/agentflow/internal/graph"
)

// ActionKind enumerates everything an agent can do inside a turn. The
// turn loop processes actions one at a time; there is no other channel
// through which an agent can affect task state.
type ActionKind string

const (
	ActionMessage        ActionKind = "message"         // Post a message visible to later turns
	ActionToolCall       ActionKind = "tool_call"       // Invoke a registered tool
	ActionMarkSuccessful ActionKind = "mark_successful" // Attempt a success transition with a candidate result
	ActionMarkFailed     ActionKind = "mark_failed"     // Attempt a failure transition with a reason
	ActionEndTurn        ActionKind = "end_turn"        // Yield, optionally nominating a successor
)

// Action is one step taken by an agent during its turn.
type Action struct {
	Kind   ActionKind
	TaskID string // Task the action applies to (transitions and tool calls)

	Content string         // Message text, failure reason, or tool output summary
	Tool    string         // Tool name for ActionToolCall
	Args    map[string]any // Tool arguments

	Result any // Candidate result for ActionMarkSuccessful

	Next string // Nominated successor for ActionEndTurn, empty to let the strategy pick
}

// TurnContext is everything a generator sees when an agent is given a
// turn: the ready tasks it is eligible for, the results those tasks
// consume through context refs, the flow history so far, the tools it
// may call, and feedback from rejected actions earlier in the same
// turn.
type TurnContext struct {
	Agent    Ref
	Tasks    []*graph.Task
	Inputs   map[string]any // Successful context-ref results, keyed by producing task ID
	History  []HistoryEntry
	Tools    []Tool
	Feedback []string // Validation failures and tool errors from this turn
}

// HistoryEntry is the read-side view of a committed flow event handed
// to generators. The flow package owns the authoritative record; this
// mirror avoids a dependency cycle.
type HistoryEntry struct {
	Kind    string
	Agent   string
	TaskID  string
	Content string
}

// Generator is the generation capability: give this agent a turn slice
// in this context, observe the actions it produced. Implementations
// wrap external model backends and may return any number of actions per
// call; the orchestrator caps the number of calls per turn.
type Generator interface {
	Act(ctx context.Context, tc TurnContext) ([]Action, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, tc TurnContext) ([]Action, error)

func (f GeneratorFunc) Act(ctx context.Context, tc TurnContext) ([]Action, error) {
	return f(ctx, tc)
}

// Tool is an opaque callable an agent may invoke. Failures are returned
// to the agent as structured error text, never raised into the
// orchestrator.
type Tool struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args map[string]any) (string, error)
}
