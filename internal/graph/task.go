package graph

// Status represents the lifecycle state of a task.
type Status int

const (
	StatusPending    Status = iota // Waiting for prerequisites or a turn
	StatusRunning                  // In the active working set of the current turn
	StatusSuccessful               // Terminal: completed with a validated result
	StatusFailed                   // Terminal: failed with a recorded reason
	StatusSkipped                  // Terminal: upstream failure removed any path to readiness
)

// Terminal reports whether the status is one of the three terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccessful, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSuccessful:
		return "successful"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// Edge is a dependency edge to another task. The target must reach
// StatusSuccessful before the owning task may run, unless TolerateFailure
// is set, in which case any terminal state satisfies the edge.
type Edge struct {
	Target          string
	TolerateFailure bool
}

// Task represents a unit of objective-directed work in the graph.
type Task struct {
	ID        string // Unique identifier
	Objective string // Free-text objective, passed through to the agent

	// Contract is the shape the result must satisfy before a success
	// transition commits. nil means no result is required.
	Contract any

	Status Status
	Result any   // Populated only when Status == StatusSuccessful
	Err    error // Populated only when Status == StatusFailed

	Parent      string   // Owning task ID, empty for roots
	DependsOn   []Edge   // Hard ordering prerequisites
	ContextRefs []Edge   // Results consumed as input; same ordering constraint
	Subtasks    []string // Child task IDs in registration order

	// Agents lists the names eligible to act on this task. Empty means
	// resolve at turn time: parent chain, then flow default, then global
	// default.
	Agents []string

	// CompletionAgents, if non-empty, restricts which of Agents may mark
	// this task terminal. Must be a subset of Agents.
	CompletionAgents []string

	MaxTurns int // Per-run turn budget override (0 = inherit)
	MaxCalls int // Per-turn generation-call budget override (0 = inherit)
}

// EligibleToComplete reports whether the named agent may mark this task
// terminal. An empty CompletionAgents list means any assigned agent may.
func (t *Task) EligibleToComplete(agent string) bool {
	if len(t.CompletionAgents) == 0 {
		return true
	}
	for _, name := range t.CompletionAgents {
		if name == agent {
			return true
		}
	}
	return false
}

// AssignedTo reports whether the named agent appears in the task's
// explicit agent list. Tasks with an empty list accept any agent.
func (t *Task) AssignedTo(agent string) bool {
	if len(t.Agents) == 0 {
		return true
	}
	for _, name := range t.Agents {
		if name == agent {
			return true
		}
	}
	return false
}

// edges returns the combined ordering prerequisites (DependsOn followed
// by ContextRefs). The two kinds differ only in how the value is later
// supplied to the agent, never in ordering semantics.
func (t *Task) edges() []Edge {
	out := make([]Edge, 0, len(t.DependsOn)+len(t.ContextRefs))
	out = append(out, t.DependsOn...)
	out = append(out, t.ContextRefs...)
	return out
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]Edge(nil), task.DependsOn...)
	}
	if task.ContextRefs != nil {
		cp.ContextRefs = append([]Edge(nil), task.ContextRefs...)
	}
	if task.Subtasks != nil {
		cp.Subtasks = append([]string(nil), task.Subtasks...)
	}
	if task.Agents != nil {
		cp.Agents = append([]string(nil), task.Agents...)
	}
	if task.CompletionAgents != nil {
		cp.CompletionAgents = append([]string(nil), task.CompletionAgents...)
	}
	return &cp
}
