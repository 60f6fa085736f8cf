package graph

import "fmt"

// CycleError is returned when the combined dependency, context and
// subtask edges form a cycle. From/To name the offending edge when it
// can be identified (self-loops always can).
type CycleError struct {
	From string
	To   string
	Err  error
}

func (e *CycleError) Error() string {
	if e.From != "" || e.To != "" {
		return fmt.Sprintf("graph contains cycle through edge %q -> %q", e.From, e.To)
	}
	return fmt.Sprintf("graph contains cycle: %v", e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// TransitionError is returned when a requested status change violates
// the task state machine or a graph invariant.
type TransitionError struct {
	TaskID string
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %q: invalid transition %s -> %s: %s", e.TaskID, e.From, e.To, e.Reason)
}
