package graph

// Task state transitions. All transitions are applied under the graph
// lock so no two transitions for the same task can interleave, even
// when independent runs share a graph through a common flow.

// MarkRunning moves a pending task into the active working set.
func (g *Graph) MarkRunning(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, err := g.task(taskID)
	if err != nil {
		return err
	}
	if task.Status != StatusPending {
		return &TransitionError{TaskID: taskID, From: task.Status, To: StatusRunning, Reason: "only pending tasks can start running"}
	}
	task.Status = StatusRunning
	return nil
}

// ReleaseTurn returns a running task to eligibility after a turn ends
// without a terminal decision.
func (g *Graph) ReleaseTurn(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, err := g.task(taskID)
	if err != nil {
		return err
	}
	if task.Status != StatusRunning {
		return &TransitionError{TaskID: taskID, From: task.Status, To: StatusPending, Reason: "task is not running"}
	}
	task.Status = StatusPending
	return nil
}

// MarkSuccessful commits a success transition with the already-coerced
// result. The caller is responsible for running the candidate value
// through the coercion capability first; this method only enforces the
// graph invariants.
func (g *Graph) MarkSuccessful(taskID string, result any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, err := g.task(taskID)
	if err != nil {
		return err
	}
	if task.Status != StatusPending && task.Status != StatusRunning {
		return &TransitionError{TaskID: taskID, From: task.Status, To: StatusSuccessful, Reason: "task is already terminal"}
	}
	for _, childID := range task.Subtasks {
		child, exists := g.tasks[childID]
		if !exists || !child.Status.Terminal() {
			return &TransitionError{TaskID: taskID, From: task.Status, To: StatusSuccessful,
				Reason: "subtask " + childID + " is not terminal"}
		}
	}
	task.Status = StatusSuccessful
	task.Result = result
	task.Err = nil
	return nil
}

// MarkFailed commits a failure transition with the recorded reason.
func (g *Graph) MarkFailed(taskID string, reason error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, err := g.task(taskID)
	if err != nil {
		return err
	}
	if task.Status != StatusPending && task.Status != StatusRunning {
		return &TransitionError{TaskID: taskID, From: task.Status, To: StatusFailed, Reason: "task is already terminal"}
	}
	task.Status = StatusFailed
	task.Err = reason
	task.Result = nil
	return nil
}

// MarkSkipped marks a pending task skipped. Used by failure propagation
// when an upstream failure removes any path to readiness.
func (g *Graph) MarkSkipped(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, err := g.task(taskID)
	if err != nil {
		return err
	}
	if task.Status != StatusPending {
		return &TransitionError{TaskID: taskID, From: task.Status, To: StatusSkipped, Reason: "only pending tasks can be skipped"}
	}
	task.Status = StatusSkipped
	return nil
}

// PropagateFailure walks the reverse edges from a failed (or skipped)
// task and skips every pending dependent that required it to succeed.
// Edges with TolerateFailure set do not propagate. Returns the IDs that
// were skipped, in the order they were marked.
func (g *Graph) PropagateFailure(taskID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var skipped []string
	queue := []string{taskID}
	for len(queue) > 0 {
		failedID := queue[0]
		queue = queue[1:]

		for _, depID := range g.dependents[failedID] {
			dep, exists := g.tasks[depID]
			if !exists || dep.Status != StatusPending {
				continue
			}
			if g.toleratesFailureOf(dep, failedID) {
				continue
			}
			dep.Status = StatusSkipped
			skipped = append(skipped, depID)
			queue = append(queue, depID)
		}
	}
	return skipped
}

// toleratesFailureOf reports whether every edge from dep to target
// tolerates the target's failure.
func (g *Graph) toleratesFailureOf(dep *Task, target string) bool {
	for _, edge := range dep.edges() {
		if edge.Target == target && !edge.TolerateFailure {
			return false
		}
	}
	return true
}

func (g *Graph) task(taskID string) (*Task, error) {
	task, exists := g.tasks[taskID]
	if !exists {
		return nil, &TransitionError{TaskID: taskID, Reason: "task not found"}
	}
	return task, nil
}
