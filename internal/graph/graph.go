package graph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// Graph holds tasks indexed by ID together with the reverse-edge index
// used for failure propagation. Nodes and edges are only ever added,
// never removed, so readiness can be recomputed at any point mid-run
// without invalidating earlier traversals.
type Graph struct {
	mu         sync.RWMutex
	tasks      map[string]*Task
	order      []string            // IDs in registration order
	dependents map[string][]string // target ID -> tasks whose edges point at it
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// Add registers a task. Construction-time violations (duplicate ID,
// self-referential edge, completion roster not a subset of the agent
// roster, unknown parent) are returned immediately and never reach an
// agent. Cycle detection across tasks happens in Validate.
func (g *Graph) Add(task *Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if task.ID == "" {
		return fmt.Errorf("task has no ID")
	}
	if _, exists := g.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	for _, edge := range task.edges() {
		if edge.Target == task.ID {
			return &CycleError{From: task.ID, To: task.ID}
		}
	}

	for _, name := range task.CompletionAgents {
		if !containsString(task.Agents, name) {
			return fmt.Errorf("task %q: completion agent %q is not in the agent roster", task.ID, name)
		}
	}

	if task.Parent != "" {
		parent, ok := g.tasks[task.Parent]
		if !ok {
			return fmt.Errorf("task %q references unknown parent %q", task.ID, task.Parent)
		}
		if task.Parent == task.ID {
			return &CycleError{From: task.ID, To: task.ID}
		}
		parent.Subtasks = append(parent.Subtasks, task.ID)
	}

	g.tasks[task.ID] = cloneTask(task)
	// The registry owns the subtask list; the caller's copy is ignored.
	g.tasks[task.ID].Subtasks = nil
	g.order = append(g.order, task.ID)

	for _, edge := range task.edges() {
		g.dependents[edge.Target] = append(g.dependents[edge.Target], task.ID)
	}

	return nil
}

// Validate runs a topological sort over the combined dependency,
// context-ref and subtask edges. Returns the sorted IDs, or an error if
// an edge targets an unknown task or the edges form a cycle.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for taskID, task := range g.tasks {
		for _, edge := range task.edges() {
			if _, exists := g.tasks[edge.Target]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, edge.Target)
			}
		}
	}

	var edges []toposort.Edge
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if len(task.edges()) == 0 && len(task.Subtasks) == 0 {
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, edge := range task.edges() {
			// Edge (target, taskID): the prerequisite sorts first.
			edges = append(edges, toposort.Edge{edge.Target, taskID})
		}
		for _, childID := range task.Subtasks {
			// A parent completes only after its children.
			edges = append(edges, toposort.Edge{childID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &CycleError{Err: err}
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(g.tasks) {
		missing := []string{}
		found := make(map[string]bool)
		for _, id := range order {
			found[id] = true
		}
		for _, taskID := range g.order {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Resolve returns the transitive set of tasks whose completion is
// required for the given roots: the roots themselves plus everything
// reachable through dependency edges, context refs and subtasks. The
// result is in registration order. Resolve validates the graph first so
// a cyclic graph never reaches the orchestrator loop.
func (g *Graph) Resolve(rootIDs ...string) ([]*Task, error) {
	if _, err := g.Validate(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	required := make(map[string]bool)
	queue := make([]string, 0, len(rootIDs))
	for _, id := range rootIDs {
		if _, ok := g.tasks[id]; !ok {
			return nil, fmt.Errorf("task %q not found", id)
		}
		if !required[id] {
			required[id] = true
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		task := g.tasks[id]

		next := make([]string, 0, len(task.DependsOn)+len(task.ContextRefs)+len(task.Subtasks))
		for _, edge := range task.edges() {
			next = append(next, edge.Target)
		}
		// Children are required for the parent's completion even though
		// they are independently runnable.
		next = append(next, task.Subtasks...)

		for _, nid := range next {
			if !required[nid] {
				required[nid] = true
				queue = append(queue, nid)
			}
		}
	}

	out := make([]*Task, 0, len(required))
	for _, id := range g.order {
		if required[id] {
			out = append(out, cloneTask(g.tasks[id]))
		}
	}
	return out, nil
}

// Ready returns the pending tasks whose prerequisites are all satisfied:
// every dependency and context-ref target is terminal-successful (or
// terminal-anything when the edge tolerates failure) and every subtask
// is terminal. Results are in registration order.
func (g *Graph) Ready() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ready := []*Task{}
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if task.Status != StatusPending {
			continue
		}
		if g.isReady(task) {
			ready = append(ready, cloneTask(task))
		}
	}
	return ready
}

func (g *Graph) isReady(task *Task) bool {
	for _, edge := range task.edges() {
		target, exists := g.tasks[edge.Target]
		if !exists || !edgeSatisfied(target, edge) {
			return false
		}
	}
	for _, childID := range task.Subtasks {
		child, exists := g.tasks[childID]
		if !exists || !child.Status.Terminal() {
			return false
		}
	}
	return true
}

// edgeSatisfied reports whether a prerequisite task satisfies the edge
// pointing at it.
func edgeSatisfied(target *Task, edge Edge) bool {
	switch target.Status {
	case StatusSuccessful:
		return true
	case StatusFailed, StatusSkipped:
		return edge.TolerateFailure
	}
	return false
}

// Get returns a copy of the task by ID.
func (g *Graph) Get(taskID string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in registration order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*Task, 0, len(g.order))
	for _, taskID := range g.order {
		tasks = append(tasks, cloneTask(g.tasks[taskID]))
	}
	return tasks
}

// Len returns the number of registered tasks.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
