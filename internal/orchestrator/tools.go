package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/events"
	"github.com/aristath/agentflow/internal/flow"
	"github.com/aristath/agentflow/internal/graph"
)

// registerTaskTool lets an agent create tasks mid-run. New tasks join
// the shared graph immediately, surface on the bus, and the loop picks
// them up on its next readiness pass.
func registerTaskTool(f *flow.Flow, bus *events.Bus) agent.Tool {
	return agent.Tool{
		Name: "register_task",
		Description: "Create a new task in the running graph. Args: id (string), objective (string), " +
			"parent (string, optional), depends_on (list of task IDs, optional), agents (list of agent names, optional).",
		Run: func(_ context.Context, args map[string]any) (string, error) {
			id, _ := args["id"].(string)
			if id == "" {
				return "", fmt.Errorf("register_task requires an id")
			}
			objective, _ := args["objective"].(string)

			task := &graph.Task{ID: id, Objective: objective}
			if parent, ok := args["parent"].(string); ok {
				task.Parent = parent
			}
			for _, target := range stringList(args["depends_on"]) {
				task.DependsOn = append(task.DependsOn, graph.Edge{Target: target})
			}
			task.Agents = stringList(args["agents"])

			if err := f.Register(task); err != nil {
				return "", err
			}
			if bus != nil {
				bus.Publish(events.TopicTask, events.TaskRegisteredEvent{
					ID: id, Objective: objective, Parent: task.Parent, Timestamp: time.Now(),
				})
			}
			return fmt.Sprintf("task %q registered", id), nil
		},
	}
}

// stringList coerces a decoded JSON list argument into []string,
// dropping non-string members.
func stringList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
