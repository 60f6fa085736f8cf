package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/graph"
)

// Edge kinds in the task_edges table.
const (
	edgeDependsOn  = "depends_on"
	edgeContextRef = "context_ref"
)

// SaveTask saves or updates a task snapshot and its edges. Saves are
// idempotent: re-saving replaces fields and edges but keeps the row's
// insertion order, which ListTasks and LoadGraph rely on.
func (s *SQLiteStore) SaveTask(ctx context.Context, flowID string, task *graph.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	errorStr := ""
	if task.Err != nil {
		errorStr = task.Err.Error()
	}

	resultStr, err := encodeResult(task.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result for task %q: %w", task.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (flow_id, id, objective, contract, status, result, error, parent,
			agents, completion_agents, max_turns, max_calls, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(flow_id, id) DO UPDATE SET
			objective = excluded.objective,
			contract = excluded.contract,
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			parent = excluded.parent,
			agents = excluded.agents,
			completion_agents = excluded.completion_agents,
			max_turns = excluded.max_turns,
			max_calls = excluded.max_calls,
			updated_at = CURRENT_TIMESTAMP
	`, flowID, task.ID, task.Objective, encodeContract(task.Contract), task.Status, resultStr, errorStr,
		task.Parent, strings.Join(task.Agents, ","), strings.Join(task.CompletionAgents, ","),
		task.MaxTurns, task.MaxCalls)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_edges WHERE flow_id = ? AND task_id = ?`, flowID, task.ID); err != nil {
		return fmt.Errorf("failed to delete old edges: %w", err)
	}

	insertEdges := func(kind string, edges []graph.Edge) error {
		for _, edge := range edges {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO task_edges (flow_id, task_id, target_id, kind, tolerate_failure)
				VALUES (?, ?, ?, ?, ?)
			`, flowID, task.ID, edge.Target, kind, boolInt(edge.TolerateFailure))
			if err != nil {
				return fmt.Errorf("failed to insert edge %s -> %s: %w", task.ID, edge.Target, err)
			}
		}
		return nil
	}
	if err := insertEdges(edgeDependsOn, task.DependsOn); err != nil {
		return err
	}
	if err := insertEdges(edgeContextRef, task.ContextRefs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTask retrieves one task snapshot including its edges.
func (s *SQLiteStore) GetTask(ctx context.Context, flowID, taskID string) (*graph.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, objective, contract, status, result, error, parent, agents, completion_agents, max_turns, max_calls
		FROM tasks
		WHERE flow_id = ? AND id = ?
	`, flowID, taskID)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	if err := s.loadEdges(ctx, flowID, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns all task snapshots for a flow in insertion order.
func (s *SQLiteStore) ListTasks(ctx context.Context, flowID string) ([]*graph.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, objective, contract, status, result, error, parent, agents, completion_agents, max_turns, max_calls
		FROM tasks
		WHERE flow_id = ?
		ORDER BY rowid
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*graph.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	for _, task := range tasks {
		if err := s.loadEdges(ctx, flowID, task); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// LoadGraph reconstructs a task graph from the stored snapshots.
// Insertion order guarantees parents are registered before children, so
// the graph's subtask lists rebuild themselves.
func (s *SQLiteStore) LoadGraph(ctx context.Context, flowID string) (*graph.Graph, error) {
	tasks, err := s.ListTasks(ctx, flowID)
	if err != nil {
		return nil, err
	}

	g := graph.New()
	for _, task := range tasks {
		status := task.Status
		result := task.Result
		taskErr := task.Err

		// Add validates construction invariants on the pending shape;
		// terminal state is reapplied through the transitions.
		task.Status = graph.StatusPending
		task.Result = nil
		task.Err = nil
		if err := g.Add(task); err != nil {
			return nil, fmt.Errorf("failed to restore task %q: %w", task.ID, err)
		}

		switch status {
		case graph.StatusSuccessful:
			err = g.MarkSuccessful(task.ID, result)
		case graph.StatusFailed:
			err = g.MarkFailed(task.ID, taskErr)
		case graph.StatusSkipped:
			err = g.MarkSkipped(task.ID)
		case graph.StatusRunning:
			// An interrupted turn resumes as pending.
			err = nil
		default:
			err = nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to restore status of task %q: %w", task.ID, err)
		}
	}
	return g, nil
}

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*graph.Task, error) {
	task := &graph.Task{}
	var contract, result, errorStr, agents, completionAgents string

	err := row.Scan(&task.ID, &task.Objective, &contract, &task.Status, &result, &errorStr,
		&task.Parent, &agents, &completionAgents, &task.MaxTurns, &task.MaxCalls)
	if err != nil {
		return nil, err
	}

	if contract != "" {
		task.Contract = agent.Shape(contract)
	}
	if result != "" {
		var v any
		if err := json.Unmarshal([]byte(result), &v); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
		task.Result = v
	}
	if errorStr != "" {
		task.Err = fmt.Errorf("%s", errorStr)
	}
	if agents != "" {
		task.Agents = strings.Split(agents, ",")
	}
	if completionAgents != "" {
		task.CompletionAgents = strings.Split(completionAgents, ",")
	}
	return task, nil
}

func (s *SQLiteStore) loadEdges(ctx context.Context, flowID string, task *graph.Task) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id, kind, tolerate_failure
		FROM task_edges
		WHERE flow_id = ? AND task_id = ?
		ORDER BY rowid
	`, flowID, task.ID)
	if err != nil {
		return fmt.Errorf("failed to query edges for task %s: %w", task.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var target, kind string
		var tolerate int
		if err := rows.Scan(&target, &kind, &tolerate); err != nil {
			return fmt.Errorf("failed to scan edge: %w", err)
		}
		edge := graph.Edge{Target: target, TolerateFailure: tolerate != 0}
		switch kind {
		case edgeContextRef:
			task.ContextRefs = append(task.ContextRefs, edge)
		default:
			task.DependsOn = append(task.DependsOn, edge)
		}
	}
	return rows.Err()
}

// encodeContract persists the built-in shape vocabulary. Custom
// contract types do not survive a round trip; callers using a richer
// coercer re-attach contracts on restore.
func encodeContract(contract any) string {
	if shape, ok := contract.(agent.Shape); ok {
		return string(shape)
	}
	return ""
}

func encodeResult(result any) (string, error) {
	if result == nil {
		return "", nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
