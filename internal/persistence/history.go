package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/aristath/agentflow/internal/flow"
)

// SaveEvent appends one flow history event. Events are append-only.
func (s *SQLiteStore) SaveEvent(ctx context.Context, flowID string, ev flow.Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO flow_events (flow_id, seq, kind, agent, task_id, content, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, flowID, ev.Seq, ev.Kind, ev.Agent, ev.TaskID, ev.Content, ev.Time)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// History returns all events for a flow in commit order. Returns an
// empty slice, not nil, when no history exists. The double sort keeps
// order stable for events committed within the same second.
func (s *SQLiteStore) History(ctx context.Context, flowID string) ([]flow.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, agent, task_id, content, at
		FROM flow_events
		WHERE flow_id = ?
		ORDER BY seq ASC, id ASC
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []flow.Event{}
	for rows.Next() {
		var ev flow.Event
		if err := rows.Scan(&ev.Seq, &ev.Kind, &ev.Agent, &ev.TaskID, &ev.Content, &ev.Time); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		history = append(history, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}

// Sink adapts the store to a flow event sink. Persistence failures are
// logged, never raised into the turn loop.
func (s *SQLiteStore) Sink(ctx context.Context, flowID string) func(flow.Event) {
	return func(ev flow.Event) {
		if err := s.SaveEvent(ctx, flowID, ev); err != nil {
			log.Printf("WARNING: failed to persist event %d for flow %q: %v", ev.Seq, flowID, err)
		}
	}
}

// SaveRun records a finished run's outcome.
func (s *SQLiteStore) SaveRun(ctx context.Context, flowID, outcome string, turns int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (flow_id, outcome, turns)
		VALUES (?, ?, ?)
	`, flowID, outcome, turns)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Runs lists the recorded runs of a flow, oldest first.
func (s *SQLiteStore) Runs(ctx context.Context, flowID string) ([]RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_id, outcome, turns
		FROM runs
		WHERE flow_id = ?
		ORDER BY id ASC
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.FlowID, &r.Outcome, &r.Turns); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}
