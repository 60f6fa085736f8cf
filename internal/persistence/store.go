// Package persistence stores task snapshots and flow history in SQLite,
// keyed by flow ID, so a later run can resume where an earlier one
// stopped.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/aristath/agentflow/internal/flow"
	"github.com/aristath/agentflow/internal/graph"
)

// Store is the persistence boundary: task snapshots, flow history and
// run outcomes.
type Store interface {
	// Task snapshots
	SaveTask(ctx context.Context, flowID string, task *graph.Task) error
	GetTask(ctx context.Context, flowID, taskID string) (*graph.Task, error)
	ListTasks(ctx context.Context, flowID string) ([]*graph.Task, error)
	LoadGraph(ctx context.Context, flowID string) (*graph.Graph, error)

	// Flow history
	SaveEvent(ctx context.Context, flowID string, ev flow.Event) error
	History(ctx context.Context, flowID string) ([]flow.Event, error)

	// Run outcomes
	SaveRun(ctx context.Context, flowID, outcome string, turns int) error
	Runs(ctx context.Context, flowID string) ([]RunRecord, error)

	Close() error
}

// RunRecord is one finished run of a flow.
type RunRecord struct {
	FlowID  string
	Outcome string
	Turns   int
}

// SQLiteStore implements Store on modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a store at the given path. Parent
// directories are created as needed; WAL mode and a busy timeout are
// set through the connection string.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return initStore(ctx, db)
}

// NewMemoryStore creates an in-memory store for tests. The shared cache
// lets both pooled connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	return initStore(ctx, db)
}

func initStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	// Foreign keys need the PRAGMA with modernc.org/sqlite; the
	// connection string form is not supported.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One connection for primary queries, one for the per-task edge
	// subqueries in ListTasks.
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
