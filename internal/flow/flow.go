// Package flow holds the shared state of one logical run: the
// append-only interaction history, the registry of tasks created in
// scope, and the default settings the orchestrator falls back to.
// Nested scopes give agents a private sub-conversation that can fold a
// summary back into the parent on exit.
package flow

import (
	"fmt"
	"sync"
	"time"

	"github.com/aristath/agentflow/internal/graph"
)

// Event kinds recorded into flow history.
const (
	KindMessage     = "message"
	KindToolCall    = "tool_call"
	KindTransition  = "transition"
	KindTurnStarted = "turn_started"
	KindTurnEnded   = "turn_ended"
	KindFeedback    = "feedback"
	KindRegistered  = "task_registered"
	KindScopeFolded = "scope_folded"
)

// Event is one committed entry in the flow history. History is
// append-only and strictly ordered by commit sequence; agents observe
// each other's work only through these entries.
type Event struct {
	Seq     int
	Time    time.Time
	Kind    string
	Agent   string
	TaskID  string
	Content string
}

// Settings are the per-flow defaults threaded through flow creation.
// They replace process-wide globals; the fallback order is
// task -> parent task chain -> flow settings -> global config.
type Settings struct {
	DefaultAgents   []string
	Strategy        string
	MaxTurns        int
	MaxCallsPerTurn int
}

// Flow is the process-wide-per-run shared context. A nested scope is
// itself a Flow whose history starts from a snapshot of the parent's.
type Flow struct {
	mu       sync.Mutex
	id       string
	settings Settings
	graph    *graph.Graph

	parent *Flow
	base   []Event // Parent history visible at scope entry

	events []Event
	owned  []string // Task IDs registered within this scope

	sink func(Event) // Optional observer, called outside the lock
}

// New creates a root flow. The graph is owned by the flow and shared
// with any nested scopes so dynamically created tasks stay visible.
func New(id string, settings Settings) *Flow {
	return &Flow{
		id:       id,
		settings: settings,
		graph:    graph.New(),
	}
}

// Restore creates a root flow seeded with previously persisted history,
// so a later run resumes where an earlier one stopped.
func Restore(id string, settings Settings, events []Event) *Flow {
	f := New(id, settings)
	f.events = append(f.events, events...)
	return f
}

// ID returns the flow identifier (also the persistence thread key).
func (f *Flow) ID() string { return f.id }

// Settings returns the flow defaults.
func (f *Flow) Settings() Settings { return f.settings }

// Graph returns the task graph shared by this flow and its scopes.
func (f *Flow) Graph() *graph.Graph { return f.graph }

// SetSink installs an observer invoked for every committed event. Used
// to bridge history into the event bus and the persistence store.
func (f *Flow) SetSink(sink func(Event)) {
	f.mu.Lock()
	f.sink = sink
	f.mu.Unlock()
}

// Register adds a task to the graph and records the registration in
// history. Construction errors surface immediately and nothing is
// recorded.
func (f *Flow) Register(task *graph.Task) error {
	if err := f.graph.Add(task); err != nil {
		return err
	}

	f.mu.Lock()
	f.owned = append(f.owned, task.ID)
	f.mu.Unlock()

	f.Record(KindRegistered, "", task.ID, task.Objective)
	return nil
}

// Owned returns the IDs of tasks registered within this scope.
func (f *Flow) Owned() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.owned...)
}

// Record commits an event to this scope's history and returns it.
func (f *Flow) Record(kind, agent, taskID, content string) Event {
	f.mu.Lock()
	ev := Event{
		Seq:     f.nextSeq(),
		Time:    time.Now(),
		Kind:    kind,
		Agent:   agent,
		TaskID:  taskID,
		Content: content,
	}
	f.events = append(f.events, ev)
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink(ev)
	}
	return ev
}

// nextSeq numbers events after everything visible to this scope so a
// folded summary always sorts after the events it summarizes. Caller
// holds f.mu.
func (f *Flow) nextSeq() int {
	return len(f.base) + len(f.events)
}

// History returns the ordered events visible to this scope: the parent
// history as of scope entry followed by this scope's own events.
func (f *Flow) History() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, 0, len(f.base)+len(f.events))
	out = append(out, f.base...)
	out = append(out, f.events...)
	return out
}

// EnterScope creates a nested scope with an isolated sub-history. The
// child sees the parent history up to this point; the parent sees
// nothing from the child until Fold.
func (f *Flow) EnterScope() *Flow {
	base := f.History()
	return &Flow{
		id:       fmt.Sprintf("%s/scope-%d", f.id, len(base)),
		settings: f.settings,
		graph:    f.graph,
		parent:   f,
		base:     base,
		sink:     f.sink,
	}
}

// Fold closes a nested scope and appends a summary of its private
// exchange to the parent history. The private events themselves stay
// private.
func (f *Flow) Fold(summary string) error {
	if f.parent == nil {
		return fmt.Errorf("flow %q is not a nested scope", f.id)
	}
	f.parent.Record(KindScopeFolded, "", "", summary)
	return nil
}

// Discard closes a nested scope without folding anything back.
func (f *Flow) Discard() error {
	if f.parent == nil {
		return fmt.Errorf("flow %q is not a nested scope", f.id)
	}
	return nil
}
