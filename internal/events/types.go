package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicTurn = "turn"
	TopicRun  = "run"
)

// Event type constants
const (
	EventTypeTaskRegistered = "task.registered"
	EventTypeTaskTransition = "task.transition"
	EventTypeTurnStarted    = "turn.started"
	EventTypeTurnAction     = "turn.action"
	EventTypeTurnEnded      = "turn.ended"
	EventTypeRunProgress    = "run.progress"
	EventTypeRunFinished    = "run.finished"
)

// TaskRegisteredEvent is published when a task enters the graph,
// including tasks created dynamically mid-run.
type TaskRegisteredEvent struct {
	ID        string
	Objective string
	Parent    string
	Timestamp time.Time
}

func (e TaskRegisteredEvent) EventType() string { return EventTypeTaskRegistered }
func (e TaskRegisteredEvent) TaskID() string    { return e.ID }

// TaskTransitionEvent is published for every committed status change.
type TaskTransitionEvent struct {
	ID        string
	From      string
	To        string
	Detail    string // Failure reason or skip cause, empty otherwise
	Timestamp time.Time
}

func (e TaskTransitionEvent) EventType() string { return EventTypeTaskTransition }
func (e TaskTransitionEvent) TaskID() string    { return e.ID }

// TurnStartedEvent is published when the strategy hands a turn to an agent.
type TurnStartedEvent struct {
	Agent     string
	Turn      int
	TaskIDs   []string
	Timestamp time.Time
}

func (e TurnStartedEvent) EventType() string { return EventTypeTurnStarted }
func (e TurnStartedEvent) TaskID() string    { return "" }

// TurnActionEvent is published for each action an agent commits inside
// its turn.
type TurnActionEvent struct {
	Agent     string
	ID        string // Task the action applies to, may be empty
	Kind      string
	Content   string
	Timestamp time.Time
}

func (e TurnActionEvent) EventType() string { return EventTypeTurnAction }
func (e TurnActionEvent) TaskID() string    { return e.ID }

// TurnEndedEvent is published when control passes back to the strategy.
type TurnEndedEvent struct {
	Agent     string
	Turn      int
	Actions   int
	Calls     int
	Next      string // Nominated successor, empty unless popcorn-style handoff
	Timestamp time.Time
}

func (e TurnEndedEvent) EventType() string { return EventTypeTurnEnded }
func (e TurnEndedEvent) TaskID() string    { return "" }

// RunProgressEvent is published after each turn with graph-wide counts.
type RunProgressEvent struct {
	Total      int
	Pending    int
	Running    int
	Successful int
	Failed     int
	Skipped    int
	Timestamp  time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) TaskID() string    { return "" }

// RunFinishedEvent is published once per run with the final outcome:
// "complete", "budget_exhausted" or "stopped".
type RunFinishedEvent struct {
	Outcome   string
	Turns     int
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) TaskID() string    { return "" }
