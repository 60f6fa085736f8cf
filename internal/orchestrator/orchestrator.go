// Package orchestrator runs the turn loop: recompute the ready subset
// of the task graph, ask the strategy for the next agent, let that
// agent act for one bounded turn, apply the resulting transitions, and
// repeat until the requested roots are terminal or a budget runs out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/events"
	"github.com/aristath/agentflow/internal/flow"
	"github.com/aristath/agentflow/internal/graph"
	"github.com/aristath/agentflow/internal/strategy"
)

const (
	// defaultMaxCallsPerTurn bounds a single turn when neither the
	// session limits nor the flow settings set a cap.
	defaultMaxCallsPerTurn = 10

	// defaultMaxTaskTurns caps the whole run at this many turns per
	// required task, catching runaway loops even with no explicit
	// max_turns budget.
	defaultMaxTaskTurns = 100

	// maxConsecutiveStalls trips a run-level stop when one agent keeps
	// ending turns without doing anything.
	maxConsecutiveStalls = 3
)

// Run outcomes.
const (
	OutcomeComplete        = "complete"
	OutcomeBudgetExhausted = "budget_exhausted"
	OutcomeStopped         = "stopped"
)

// Limits are the per-session budgets. Zero values fall back to the flow
// settings, then to package defaults. Tasks may tighten both further:
// Task.MaxTurns bounds how many turns a task participates in, and
// Task.MaxCalls lowers the call cap for any turn the task is part of.
type Limits struct {
	MaxTurns        int // Turn-selection calls for the whole session
	MaxCallsPerTurn int // Generation calls within one turn
}

// Outcome is what a run returns: the terminal (or still-pending) status
// of every required task, why the run stopped, and how many turns it
// took.
type Outcome struct {
	Statuses map[string]graph.Status
	Reason   string
	Turns    int
}

// Config wires an orchestrator together.
type Config struct {
	Flow       *flow.Flow
	Roster     []agent.Ref
	Generators map[string]agent.Generator // Keyed by agent name, falling back to provider
	Coercer    agent.Coercer              // nil = ShapeCoercer
	Strategy   strategy.Strategy          // nil = built from flow settings
	Tools      []agent.Tool
	Bus        *events.Bus // Optional observability bus
	QAChannel  *QAChannel  // Optional; surfaces ask_orchestrator to agents
	Retry      RetryConfig // Zero value = DefaultRetryConfig

	// DefaultAgents is the global fallback roster, consulted after the
	// task, its parent chain and the flow settings.
	DefaultAgents []string

	// MaxTaskTurns overrides the per-task iteration ceiling multiplier.
	MaxTaskTurns int

	// RaiseOnError propagates generation faults out of the run instead
	// of feeding them back to the acting agent. Debug aid.
	RaiseOnError bool
}

// Orchestrator drives one flow. All task and history mutation happens
// inside its single-threaded loop; independent orchestrators over
// distinct flows may run in parallel.
type Orchestrator struct {
	flow         *flow.Flow
	roster       []agent.Ref
	gens         map[string]agent.Generator
	coercer      agent.Coercer
	strategy     strategy.Strategy
	tools        []agent.Tool
	bus          *events.Bus
	breakers     *BreakerRegistry
	retry        RetryConfig
	defaults     []string
	maxTaskTurns int
	raiseOnError bool
}

// New validates the config and builds an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Flow == nil {
		return nil, errors.New("orchestrator requires a flow")
	}
	if len(cfg.Roster) == 0 {
		return nil, errors.New("orchestrator requires a non-empty agent roster")
	}

	strat := cfg.Strategy
	if strat == nil {
		s, err := strategy.ForName(cfg.Flow.Settings().Strategy, time.Now().UnixNano())
		if err != nil {
			return nil, err
		}
		strat = s
	}

	coercer := cfg.Coercer
	if coercer == nil {
		coercer = agent.ShapeCoercer{}
	}

	retry := cfg.Retry
	if retry.InitialInterval == 0 {
		retry = DefaultRetryConfig()
	}

	maxTaskTurns := cfg.MaxTaskTurns
	if maxTaskTurns <= 0 {
		maxTaskTurns = defaultMaxTaskTurns
	}

	tools := append([]agent.Tool(nil), cfg.Tools...)
	tools = append(tools, registerTaskTool(cfg.Flow, cfg.Bus))
	if cfg.QAChannel != nil {
		tools = append(tools, cfg.QAChannel.Tool())
	}

	return &Orchestrator{
		flow:         cfg.Flow,
		roster:       cfg.Roster,
		gens:         cfg.Generators,
		coercer:      coercer,
		strategy:     strat,
		tools:        tools,
		bus:          cfg.Bus,
		breakers:     NewBreakerRegistry(),
		retry:        retry,
		defaults:     cfg.DefaultAgents,
		maxTaskTurns: maxTaskTurns,
		raiseOnError: cfg.RaiseOnError,
	}, nil
}

// Run drives the requested roots to completion, bounded only by the
// flow settings and the iteration ceiling.
func (o *Orchestrator) Run(ctx context.Context, rootIDs ...string) (Outcome, error) {
	return o.RunSession(ctx, Limits{}, rootIDs...)
}

// RunSession runs one bounded session: it stops when the roots are
// terminal, when the turn budget is exhausted (a distinct incomplete
// outcome, not an error), or when the run is stopped by cancellation or
// a stall. Non-terminal tasks keep their status and stay eligible for a
// later session on the same flow.
func (o *Orchestrator) RunSession(ctx context.Context, limits Limits, rootIDs ...string) (Outcome, error) {
	g := o.flow.Graph()

	// A cyclic or malformed graph never enters the loop.
	required, err := g.Resolve(rootIDs...)
	if err != nil {
		return Outcome{}, err
	}

	settings := o.flow.Settings()
	maxTurns := limits.MaxTurns
	if maxTurns <= 0 {
		maxTurns = settings.MaxTurns
	}
	maxCalls := limits.MaxCallsPerTurn
	if maxCalls <= 0 {
		maxCalls = settings.MaxCallsPerTurn
	}
	if maxCalls <= 0 {
		maxCalls = defaultMaxCallsPerTurn
	}

	turns := 0
	stalls := make(map[string]int)
	taskTurns := make(map[string]int)

	for {
		if err := ctx.Err(); err != nil {
			return o.finish(OutcomeStopped, turns, rootIDs), err
		}

		// Re-resolve so tasks registered mid-run join the required set.
		required, err = g.Resolve(rootIDs...)
		if err != nil {
			return o.finish(OutcomeStopped, turns, rootIDs), err
		}

		if rootsTerminal(g, rootIDs) {
			return o.finish(OutcomeComplete, turns, rootIDs), nil
		}

		if maxTurns > 0 && turns >= maxTurns {
			return o.finish(OutcomeBudgetExhausted, turns, rootIDs), nil
		}
		if turns >= o.maxTaskTurns*len(required) {
			return o.finish(OutcomeStopped, turns, rootIDs),
				fmt.Errorf("run exceeded %d turns for %d tasks; aborting runaway iteration", turns, len(required))
		}

		ready := o.readyWithin(g, required)
		ready, exhausted := splitTaskBudget(ready, taskTurns)
		if len(ready) == 0 {
			if exhausted > 0 {
				// Every runnable task has spent its own turn budget.
				return o.finish(OutcomeBudgetExhausted, turns, rootIDs), nil
			}
			return o.finish(OutcomeStopped, turns, rootIDs),
				fmt.Errorf("no runnable tasks but %d required tasks are not terminal", countNonTerminal(required))
		}

		eligible := o.eligibleRefs(ready)
		if len(eligible) == 0 {
			return o.finish(OutcomeStopped, turns, rootIDs),
				errors.New("no agent in the roster is eligible for any ready task")
		}

		selected, err := o.strategy.SelectNext(eligible, g.Tasks(), o.flow.History())
		if err != nil {
			return o.finish(OutcomeStopped, turns, rootIDs), fmt.Errorf("turn selection failed: %w", err)
		}
		turns++

		// The tightest per-task call override caps the whole turn.
		working := o.workingFor(selected, ready)
		workingIDs := make([]string, 0, len(working))
		turnCalls := maxCalls
		for _, t := range working {
			if err := g.MarkRunning(t.ID); err != nil {
				log.Printf("WARNING: failed to mark task %q running: %v", t.ID, err)
				continue
			}
			workingIDs = append(workingIDs, t.ID)
			taskTurns[t.ID]++
			if t.MaxCalls > 0 && t.MaxCalls < turnCalls {
				turnCalls = t.MaxCalls
			}
		}

		o.flow.Record(flow.KindTurnStarted, selected.Name, "", "")
		o.publish(events.TopicTurn, events.TurnStartedEvent{
			Agent: selected.Name, Turn: turns, TaskIDs: workingIDs, Timestamp: time.Now(),
		})

		res, err := o.turn(ctx, selected, workingIDs, turnCalls)

		// Tasks left running return to eligibility for a future turn.
		for _, id := range workingIDs {
			if t, ok := g.Get(id); ok && t.Status == graph.StatusRunning {
				if rerr := g.ReleaseTurn(id); rerr != nil {
					log.Printf("WARNING: failed to release task %q: %v", id, rerr)
				}
			}
		}

		o.flow.Record(flow.KindTurnEnded, selected.Name, "", res.nominated)
		o.publish(events.TopicTurn, events.TurnEndedEvent{
			Agent: selected.Name, Turn: turns, Actions: res.actions, Calls: res.calls,
			Next: res.nominated, Timestamp: time.Now(),
		})
		o.publishProgress(g)

		if err != nil {
			return o.finish(OutcomeStopped, turns, rootIDs), err
		}

		if res.progress {
			stalls[selected.Name] = 0
		} else {
			stalls[selected.Name]++
			if stalls[selected.Name] >= maxConsecutiveStalls {
				return o.finish(OutcomeStopped, turns, rootIDs),
					fmt.Errorf("agent %q ended %d consecutive turns without progress", selected.Name, maxConsecutiveStalls)
			}
		}
	}
}

// finish snapshots the statuses of everything the run touched and
// publishes the final outcome.
func (o *Orchestrator) finish(reason string, turns int, rootIDs []string) Outcome {
	statuses := make(map[string]graph.Status)
	if required, err := o.flow.Graph().Resolve(rootIDs...); err == nil {
		for _, t := range required {
			statuses[t.ID] = t.Status
		}
	} else {
		for _, id := range rootIDs {
			if t, ok := o.flow.Graph().Get(id); ok {
				statuses[t.ID] = t.Status
			}
		}
	}
	o.publish(events.TopicRun, events.RunFinishedEvent{Outcome: reason, Turns: turns, Timestamp: time.Now()})
	return Outcome{Statuses: statuses, Reason: reason, Turns: turns}
}

// turnResult summarizes one turn for the outer loop.
type turnResult struct {
	progress  bool
	nominated string
	calls     int
	actions   int
}

// turn lets one agent act: repeated generation calls, each yielding a
// batch of actions processed one at a time, until the strategy declares
// the turn over or the call budget runs out. Tool outputs stay private
// to the acting agent; everything else commits to shared history.
func (o *Orchestrator) turn(ctx context.Context, ref agent.Ref, workingIDs []string, maxCalls int) (turnResult, error) {
	var res turnResult

	gen, err := o.generatorFor(ref)
	if err != nil {
		return res, err
	}
	cb := o.breakers.Get(providerKey(ref))

	// Context-ref targets are terminal before their consumers become
	// ready, so the inputs are stable for the whole turn.
	inputs := o.contextInputs(workingIDs)

	var all []agent.Action
	var feedback []string
	var private []agent.HistoryEntry

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if res.calls >= maxCalls {
			break
		}

		tc := agent.TurnContext{
			Agent:    ref,
			Tasks:    o.tasksByID(workingIDs),
			Inputs:   inputs,
			History:  append(o.historyEntries(), private...),
			Tools:    o.tools,
			Feedback: append([]string(nil), feedback...),
		}
		feedback = feedback[:0]

		res.calls++
		actions, err := actWithRetry(ctx, gen, tc, cb, o.retry)
		if err != nil {
			if o.raiseOnError {
				return res, fmt.Errorf("generation call failed for agent %q: %w", ref.Name, err)
			}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Printf("WARNING: generation call failed for agent %q: %v", ref.Name, err)
			o.flow.Record(flow.KindFeedback, ref.Name, "", "generation failed: "+err.Error())
			break
		}

		for _, act := range actions {
			all = append(all, act)
			res.actions++
			o.publish(events.TopicTurn, events.TurnActionEvent{
				Agent: ref.Name, ID: act.TaskID, Kind: string(act.Kind), Content: act.Content, Timestamp: time.Now(),
			})

			switch act.Kind {
			case agent.ActionMessage:
				o.flow.Record(flow.KindMessage, ref.Name, act.TaskID, act.Content)
				res.progress = true

			case agent.ActionToolCall:
				out, terr := o.runTool(ctx, act)
				if terr != nil {
					detail := fmt.Sprintf("tool %q failed: %v", act.Tool, terr)
					feedback = append(feedback, detail)
					o.flow.Record(flow.KindFeedback, ref.Name, act.TaskID, detail)
					continue
				}
				o.flow.Record(flow.KindToolCall, ref.Name, act.TaskID, act.Tool)
				private = append(private, agent.HistoryEntry{
					Kind: "tool_result", Agent: ref.Name, TaskID: act.TaskID, Content: out,
				})
				res.progress = true

			case agent.ActionMarkSuccessful:
				if detail, ok := o.markSuccessful(ref, act); !ok {
					feedback = append(feedback, detail)
					o.flow.Record(flow.KindFeedback, ref.Name, act.TaskID, detail)
				} else {
					res.progress = true
				}

			case agent.ActionMarkFailed:
				if detail, ok := o.markFailed(ref, act); !ok {
					feedback = append(feedback, detail)
					o.flow.Record(flow.KindFeedback, ref.Name, act.TaskID, detail)
				} else {
					res.progress = true
				}

			case agent.ActionEndTurn:
				res.nominated = act.Next

			default:
				feedback = append(feedback, fmt.Sprintf("unknown action kind %q", act.Kind))
			}

			if act.Kind == agent.ActionEndTurn {
				break
			}
		}

		if o.strategy.TurnOver(ref, all) {
			break
		}
	}

	return res, nil
}

// markSuccessful runs the candidate result through coercion and commits
// the transition. Rejections come back as feedback detail, never as
// errors; the task stays non-terminal.
func (o *Orchestrator) markSuccessful(ref agent.Ref, act agent.Action) (string, bool) {
	g := o.flow.Graph()
	t, ok := g.Get(act.TaskID)
	if !ok {
		return fmt.Sprintf("no task %q", act.TaskID), false
	}
	if !t.EligibleToComplete(ref.Name) {
		return fmt.Sprintf("agent %q is not allowed to complete task %q", ref.Name, t.ID), false
	}

	coerced, err := o.coercer.Coerce(act.Result, t.Contract)
	if err != nil {
		var verr *agent.ValidationError
		if errors.As(err, &verr) {
			return fmt.Sprintf("result for task %q rejected: %s", t.ID, verr.Detail), false
		}
		return fmt.Sprintf("result for task %q rejected: %v", t.ID, err), false
	}

	from := t.Status
	if err := g.MarkSuccessful(t.ID, coerced); err != nil {
		return err.Error(), false
	}
	o.recordTransition(t.ID, from, graph.StatusSuccessful, "")
	return "", true
}

// markFailed commits the failure and propagates skips downstream.
func (o *Orchestrator) markFailed(ref agent.Ref, act agent.Action) (string, bool) {
	g := o.flow.Graph()
	t, ok := g.Get(act.TaskID)
	if !ok {
		return fmt.Sprintf("no task %q", act.TaskID), false
	}
	if !t.EligibleToComplete(ref.Name) {
		return fmt.Sprintf("agent %q is not allowed to complete task %q", ref.Name, t.ID), false
	}

	reason := act.Content
	if reason == "" {
		reason = "failed by agent " + ref.Name
	}

	from := t.Status
	if err := g.MarkFailed(t.ID, errors.New(reason)); err != nil {
		return err.Error(), false
	}
	o.recordTransition(t.ID, from, graph.StatusFailed, reason)

	for _, skippedID := range g.PropagateFailure(t.ID) {
		o.recordTransition(skippedID, graph.StatusPending, graph.StatusSkipped, "upstream task "+t.ID+" failed")
	}
	return "", true
}

func (o *Orchestrator) recordTransition(taskID string, from, to graph.Status, detail string) {
	o.flow.Record(flow.KindTransition, "", taskID, from.String()+" -> "+to.String())
	o.publish(events.TopicTask, events.TaskTransitionEvent{
		ID: taskID, From: from.String(), To: to.String(), Detail: detail, Timestamp: time.Now(),
	})
}

func (o *Orchestrator) runTool(ctx context.Context, act agent.Action) (string, error) {
	for _, tool := range o.tools {
		if tool.Name == act.Tool {
			return tool.Run(ctx, act.Args)
		}
	}
	return "", fmt.Errorf("no such tool")
}

func (o *Orchestrator) generatorFor(ref agent.Ref) (agent.Generator, error) {
	if gen, ok := o.gens[ref.Name]; ok {
		return gen, nil
	}
	if gen, ok := o.gens[ref.Provider]; ok {
		return gen, nil
	}
	return nil, fmt.Errorf("no generator configured for agent %q", ref.Name)
}

// resolvedRoster evaluates the fallback chain for a task lazily:
// task agents, then the nearest ancestor with an explicit roster, then
// the flow default, then the global default. nil means any agent.
func (o *Orchestrator) resolvedRoster(t *graph.Task) []string {
	chain := [][]string{t.Agents}

	g := o.flow.Graph()
	for parentID := t.Parent; parentID != ""; {
		parent, ok := g.Get(parentID)
		if !ok {
			break
		}
		chain = append(chain, parent.Agents)
		parentID = parent.Parent
	}

	chain = append(chain, o.flow.Settings().DefaultAgents, o.defaults)
	return agent.ResolveRoster(chain...)
}

// eligibleRefs filters the roster to agents holding the turn capability
// that are assigned to at least one ready task. Roster order is kept so
// deterministic strategies stay deterministic.
func (o *Orchestrator) eligibleRefs(ready []*graph.Task) []agent.Ref {
	var out []agent.Ref
	for _, ref := range o.roster {
		if !ref.Can(agent.CapTurn) {
			continue
		}
		for _, t := range ready {
			if o.assignable(ref, t) {
				out = append(out, ref)
				break
			}
		}
	}
	return out
}

// workingFor returns the ready tasks the selected agent may act on.
func (o *Orchestrator) workingFor(ref agent.Ref, ready []*graph.Task) []*graph.Task {
	var out []*graph.Task
	for _, t := range ready {
		if o.assignable(ref, t) {
			out = append(out, t)
		}
	}
	return out
}

func (o *Orchestrator) assignable(ref agent.Ref, t *graph.Task) bool {
	roster := o.resolvedRoster(t)
	if len(roster) == 0 {
		return true
	}
	return containsString(roster, ref.Name)
}

// splitTaskBudget removes ready tasks whose own turn budget is spent,
// reporting how many were held back. A held task stays non-terminal and
// regains eligibility in a later session.
func splitTaskBudget(ready []*graph.Task, taskTurns map[string]int) ([]*graph.Task, int) {
	var out []*graph.Task
	exhausted := 0
	for _, t := range ready {
		if t.MaxTurns > 0 && taskTurns[t.ID] >= t.MaxTurns {
			exhausted++
			continue
		}
		out = append(out, t)
	}
	return out, exhausted
}

// readyWithin restricts graph readiness to the required set so a shared
// graph with unrelated tasks does not leak turns into this run.
func (o *Orchestrator) readyWithin(g *graph.Graph, required []*graph.Task) []*graph.Task {
	requiredIDs := make(map[string]bool, len(required))
	for _, t := range required {
		requiredIDs[t.ID] = true
	}

	var out []*graph.Task
	for _, t := range g.Ready() {
		if requiredIDs[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

// contextInputs gathers the results the working tasks consume through
// their context refs, keyed by producing task ID. Only successful
// targets contribute; a tolerated failure satisfies the ordering edge
// but supplies nothing.
func (o *Orchestrator) contextInputs(workingIDs []string) map[string]any {
	g := o.flow.Graph()
	var inputs map[string]any
	for _, t := range o.tasksByID(workingIDs) {
		for _, edge := range t.ContextRefs {
			target, ok := g.Get(edge.Target)
			if !ok || target.Status != graph.StatusSuccessful {
				continue
			}
			if inputs == nil {
				inputs = make(map[string]any)
			}
			inputs[target.ID] = target.Result
		}
	}
	return inputs
}

func (o *Orchestrator) tasksByID(ids []string) []*graph.Task {
	g := o.flow.Graph()
	out := make([]*graph.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := g.Get(id); ok {
			out = append(out, t)
		}
	}
	return out
}

func (o *Orchestrator) historyEntries() []agent.HistoryEntry {
	history := o.flow.History()
	out := make([]agent.HistoryEntry, 0, len(history))
	for _, ev := range history {
		out = append(out, agent.HistoryEntry{
			Kind: ev.Kind, Agent: ev.Agent, TaskID: ev.TaskID, Content: ev.Content,
		})
	}
	return out
}

func (o *Orchestrator) publish(topic string, ev events.Event) {
	if o.bus != nil {
		o.bus.Publish(topic, ev)
	}
}

func (o *Orchestrator) publishProgress(g *graph.Graph) {
	if o.bus == nil {
		return
	}
	progress := events.RunProgressEvent{Timestamp: time.Now()}
	for _, t := range g.Tasks() {
		progress.Total++
		switch t.Status {
		case graph.StatusPending:
			progress.Pending++
		case graph.StatusRunning:
			progress.Running++
		case graph.StatusSuccessful:
			progress.Successful++
		case graph.StatusFailed:
			progress.Failed++
		case graph.StatusSkipped:
			progress.Skipped++
		}
	}
	o.bus.Publish(events.TopicRun, progress)
}

func rootsTerminal(g *graph.Graph, rootIDs []string) bool {
	for _, id := range rootIDs {
		t, ok := g.Get(id)
		if !ok || !t.Status.Terminal() {
			return false
		}
	}
	return true
}

func countNonTerminal(tasks []*graph.Task) int {
	n := 0
	for _, t := range tasks {
		if !t.Status.Terminal() {
			n++
		}
	}
	return n
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// FlowRun pairs an orchestrator with the roots it should drive.
type FlowRun struct {
	Orchestrator *Orchestrator
	Limits       Limits
	Roots        []string
}

// RunFlows executes independent flows concurrently with bounded
// parallelism. Each flow keeps its own single-threaded turn loop; only
// distinct flows run in parallel. The first context-level failure
// cancels the remaining runs.
func RunFlows(ctx context.Context, limit int, runs []FlowRun) ([]Outcome, error) {
	if limit <= 0 {
		limit = 4
	}

	outcomes := make([]Outcome, len(runs))
	errs := make([]error, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, run := range runs {
		i, run := i, run
		g.Go(func() error {
			out, err := run.Orchestrator.RunSession(gctx, run.Limits, run.Roots...)
			outcomes[i] = out
			errs[i] = err
			// Per-run failures are reported per run, not used to cancel
			// siblings; only cancellation aborts the group.
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, errors.Join(errs...)
}
