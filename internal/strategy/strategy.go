// Package strategy decides which agent acts next and when a turn is
// over. Strategies govern only the handoff between agents, never the
// internal structure of a single turn.
package strategy

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/flow"
	"github.com/aristath/agentflow/internal/graph"
)

// ErrEmptyRoster is returned when selection runs with no eligible agents.
var ErrEmptyRoster = errors.New("no eligible agents to select from")

// Strategy selects the next agent to act and decides when that agent's
// turn ends. All policies are deterministic given the same inputs,
// except Random.
type Strategy interface {
	Name() string
	SelectNext(roster []agent.Ref, tasks []*graph.Task, history []flow.Event) (agent.Ref, error)
	TurnOver(current agent.Ref, actions []agent.Action) bool
}

// endTurnRequested is the shared turn-end rule: a turn ends when the
// agent invokes the explicit end-of-turn action. Budget caps are
// enforced by the orchestrator, not here.
func endTurnRequested(actions []agent.Action) bool {
	for _, act := range actions {
		if act.Kind == agent.ActionEndTurn {
			return true
		}
	}
	return false
}

// RoundRobin cycles through the roster in fixed order.
type RoundRobin struct {
	next int
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (s *RoundRobin) Name() string { return "round_robin" }

func (s *RoundRobin) SelectNext(roster []agent.Ref, _ []*graph.Task, _ []flow.Event) (agent.Ref, error) {
	if len(roster) == 0 {
		return agent.Ref{}, ErrEmptyRoster
	}
	selected := roster[s.next%len(roster)]
	s.next++
	return selected, nil
}

func (s *RoundRobin) TurnOver(_ agent.Ref, actions []agent.Action) bool {
	return endTurnRequested(actions)
}

// MostBusy picks the agent with the largest number of non-terminal
// assigned tasks. Ties resolve in roster order.
type MostBusy struct{}

func NewMostBusy() *MostBusy { return &MostBusy{} }

func (s *MostBusy) Name() string { return "most_busy" }

func (s *MostBusy) SelectNext(roster []agent.Ref, tasks []*graph.Task, _ []flow.Event) (agent.Ref, error) {
	if len(roster) == 0 {
		return agent.Ref{}, ErrEmptyRoster
	}

	best := roster[0]
	bestCount := -1
	for _, ref := range roster {
		count := 0
		for _, task := range tasks {
			if !task.Status.Terminal() && task.AssignedTo(ref.Name) {
				count++
			}
		}
		if count > bestCount {
			best = ref
			bestCount = count
		}
	}
	return best, nil
}

func (s *MostBusy) TurnOver(_ agent.Ref, actions []agent.Action) bool {
	return endTurnRequested(actions)
}

// Random selects uniformly among eligible agents. Seeded for
// reproducible runs.
type Random struct {
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (s *Random) Name() string { return "random" }

func (s *Random) SelectNext(roster []agent.Ref, _ []*graph.Task, _ []flow.Event) (agent.Ref, error) {
	if len(roster) == 0 {
		return agent.Ref{}, ErrEmptyRoster
	}
	return roster[s.rng.Intn(len(roster))], nil
}

func (s *Random) TurnOver(_ agent.Ref, actions []agent.Action) bool {
	return endTurnRequested(actions)
}

// Single always selects the same caller-specified agent.
type Single struct {
	Agent string
}

func NewSingle(name string) *Single { return &Single{Agent: name} }

func (s *Single) Name() string { return "single" }

func (s *Single) SelectNext(roster []agent.Ref, _ []*graph.Task, _ []flow.Event) (agent.Ref, error) {
	for _, ref := range roster {
		if ref.Name == s.Agent {
			return ref, nil
		}
	}
	return agent.Ref{}, fmt.Errorf("agent %q is not in the eligible roster", s.Agent)
}

func (s *Single) TurnOver(_ agent.Ref, actions []agent.Action) bool {
	return endTurnRequested(actions)
}

// Popcorn lets the current agent name its successor through the
// end-turn action. The nomination is read back from history (the
// orchestrator records it on the turn_ended event). With no nomination
// the first eligible agent goes.
type Popcorn struct{}

func NewPopcorn() *Popcorn { return &Popcorn{} }

func (s *Popcorn) Name() string { return "popcorn" }

func (s *Popcorn) SelectNext(roster []agent.Ref, _ []*graph.Task, history []flow.Event) (agent.Ref, error) {
	if len(roster) == 0 {
		return agent.Ref{}, ErrEmptyRoster
	}

	for i := len(history) - 1; i >= 0; i-- {
		ev := history[i]
		if ev.Kind != flow.KindTurnEnded || ev.Content == "" {
			continue
		}
		for _, ref := range roster {
			if ref.Name == ev.Content {
				return ref, nil
			}
		}
		// Nominee is not eligible right now; fall through to default.
		break
	}
	return roster[0], nil
}

func (s *Popcorn) TurnOver(_ agent.Ref, actions []agent.Action) bool {
	return endTurnRequested(actions)
}

// ChooseFunc asks a moderator to pick the next actor. It receives the
// eligible roster, the active tasks and the visible history, and
// returns the chosen agent's name.
type ChooseFunc func(moderator agent.Ref, roster []agent.Ref, tasks []*graph.Task, history []flow.Event) (string, error)

// Moderated consults a designated moderator agent between every other
// agent's turn. The moderator's selection call is not itself a turn.
type Moderated struct {
	Moderator agent.Ref
	Choose    ChooseFunc
}

func NewModerated(moderator agent.Ref, choose ChooseFunc) *Moderated {
	return &Moderated{Moderator: moderator, Choose: choose}
}

func (s *Moderated) Name() string { return "moderated" }

func (s *Moderated) SelectNext(roster []agent.Ref, tasks []*graph.Task, history []flow.Event) (agent.Ref, error) {
	if len(roster) == 0 {
		return agent.Ref{}, ErrEmptyRoster
	}
	if s.Choose == nil {
		return agent.Ref{}, errors.New("moderated strategy has no chooser")
	}

	name, err := s.Choose(s.Moderator, roster, tasks, history)
	if err != nil {
		return agent.Ref{}, fmt.Errorf("moderator selection failed: %w", err)
	}
	for _, ref := range roster {
		if ref.Name == name {
			return ref, nil
		}
	}
	return agent.Ref{}, fmt.Errorf("moderator chose %q, which is not eligible", name)
}

func (s *Moderated) TurnOver(_ agent.Ref, actions []agent.Action) bool {
	return endTurnRequested(actions)
}

// ForName builds a parameterless strategy from its config name.
// Single and Moderated carry parameters and are constructed directly.
func ForName(name string, seed int64) (Strategy, error) {
	switch name {
	case "", "round_robin":
		return NewRoundRobin(), nil
	case "most_busy":
		return NewMostBusy(), nil
	case "random":
		return NewRandom(seed), nil
	case "popcorn":
		return NewPopcorn(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
