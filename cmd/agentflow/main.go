package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/backend"
	"github.com/aristath/agentflow/internal/config"
	"github.com/aristath/agentflow/internal/events"
	"github.com/aristath/agentflow/internal/flow"
	"github.com/aristath/agentflow/internal/graph"
	"github.com/aristath/agentflow/internal/orchestrator"
	"github.com/aristath/agentflow/internal/persistence"
	"github.com/aristath/agentflow/internal/tui"
)

func main() {
	flowID := flag.String("flow", "", "flow identifier (default: derived from the current time)")
	headless := flag.Bool("headless", false, "run without the TUI, logging events to stderr")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: agentflow [flags] <objective>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	objective := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if objective == "" {
		flag.Usage()
		os.Exit(2)
	}

	if *flowID == "" {
		*flowID = "flow-" + time.Now().Format("20060102-150405")
	}

	// Signal-aware context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pm := backend.NewProcessManager()
	go func() {
		<-ctx.Done()
		pm.KillAll()
	}()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
		os.Exit(1)
	}
	globalPath := filepath.Join(homeDir, ".agentflow", "config.json")
	projectPath := filepath.Join(".agentflow", "config.json")

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = filepath.Join(homeDir, ".agentflow", "state.db")
	}
	store, err := persistence.NewSQLiteStore(ctx, storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store at %s: %v\n", storePath, err)
		os.Exit(1)
	}
	defer store.Close()

	bus := events.NewBus()
	defer bus.Close()

	fl := flow.New(*flowID, flow.Settings{
		DefaultAgents:   cfg.Run.DefaultAgents,
		Strategy:        cfg.Run.Strategy,
		MaxTurns:        cfg.Run.MaxTurns,
		MaxCallsPerTurn: cfg.Run.MaxCallsPerTurn,
	})
	fl.SetSink(store.Sink(ctx, *flowID))

	root := &graph.Task{ID: "root", Objective: objective}
	if err := fl.Register(root); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering root task: %v\n", err)
		os.Exit(1)
	}
	bus.Publish(events.TopicTask, events.TaskRegisteredEvent{
		ID: root.ID, Objective: root.Objective, Timestamp: time.Now(),
	})
	if err := store.SaveTask(ctx, *flowID, root); err != nil {
		log.Printf("WARNING: persisting root task: %v", err)
	}

	roster, generators, err := buildAgents(cfg, pm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building agents: %v\n", err)
		os.Exit(1)
	}

	// Mid-turn questions get the run objective back as orientation;
	// richer answer policies can hang off the flow history later.
	qa := orchestrator.NewQAChannel(2*cfg.Run.Parallelism, func(ctx context.Context, taskID, question string) (string, error) {
		return fmt.Sprintf("The run objective is: %s. Use the task graph and shared history to decide; split work with register_task if needed.", objective), nil
	})
	qa.Start(ctx)

	orch, err := orchestrator.New(orchestrator.Config{
		Flow:          fl,
		Roster:        roster,
		Generators:    generators,
		Bus:           bus,
		QAChannel:     qa,
		DefaultAgents: cfg.Run.DefaultAgents,
		MaxTaskTurns:  cfg.Run.MaxTaskTurns,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building orchestrator: %v\n", err)
		os.Exit(1)
	}

	limits := orchestrator.Limits{
		MaxTurns:        cfg.Run.MaxTurns,
		MaxCallsPerTurn: cfg.Run.MaxCallsPerTurn,
	}

	runDone := make(chan error, 1)
	go func() {
		outcome, runErr := orch.RunSession(ctx, limits, root.ID)
		if runErr == nil {
			if err := store.SaveRun(context.Background(), *flowID, outcome.Reason, outcome.Turns); err != nil {
				log.Printf("WARNING: persisting run outcome: %v", err)
			}
			for _, task := range fl.Graph().Tasks() {
				if err := store.SaveTask(context.Background(), *flowID, task); err != nil {
					log.Printf("WARNING: persisting task %s: %v", task.ID, err)
				}
			}
		}
		runDone <- runErr
	}()

	if *headless {
		runHeadless(ctx, bus, runDone)
		return
	}

	model := tui.New(bus, cfg, globalPath, projectPath)
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		// Normal TUI exit (user quit or TUI finished).
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		// Ctrl+C or SIGTERM. stop() restores default handling so a
		// second Ctrl+C force-exits.
		stop()

		log.Println("Shutdown signal received, cleaning up...")

		if err := pm.KillAll(); err != nil {
			log.Printf("Error killing subprocesses: %v", err)
		}

		p.Quit()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		select {
		case err := <-errChan:
			if err != nil {
				log.Printf("TUI exit error: %v", err)
			}
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing exit")
		}
	}

	log.Println("Shutdown complete")
}

// buildAgents turns the configured agents into a roster and a generator
// per agent, in stable name order so turn rotation is deterministic.
func buildAgents(cfg *config.Config, pm *backend.ProcessManager) ([]agent.Ref, map[string]agent.Generator, error) {
	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	roster := make([]agent.Ref, 0, len(names))
	generators := make(map[string]agent.Generator, len(names))

	for _, name := range names {
		agentCfg := cfg.Agents[name]
		providerCfg, ok := cfg.Providers[agentCfg.Provider]
		if !ok {
			return nil, nil, fmt.Errorf("agent %q references unknown provider %q", name, agentCfg.Provider)
		}

		gen, err := backend.New(backend.Config{
			Type:    providerCfg.Type,
			Command: providerCfg.Command,
			Args:    providerCfg.Args,
			Model:   agentCfg.Model,
		}, pm)
		if err != nil {
			return nil, nil, fmt.Errorf("building backend for agent %q: %w", name, err)
		}

		roster = append(roster, agent.Ref{
			Name:         name,
			Provider:     agentCfg.Provider,
			Model:        agentCfg.Model,
			Instructions: agentCfg.Instructions,
		})
		generators[name] = gen
	}

	return roster, generators, nil
}

// runHeadless logs bus events to stderr until the run finishes or the
// context is cancelled.
func runHeadless(ctx context.Context, bus *events.Bus, runDone <-chan error) {
	sub := bus.SubscribeAll(256)
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			logEvent(ev)
		case err := <-runDone:
			if err != nil {
				fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
				os.Exit(1)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func logEvent(ev events.Event) {
	switch e := ev.(type) {
	case events.TurnStartedEvent:
		log.Printf("turn %d: %s acting on %s", e.Turn, e.Agent, strings.Join(e.TaskIDs, ", "))
	case events.TurnActionEvent:
		log.Printf("  %s %s %s %s", e.Agent, e.Kind, e.ID, e.Content)
	case events.TaskTransitionEvent:
		log.Printf("task %s: %s -> %s %s", e.ID, e.From, e.To, e.Detail)
	case events.RunFinishedEvent:
		log.Printf("run finished: %s after %d turns", e.Outcome, e.Turns)
	default:
		log.Printf("%s", ev.EventType())
	}
}
