package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/aristath/agentflow/internal/backend"
	"github.com/aristath/agentflow/internal/config"
)

func TestBuildAgentsFromDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	pm := backend.NewProcessManager()

	roster, generators, err := buildAgents(cfg, pm)
	if err != nil {
		t.Fatalf("buildAgents: %v", err)
	}

	if len(roster) != len(cfg.Agents) {
		t.Fatalf("roster size = %d, want %d", len(roster), len(cfg.Agents))
	}

	// Name order must be stable so turn rotation is deterministic.
	for i := 1; i < len(roster); i++ {
		if roster[i-1].Name >= roster[i].Name {
			t.Errorf("roster not sorted: %q before %q", roster[i-1].Name, roster[i].Name)
		}
	}

	for _, ref := range roster {
		if generators[ref.Name] == nil {
			t.Errorf("agent %q has no generator", ref.Name)
		}
		if ref.Instructions == "" {
			t.Errorf("agent %q lost its instructions", ref.Name)
		}
	}
}

func TestBuildAgentsUnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agents["stray"] = config.AgentConfig{Provider: "not-configured"}

	if _, _, err := buildAgents(cfg, backend.NewProcessManager()); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

// TestSignalContextCancellation verifies the shutdown context wiring.
func TestSignalContextCancellation(t *testing.T) {
	// SIGUSR1 is safe to send to ourselves.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("sending SIGUSR1: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context did not cancel after SIGUSR1")
	}

	if err := ctx.Err(); err != context.Canceled {
		t.Errorf("ctx.Err() = %v, want context.Canceled", err)
	}
}

// TestShutdownTimeout verifies the bounded-wait pattern used when the
// TUI refuses to exit.
func TestShutdownTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	blockChan := make(chan struct{})

	start := time.Now()
	select {
	case <-blockChan:
		t.Fatal("unexpected receive")
	case <-ctx.Done():
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Errorf("timeout fired too early: %v", elapsed)
		}
	}

	if err := ctx.Err(); err != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want context.DeadlineExceeded", err)
	}
}
