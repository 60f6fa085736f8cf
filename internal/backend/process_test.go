package backend

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExecuteCommandCapturesOutput(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "sh", "-c", "echo out-line; echo err-line >&2")

	stdout, stderr, err := executeCommand(ctx, cmd, nil)
	if err != nil {
		t.Fatalf("executeCommand: %v", err)
	}
	if got := strings.TrimSpace(string(stdout)); got != "out-line" {
		t.Errorf("stdout = %q, want %q", got, "out-line")
	}
	if got := strings.TrimSpace(string(stderr)); got != "err-line" {
		t.Errorf("stderr = %q, want %q", got, "err-line")
	}
}

func TestExecuteCommandNonZeroExit(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "sh", "-c", "echo broken >&2; exit 3")

	_, stderr, err := executeCommand(ctx, cmd, nil)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should carry stderr context: %v", err)
	}
	if !strings.Contains(string(stderr), "broken") {
		t.Errorf("stderr = %q, want it to contain %q", stderr, "broken")
	}
}

func TestExecuteCommandLargeOutputDoesNotDeadlock(t *testing.T) {
	// Output well past the pipe buffer; a sequential read would hang.
	ctx := context.Background()
	cmd := newCommand(ctx, "sh", "-c", "i=0; while [ $i -lt 5000 ]; do echo 'aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa'; i=$((i+1)); done")

	done := make(chan struct{})
	var stdout []byte
	var err error
	go func() {
		stdout, _, err = executeCommand(ctx, cmd, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("executeCommand deadlocked on large output")
	}

	if err != nil {
		t.Fatalf("executeCommand: %v", err)
	}
	if len(stdout) < 5000*40 {
		t.Errorf("stdout truncated: %d bytes", len(stdout))
	}
}

func TestExecuteCommandContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cmd := newCommand(ctx, "sh", "-c", "sleep 30")

	start := time.Now()
	_, _, err := executeCommand(ctx, cmd, nil)
	if err == nil {
		t.Fatal("expected error after context cancellation")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("command outlived its context by %v", elapsed)
	}
}

func TestProcessManagerTracksDuringExecution(t *testing.T) {
	pm := NewProcessManager()
	if pm.Count() != 0 {
		t.Fatalf("fresh manager count = %d, want 0", pm.Count())
	}

	ctx := context.Background()
	cmd := newCommand(ctx, "sh", "-c", "echo hi")
	if _, _, err := executeCommand(ctx, cmd, pm); err != nil {
		t.Fatalf("executeCommand: %v", err)
	}

	// Untrack runs before executeCommand returns.
	if pm.Count() != 0 {
		t.Errorf("count after completion = %d, want 0", pm.Count())
	}
}

func TestProcessManagerKillAll(t *testing.T) {
	pm := NewProcessManager()
	ctx := context.Background()

	cmd := newCommand(ctx, "sh", "-c", "sleep 30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting command: %v", err)
	}
	pm.Track(cmd)

	if pm.Count() != 1 {
		t.Fatalf("count = %d, want 1", pm.Count())
	}

	if err := pm.KillAll(); err != nil {
		t.Fatalf("KillAll: %v", err)
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("killed process never exited")
	}
}

func TestKillProcessGroupUnstartedProcess(t *testing.T) {
	cmd := newCommand(context.Background(), "sh", "-c", "true")
	if err := killProcessGroup(cmd); err == nil {
		t.Fatal("expected error for unstarted process")
	}
}
