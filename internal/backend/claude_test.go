package backend

import (
	"regexp"
	"strings"
	"testing"
)

func TestParseClaudeResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "single text block",
			input: `{"session_id": "abc", "result": {"content": [{"type": "text", "text": "[{\"action\": \"end_turn\"}]"}]}}`,
			want:  `[{"action": "end_turn"}]`,
		},
		{
			name:  "multiple text blocks concatenated",
			input: `{"result": {"content": [{"type": "text", "text": "[{\"action\": "}, {"type": "text", "text": "\"end_turn\"}]"}]}}`,
			want:  `[{"action": "end_turn"}]`,
		},
		{
			name:  "non-text blocks skipped",
			input: `{"result": {"content": [{"type": "thinking", "text": "hmm"}, {"type": "text", "text": "done"}]}}`,
			want:  "done",
		},
		{
			name:    "invalid JSON",
			input:   "not json at all",
			wantErr: true,
		},
		{
			name:    "empty content",
			input:   `{"result": {"content": []}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClaudeResponse([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClaudeBuildArgs(t *testing.T) {
	adapter, err := NewClaudeAdapter(Config{SessionID: "sess-1", Model: "large", WorkDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewClaudeAdapter: %v", err)
	}

	first := adapter.buildArgs("do the thing", false)
	joined := strings.Join(first, " ")
	if !strings.Contains(joined, "--session-id sess-1") {
		t.Errorf("first call should start the session: %v", first)
	}
	if !strings.Contains(joined, "--output-format json") {
		t.Errorf("missing output format: %v", first)
	}
	if !strings.Contains(joined, "--model large") {
		t.Errorf("missing model override: %v", first)
	}

	resume := adapter.buildArgs("continue", true)
	if !strings.Contains(strings.Join(resume, " "), "--resume sess-1") {
		t.Errorf("second call should resume the session: %v", resume)
	}
}

func TestClaudeSessionIDGenerated(t *testing.T) {
	adapter, err := NewClaudeAdapter(Config{WorkDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewClaudeAdapter: %v", err)
	}

	uuidPattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	if !uuidPattern.MatchString(adapter.SessionID()) {
		t.Errorf("session ID %q is not a v4 UUID", adapter.SessionID())
	}

	other, _ := NewClaudeAdapter(Config{WorkDir: t.TempDir()}, nil)
	if other.SessionID() == adapter.SessionID() {
		t.Error("two adapters share a session ID")
	}
}
