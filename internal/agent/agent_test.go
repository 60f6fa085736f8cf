package agent

import (
	"errors"
	"testing"
)

func TestResolveRoster(t *testing.T) {
	tests := []struct {
		name  string
		chain [][]string
		want  []string
	}{
		{
			name:  "task roster wins",
			chain: [][]string{{"coder"}, {"parent-agent"}, {"flow-default"}},
			want:  []string{"coder"},
		},
		{
			name:  "falls through empty links",
			chain: [][]string{nil, {}, {"flow-default", "other"}},
			want:  []string{"flow-default", "other"},
		},
		{
			name:  "all empty yields nil",
			chain: [][]string{nil, {}},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveRoster(tt.chain...)
			if len(got) != len(tt.want) {
				t.Fatalf("ResolveRoster = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("ResolveRoster[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	unrestricted := Ref{Name: "a"}
	if !unrestricted.Can(CapGenerate) || !unrestricted.Can(CapTurn) {
		t.Error("zero capability set should grant everything")
	}

	observer := Ref{Name: "b", Capabilities: CapGenerate}
	if observer.Can(CapTurn) {
		t.Error("agent without CapTurn reported as turn-capable")
	}
	if !observer.Can(CapGenerate) {
		t.Error("agent lost its granted capability")
	}
}

func TestShapeCoercer(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		contract any
		want     any
		wantErr  bool
	}{
		{name: "nil contract passes anything through", raw: 12, contract: nil, want: 12},
		{name: "string ok", raw: "hello", contract: ShapeString, want: "hello"},
		{name: "string rejects number", raw: 3.5, contract: ShapeString, wantErr: true},
		{name: "number from float", raw: 2.5, contract: ShapeNumber, want: 2.5},
		{name: "number parsed from string", raw: "42", contract: ShapeNumber, want: 42.0},
		{name: "number rejects junk string", raw: "not-a-number", contract: ShapeNumber, wantErr: true},
		{name: "bool parsed from string", raw: "true", contract: ShapeBool, want: true},
		{name: "object parsed from JSON string", raw: `{"k":"v"}`, contract: ShapeObject},
		{name: "object rejects scalar", raw: 7, contract: ShapeObject, wantErr: true},
		{name: "list parsed from JSON string", raw: `[1,2]`, contract: ShapeList},
		{name: "nil value rejected when contract set", raw: nil, contract: ShapeString, wantErr: true},
		{name: "unknown contract type rejected", raw: "x", contract: 99, wantErr: true},
	}

	coercer := ShapeCoercer{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coercer.Coerce(tt.raw, tt.contract)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected *ValidationError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && got != tt.want {
				t.Errorf("Coerce = %v, want %v", got, tt.want)
			}
		})
	}
}
