package agent

// Capability is a bitmask of things an agent is allowed to do.
type Capability uint8

const (
	CapGenerate Capability = 1 << iota // Can produce a generation response
	CapTools                           // Can invoke tools during a turn
	CapTurn                            // Can be selected by a turn strategy

	CapAll = CapGenerate | CapTools | CapTurn
)

// Ref is an addressable agent identity. Behavior lives behind the
// Generator capability; the core only needs a name to route turns and a
// capability set to filter selection.
type Ref struct {
	Name         string
	Provider     string     // Key into the provider config map
	Model        string     // Model override, empty for provider default
	Instructions string     // Role-specific system instructions
	Capabilities Capability // Zero value means CapAll
}

// Can reports whether the agent holds the given capability. A zero
// capability set grants everything, so plain Ref{Name: "x"} works.
func (r Ref) Can(c Capability) bool {
	if r.Capabilities == 0 {
		return true
	}
	return r.Capabilities&c == c
}

// ResolveRoster returns the first non-empty roster in the fallback
// chain. Callers build the chain explicitly (task, parent chain, flow
// default, global default) so resolution never walks hidden state.
func ResolveRoster(chain ...[]string) []string {
	for _, roster := range chain {
		if len(roster) > 0 {
			return roster
		}
	}
	return nil
}
