// Package bundle models the bundle lifecycle data and its state machine
// (spec.md §3, §4.3): the set of lifecycle states, the DAG of legal
// transitions between them, and the Bundle value itself. Orchestration that
// needs the registry, dispatcher, resolver, or cache (install/resolve/
// start/stop/uninstall) lives one layer up in internal/framework, which
// drives these transitions under the bundle's own lifecycle lock.
package bundle

import "fmt"

// State is a bundle lifecycle state.
type State int

const (
	StateUninstalled State = iota
	StateInstalled
	StateResolved
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateUninstalled:
		return "UNINSTALLED"
	case StateInstalled:
		return "INSTALLED"
	case StateResolved:
		return "RESOLVED"
	case StateStarting:
		return "STARTING"
	case StateActive:
		return "ACTIVE"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// legalTransitions encodes the DAG from spec.md §4.3. Framework-internal
// callers validate against this table before mutating a Bundle's state so
// that an invalid edge is rejected uniformly regardless of call site.
var legalTransitions = map[State]map[State]bool{
	StateInstalled: {
		StateResolved:     true,
		StateUninstalled:  true,
	},
	StateResolved: {
		StateStarting:    true,
		StateUninstalled: true,
	},
	StateStarting: {
		StateActive:  true,
		StateResolved: true, // activator create/start failed, roll back
	},
	StateActive: {
		StateStopping: true,
	},
	StateStopping: {
		StateResolved: true,
	},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge
// in the lifecycle DAG.
func CanTransition(from, to State) bool {
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ErrInvalidTransition is returned (wrapped) when a caller attempts an edge
// not present in the lifecycle DAG.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("bundle: illegal state transition %s -> %s", e.From, e.To)
}
