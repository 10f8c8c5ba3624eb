package coordinator

import "time"

// State is the coordinator's lifecycle state.
type State int

const (
	// Idle - constructed, Start not yet called.
	Idle State = iota
	// LoadingRoot - root service load in flight.
	LoadingRoot
	// LoadingDefinition - network definition load in flight.
	LoadingDefinition
	// Resolving - deriving configuration and resolving the starting element.
	Resolving
	// Ready - load chain complete, queries may run.
	Ready
	// Querying - a trace operation is in flight.
	Querying
	// Failed - the load chain failed; only a fresh Start recovers.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingRoot:
		return "loading-root"
	case LoadingDefinition:
		return "loading-definition"
	case Resolving:
		return "resolving"
	case Ready:
		return "ready"
	case Querying:
		return "querying"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// OperationStatus is the single user-facing status line for the current step.
// It is overwritten on every transition; no history is kept.
type OperationStatus struct {
	Message string
	At      time.Time
}
