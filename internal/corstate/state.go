// Package corstate defines the small set of coroutine state/stage enums
// shared between internal/coroutine and internal/observer, kept in their
// own package so neither has to import the other just for these types
// (spec §4.5 "Coroutine lifecycle state machine").
package corstate

// State is a coroutine's current position in the lifecycle state
// machine (spec §4.5).
type State int

const (
	StateReady State = iota
	StateRunning
	StateStopped
	StateObserving
	StateExited
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateObserving:
		return "OBSERVING"
	case StateExited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}

// Stage gates which observers are eligible: FIRST-RUN until the top
// frame pops, then OBSERVING (spec §4.5 "Stage").
type Stage int

const (
	StageFirstRun Stage = iota
	StageObserving
)

func (s Stage) String() string {
	if s == StageObserving {
		return "OBSERVING"
	}
	return "FIRST-RUN"
}
