// Package playback provides the playlist scheduler: a finite-state machine
// that picks the next item, drives media adapters and times each item.
package playback

// State represents the scheduler state.
type State int

const (
	StateIdle          State = iota // No playlist (empty or cleared)
	StateLoading                    // Fetch in flight, or item mounted and waiting to be ready
	StatePlaying                    // An item is active
	StateTransitioning              // Inter-item delay elapsing
	StatePaused                     // Halted by a remote command without losing position
	StateError                      // Unsupported content or repeated media failure
	StateCircuitOpen                // Network attempts suppressed, nothing to play
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateTransitioning:
		return "transitioning"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	case StateCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}
