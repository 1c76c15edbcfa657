package app

// State is the App's position in the connection lifecycle.
type State int32

const (
	StateUnconnected State = iota
	StateAwaitingInitializeResult
	StateAwaitingInitializedSent
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateAwaitingInitializeResult:
		return "awaiting_initialize_result"
	case StateAwaitingInitializedSent:
		return "awaiting_initialized_sent"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
