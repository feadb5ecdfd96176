package module

// State represents the current lifecycle state of a module instance
type State int

const (
	// StateUnstarted indicates the instance was created but never started
	StateUnstarted State = iota
	// StateStarted indicates the instance is running
	StateStarted
	// StateStopped indicates the instance was stopped
	StateStopped
)

// String returns a string representation of the lifecycle state
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
