package blast

// State is the lifecycle state of a Blaster.
type State int

const (
	// StateUnresolved is the initial state: nothing written, no socket.
	StateUnresolved State = iota
	// StateBinding means resolution and socket setup are in flight.
	StateBinding
	// StateReady means the socket is bound and datagrams can be sent.
	StateReady
	// StateDraining means end-of-input was seen and the final flush is running.
	StateDraining
	// StateClosed is terminal: the socket is released and OnClose fired.
	StateClosed
	// StateErrored is terminal: setup (or a strict send) failed.
	StateErrored
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "UNRESOLVED"
	case StateBinding:
		return "BINDING"
	case StateReady:
		return "READY"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	case StateErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}
