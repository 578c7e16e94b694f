package child

// State is the lifecycle position of a child slot. The numeric values are
// ordered so guards can compare them ("at least stopping", "before running").
type State int

const (
	StateStarting   State = 10
	StateRunning    State = 20
	StateRestarting State = 30
	StateStopping   State = 40
	StateStopped    State = 50
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name for JSON and logs.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// States lists every lifecycle state in order.
func States() []State {
	return []State{StateStarting, StateRunning, StateRestarting, StateStopping, StateStopped}
}
