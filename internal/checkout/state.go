package checkout

import "fmt"

type State string

const (
	StateIdle          State = "Idle"
	StateOrderCreating State = "OrderCreating"
	StateOrderCreated  State = "OrderCreated"
	StateGatewayOpen   State = "GatewayOpen"
	StateVerifying     State = "Verifying"
	StateConfirmed     State = "Confirmed"
	StateFailed        State = "Failed"
)

func ParseState(s string) (State, error) {
	switch State(s) {
	case StateIdle, StateOrderCreating, StateOrderCreated, StateGatewayOpen, StateVerifying, StateConfirmed, StateFailed:
		return State(s), nil
	default:
		return "", fmt.Errorf("unknown checkout state: %s", s)
	}
}

var allowedTransitions = map[State]map[State]bool{
	// Idle -> Confirmed is the simulated payment when no gateway key is configured.
	StateIdle:          {StateOrderCreating: true, StateConfirmed: true, StateFailed: true},
	StateOrderCreating: {StateOrderCreated: true, StateConfirmed: true, StateFailed: true},
	StateOrderCreated:  {StateGatewayOpen: true, StateFailed: true},
	StateGatewayOpen:   {StateVerifying: true, StateIdle: true, StateFailed: true},
	StateVerifying:     {StateConfirmed: true, StateFailed: true},
	StateConfirmed:     {},
	StateFailed:        {},
}

func CanTransition(from, to State) bool {
	m, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return m[to]
}

func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// Busy reports the states during which a UI should show progress and block input.
func (s State) Busy() bool {
	switch s {
	case StateOrderCreating, StateOrderCreated, StateGatewayOpen, StateVerifying:
		return true
	default:
		return false
	}
}
