package runtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pingsantohq/stackprobe/pkg/types"
)

// ErrInvalidTransition is returned for a state change the pipeline does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

type State string

const (
	StateIdle         State = "idle"
	StateTransport    State = "transport"
	StateSession      State = "session"
	StatePresentation State = "presentation"
	StateApplication  State = "application"
	StateAggregating  State = "aggregating"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

var next = map[State]State{
	StateIdle:         StateTransport,
	StateTransport:    StateSession,
	StateSession:      StatePresentation,
	StatePresentation: StateApplication,
	StateApplication:  StateAggregating,
	StateAggregating:  StateDone,
}

// StateFor maps a layer to the state in which it runs.
func StateFor(layer types.Layer) State {
	return State(layer.String())
}

// Machine tracks the progress of one run. A layer may only start once every
// earlier layer has finished.
type Machine struct {
	mu      sync.Mutex
	state   State
	failed  types.Layer
	history []State
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle, history: []State{StateIdle}}
}

// reset returns the machine to Idle with a fresh history.
func (m *Machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.failed = ""
	m.history = []State{StateIdle}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FailedLayer returns the layer that failed, or "" when the run has not failed.
func (m *Machine) FailedLayer() types.Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}

// Advance moves to the next pipeline state. to must be the direct successor.
func (m *Machine) Advance(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if want, ok := next[m.state]; !ok || want != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}

// Fail moves to Failed. It is only allowed while a layer is running.
func (m *Machine) Fail(layer types.Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateTransport, StateSession, StatePresentation, StateApplication:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, StateFailed)
	}
	if m.state != StateFor(layer) {
		return fmt.Errorf("%w: %s layer failed while in %s", ErrInvalidTransition, layer, m.state)
	}
	m.state = StateFailed
	m.failed = layer
	m.history = append(m.history, StateFailed)
	return nil
}
