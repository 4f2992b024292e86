package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingsantohq/stackprobe/pkg/types"
)

func TestMachineHappyPath(t *testing.T) {
	m := NewMachine()
	for _, s := range []State{StateTransport, StateSession, StatePresentation, StateApplication, StateAggregating, StateDone} {
		require.NoError(t, m.Advance(s), s)
	}
	assert.Equal(t, StateDone, m.State())
	assert.Equal(t, []State{
		StateIdle, StateTransport, StateSession, StatePresentation,
		StateApplication, StateAggregating, StateDone,
	}, m.History())
	assert.ErrorIs(t, m.Advance(StateTransport), ErrInvalidTransition)
}

func TestMachineRejectsSkips(t *testing.T) {
	m := NewMachine()
	assert.ErrorIs(t, m.Advance(StateSession), ErrInvalidTransition)
	assert.ErrorIs(t, m.Advance(StateDone), ErrInvalidTransition)
	assert.Equal(t, StateIdle, m.State())

	require.NoError(t, m.Advance(StateTransport))
	assert.ErrorIs(t, m.Advance(StatePresentation), ErrInvalidTransition)
}

func TestMachineFail(t *testing.T) {
	m := NewMachine()
	assert.ErrorIs(t, m.Fail(types.LayerTransport), ErrInvalidTransition)

	require.NoError(t, m.Advance(StateTransport))
	require.NoError(t, m.Advance(StateSession))
	assert.ErrorIs(t, m.Fail(types.LayerTransport), ErrInvalidTransition)
	require.NoError(t, m.Fail(types.LayerSession))

	assert.Equal(t, StateFailed, m.State())
	assert.Equal(t, types.LayerSession, m.FailedLayer())
	assert.ErrorIs(t, m.Advance(StatePresentation), ErrInvalidTransition)
}
