package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from  State
		to    State
		valid bool
	}{
		{StatePending, StateAcquiring, true},
		{StatePending, StateCombining, false},
		{StateAcquiring, StateCombining, true},
		{StateAcquiring, StateAbandoned, false},
		{StateCombining, StatePrimaryClustering, true},
		{StateCombining, StateAbandoned, true},
		{StateCombining, StateAliasing, false},
		{StatePrimaryClustering, StateAliasing, true},
		{StateAliasing, StateSecondaryClustering, true},
		{StateSecondaryClustering, StateExporting, true},
		{StateSecondaryClustering, StateAliasing, false},
		{StateExporting, StateDone, true},
		{StateExporting, StateFailed, true},
		{StateDone, StateFailed, false},
		{StateFailed, StatePending, false},
		{StateAbandoned, StateAcquiring, false},
		{State("bogus"), StateAcquiring, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
		if tt.valid {
			assert.NoError(t, Transition(tt.from, tt.to))
		} else {
			assert.Error(t, Transition(tt.from, tt.to))
		}
	}
}

func TestEveryWorkingStateCanFail(t *testing.T) {
	for _, s := range stepStates {
		assert.True(t, CanTransition(s, StateFailed), s)
	}
}

func TestStepSequenceIsChained(t *testing.T) {
	prev := StatePending
	for _, s := range stepStates {
		assert.True(t, CanTransition(prev, s), "%s -> %s", prev, s)
		prev = s
	}
	assert.True(t, CanTransition(prev, StateDone))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StateDone))
	assert.True(t, IsTerminal(StateFailed))
	assert.True(t, IsTerminal(StateAbandoned))
	assert.False(t, IsTerminal(StatePending))
	assert.False(t, IsTerminal(StateExporting))
}

func TestStepFor(t *testing.T) {
	step, ok := StepFor(StateAliasing)
	assert.True(t, ok)
	assert.Equal(t, domain.StepAlias, step)

	_, ok = StepFor(StateDone)
	assert.False(t, ok)
}
