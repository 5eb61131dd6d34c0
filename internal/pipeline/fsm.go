package pipeline

import (
	"fmt"
	"slices"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

// State is the position of a partition in the step sequence.
type State string

const (
	StatePending             State = "pending"
	StateAcquiring           State = "acquiring"
	StateCombining           State = "combining"
	StatePrimaryClustering   State = "primary_clustering"
	StateAliasing            State = "aliasing"
	StateSecondaryClustering State = "secondary_clustering"
	StateExporting           State = "exporting"
	StateDone                State = "done"
	StateFailed              State = "failed"
	StateAbandoned           State = "abandoned"
)

// Transition table: from -> allowed tos
var validTransitions = map[State][]State{
	StatePending:             {StateAcquiring, StateFailed},
	StateAcquiring:           {StateCombining, StateFailed},
	StateCombining:           {StatePrimaryClustering, StateFailed, StateAbandoned},
	StatePrimaryClustering:   {StateAliasing, StateFailed},
	StateAliasing:            {StateSecondaryClustering, StateFailed},
	StateSecondaryClustering: {StateExporting, StateFailed},
	StateExporting:           {StateDone, StateFailed},
	StateDone:                {},
	StateFailed:              {},
	StateAbandoned:           {},
}

// stepStates lists the working states in execution order.
var stepStates = []State{
	StateAcquiring,
	StateCombining,
	StatePrimaryClustering,
	StateAliasing,
	StateSecondaryClustering,
	StateExporting,
}

var stateSteps = map[State]domain.StepName{
	StateAcquiring:           domain.StepAcquire,
	StateCombining:           domain.StepCombine,
	StatePrimaryClustering:   domain.StepPrimaryCluster,
	StateAliasing:            domain.StepAlias,
	StateSecondaryClustering: domain.StepSecondaryCluster,
	StateExporting:           domain.StepExport,
}

// CanTransition checks if moving from one state to another is valid.
func CanTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// Transition validates a move, returning an error if it is not allowed.
func Transition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the state is final.
func IsTerminal(s State) bool {
	return s == StateDone || s == StateFailed || s == StateAbandoned
}

// StepFor returns the run log step executed in state s.
func StepFor(s State) (domain.StepName, bool) {
	step, ok := stateSteps[s]
	return step, ok
}
