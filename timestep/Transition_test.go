package timestep

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNewTransitionTerminal(t *testing.T) {
	state := mat.NewVecDense(2, []float64{0.0, 1.0})
	nextState := mat.NewVecDense(2, []float64{1.0, 1.0})
	action := mat.NewVecDense(1, []float64{1.0})

	step := New(Mid, 0.0, 1.0, state, 3)
	nextStep := New(Last, -1.0, 1.0, nextState, 4)
	nextStep.SetEnd(TerminalStateReached)

	transition := NewTransition(step, action, nextStep)

	if !transition.Done {
		t.Error("transition into a terminal state must be done")
	}
	if transition.Reward != -1.0 {
		t.Errorf("reward \n\twant(-1.0) \n\thave(%v)", transition.Reward)
	}
	if transition.State.AtVec(0) != 0.0 ||
		transition.NextState.AtVec(0) != 1.0 {
		t.Error("transition states do not match the timesteps")
	}
}

func TestNewTransitionTimeoutNotDone(t *testing.T) {
	state := mat.NewVecDense(2, nil)
	nextState := mat.NewVecDense(2, nil)
	action := mat.NewVecDense(1, nil)

	step := New(Mid, 0.0, 1.0, state, 9)
	nextStep := New(Last, 1.0, 1.0, nextState, 10)
	nextStep.SetEnd(TimeoutReached)

	transition := NewTransition(step, action, nextStep)

	// A step-limit cutoff has a continuation value, so the transition
	// must still allow bootstrapping
	if transition.Done {
		t.Error("a step-limit cutoff must not mark the transition done")
	}
}

func TestTerminatesEpisode(t *testing.T) {
	obs := mat.NewVecDense(1, nil)

	mid := New(Mid, 0.0, 1.0, obs, 1)
	if mid.TerminatesEpisode() {
		t.Error("a mid step cannot terminate an episode")
	}

	last := New(Last, 0.0, 1.0, obs, 2)
	last.SetEnd(TimeoutReached)
	if last.TerminatesEpisode() {
		t.Error("a timeout cannot be a terminal state")
	}

	last.SetEnd(TerminalStateReached)
	if !last.TerminatesEpisode() {
		t.Error("a terminal last step must terminate the episode")
	}
}
