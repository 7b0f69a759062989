package timestep

import (
	"gonum.org/v1/gonum/mat"
)

// Transition packages together a single environmental transition: the
// state in which an action was taken, the action, and the resulting
// reward and next state. The Done flag records whether the next state
// is a true terminal state, in which case no value may be bootstrapped
// past it. Transitions are immutable once constructed and are stored
// by value in replay buffers.
type Transition struct {
	State     mat.Vector
	Action    mat.Vector
	Reward    float64
	Discount  float64
	Done      bool
	NextState mat.Vector
}

// NewTransition packages an environmental step and the action taken
// into a Transition. The reward and discount are those reported on the
// next step. An episode cut off at a step limit is not considered
// terminal, since the environment does have a continuation value there.
func NewTransition(step TimeStep, action mat.Vector,
	nextStep TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    nextStep.Reward,
		Discount:  nextStep.Discount,
		Done:      nextStep.TerminatesEpisode(),
		NextState: nextStep.Observation,
	}
}
