// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType denotes the reason an episode ended. Episodes can end because
// a terminal state was reached or because the environment cut the
// episode off at a step limit. Bootstrapping is only invalid in the
// former case.
type EndType int

const (
	// TerminalStateReached indicates that the episode ended in a true
	// terminal state with no continuation value
	TerminalStateReached EndType = iota

	// TimeoutReached indicates that the episode was cut off by a step
	// limit
	TimeoutReached

	// NotEnded indicates that the timestep does not end an episode
	NotEnded
)

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType    StepType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int
	endType     EndType
}

// New constructs a new TimeStep
func New(t StepType, r, d float64, o mat.Vector, n int) TimeStep {
	return TimeStep{t, r, d, o, n, NotEnded}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd records the reason the episode ended at this TimeStep
func (t *TimeStep) SetEnd(e EndType) {
	t.endType = e
}

// End returns the reason the episode ended at this TimeStep. For
// timesteps that do not end an episode, End returns NotEnded.
func (t *TimeStep) End() EndType {
	return t.endType
}

// TerminatesEpisode returns whether the TimeStep ends an episode in a
// true terminal state, as opposed to a step-limit cutoff
func (t *TimeStep) TerminatesEpisode() bool {
	return t.Last() && t.endType == TerminalStateReached
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}
