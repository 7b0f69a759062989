package cartpole

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "sfneuman.com/perdqn/environment"
	ts "sfneuman.com/perdqn/timestep"
)

func newTestCartpole(stepLimit int) (*Discrete, ts.TimeStep) {
	bounds := r1.Interval{Min: -0.05, Max: 0.05}
	starter := env.NewUniformStarter([]r1.Interval{
		bounds, bounds, bounds, bounds,
	}, 19)
	task := NewBalance(starter, stepLimit, FailAngle)
	return NewDiscrete(task, 1.0)
}

func TestDiscreteStartState(t *testing.T) {
	_, firstStep := newTestCartpole(500)

	if !firstStep.First() {
		t.Error("environment did not start at a First timestep")
	}
	if firstStep.Observation.Len() != 4 {
		t.Errorf("expected 4 state features \n\thave(%v)",
			firstStep.Observation.Len())
	}
	for i := 0; i < 4; i++ {
		if math.Abs(firstStep.Observation.AtVec(i)) > 0.05 {
			t.Errorf("start feature %v outside starter bounds: %v", i,
				firstStep.Observation.AtVec(i))
		}
	}
}

func TestDiscreteStepReward(t *testing.T) {
	cartpole, _ := newTestCartpole(500)

	// Near the upright start state the pole has not fallen, so each
	// step should be rewarded +1
	doNothing := mat.NewVecDense(1, []float64{1.0})
	step, last := cartpole.Step(doNothing)
	if last {
		t.Fatal("episode ended on the first step")
	}
	if step.Reward != 1.0 {
		t.Errorf("expected reward 1.0 while balancing \n\thave(%v)",
			step.Reward)
	}
	if step.Number != 1 {
		t.Errorf("expected step number 1 \n\thave(%v)", step.Number)
	}
}

func TestDiscreteStepLimitIsTimeout(t *testing.T) {
	limit := 10
	cartpole, _ := newTestCartpole(limit)

	// Alternate force directions to keep the pole up until the step
	// limit cuts the episode off
	var step ts.TimeStep
	var last bool
	for i := 0; i < limit; i++ {
		direction := float64(i % 3)
		step, last = cartpole.Step(mat.NewVecDense(1, []float64{direction}))
		if last {
			break
		}
	}

	if !step.Last() {
		t.Fatal("episode did not end at the step limit")
	}
	if step.TerminatesEpisode() {
		t.Error("a step-limit cutoff must not be a terminal state")
	}
	if step.End() != ts.TimeoutReached {
		t.Errorf("expected a timeout ending \n\thave(%v)", step.End())
	}
}

func TestDiscreteFallenPoleIsTerminal(t *testing.T) {
	cartpole, _ := newTestCartpole(10_000)

	// Repeatedly push left; the pole eventually falls past the failure
	// angle well before any step limit
	push := mat.NewVecDense(1, []float64{0.0})
	var step ts.TimeStep
	var last bool
	for i := 0; i < 5_000; i++ {
		step, last = cartpole.Step(push)
		if last {
			break
		}
	}

	if !last {
		t.Fatal("pole never fell")
	}
	if !step.TerminatesEpisode() {
		t.Error("a fallen pole must be a terminal state")
	}
	if step.Reward != -1.0 {
		t.Errorf("expected reward -1.0 for a fallen pole \n\thave(%v)",
			step.Reward)
	}
}

func TestDiscreteReset(t *testing.T) {
	cartpole, _ := newTestCartpole(500)

	push := mat.NewVecDense(1, []float64{2.0})
	for i := 0; i < 5; i++ {
		cartpole.Step(push)
	}

	step := cartpole.Reset()
	if !step.First() {
		t.Error("reset did not return a First timestep")
	}
	if step.Number != 0 {
		t.Errorf("reset step number \n\twant(0) \n\thave(%v)", step.Number)
	}
}

func TestDiscretePanicsOnIllegalAction(t *testing.T) {
	cartpole, _ := newTestCartpole(500)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on illegal action")
		}
	}()
	cartpole.Step(mat.NewVecDense(1, []float64{3.0}))
}
