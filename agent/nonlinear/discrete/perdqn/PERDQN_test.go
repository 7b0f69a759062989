package perdqn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"sfneuman.com/perdqn/environment"
	"sfneuman.com/perdqn/expreplay"
	"sfneuman.com/perdqn/initwfn"
	"sfneuman.com/perdqn/network"
	"sfneuman.com/perdqn/solver"
	ts "sfneuman.com/perdqn/timestep"
)

// chainEnv is a deterministic environment for testing: every action
// advances one position along a chain, every step rewards +1, and the
// episode terminates after length steps. Episode returns and lengths
// are therefore exactly predictable.
type chainEnv struct {
	length   int
	position int
	stepNum  int
}

func newChainEnv(length int) *chainEnv {
	return &chainEnv{length: length}
}

func (c *chainEnv) obs() *mat.VecDense {
	return mat.NewVecDense(2, []float64{float64(c.position), 1.0})
}

func (c *chainEnv) Reset() ts.TimeStep {
	c.position = 0
	c.stepNum = 0
	return ts.New(ts.First, 0.0, 1.0, c.obs(), 0)
}

func (c *chainEnv) Step(_ mat.Vector) (ts.TimeStep, bool) {
	c.position++
	c.stepNum++

	stepType := ts.Mid
	if c.position >= c.length {
		stepType = ts.Last
	}
	step := ts.New(stepType, 1.0, 1.0, c.obs(), c.stepNum)
	if stepType == ts.Last {
		step.SetEnd(ts.TerminalStateReached)
	}
	return step, step.Last()
}

func (c *chainEnv) Start() mat.Vector {
	return mat.NewVecDense(2, []float64{0.0, 1.0})
}

func (c *chainEnv) End(t *ts.TimeStep) bool {
	return t.Last()
}

func (c *chainEnv) GetReward(_, _, _ mat.Vector) float64 {
	return 1.0
}

func (c *chainEnv) AtGoal(state mat.Matrix) bool {
	return state.At(0, 0) >= float64(c.length)
}

func (c *chainEnv) Min() float64 { return 1.0 }
func (c *chainEnv) Max() float64 { return 1.0 }

func (c *chainEnv) RewardSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{1.0})
	return environment.NewSpec(shape, environment.Reward, bound, bound,
		environment.Continuous)
}

func (c *chainEnv) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{1.0})
	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}

func (c *chainEnv) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(2, nil)
	lower := mat.NewVecDense(2, []float64{0.0, 1.0})
	upper := mat.NewVecDense(2, []float64{float64(c.length), 1.0})
	return environment.NewSpec(shape, environment.Observation, lower, upper,
		environment.Continuous)
}

func (c *chainEnv) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lower := mat.NewVecDense(1, []float64{0.0})
	upper := mat.NewVecDense(1, []float64{1.0})
	return environment.NewSpec(shape, environment.Action, lower, upper,
		environment.Discrete)
}

// testConfig returns a minimal valid configuration: a linear value
// network with constant weight initialization so that all predictions
// are exactly computable by hand.
func testConfig(t *testing.T, initValue, gamma float64) Config {
	init, err := initwfn.NewConstant(initValue)
	require.NoError(t, err)

	sol, err := solver.NewVanilla(1e-3, 2, 0)
	require.NoError(t, err)

	return Config{
		PolicyLayers: []int{},
		Biases:       []bool{},
		Activations:  []*network.Activation{},
		Solver:       sol,
		InitWFn:      init,

		EpsStart:     1.0,
		EpsEnd:       0.1,
		EpsLastFrame: 100,

		ExpReplay: expreplay.Config{
			MinCapacity: 10,
			MaxCapacity: 50,
			BatchSize:   2,
			Beta:        0.5,
		},

		WarmStartSize: 10,
		Gamma:         gamma,
		SyncRate:      1_000,
	}
}

func TestNewWarmStartPopulatesReplay(t *testing.T) {
	env := newChainEnv(5)
	agent, err := New(env, testConfig(t, 0.0, 0.9), 14)
	require.NoError(t, err)

	assert.Equal(t, 10, agent.Replay().Capacity())
	assert.Equal(t, 0, agent.GlobalStep())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	env := newChainEnv(5)

	config := testConfig(t, 0.0, 0.9)
	config.Gamma = 0.0
	_, err := New(env, config, 14)
	assert.Error(t, err)

	config = testConfig(t, 0.0, 0.9)
	config.SyncRate = 0
	_, err = New(env, config, 14)
	assert.Error(t, err)

	// The warm start must fill the buffer to its minimum capacity,
	// since experience is only generated inside Step
	config = testConfig(t, 0.0, 0.9)
	config.WarmStartSize = 5
	_, err = New(env, config, 14)
	assert.Error(t, err)
}

func TestStepValidatesBatch(t *testing.T) {
	env := newChainEnv(5)
	agent, err := New(env, testConfig(t, 0.0, 0.9), 14)
	require.NoError(t, err)

	_, err = agent.Step(nil)
	assert.Error(t, err)

	batch := &expreplay.Batch{Indices: []int{0}, Weights: []float64{1.0}}
	_, err = agent.Step(batch)
	assert.Error(t, err)
}

// TestStepTerminalMasking checks the update target computation on a
// hand-constructed minibatch. With a linear network whose weights and
// biases all equal 0.5, a state (x0, x1) is valued 0.5*(x0+x1) + 0.5
// for every action, so both the prediction and the bootstrapped value
// are exact.
func TestStepTerminalMasking(t *testing.T) {
	env := newChainEnv(5)
	gamma := 0.8
	agent, err := New(env, testConfig(t, 0.5, gamma), 14)
	require.NoError(t, err)

	// Two identical rows except for the done flag. Predictions:
	// q(s, a) = 0.5 for states (0, 0), max q(s') = 1.5 for next states
	// (1, 1).
	batch := &expreplay.Batch{
		States:     []float64{0, 0, 0, 0},
		Actions:    []float64{1, 0, 1, 0},
		Rewards:    []float64{1.0, 1.0},
		Dones:      []float64{1.0, 0.0},
		NextStates: []float64{1, 1, 1, 1},
		Indices:    []int{0, 1},
		Weights:    []float64{1.0, 1.0},
	}

	result, err := agent.Step(batch)
	require.NoError(t, err)

	// Terminal row: target = r = 1, loss = (1 - 0.5)^2 = 0.25.
	// Non-terminal row: target = r + gamma*1.5 = 2.2,
	// loss = (2.2 - 0.5)^2 = 2.89. Training loss is the mean.
	loss := result.Loss.Data().(float64)
	assert.InDelta(t, (0.25+2.89)/2, loss, 1e-8)
}

func TestStepEpisodeBookkeeping(t *testing.T) {
	episodeLen := 5
	env := newChainEnv(episodeLen)

	// The warm start covers exactly two episodes, so training begins at
	// an episode boundary
	agent, err := New(env, testConfig(t, 0.0, 0.9), 14)
	require.NoError(t, err)

	iter := expreplay.NewIterator(agent.Replay())

	var result *StepResult
	for i := 0; i < episodeLen; i++ {
		batch, err := iter.Next()
		require.NoError(t, err)

		result, err = agent.Step(batch)
		require.NoError(t, err)

		if i < episodeLen-1 {
			assert.Equal(t, 0, result.Episodes)
			assert.Equal(t, i+1, result.EpisodeSteps)
		}
	}

	// The final step completed the first training episode
	assert.Equal(t, 1, result.Episodes)
	assert.Equal(t, 5.0, result.TotalReward)
	assert.Equal(t, episodeLen, result.LastEpisodeSteps)
	assert.Equal(t, 0, result.EpisodeSteps)
	assert.Equal(t, episodeLen-1, result.GlobalStep)

	// The running average always divides by the full window length
	assert.InDelta(t, 5.0/100.0, result.AvgReward, 1e-12)
}

func TestStepEpsilonDecays(t *testing.T) {
	env := newChainEnv(5)
	agent, err := New(env, testConfig(t, 0.0, 0.9), 14)
	require.NoError(t, err)

	iter := expreplay.NewIterator(agent.Replay())

	prev := 2.0
	for i := 0; i < 20; i++ {
		batch, err := iter.Next()
		require.NoError(t, err)

		result, err := agent.Step(batch)
		require.NoError(t, err)

		assert.Less(t, result.Epsilon, prev)
		prev = result.Epsilon
	}
}

func TestLossReductionShapes(t *testing.T) {
	scalar := SingleDevice{}.Reduce(2.5)
	assert.True(t, scalar.Shape().IsScalar())
	assert.Equal(t, 2.5, scalar.Data().(float64))

	vec := DataParallel{}.Reduce(2.5)
	assert.Equal(t, []int(vec.Shape()), []int{1})
	assert.Equal(t, 2.5, vec.Data().([]float64)[0])
}
