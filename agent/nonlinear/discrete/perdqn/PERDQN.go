// Package perdqn implements deep Q-learning with prioritized experience
// replay. Transitions are replayed proportionally to the magnitude of
// their last temporal difference error, and the induced sampling bias
// is corrected with importance sampling weights on the loss.
package perdqn

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"sfneuman.com/perdqn/agent"
	"sfneuman.com/perdqn/agent/nonlinear/discrete/policy"
	"sfneuman.com/perdqn/environment"
	"sfneuman.com/perdqn/expreplay"
	"sfneuman.com/perdqn/schedule"
	ts "sfneuman.com/perdqn/timestep"
	"sfneuman.com/perdqn/utils/floatutils"
	"sfneuman.com/perdqn/utils/intutils"
)

// rewardHistoryLen is the window of completed episodes over which the
// running average reward is computed. The average always divides by
// the full window length, so it ramps up from zero over the first
// rewardHistoryLen episodes.
const rewardHistoryLen int = 100

// StepResult records the outcome of a single gradient step. Reward
// fields describe completed episodes: TotalReward is the return of the
// most recently completed episode and AvgReward the running average
// over the last rewardHistoryLen completed episodes.
type StepResult struct {
	Loss *tensor.Dense

	TotalReward      float64
	AvgReward        float64
	EpisodeSteps     int // Steps taken in the current episode so far
	LastEpisodeSteps int // Steps taken by the last completed episode

	GlobalStep int
	Episodes   int
	Epsilon    float64
}

// PERDQN implements the DQN algorithm with prioritized experience
// replay. The agent owns its environment interaction: each call to
// Step advances the environment by one transition with the
// epsilon-greedy behaviour policy, then performs one gradient step on
// the argument batch and writes the resulting per-sample losses back
// to the replay buffer as priorities.
type PERDQN struct {
	env environment.Environment

	// Behaviour egreedy policy for selecting actions
	behaviourPolicy   agent.EGreedyNNPolicy
	behaviourPolicyVM G.VM

	// Policy for learning weights that takes in batches of inputs
	trainNet   agent.EGreedyNNPolicy
	trainNetVM G.VM
	solver     G.Solver // Adapts the weights of trainNet

	// Network that provides the update target for a batch of inputs.
	// Synchronized wholesale from trainNet every syncRate steps.
	targetNet   agent.EGreedyNNPolicy
	targetNetVM G.VM

	epsilon    schedule.LinearDecay
	syncRate   int
	globalStep int

	numActions int
	batchSize  int
	gamma      float64

	// Input nodes in the graph of trainNet. nextStateActionValues is
	// given the target network's action values of the next states; for
	// the update
	//
	// Q(s, a) <- Q(s, a) + α * (r + γ * max[Q(s', a')] - Q(s, a)) ∇Q(s, a)
	//
	// it provides Q(s', a') for all a' in s'. The discounts input holds
	// γ with terminal rows zeroed, and isWeights holds the batch's
	// normalized importance sampling weights.
	nextStateActionValues *G.Node
	rewards               *G.Node
	discounts             *G.Node
	isWeights             *G.Node
	selectedActions       *G.Node // Actions taken at the previous states

	// Values read out of the last run of the trainNet graph
	weightedLossesVal G.Value
	costVal           G.Value

	replay    expreplay.ExperienceReplayer
	reduction LossReduction

	// Keep track of the current state to add transitions to the replay
	// buffer
	prevStep ts.TimeStep

	// Episode bookkeeping
	episodeReward    float64
	episodeSteps     int
	totalReward      float64
	rewardHistory    []float64
	avgReward        float64
	episodeCount     int
	lastEpisodeSteps int
}

// New creates and returns a new PERDQN agent. The environment is reset
// and driven WarmStartSize transitions with a uniform random policy so
// that the replay buffer holds experience before the first gradient
// step.
func New(env environment.Environment, config Config,
	seed int64) (*PERDQN, error) {
	// Ensure environment has discrete actions
	if env.ActionSpec().Cardinality != environment.Discrete {
		return &PERDQN{}, fmt.Errorf("perdqn: cannot use non-discrete " +
			"actions")
	}

	// Ensure actions are one-dimensional
	if env.ActionSpec().LowerBound.Len() > 1 {
		return &PERDQN{}, fmt.Errorf("perdqn: actions must be " +
			"1-dimensional")
	}

	// Ensure actions are enumerated from 0
	if env.ActionSpec().LowerBound.AtVec(0) != 0.0 {
		return &PERDQN{}, fmt.Errorf("perdqn: actions must be " +
			"enumerated starting from 0")
	}

	// Ensure the configuration is valid
	err := config.Validate()
	if err != nil {
		return &PERDQN{}, err
	}

	// Extract configuration variables
	batchSize := config.BatchSize()
	numActions := int(env.ActionSpec().UpperBound.AtVec(0)) + 1
	hiddenSizes := config.PolicyLayers
	biases := config.Biases
	activations := config.Activations
	init := config.InitWFn.InitWFn()

	eps, err := schedule.NewLinearDecay(config.EpsStart, config.EpsEnd,
		config.EpsLastFrame)
	if err != nil {
		return &PERDQN{}, err
	}

	// Behaviour network for selecting actions
	g := G.NewGraph()
	behaviourPolicy, err := policy.NewMultiHeadEGreedyMLP(
		config.EpsStart,
		env,
		1, // For behaviour policy, we only need to select a single action
		g,
		hiddenSizes,
		biases,
		init,
		activations,
		seed,
	)
	if err != nil {
		return &PERDQN{}, err
	}
	behaviourPolicyVM := G.NewTapeMachine(g)

	// Create the target network which provides the update target
	targetNetClone, err := behaviourPolicy.ClonePolicyWithBatch(batchSize)
	if err != nil {
		msg := "new: could not create target network: %v"
		return &PERDQN{}, fmt.Errorf(msg, err)
	}
	targetNet := targetNetClone.(agent.EGreedyNNPolicy)
	targetNet.SetEpsilon(0.0) // Qlearning target policy is greedy
	targetNetVM := G.NewTapeMachine(targetNet.Network().Graph())

	// Create a training network which learns the weights
	trainNetClone, err := behaviourPolicy.ClonePolicyWithBatch(batchSize)
	if err != nil {
		msg := "new: could not create learning network: %v"
		return &PERDQN{}, fmt.Errorf(msg, err)
	}
	trainNet := trainNetClone.(agent.EGreedyNNPolicy)
	gTrain := trainNet.Network().Graph()

	// Create nodes to compute the update target: r + γ * max[Q(s', a')]
	nextStateActionValues := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("targetActionVals"))
	rewards := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("reward"))
	discounts := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("discount"))
	isWeights := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("isWeights"))

	// Compute the update target. Terminal transitions carry a discount
	// of zero, cutting the bootstrapped value off at episode ends.
	updateTarget := G.Must(G.Max(nextStateActionValues, 1))
	updateTarget = G.Must(G.HadamardProd(updateTarget, discounts))
	updateTarget = G.Must(G.Add(updateTarget, rewards))

	// Action selected in the previous state. This is needed to compute
	// the loss using the correct action value since the network outputs N
	// action values, one for each environmental action
	selectedActions := G.NewMatrix(
		gTrain,
		tensor.Float64,
		G.WithName("actionSelected"),
		G.WithShape(batchSize, numActions),
	)
	selectedActionsValue := G.Must(G.HadamardProd(
		trainNet.Network().Prediction(), selectedActions))
	selectedActionsValue = G.Must(G.Sum(selectedActionsValue, 1))

	// Compute the squared TD errors, weighted per-sample by the
	// importance sampling weights. The weighted losses double as the
	// next priorities of the sampled transitions.
	losses := G.Must(G.Sub(updateTarget, selectedActionsValue))
	losses = G.Must(G.Square(losses))
	weightedLosses := G.Must(G.HadamardProd(isWeights, losses))
	cost := G.Must(G.Mean(weightedLosses))

	var weightedLossesVal, costVal G.Value
	G.Read(weightedLosses, &weightedLossesVal)
	G.Read(cost, &costVal)

	// Compute the gradient with respect to the weighted loss
	_, err = G.Grad(cost, trainNet.Network().Learnables()...)
	if err != nil {
		msg := fmt.Sprintf("new: could not compute gradient: %v", err)
		panic(msg)
	}

	// Compile the trainNet graph into a VM
	trainNetVM := G.NewTapeMachine(
		gTrain,
		G.BindDualValues(trainNet.Network().Learnables()...),
	)

	// Create the experience replay buffer. The replay buffer stores
	// actions selected as one-hot vectors
	numFeatures := env.ObservationSpec().Shape.Len()
	replay, err := config.ExpReplay.Create(numFeatures, numActions, seed)
	if err != nil {
		msg := "new: could not create experience replay buffer: %v"
		return &PERDQN{}, fmt.Errorf(msg, err)
	}

	reduction := config.LossReduction
	if reduction == nil {
		reduction = SingleDevice{}
	}

	p := &PERDQN{
		env:                   env,
		behaviourPolicy:       behaviourPolicy,
		behaviourPolicyVM:     behaviourPolicyVM,
		trainNet:              trainNet,
		trainNetVM:            trainNetVM,
		solver:                config.Solver,
		targetNet:             targetNet,
		targetNetVM:           targetNetVM,
		epsilon:               eps,
		syncRate:              config.SyncRate,
		globalStep:            0,
		numActions:            numActions,
		batchSize:             batchSize,
		gamma:                 config.Gamma,
		nextStateActionValues: nextStateActionValues,
		rewards:               rewards,
		discounts:             discounts,
		isWeights:             isWeights,
		selectedActions:       selectedActions,
		weightedLossesVal:     weightedLossesVal,
		costVal:               costVal,
		replay:                replay,
		reduction:             reduction,
		prevStep:              env.Reset(),
	}

	if err := p.warmUp(config.WarmStartSize); err != nil {
		return &PERDQN{}, fmt.Errorf("new: could not warm start: %v", err)
	}

	return p, nil
}

// warmUp populates the replay buffer with transitions generated by a
// uniform random policy. Warm-up steps do not count as gradient steps
// and accumulate no episode statistics.
func (p *PERDQN) warmUp(steps int) error {
	p.behaviourPolicy.SetEpsilon(1.0)
	defer p.behaviourPolicy.SetEpsilon(p.epsilon.Value(0))

	for i := 0; i < steps; i++ {
		if _, err := p.stepEnvironment(); err != nil {
			return err
		}
	}
	return nil
}

// Replay returns the experience replay buffer the agent stores its
// transitions in. The training driver samples minibatches from this
// buffer to feed back into Step.
func (p *PERDQN) Replay() expreplay.ExperienceReplayer {
	return p.replay
}

// GlobalStep returns the number of gradient steps taken so far
func (p *PERDQN) GlobalStep() int {
	return p.globalStep
}

// Eval sets the agent into evaluation mode
func (p *PERDQN) Eval() {
	p.behaviourPolicy.Eval()
}

// Train sets the agent into training mode
func (p *PERDQN) Train() {
	p.behaviourPolicy.Train()
}

// IsEval returns whether the agent is in evaluation mode
func (p *PERDQN) IsEval() bool {
	return p.behaviourPolicy.IsEval()
}

// stepEnvironment selects an action with the behaviour policy, takes it
// in the environment, and adds the resulting transition to the replay
// buffer with a one-hot encoded action. The environment is reset when
// an episode ends. The returned timestep is the one observed before
// any reset.
func (p *PERDQN) stepEnvironment() (ts.TimeStep, error) {
	obs := p.prevStep.Observation
	input := make([]float64, obs.Len())
	for i := range input {
		input[i] = obs.AtVec(i)
	}

	err := p.behaviourPolicy.Network().SetInput(input)
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("could not set policy input: %v", err)
	}
	if err := p.behaviourPolicyVM.RunAll(); err != nil {
		return ts.TimeStep{}, fmt.Errorf("could not run policy: %v", err)
	}
	action, _ := p.behaviourPolicy.SelectAction()
	p.behaviourPolicyVM.Reset()

	nextStep, _ := p.env.Step(action)

	// The replay buffer stores actions as one-hot vectors
	oneHot := mat.NewVecDense(p.numActions, nil)
	oneHot.SetVec(int(action.AtVec(0)), 1.0)

	transition := ts.NewTransition(p.prevStep, oneHot, nextStep)
	if _, err := p.replay.Add(transition); err != nil {
		return ts.TimeStep{}, fmt.Errorf("could not add transition: %v", err)
	}

	p.prevStep = nextStep
	if nextStep.Last() {
		p.prevStep = p.env.Reset()
	}

	return nextStep, nil
}

// Step performs a single training step on the argument minibatch:
// the environment is advanced one transition, the weights of trainNet
// are updated with one gradient step on the importance weighted squared
// TD error, the per-sample losses are written back to the replay buffer
// as new priorities, and the target network is synchronized if due.
//
// The returned StepResult describes the step just taken. Episode
// statistics update only when the advanced transition completed an
// episode.
func (p *PERDQN) Step(batch *expreplay.Batch) (*StepResult, error) {
	if batch == nil {
		return nil, fmt.Errorf("step: no batch provided")
	}
	if len(batch.Indices) != p.batchSize ||
		len(batch.Weights) != p.batchSize {
		return nil, fmt.Errorf("step: invalid batch size \n\twant(%v) "+
			"\n\thave(%v)", p.batchSize, len(batch.Indices))
	}

	// Update the behaviour policy's exploration for this step
	epsilon := p.epsilon.Value(p.globalStep)
	p.behaviourPolicy.SetEpsilon(epsilon)

	// Advance the environment exactly one transition
	nextStep, err := p.stepEnvironment()
	if err != nil {
		return nil, fmt.Errorf("step: %v", err)
	}
	p.episodeReward += nextStep.Reward
	p.episodeSteps++

	// One-hot vectors of the actions taken at the sampled states
	prevActions := tensor.New(
		tensor.WithShape(p.batchSize, p.numActions),
		tensor.WithBacking(batch.Actions),
	)
	if err := G.Let(p.selectedActions, prevActions); err != nil {
		panic(fmt.Sprintf("step: could not set selected actions: %v", err))
	}

	// Predict the action values at the sampled states
	err = p.trainNet.Network().SetInput(batch.States)
	if err != nil {
		msg := fmt.Sprintf("step: could not set trainNet input: %v", err)
		panic(msg)
	}

	// Predict the action values at the next states
	err = p.targetNet.Network().SetInput(batch.NextStates)
	if err != nil {
		msg := fmt.Sprintf("step: could not set target net input: %v", err)
		panic(msg)
	}
	if err := p.targetNetVM.RunAll(); err != nil {
		panic(fmt.Sprintf("step: could not run target net: %v", err))
	}

	// Set the action values for the actions in the next states
	err = G.Let(p.nextStateActionValues, p.targetNet.Network().Output())
	if err != nil {
		panic(fmt.Sprintf("step: could not set next state-action values: %v",
			err))
	}

	rewardTensor := tensor.New(tensor.WithBacking(batch.Rewards),
		tensor.WithShape(p.batchSize))
	if err := G.Let(p.rewards, rewardTensor); err != nil {
		panic(fmt.Sprintf("step: could not set reward: %v", err))
	}

	// Terminal rows carry a discount of zero so that no value is
	// bootstrapped past the end of an episode
	discounts := make([]float64, p.batchSize)
	for i := range discounts {
		discounts[i] = p.gamma * (1.0 - batch.Dones[i])
	}
	discountTensor := tensor.New(tensor.WithBacking(discounts),
		tensor.WithShape(p.batchSize))
	if err := G.Let(p.discounts, discountTensor); err != nil {
		panic(fmt.Sprintf("step: could not set discount: %v", err))
	}

	weightTensor := tensor.New(tensor.WithBacking(batch.Weights),
		tensor.WithShape(p.batchSize))
	if err := G.Let(p.isWeights, weightTensor); err != nil {
		panic(fmt.Sprintf("step: could not set importance weights: %v", err))
	}

	p.targetNetVM.Reset()

	// Run the learning step
	if err := p.trainNetVM.RunAll(); err != nil {
		panic(fmt.Sprintf("step: could not run training step: %v", err))
	}
	cost := p.costVal.Data().(float64)
	weightedLosses := append([]float64(nil),
		p.weightedLossesVal.Data().([]float64)...)
	if err := p.solver.Step(p.trainNet.Network().Model()); err != nil {
		return nil, fmt.Errorf("step: could not step solver: %v", err)
	}
	p.trainNetVM.Reset()

	// Write the per-sample losses back as the new priorities of the
	// sampled transitions. A non-finite loss is never written: the
	// priorities in the buffer keep their previous values.
	if floatutils.Finite(cost) {
		err := p.replay.UpdatePriorities(batch.Indices, weightedLosses)
		if err != nil {
			return nil, fmt.Errorf("step: could not update priorities: %v",
				err)
		}
	} else {
		fmt.Fprintf(os.Stderr, "warning: non-finite loss at step %v, "+
			"skipping priority update\n", p.globalStep)
	}

	// Update the target network by setting its weights to the newly
	// learned weights
	if p.globalStep%p.syncRate == 0 {
		if err := p.targetNet.Network().Set(p.trainNet.Network()); err != nil {
			return nil, fmt.Errorf("step: could not synchronize target "+
				"network: %v", err)
		}
	}

	// The behaviour policy always acts with the latest weights
	if err := p.behaviourPolicy.Network().Set(p.trainNet.Network()); err != nil {
		return nil, fmt.Errorf("step: could not update behaviour policy: %v",
			err)
	}

	if nextStep.Last() {
		p.endEpisode()
	}

	result := &StepResult{
		Loss:             p.reduction.Reduce(cost),
		TotalReward:      p.totalReward,
		AvgReward:        p.avgReward,
		EpisodeSteps:     p.episodeSteps,
		LastEpisodeSteps: p.lastEpisodeSteps,
		GlobalStep:       p.globalStep,
		Episodes:         p.episodeCount,
		Epsilon:          epsilon,
	}
	p.globalStep++

	return result, nil
}

// endEpisode finalizes the statistics of a completed episode and resets
// the accumulators for the next one
func (p *PERDQN) endEpisode() {
	p.totalReward = p.episodeReward
	p.rewardHistory = append(p.rewardHistory, p.episodeReward)

	start := intutils.Max(0, len(p.rewardHistory)-rewardHistoryLen)
	sum := 0.0
	for _, r := range p.rewardHistory[start:] {
		sum += r
	}
	p.avgReward = sum / float64(rewardHistoryLen)

	p.episodeCount++
	p.lastEpisodeSteps = p.episodeSteps
	p.episodeReward = 0
	p.episodeSteps = 0
}
