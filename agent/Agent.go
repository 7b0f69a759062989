// Package agent defines the interfaces satisfied by learning agents
// and their policies
package agent

import (
	"gonum.org/v1/gonum/mat"

	"sfneuman.com/perdqn/network"
)

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. Agents usually have a
// target and behaviour policy. For a given agent, the Policy and the
// weight updates should share pointers to the same weights so that any
// changes made to the weights are reflected in the actions the Policy
// chooses.
type Policy interface {
	// SelectAction selects an action based on the action values
	// computed by the last run of the policy's computational graph,
	// returning the action and its approximated value
	SelectAction() (*mat.VecDense, float64)

	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// NNPolicy represents a policy that uses neural network function
// approximation.
//
// Policies implemented by neural networks satisfy a different interface
// from Policy. This is because a VM is needed to run the policy, but
// the same VM is needed for both the policy and the weight updates so
// that the weights stay consistent between the two.
type NNPolicy interface {
	Policy
	ClonePolicy() (NNPolicy, error)
	ClonePolicyWithBatch(int) (NNPolicy, error)
	Network() network.NeuralNet
}

// EGreedyNNPolicy implements an epsilon greedy policy using neural
// network function approximation. Any neural network can be used to
// approximate the policy (CNN, RNN, MLP, etc.) as long as the epsilon
// value for the epsilon greedy policy can be set and retrieved.
type EGreedyNNPolicy interface {
	NNPolicy
	SetEpsilon(float64)
	Epsilon() float64
}
