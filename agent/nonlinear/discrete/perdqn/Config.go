package perdqn

import (
	"fmt"

	"sfneuman.com/perdqn/expreplay"
	"sfneuman.com/perdqn/initwfn"
	"sfneuman.com/perdqn/network"
	"sfneuman.com/perdqn/solver"
)

// Config implements a configuration for a PERDQN agent
type Config struct {
	PolicyLayers []int                 // Layer sizes in neural net
	Biases       []bool                // Whether each layer should have a bias
	Activations  []*network.Activation // Activation of each layer
	Solver       *solver.Solver        // Solver for learning weights

	// Initialization algorithm for weights
	InitWFn *initwfn.InitWFn

	// Behaviour policy exploration schedule. Epsilon decays linearly
	// from EpsStart to EpsEnd over EpsLastFrame gradient steps and stays
	// at EpsEnd afterwards.
	EpsStart     float64
	EpsEnd       float64
	EpsLastFrame int

	// Experience replay parameters. MinCapacity gates sampling until
	// enough history has accumulated; Alpha, Beta, and PriorityEpsilon
	// control prioritization and importance sampling correction.
	ExpReplay expreplay.Config

	// WarmStartSize is the number of transitions generated with a
	// uniform random policy before training begins
	WarmStartSize int

	Gamma    float64 // Discount factor
	SyncRate int     // Steps between target network synchronizations

	// LossReduction shapes the loss tensor reported after each gradient
	// step. Nil means SingleDevice.
	LossReduction LossReduction
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize
}

// Validate checks a Config to ensure it is a valid configuration of a
// PERDQN agent.
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.Biases) {
		return fmt.Errorf("new: invalid number of biases\n\twant(%v)"+
			"\n\thave(%v)", len(c.PolicyLayers), len(c.Biases))
	}

	if len(c.PolicyLayers) != len(c.Activations) {
		return fmt.Errorf("new: invalid number of activations\n\twant(%v)"+
			"\n\thave(%v)", len(c.PolicyLayers), len(c.Activations))
	}

	if c.Solver == nil {
		return fmt.Errorf("new: no solver provided")
	}

	if c.InitWFn == nil {
		return fmt.Errorf("new: no weight initializer provided")
	}

	if c.EpsStart < c.EpsEnd {
		return fmt.Errorf("new: epsilon must decay \n\twant(EpsStart >= "+
			"EpsEnd) \n\thave(%v < %v)", c.EpsStart, c.EpsEnd)
	}

	if c.EpsLastFrame <= 0 {
		return fmt.Errorf("new: epsilon must decay over a positive number "+
			"of steps \n\twant(>0) \n\thave(%v)", c.EpsLastFrame)
	}

	if c.Gamma <= 0 || c.Gamma > 1 {
		return fmt.Errorf("new: discount factor must be in (0, 1] "+
			"\n\thave(%v)", c.Gamma)
	}

	if c.SyncRate < 1 {
		return fmt.Errorf("new: target networks must be updated at positive "+
			"timestep intervals \n\twant(>0) \n\thave(%v)", c.SyncRate)
	}

	if c.WarmStartSize < 0 {
		return fmt.Errorf("new: warm start size must be >= 0 \n\thave(%v)",
			c.WarmStartSize)
	}

	// The agent only generates experience inside Step, which requires a
	// sampled batch, so the warm start must fill the buffer to the
	// point where sampling is allowed
	if c.WarmStartSize < c.ExpReplay.MinCapacity {
		return fmt.Errorf("new: warm start must fill the replay buffer to "+
			"its minimum capacity \n\twant(>=%v) \n\thave(%v)",
			c.ExpReplay.MinCapacity, c.WarmStartSize)
	}

	return nil
}
