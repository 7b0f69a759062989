package main

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/spatial/r1"

	"sfneuman.com/perdqn/agent/nonlinear/discrete/perdqn"
	"sfneuman.com/perdqn/environment"
	"sfneuman.com/perdqn/environment/classiccontrol/cartpole"
	"sfneuman.com/perdqn/experiment"
	"sfneuman.com/perdqn/experiment/tracker"
	"sfneuman.com/perdqn/expreplay"
	"sfneuman.com/perdqn/initwfn"
	"sfneuman.com/perdqn/network"
	"sfneuman.com/perdqn/solver"
)

func main() {
	var seed uint64 = 192382

	// Create the environment
	bounds := r1.Interval{Min: -0.05, Max: 0.05}
	s := environment.NewUniformStarter([]r1.Interval{
		bounds,
		bounds,
		bounds,
		bounds,
	}, seed)
	task := cartpole.NewBalance(s, 500, cartpole.FailAngle)
	env, _ := cartpole.NewDiscrete(task, 1.0)

	// Weight initializer and solver for the value network
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		log.Fatalf("could not create weight initializer: %v", err)
	}

	sol, err := solver.NewDefaultAdam(1e-3, 32)
	if err != nil {
		log.Fatalf("could not create solver: %v", err)
	}

	config := perdqn.Config{
		PolicyLayers: []int{128, 128},
		Biases:       []bool{true, true},
		Activations: []*network.Activation{
			network.ReLU(),
			network.ReLU(),
		},
		Solver:  sol,
		InitWFn: init,

		EpsStart:     1.0,
		EpsEnd:       0.02,
		EpsLastFrame: 10_000,

		ExpReplay: expreplay.Config{
			MinCapacity: 1_000,
			MaxCapacity: 100_000,
			BatchSize:   32,
			Alpha:       1.0,
			Beta:        0.4,
		},

		WarmStartSize: 1_000,
		Gamma:         0.99,
		SyncRate:      1_000,
	}

	agent, err := perdqn.New(env, config, int64(seed))
	if err != nil {
		log.Fatalf("could not create agent: %v", err)
	}

	// Experiment
	returns := tracker.NewReturn("./data.bin")
	lengths := tracker.NewEpisodeLength("./lengths.bin")
	e := experiment.NewOnline(agent, 50_000, returns, lengths)
	if err := e.Run(); err != nil {
		log.Fatalf("experiment failed: %v", err)
	}
	e.Save()

	data, err := tracker.LoadFData("./data.bin")
	if err != nil {
		log.Fatalf("could not load return data: %v", err)
	}
	if len(data) > 10 {
		data = data[len(data)-10:]
	}
	fmt.Println(data)
}
