package experiment

import (
	"fmt"
	"time"

	"sfneuman.com/perdqn/agent/nonlinear/discrete/perdqn"
	"sfneuman.com/perdqn/expreplay"
	"sfneuman.com/perdqn/experiment/tracker"
	"sfneuman.com/perdqn/utils/progressbar"
)

// Online is an Experiment that trains an agent online only. No offline
// evaluation is performed.
//
// On each iteration, a minibatch is drawn from the agent's replay
// buffer and fed to the agent's Step method, which advances the
// environment one transition and performs one gradient step. The
// result of each step is sent to all registered Trackers.
type Online struct {
	agent    *perdqn.PERDQN
	iter     *expreplay.Iterator
	maxSteps uint
	trackers []tracker.Tracker
}

// NewOnline creates and returns a new online experiment with a given
// agent. The steps parameter determines how many gradient steps the
// experiment is run for, and the t parameter is a slice of
// tracker.Tracker which determine what data is saved.
func NewOnline(a *perdqn.PERDQN, steps uint, t ...tracker.Tracker) *Online {
	return &Online{
		agent:    a,
		iter:     expreplay.NewIterator(a.Replay()),
		maxSteps: steps,
		trackers: t,
	}
}

// Register registers a tracker.Tracker with an Experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Run runs the entire experiment for all gradient steps
func (o *Online) Run() error {
	pbar := progressbar.NewProgressBar(50, int(o.maxSteps), time.Second,
		false)
	pbar.Display()
	defer pbar.Close()

	for i := uint(0); i < o.maxSteps; i++ {
		batch, err := o.iter.Next()
		if err != nil {
			return fmt.Errorf("run: could not sample minibatch: %v", err)
		}

		result, err := o.agent.Step(batch)
		if err != nil {
			return fmt.Errorf("run: could not step agent: %v", err)
		}

		o.track(result)
		pbar.Increment()
	}

	return nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() {
	for _, t := range o.trackers {
		t.Save()
	}
}

// track tracks the current step by caching its data in each Tracker
func (o *Online) track(r *perdqn.StepResult) {
	for _, t := range o.trackers {
		t.Track(r)
	}
}
