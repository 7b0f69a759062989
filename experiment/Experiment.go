// Package experiment implements functionality for running an experiment
package experiment

import (
	"sfneuman.com/perdqn/experiment/tracker"
)

// Experiment outlines structs that can run experiments. Experiments
// drive an agent for a fixed number of gradient steps, caching the
// statistics of each step in RAM to be later saved to disk. The Save()
// function takes all cached data and saves it to disk; this is usually
// performed after an experiment has been run.
//
// In order to save data, Experiments use Trackers. Trackers determine
// which data generated during the experiment is saved. Experiments
// send the result of each step to Trackers using the Tracker's Track()
// method. The Tracker then determines which data from the result it
// caches and saves. New Trackers can be registered with an Experiment
// through the constructor or through an Experiment's Register()
// function.
type Experiment interface {
	Run() error

	// Save all tracked data to disk
	Save()

	// Adds a new tracker.Tracker to the (possibly already running)
	// experiment. Useful if you want to track data only after a
	// specified event.
	Register(t tracker.Tracker)
}
