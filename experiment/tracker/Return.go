package tracker

import (
	"encoding/gob"
	"log"
	"os"

	"sfneuman.com/perdqn/agent/nonlinear/discrete/perdqn"
)

// Return tracks and saves the episodic return in an experiment. The
// agent reports the return of the most recently completed episode in
// each StepResult; this Tracker caches that return once per completed
// episode.
//
// Note: An episode must finish for this Tracker to record its data.
// If the last episode in an experiment does not finish, that episode's
// return will not be saved.
type Return struct {
	lastEpisodes   int
	episodeReturns []float64
	filename       string
}

// NewReturn creates and returns a new *Return Tracker
func NewReturn(filename string) Tracker {
	var saver Return
	saver.filename = filename
	return &saver
}

// Track records the return of any episode completed by the argument
// step. Calling this method on every step of an experiment caches the
// return of every completed episode in order.
func (r *Return) Track(res *perdqn.StepResult) {
	if res.Episodes > r.lastEpisodes {
		r.episodeReturns = append(r.episodeReturns, res.TotalReward)
		r.lastEpisodes = res.Episodes
	}
}

// Save saves the data tracked by the Return Tracker to disk.
func (r *Return) Save() {
	// Open the file to save to
	file, err := os.Create(r.filename)
	if err != nil {
		log.Fatalf("could not open save file: %v", err)
	}
	defer file.Close()

	// Encode and save the file
	en := gob.NewEncoder(file)
	if err = en.Encode(r.episodeReturns); err != nil {
		log.Fatalf("could not encode online return data: %v", err)
	}
}
