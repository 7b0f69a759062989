package tracker

import (
	"encoding/gob"
	"log"
	"os"

	"sfneuman.com/perdqn/agent/nonlinear/discrete/perdqn"
)

// EpisodeLength tracks and saves the lengths of episodes in an
// experiment.
// Note that an episode must finish for this Tracker to record its data.
// If the last episode in an experiment does not finish, that episode's
// length will not be saved.
type EpisodeLength struct {
	lastEpisodes   int
	episodeLengths []int
	filename       string
}

// NewEpisodeLength returns a new EpisodeLength Tracker which will save
// its data at the specified location filename
func NewEpisodeLength(filename string) Tracker {
	var saver EpisodeLength
	saver.filename = filename
	return &saver
}

// Track caches the length of any episode completed by the argument
// step
func (e *EpisodeLength) Track(res *perdqn.StepResult) {
	if res.Episodes > e.lastEpisodes {
		e.episodeLengths = append(e.episodeLengths, res.LastEpisodeSteps)
		e.lastEpisodes = res.Episodes
	}
}

// Save saves the data tracked by the EpisodeLength Tracker to disk.
func (e *EpisodeLength) Save() {
	// Open the file to save to
	file, err := os.Create(e.filename)
	if err != nil {
		log.Fatalf("could not open save file: %v", err)
	}
	defer file.Close()

	// Encode and save the file
	en := gob.NewEncoder(file)
	if err = en.Encode(e.episodeLengths); err != nil {
		log.Fatalf("could not encode episode length data: %v", err)
	}
}
