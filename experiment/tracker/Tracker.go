// Package tracker implements trackers that record training statistics
// during an experiment and save them to disk
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"

	"sfneuman.com/perdqn/agent/nonlinear/discrete/perdqn"
)

// Tracker caches data generated by a training experiment. The
// experiment sends the result of every gradient step to each registered
// Tracker through Track; the Tracker decides which data it records.
// Save writes all cached data to disk, usually once the experiment has
// finished.
type Tracker interface {
	Track(r *perdqn.StepResult)
	Save()
}

// LoadFData loads and returns the float64 data saved by a Tracker at
// the argument file
func LoadFData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadfdata: could not open file: %v", err)
	}
	defer file.Close()

	var data []float64
	dec := gob.NewDecoder(file)
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("loadfdata: could not decode data: %v", err)
	}
	return data, nil
}

// LoadIData loads and returns the int data saved by a Tracker at the
// argument file
func LoadIData(filename string) ([]int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadidata: could not open file: %v", err)
	}
	defer file.Close()

	var data []int
	dec := gob.NewDecoder(file)
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("loadidata: could not decode data: %v", err)
	}
	return data, nil
}
