package expreplay

// Iterator is an infinite source of prioritized minibatches. Each call
// to Next draws a fresh sample from the underlying buffer, so the
// sequence of minibatches never ends and restarting iteration is
// trivial: the Iterator holds no state beyond the buffer reference.
//
// The Iterator reads through the buffer but never mutates it; priority
// write-back is the trainer's responsibility.
type Iterator struct {
	replay ExperienceReplayer
}

// NewIterator returns a new Iterator producing minibatches from the
// argument buffer
func NewIterator(replay ExperienceReplayer) *Iterator {
	return &Iterator{replay: replay}
}

// Next draws and returns the next minibatch. Next fails if the buffer
// is empty or has not yet reached its minimum capacity.
func (it *Iterator) Next() (*Batch, error) {
	return it.replay.Sample()
}

// BatchSize returns the number of samples in each minibatch
func (it *Iterator) BatchSize() int {
	return it.replay.BatchSize()
}
