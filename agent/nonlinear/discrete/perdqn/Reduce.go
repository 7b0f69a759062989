package perdqn

import "gorgonia.org/tensor"

// LossReduction shapes the loss tensor reported in a StepResult. The
// agent always trains on the mean weighted loss; the reduction only
// determines how that value is packaged for the caller.
type LossReduction interface {
	Reduce(loss float64) *tensor.Dense
}

// SingleDevice reports the loss as a scalar tensor. This is the
// reduction for ordinary single-process training.
type SingleDevice struct{}

// Reduce returns the loss as a scalar tensor
func (SingleDevice) Reduce(loss float64) *tensor.Dense {
	return tensor.New(tensor.FromScalar(loss))
}

// DataParallel reports the loss with a leading singleton dimension so
// that losses from multiple replicas can be concatenated along it and
// averaged by an outer reduction.
type DataParallel struct{}

// Reduce returns the loss as a tensor of shape (1,)
func (DataParallel) Reduce(loss float64) *tensor.Dense {
	return tensor.New(
		tensor.WithShape(1),
		tensor.WithBacking([]float64{loss}),
	)
}
