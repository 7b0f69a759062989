// Package network implements neural network function approximators
// using Gorgonia
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network function approximator. A NeuralNet
// populates a gorgonia.ExprGraph; an external VM runs the graph to
// produce predictions. Online and target instances of the same
// architecture are structurally identical but separately held, and a
// target copy is refreshed from the online copy with Set (wholesale)
// or Polyak (interpolated).
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() G.Value
	Prediction() *G.Node
}
