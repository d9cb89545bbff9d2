// Package nn implements the layers and the model of the stacknet engine.
//
// This package provides building blocks for feed-forward networks with
// hand-derived backward rules:
//   - Layer interface: Forward, Backward, Parameters and a label
//   - Linear: Fully connected layer
//   - Activations: ReLU, Sigmoid, Tanh
//   - BatchNorm1d, BatchNorm2d, BatchNorm3d: Batch normalization
//   - Model: Ordered stack of layers driving forward/backward sweeps
//   - MSELoss: Mean squared error reduction
//
// There is no computation graph: the model is an explicit sequence of layers
// and every layer knows how to map an output gradient to an input gradient.
package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/stacknet/internal/tensor"
)

// Layer is the interface implemented by every network layer.
//
// Layers are composed into a Model:
//
//	model, err := nn.NewModel(
//	    nn.NewLinear(3, 16),
//	    nn.NewReLU(),
//	    nn.NewLinear(16, 1),
//	)
//
// Implementations are not safe for concurrent use.
type Layer interface {
	// Forward computes output from input.
	//
	// Forward sets output.Shape and sizes and fills output.Data.
	Forward(input, output *tensor.Tensor) error

	// Backward maps the gradient in output.Grad to input.Grad.
	//
	// output is the tensor this layer produced in Forward, with its Grad
	// filled by the caller; input is the tensor that was passed to Forward.
	// input.Grad is resized and fully overwritten. Layers with parameters
	// add into their parameter gradients.
	Backward(output, input *tensor.Tensor) error

	// Parameters returns the trainable tensors owned by this layer.
	//
	// The returned pointers alias the live parameters.
	// Returns an empty slice for layers without parameters.
	Parameters() []*tensor.Tensor

	// String returns a human-readable label such as "Linear(in_features=3, out_features=2)".
	String() string
}

// upstreamGrad checks that output carries a gradient sized to its shape.
func upstreamGrad(layer string, output *tensor.Tensor) error {
	n, err := output.Size()
	if err != nil {
		return errors.WithMessagef(err, "%s.Backward: output", layer)
	}
	if len(output.Grad) == 0 {
		return errors.Wrapf(tensor.ErrIllegalState, "%s.Backward: output gradient is empty", layer)
	}
	if len(output.Grad) != n {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s.Backward: output gradient has %d elements, shape %v needs %d",
			layer, len(output.Grad), output.Shape, n)
	}
	return nil
}
