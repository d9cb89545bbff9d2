package nn

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/stacknet/internal/tensor"
)

// elementwise runs the shared forward/backward plumbing of activation layers.
//
// fwd maps x to y; bwd maps (y, dy) to dx. The derivative is expressed in
// terms of the forward output, so Backward never needs the input values.
type elementwise struct {
	name string
	fwd  func(x float32) float32
	bwd  func(y, dy float32) float32
}

func (e *elementwise) forward(input, output *tensor.Tensor) error {
	n, err := input.Size()
	if err != nil {
		return errors.WithMessagef(err, "%s.Forward: input", e.name)
	}
	if len(input.Data) != n {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s.Forward: input has %d values, shape %v needs %d",
			e.name, len(input.Data), input.Shape, n)
	}

	output.Shape = input.Shape.Clone()
	if err := output.Resize(); err != nil {
		return err
	}
	for i, x := range input.Data {
		output.Data[i] = e.fwd(x)
	}
	return nil
}

func (e *elementwise) backward(output, input *tensor.Tensor) error {
	if err := upstreamGrad(e.name, output); err != nil {
		return err
	}
	if len(output.Data) != len(output.Grad) {
		return errors.Wrapf(tensor.ErrIllegalState, "%s.Backward: output data has %d values, forward must fill it",
			e.name, len(output.Data))
	}
	n, err := input.Size()
	if err != nil {
		return errors.WithMessagef(err, "%s.Backward: input", e.name)
	}
	if n != len(output.Data) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s.Backward: input shape %v does not match output shape %v",
			e.name, input.Shape, output.Shape)
	}
	if err := input.ResizeGrad(); err != nil {
		return err
	}
	for i, y := range output.Data {
		input.Grad[i] = e.bwd(y, output.Grad[i])
	}
	return nil
}

// ReLU is a Rectified Linear Unit activation layer.
//
// Applies the element-wise function: f(x) = max(0, x)
//
// Backward passes the gradient where the output is positive and blocks it elsewhere.
type ReLU struct {
	elementwise
}

// NewReLU creates a new ReLU activation layer.
func NewReLU() *ReLU {
	return &ReLU{elementwise{
		name: "ReLU",
		fwd: func(x float32) float32 {
			return max(0, x)
		},
		bwd: func(y, dy float32) float32 {
			if y > 0 {
				return dy
			}
			return 0
		},
	}}
}

// Forward applies ReLU activation: f(x) = max(0, x).
func (r *ReLU) Forward(input, output *tensor.Tensor) error {
	return r.forward(input, output)
}

// Backward computes input.Grad = output.Grad where output > 0, else 0.
func (r *ReLU) Backward(output, input *tensor.Tensor) error {
	return r.backward(output, input)
}

// Parameters returns an empty slice (ReLU has no trainable parameters).
func (r *ReLU) Parameters() []*tensor.Tensor {
	return nil
}

// String returns "ReLU()".
func (r *ReLU) String() string {
	return "ReLU()"
}

// Sigmoid is a sigmoid activation layer.
//
// Applies the element-wise function: σ(x) = 1 / (1 + exp(-x))
//
// Since σ'(x) = σ(x) * (1 - σ(x)), Backward works from the cached output.
type Sigmoid struct {
	elementwise
}

// NewSigmoid creates a new Sigmoid activation layer.
func NewSigmoid() *Sigmoid {
	return &Sigmoid{elementwise{
		name: "Sigmoid",
		fwd: func(x float32) float32 {
			return float32(1 / (1 + math.Exp(-float64(x))))
		},
		bwd: func(s, dy float32) float32 {
			return dy * s * (1 - s)
		},
	}}
}

// Forward applies Sigmoid activation: σ(x) = 1 / (1 + exp(-x)).
func (s *Sigmoid) Forward(input, output *tensor.Tensor) error {
	return s.forward(input, output)
}

// Backward computes input.Grad = output.Grad * s * (1 - s) with s the forward output.
func (s *Sigmoid) Backward(output, input *tensor.Tensor) error {
	return s.backward(output, input)
}

// Parameters returns an empty slice (Sigmoid has no trainable parameters).
func (s *Sigmoid) Parameters() []*tensor.Tensor {
	return nil
}

// String returns "Sigmoid()".
func (s *Sigmoid) String() string {
	return "Sigmoid()"
}

// Tanh is a hyperbolic tangent activation layer.
//
// Applies the element-wise function: tanh(x) = (exp(x) - exp(-x)) / (exp(x) + exp(-x))
type Tanh struct {
	elementwise
}

// NewTanh creates a new Tanh activation layer.
func NewTanh() *Tanh {
	return &Tanh{elementwise{
		name: "Tanh",
		fwd: func(x float32) float32 {
			return float32(math.Tanh(float64(x)))
		},
		bwd: func(t, dy float32) float32 {
			return dy * (1 - t*t)
		},
	}}
}

// Forward applies Tanh activation.
func (t *Tanh) Forward(input, output *tensor.Tensor) error {
	return t.forward(input, output)
}

// Backward computes input.Grad = output.Grad * (1 - t²) with t the forward output.
func (t *Tanh) Backward(output, input *tensor.Tensor) error {
	return t.backward(output, input)
}

// Parameters returns an empty slice (Tanh has no trainable parameters).
func (t *Tanh) Parameters() []*tensor.Tensor {
	return nil
}

// String returns "Tanh()".
func (t *Tanh) String() string {
	return "Tanh()"
}
