package nn

import (
	"math/rand"

	"github.com/born-ml/stacknet/internal/tensor"
)

// Initialization ranges.
const (
	linearInitBound = 0.1 // Linear weight and bias: U(-0.1, 0.1)
	gammaInitLow    = 0.9 // BatchNorm gamma: U(0.9, 1.1)
	gammaInitHigh   = 1.1
)

// newBuffer creates a zero-filled tensor without a gradient buffer.
// Panics if any dimension is not positive.
func newBuffer(dims ...int) tensor.Tensor {
	t := tensor.Tensor{Shape: tensor.Shape(dims).Clone()}
	if err := t.Resize(); err != nil {
		panic(err)
	}
	return t
}

// newParameter creates a parameter tensor with sized Data and Grad buffers.
// Both buffers start at zero.
func newParameter(dims ...int) tensor.Tensor {
	t := newBuffer(dims...)
	if err := t.ResizeGrad(); err != nil {
		panic(err)
	}
	return t
}

// Uniform fills t.Data with values drawn from U(low, high).
func Uniform(t *tensor.Tensor, low, high float32) {
	for i := range t.Data {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		t.Data[i] = low + rand.Float32()*(high-low)
	}
}

// Fill sets every element of t.Data to value.
func Fill(t *tensor.Tensor, value float32) {
	for i := range t.Data {
		t.Data[i] = value
	}
}
