// Package tensor implements the flat-buffer tensor used by the stacknet engine.
//
// A Tensor is a plain value: a shape, a row-major data buffer and an optional
// gradient buffer of the same size. Buffers are sized explicitly:
//
//	var t tensor.Tensor
//	t.Shape = tensor.Shape{2, 3}
//	if err := t.Resize(); err != nil { ... }     // len(t.Data) == 6
//	if err := t.ResizeGrad(); err != nil { ... } // len(t.Grad) == 6
//
// Layers write into tensors owned by their caller, so the same Tensor is
// reused across forward and backward sweeps.
package tensor

import (
	"github.com/pkg/errors"
)

// Tensor is a fixed-rank float32 array with an optional gradient buffer.
//
// The zero value is an uninitialized tensor (empty Shape, no buffers).
type Tensor struct {
	Shape Shape     // Dimensions; empty means uninitialized
	Data  []float32 // Row-major values, len == Size() after Resize
	Grad  []float32 // Gradient, len == Size() after ResizeGrad
}

// New creates a tensor with the given dimensions and a zero-filled Data buffer.
// Grad is left unsized.
func New(dims ...int) (*Tensor, error) {
	t := &Tensor{Shape: Shape(dims).Clone()}
	if err := t.Resize(); err != nil {
		return nil, err
	}
	return t, nil
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, errors.Wrapf(ErrSizeMismatch, "shape %v requires %d elements, but got %d",
			shape, shape.NumElements(), len(data))
	}
	t := &Tensor{
		Shape: shape.Clone(),
		Data:  make([]float32, len(data)),
	}
	copy(t.Data, data)
	return t, nil
}

// ValidateShape reports whether the shape is non-empty with all dimensions > 0.
func (t *Tensor) ValidateShape() bool {
	return t.Shape.Validate() == nil
}

// Size returns the number of elements described by Shape.
// Fails with ErrInvalidShape if ValidateShape is false.
func (t *Tensor) Size() (int, error) {
	if err := t.Shape.Validate(); err != nil {
		return 0, err
	}
	return t.Shape.NumElements(), nil
}

// Resize sizes Data to exactly Size() elements.
// Values already present are kept up to the overlap; new elements are zero.
func (t *Tensor) Resize() error {
	n, err := t.Size()
	if err != nil {
		return errors.WithMessage(err, "Resize")
	}
	t.Data = resizeBuffer(t.Data, n)
	return nil
}

// ResizeGrad sizes Grad to exactly Size() elements, keeping resident values.
// Data is not touched.
func (t *Tensor) ResizeGrad() error {
	n, err := t.Size()
	if err != nil {
		return errors.WithMessage(err, "ResizeGrad")
	}
	t.Grad = resizeBuffer(t.Grad, n)
	return nil
}

// ZeroGrad sets every element of Grad to 0.
// It is a no-op if Grad was never sized.
func (t *Tensor) ZeroGrad() {
	clear(t.Grad)
}

// Clone creates a deep copy of the tensor, including its gradient.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{Shape: t.Shape.Clone()}
	if t.Data != nil {
		c.Data = append([]float32(nil), t.Data...)
	}
	if t.Grad != nil {
		c.Grad = append([]float32(nil), t.Grad...)
	}
	return c
}

// SameShape reports whether t and other have equal shapes.
func (t *Tensor) SameShape(other *Tensor) bool {
	return t.Shape.Equal(other.Shape)
}

func resizeBuffer(buf []float32, n int) []float32 {
	if n <= len(buf) {
		return buf[:n]
	}
	if n <= cap(buf) {
		// Elements between len and cap may hold values from an earlier, larger size.
		tail := buf[len(buf):n]
		clear(tail)
		return buf[:n]
	}
	grown := make([]float32, n)
	copy(grown, buf)
	return grown
}
