// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/stacknet/internal/tensor"
)

// Type aliases for public API

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// Tensor is a dense float32 tensor with an optional gradient buffer.
type Tensor = tensor.Tensor

// Errors returned (wrapped) by tensor and layer operations.
var (
	// ErrInvalidShape reports an empty shape or a non-positive dimension.
	ErrInvalidShape = tensor.ErrInvalidShape

	// ErrShapeMismatch reports a tensor whose shape is incompatible with the operation.
	ErrShapeMismatch = tensor.ErrShapeMismatch

	// ErrIllegalState reports an operation invoked out of order or on an unusable object.
	ErrIllegalState = tensor.ErrIllegalState

	// ErrSizeMismatch reports two tensors whose element counts differ.
	ErrSizeMismatch = tensor.ErrSizeMismatch
)

// New creates a zero-filled tensor with the given dimensions.
//
// Example:
//
//	x, err := tensor.New(32, 784)
func New(dims ...int) (*Tensor, error) {
	return tensor.New(dims...)
}

// FromSlice creates a tensor holding a copy of data.
//
// Example:
//
//	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}
