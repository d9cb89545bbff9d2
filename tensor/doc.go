// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense float32 tensor used by the stacknet layers.
//
// # Overview
//
// A Tensor is a plain value with three fields:
//   - Shape: the dimensions, row-major (the last index varies fastest)
//   - Data: the values, len(Data) == Shape.NumElements() once sized
//   - Grad: the gradient buffer, empty until a backward pass sizes it
//
// There is no device abstraction and no broadcasting. Tensors live in host
// memory and layers read and write their buffers directly.
//
// # Basic Usage
//
//	import "github.com/born-ml/stacknet/tensor"
//
//	func main() {
//	    x, err := tensor.New(2, 3)  // zero-filled [2, 3]
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    x.Data[0] = 1
//
//	    y, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	    fmt.Println(y)  // Tensor(shape=[2, 2], data=[1, 2, 3, 4])
//	}
//
// # Resizing
//
// Resize and ResizeGrad size the buffers to match Shape. Values that remain
// in range are kept; new elements start at zero:
//
//	x.Shape = tensor.Shape{4, 3}
//	if err := x.Resize(); err != nil { ... }
//
// # Errors
//
// Failures wrap one of the sentinel errors, so callers can match with
// errors.Is:
//
//	if errors.Is(err, tensor.ErrInvalidShape) { ... }
package tensor
