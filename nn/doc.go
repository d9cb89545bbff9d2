// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides feed-forward layers with hand-written backward passes.
//
// # Overview
//
// This package contains:
//   - Layers: Linear, BatchNorm1d, BatchNorm2d, BatchNorm3d
//   - Activations: ReLU, Sigmoid, Tanh
//   - Loss functions: MSELoss, MSELossGrad
//   - Containers: Model, an ordered chain of layers
//
// There is no autograd tape. Every layer implements Forward and Backward
// directly, and Model drives them in order and in reverse.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/stacknet/nn"
//	    "github.com/born-ml/stacknet/tensor"
//	)
//
//	func main() {
//	    model, _ := nn.NewModel(
//	        nn.NewLinear(784, 128),
//	        nn.NewReLU(),
//	        nn.NewLinear(128, 10),
//	    )
//
//	    var output tensor.Tensor
//	    if err := model.Forward(input, &output); err != nil { ... }
//	}
//
// # Backward Pass
//
// Backward reads the upstream gradient from output.Grad and writes the
// gradient with respect to the input into input.Grad. Parameter gradients
// are added into each parameter's Grad buffer:
//
//	loss, _ := nn.MSELoss(&output, target)
//	_ = nn.MSELossGrad(&output, target)  // seeds output.Grad
//	_ = model.Backward(&output, input)
//
// Parameter gradients accumulate across Backward calls (BatchNorm2d and
// BatchNorm3d excepted); call Model.ZeroGrad between steps.
//
// # Batch Normalization
//
// The BatchNorm layers normalize per channel with the statistics of the
// current batch and keep running averages for inspection:
//
//	bn := nn.NewBatchNorm2d(64)  // [N, 64, H, W]
//
//	cfg := nn.DefaultBatchNormConfig()
//	cfg.Affine = false
//	bn1 := nn.NewBatchNorm1dWithConfig(128, cfg)
//
// # Parameter Management
//
// Parameters returns pointers into the live layers:
//
//	for _, p := range model.Parameters() {
//	    fmt.Println(p.Shape, len(p.Grad))
//	}
//	fmt.Print(model.Summary())
package nn
