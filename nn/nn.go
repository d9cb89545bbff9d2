// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/stacknet/internal/nn"
	"github.com/born-ml/stacknet/internal/tensor"
)

// Layer is a single forward/backward stage of a model.
type Layer = nn.Layer

// Model chains layers into a forward/backward pipeline.
type Model = nn.Model

// NewModel creates a model from the given layers, in execution order.
//
// Example:
//
//	model, err := nn.NewModel(
//	    nn.NewLinear(3, 2),
//	    nn.NewReLU(),
//	    nn.NewLinear(2, 1),
//	)
func NewModel(layers ...Layer) (*Model, error) {
	return nn.NewModel(layers...)
}

// Layers

// Linear represents a fully connected (dense) layer.
type Linear = nn.Linear

// NewLinear creates a new linear layer with weights and bias drawn from U(-0.1, 0.1).
//
// Example:
//
//	layer := nn.NewLinear(784, 128)
func NewLinear(inFeatures, outFeatures int) *Linear {
	return nn.NewLinear(inFeatures, outFeatures)
}

// BatchNormConfig configures the batch normalization layers.
type BatchNormConfig = nn.BatchNormConfig

// DefaultBatchNormConfig returns eps=1e-5, momentum=0.1 with affine
// parameters and running statistics enabled.
func DefaultBatchNormConfig() BatchNormConfig {
	return nn.DefaultBatchNormConfig()
}

// BatchNorm1d normalizes [batch_size, num_features] inputs.
type BatchNorm1d = nn.BatchNorm1d

// NewBatchNorm1d creates a BatchNorm1d layer with the default configuration.
func NewBatchNorm1d(numFeatures int) *BatchNorm1d {
	return nn.NewBatchNorm1d(numFeatures)
}

// NewBatchNorm1dWithConfig creates a BatchNorm1d layer.
func NewBatchNorm1dWithConfig(numFeatures int, cfg BatchNormConfig) *BatchNorm1d {
	return nn.NewBatchNorm1dWithConfig(numFeatures, cfg)
}

// BatchNorm2d normalizes [N, C, H, W] inputs.
type BatchNorm2d = nn.BatchNorm2d

// NewBatchNorm2d creates a BatchNorm2d layer with the default configuration.
func NewBatchNorm2d(numFeatures int) *BatchNorm2d {
	return nn.NewBatchNorm2d(numFeatures)
}

// NewBatchNorm2dWithConfig creates a BatchNorm2d layer.
func NewBatchNorm2dWithConfig(numFeatures int, cfg BatchNormConfig) *BatchNorm2d {
	return nn.NewBatchNorm2dWithConfig(numFeatures, cfg)
}

// BatchNorm3d normalizes [N, C, D, H, W] inputs.
type BatchNorm3d = nn.BatchNorm3d

// NewBatchNorm3d creates a BatchNorm3d layer with the default configuration.
func NewBatchNorm3d(numFeatures int) *BatchNorm3d {
	return nn.NewBatchNorm3d(numFeatures)
}

// NewBatchNorm3dWithConfig creates a BatchNorm3d layer.
func NewBatchNorm3dWithConfig(numFeatures int, cfg BatchNormConfig) *BatchNorm3d {
	return nn.NewBatchNorm3dWithConfig(numFeatures, cfg)
}

// Activations

// ReLU represents the Rectified Linear Unit activation function.
type ReLU = nn.ReLU

// NewReLU creates a new ReLU activation layer.
func NewReLU() *ReLU {
	return nn.NewReLU()
}

// Sigmoid represents the logistic activation function.
type Sigmoid = nn.Sigmoid

// NewSigmoid creates a new Sigmoid activation layer.
func NewSigmoid() *Sigmoid {
	return nn.NewSigmoid()
}

// Tanh represents the hyperbolic tangent activation function.
type Tanh = nn.Tanh

// NewTanh creates a new Tanh activation layer.
func NewTanh() *Tanh {
	return nn.NewTanh()
}

// Loss functions

// MSELoss computes mean((pred - target)²) as a tensor of shape [1].
//
// Example:
//
//	loss, err := nn.MSELoss(&output, target)
func MSELoss(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	return nn.MSELoss(pred, target)
}

// MSELossGrad writes the gradient of MSELoss with respect to pred into pred.Grad.
func MSELossGrad(pred, target *tensor.Tensor) error {
	return nn.MSELossGrad(pred, target)
}

// Initialization

// Uniform fills t.Data with values drawn from U(low, high).
func Uniform(t *tensor.Tensor, low, high float32) {
	nn.Uniform(t, low, high)
}

// Fill sets every element of t.Data to value.
func Fill(t *tensor.Tensor, value float32) {
	nn.Fill(t, value)
}
