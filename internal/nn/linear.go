package nn

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/stacknet/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W + b
// where:
//   - x is the input tensor with shape [batch_size, in_features]
//   - W is the weight matrix with shape [in_features, out_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [batch_size, out_features]
//
// Weights and biases are initialized from U(-0.1, 0.1).
//
// Backward overwrites the input gradient but adds into the weight and bias
// gradients; zero them (Model.ZeroGrad) before a fresh accumulation cycle.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      tensor.Tensor // [in_features, out_features]
	bias        tensor.Tensor // [out_features]
}

// NewLinear creates a new Linear layer.
//
// Panics if inFeatures or outFeatures is not positive.
func NewLinear(inFeatures, outFeatures int) *Linear {
	l := &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      newParameter(inFeatures, outFeatures),
		bias:        newParameter(outFeatures),
	}
	Uniform(&l.weight, -linearInitBound, linearInitBound)
	Uniform(&l.bias, -linearInitBound, linearInitBound)
	return l
}

// Forward computes output = input @ W + b.
//
// Input shape: [batch_size, in_features]
// Output shape: [batch_size, out_features]
func (l *Linear) Forward(input, output *tensor.Tensor) error {
	batch, err := l.checkInput("Linear.Forward", input)
	if err != nil {
		return err
	}

	output.Shape = tensor.Shape{batch, l.outFeatures}
	if err := output.Resize(); err != nil {
		return err
	}

	// Seed every row with the bias, then accumulate x @ W on top.
	for b := 0; b < batch; b++ {
		copy(output.Data[b*l.outFeatures:(b+1)*l.outFeatures], l.bias.Data)
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans,
		1, general(input.Data, batch, l.inFeatures), l.weightMatrix(l.weight.Data),
		1, general(output.Data, batch, l.outFeatures))
	return nil
}

// Backward computes:
//
//	input.Grad  = output.Grad @ W.T
//	weight.Grad += input.T @ output.Grad
//	bias.Grad   += sum over batch of output.Grad
func (l *Linear) Backward(output, input *tensor.Tensor) error {
	if err := upstreamGrad("Linear", output); err != nil {
		return err
	}
	if len(output.Shape) != 2 || output.Shape[1] != l.outFeatures {
		return errors.Wrapf(tensor.ErrShapeMismatch, "Linear.Backward: expected output [batch, %d], got %v",
			l.outFeatures, output.Shape)
	}
	batch, err := l.checkInput("Linear.Backward", input)
	if err != nil {
		return err
	}
	if batch != output.Shape[0] {
		return errors.Wrapf(tensor.ErrShapeMismatch, "Linear.Backward: input batch %d != output batch %d",
			batch, output.Shape[0])
	}
	if err := input.ResizeGrad(); err != nil {
		return err
	}

	dy := general(output.Grad, batch, l.outFeatures)
	x := general(input.Data, batch, l.inFeatures)

	// beta=0 overwrites the input gradient; beta=1 accumulates into the weight gradient.
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, dy, l.weightMatrix(l.weight.Data), 0, general(input.Grad, batch, l.inFeatures))
	blas32.Gemm(blas.Trans, blas.NoTrans, 1, x, dy, 1, l.weightMatrix(l.weight.Grad))

	biasGrad := blas32.Vector{N: l.outFeatures, Inc: 1, Data: l.bias.Grad}
	for b := 0; b < batch; b++ {
		row := blas32.Vector{N: l.outFeatures, Inc: 1, Data: output.Grad[b*l.outFeatures : (b+1)*l.outFeatures]}
		blas32.Axpy(1, row, biasGrad)
	}
	return nil
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{&l.weight, &l.bias}
}

// String returns "Linear(in_features=I, out_features=O)".
func (l *Linear) String() string {
	return fmt.Sprintf("Linear(in_features=%d, out_features=%d)", l.inFeatures, l.outFeatures)
}

// Weight returns the weight parameter, shaped [in_features, out_features].
func (l *Linear) Weight() *tensor.Tensor {
	return &l.weight
}

// Bias returns the bias parameter, shaped [out_features].
func (l *Linear) Bias() *tensor.Tensor {
	return &l.bias
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}

// checkInput validates a [batch, in_features] input and returns the batch size.
func (l *Linear) checkInput(op string, input *tensor.Tensor) (int, error) {
	if len(input.Shape) != 2 || input.Shape[1] != l.inFeatures {
		return 0, errors.Wrapf(tensor.ErrShapeMismatch, "%s: expected input [batch, %d], got %v",
			op, l.inFeatures, input.Shape)
	}
	n, err := input.Size()
	if err != nil {
		return 0, errors.WithMessagef(err, "%s: input", op)
	}
	if len(input.Data) != n {
		return 0, errors.Wrapf(tensor.ErrShapeMismatch, "%s: input has %d values, shape %v needs %d",
			op, len(input.Data), input.Shape, n)
	}
	return input.Shape[0], nil
}

func (l *Linear) weightMatrix(data []float32) blas32.General {
	return general(data, l.inFeatures, l.outFeatures)
}

// general views a row-major buffer as a rows x cols BLAS matrix.
func general(data []float32, rows, cols int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}
