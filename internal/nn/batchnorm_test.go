package nn_test

import (
	"fmt"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/stacknet/internal/nn"
	"github.com/born-ml/stacknet/internal/tensor"
)

// batchNormLayer is the API shared by the three batch normalization variants.
type batchNormLayer interface {
	nn.Layer
	Gamma() *tensor.Tensor
	Beta() *tensor.Tensor
	RunningMean() *tensor.Tensor
	RunningVar() *tensor.Tensor
	NumFeatures() int
}

type batchNormCase struct {
	name   string
	new    func(numFeatures int) batchNormLayer
	newCfg func(numFeatures int, cfg nn.BatchNormConfig) batchNormLayer
	shape  tensor.Shape // valid input shape with 2 channels
	bad    tensor.Shape // wrong channel count

	// regrouped has the element count and channels of shape with another
	// batch/spatial split; nil when no such layout exists.
	regrouped tensor.Shape
}

func batchNormCases() []batchNormCase {
	return []batchNormCase{
		{
			name:   "BatchNorm1d",
			new:    func(c int) batchNormLayer { return nn.NewBatchNorm1d(c) },
			newCfg: func(c int, cfg nn.BatchNormConfig) batchNormLayer { return nn.NewBatchNorm1dWithConfig(c, cfg) },
			shape:  tensor.Shape{4, 2},
			bad:    tensor.Shape{4, 3},
		},
		{
			name:   "BatchNorm2d",
			new:    func(c int) batchNormLayer { return nn.NewBatchNorm2d(c) },
			newCfg: func(c int, cfg nn.BatchNormConfig) batchNormLayer { return nn.NewBatchNorm2dWithConfig(c, cfg) },
			shape:  tensor.Shape{2, 2, 3, 3},
			bad:    tensor.Shape{2, 3, 3, 3},

			regrouped: tensor.Shape{1, 2, 6, 3},
		},
		{
			name:   "BatchNorm3d",
			new:    func(c int) batchNormLayer { return nn.NewBatchNorm3d(c) },
			newCfg: func(c int, cfg nn.BatchNormConfig) batchNormLayer { return nn.NewBatchNorm3dWithConfig(c, cfg) },
			shape:  tensor.Shape{2, 2, 3, 3, 3},
			bad:    tensor.Shape{2, 3, 3, 3, 3},

			regrouped: tensor.Shape{1, 2, 6, 3, 3},
		},
	}
}

// ramp returns a tensor of the given shape filled with 1, 2, 3, ...
func ramp(shape tensor.Shape) *tensor.Tensor {
	x := must.M1(tensor.New(shape...))
	for i := range x.Data {
		x.Data[i] = float32(i + 1)
	}
	return x
}

func constant(shape tensor.Shape, value float32) *tensor.Tensor {
	x := must.M1(tensor.New(shape...))
	nn.Fill(x, value)
	return x
}

func nonAffine() nn.BatchNormConfig {
	cfg := nn.DefaultBatchNormConfig()
	cfg.Affine = false
	return cfg
}

func TestBatchNorm_Initialization(t *testing.T) {
	for _, tc := range batchNormCases() {
		t.Run(tc.name, func(t *testing.T) {
			bn := tc.new(16)
			assert.Equal(t, fmt.Sprintf("%s(16)", tc.name), bn.String())
			assert.Equal(t, 16, bn.NumFeatures())

			params := bn.Parameters()
			require.Len(t, params, 2)
			assert.Same(t, bn.Gamma(), params[0])
			assert.Same(t, bn.Beta(), params[1])
			for _, p := range params {
				assert.Equal(t, tensor.Shape{16}, p.Shape)
				assert.Len(t, p.Data, 16)
				assert.Len(t, p.Grad, 16)
			}
			for i, g := range bn.Gamma().Data {
				assert.InDelta(t, 1.0, g, 0.1+1e-6, "gamma[%d]", i)
				assert.Zero(t, bn.Beta().Data[i], "beta[%d]", i)
			}

			require.NotNil(t, bn.RunningMean())
			require.NotNil(t, bn.RunningVar())
			assert.Empty(t, bn.RunningMean().Grad, "running statistics carry no gradient")
		})
	}
}

func TestBatchNorm_ConfigFlags(t *testing.T) {
	for _, tc := range batchNormCases() {
		t.Run(tc.name, func(t *testing.T) {
			cfg := nonAffine()
			cfg.TrackRunningStats = false
			bn := tc.newCfg(2, cfg)
			assert.Empty(t, bn.Parameters())
			assert.Nil(t, bn.Gamma())
			assert.Nil(t, bn.Beta())
			assert.Nil(t, bn.RunningMean())
			assert.Nil(t, bn.RunningVar())

			var output tensor.Tensor
			require.NoError(t, bn.Forward(ramp(tc.shape), &output))
			require.NoError(t, output.ResizeGrad())
			var inputGrad tensor.Tensor
			require.NoError(t, bn.Backward(&output, &inputGrad))
		})
	}
}

func TestBatchNorm_ConstantChannelIsZero(t *testing.T) {
	for _, tc := range batchNormCases() {
		t.Run(tc.name, func(t *testing.T) {
			bn := tc.newCfg(2, nonAffine())
			var output tensor.Tensor
			require.NoError(t, bn.Forward(constant(tc.shape, 1), &output))
			assert.Equal(t, tc.shape, output.Shape)
			for i, v := range output.Data {
				assert.InDelta(t, 0, v, 1e-4, "output[%d]", i)
			}

			// With affine enabled the constant channel collapses to beta (zero at init).
			affine := tc.new(2)
			require.NoError(t, affine.Forward(constant(tc.shape, 1), &output))
			for i, v := range output.Data {
				assert.InDelta(t, 0, v, 1e-4, "affine output[%d]", i)
			}
		})
	}
}

func TestBatchNorm_InvalidInputShape(t *testing.T) {
	for _, tc := range batchNormCases() {
		t.Run(tc.name, func(t *testing.T) {
			bn := tc.new(2)
			var output tensor.Tensor
			require.ErrorIs(t, bn.Forward(must.M1(tensor.New(tc.bad...)), &output), tensor.ErrShapeMismatch)

			wrongRank := append(tc.shape.Clone(), 1)
			require.ErrorIs(t, bn.Forward(must.M1(tensor.New(wrongRank...)), &output), tensor.ErrShapeMismatch)
		})
	}
}

func TestBatchNorm_BackwardWithoutForward(t *testing.T) {
	for _, tc := range batchNormCases() {
		t.Run(tc.name, func(t *testing.T) {
			bn := tc.new(2)
			gradOutput := withGrad(t, must.M1(tensor.New(tc.shape...)), 1)
			var gradInput tensor.Tensor
			err := bn.Backward(gradOutput, &gradInput)
			require.ErrorIs(t, err, tensor.ErrIllegalState)
			assert.Contains(t, err.Error(), "call Forward first")
		})
	}
}

func TestBatchNorm_BackwardInvalidGradOutput(t *testing.T) {
	for _, tc := range batchNormCases() {
		t.Run(tc.name, func(t *testing.T) {
			bn := tc.new(2)
			var output tensor.Tensor
			require.NoError(t, bn.Forward(constant(tc.shape, 1), &output))

			var gradInput tensor.Tensor
			bad := withGrad(t, must.M1(tensor.New(tc.bad...)), 1)
			require.ErrorIs(t, bn.Backward(bad, &gradInput), tensor.ErrShapeMismatch)

			// Right layout, different batch size than the cached input.
			bigger := tc.shape.Clone()
			bigger[0]++
			require.ErrorIs(t, bn.Backward(withGrad(t, must.M1(tensor.New(bigger...)), 1), &gradInput),
				tensor.ErrShapeMismatch)

			// Same number of values, different layout.
			if tc.regrouped != nil {
				require.Equal(t, tc.shape.NumElements(), tc.regrouped.NumElements())
				regrouped := withGrad(t, must.M1(tensor.New(tc.regrouped...)), 1)
				require.ErrorIs(t, bn.Backward(regrouped, &gradInput), tensor.ErrShapeMismatch)
			}

			// Missing upstream gradient.
			require.ErrorIs(t, bn.Backward(&output, &gradInput), tensor.ErrIllegalState)
		})
	}
}

func TestBatchNorm_Backward(t *testing.T) {
	for _, tc := range batchNormCases() {
		t.Run(tc.name, func(t *testing.T) {
			bn := tc.new(2)
			var output tensor.Tensor
			require.NoError(t, bn.Forward(ramp(tc.shape), &output))
			withGrad(t, &output, 1)

			var gradInput tensor.Tensor
			require.NoError(t, bn.Backward(&output, &gradInput))
			assert.Equal(t, tc.shape, gradInput.Shape)
			require.Len(t, gradInput.Grad, tc.shape.NumElements())

			// A uniform upstream gradient is absorbed entirely by beta.
			perChannel := float32(tc.shape.NumElements() / 2)
			for i, g := range gradInput.Grad {
				assert.InDelta(t, 0, g, 1e-4, "grad[%d]", i)
			}
			assert.InDeltaSlice(t, []float32{perChannel, perChannel}, bn.Beta().Grad, 1e-4)
			assert.InDeltaSlice(t, []float32{0, 0}, bn.Gamma().Grad, 1e-3)
		})
	}
}

func TestBatchNorm1d_Reference(t *testing.T) {
	bn := nn.NewBatchNorm1dWithConfig(2, nonAffine())
	input := must.M1(tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{4, 2}))

	var output tensor.Tensor
	require.NoError(t, bn.Forward(input, &output))
	// Each feature has variance 5 around means 4 and 5.
	xHat := []float32{-1.3416370, -0.4472123, 0.4472123, 1.3416370}
	for b, want := range xHat {
		assert.InDelta(t, want, output.Data[b*2], 1e-4)
		assert.InDelta(t, want, output.Data[b*2+1], 1e-4)
	}
	for i, v := range output.Data {
		assert.NotEqual(t, input.Data[i], v)
	}

	output.Grad = []float32{1, 0, 0, 0, 0, 0, 0, 0}
	var gradInput tensor.Tensor
	require.NoError(t, bn.Backward(&output, &gradInput))
	assert.InDeltaSlice(t,
		[]float32{0.1341641, 0, -0.1788854, 0, -0.0447214, 0, 0.0894427, 0},
		gradInput.Grad, 1e-4)
}

func TestBatchNorm_GradientSumsToZero(t *testing.T) {
	for _, tc := range batchNormCases() {
		t.Run(tc.name, func(t *testing.T) {
			bn := tc.new(2)
			input := ramp(tc.shape)
			for i := range input.Data {
				input.Data[i] = float32((i*7)%11) - 5
			}
			var output tensor.Tensor
			require.NoError(t, bn.Forward(input, &output))
			require.NoError(t, output.ResizeGrad())
			for i := range output.Grad {
				output.Grad[i] = float32((i*5)%13)/13 - 0.5
			}

			var gradInput tensor.Tensor
			require.NoError(t, bn.Backward(&output, &gradInput))

			// Normalization removes the mean, so its gradient has zero sum per channel.
			n, c := tc.shape[0], tc.shape[1]
			spatial := tc.shape.NumElements() / (n * c)
			for ch := 0; ch < c; ch++ {
				var sum float64
				for b := 0; b < n; b++ {
					base := (b*c + ch) * spatial
					for _, g := range gradInput.Grad[base : base+spatial] {
						sum += float64(g)
					}
				}
				assert.InDelta(t, 0, sum, 1e-4, "channel %d", ch)
			}
		})
	}
}

func TestBatchNorm_RunningStats(t *testing.T) {
	bn := nn.NewBatchNorm1d(2)
	input := must.M1(tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{4, 2}))

	var output tensor.Tensor
	require.NoError(t, bn.Forward(input, &output))
	// First call assigns the batch statistics directly.
	assert.InDeltaSlice(t, []float32{4, 5}, bn.RunningMean().Data, tolerance)
	assert.InDeltaSlice(t, []float32{5, 5}, bn.RunningVar().Data, tolerance)

	shifted := input.Clone()
	for i := range shifted.Data {
		shifted.Data[i]++
	}
	require.NoError(t, bn.Forward(shifted, &output))
	// Then blends with momentum 0.1.
	assert.InDeltaSlice(t, []float32{4.1, 5.1}, bn.RunningMean().Data, tolerance)
	assert.InDeltaSlice(t, []float32{5, 5}, bn.RunningVar().Data, tolerance)

	// Running statistics are not used to normalize.
	assert.InDelta(t, -1.3416370*bn.Gamma().Data[0], output.Data[0], 1e-4)
}

// TestBatchNorm_ParameterGradReset pins the differing gamma/beta gradient
// behavior: BatchNorm1d accumulates across Backward calls, 2d and 3d restart.
func TestBatchNorm_ParameterGradReset(t *testing.T) {
	for _, tc := range batchNormCases() {
		t.Run(tc.name, func(t *testing.T) {
			bn := tc.new(2)
			var output tensor.Tensor
			require.NoError(t, bn.Forward(ramp(tc.shape), &output))
			withGrad(t, &output, 1)

			var gradInput tensor.Tensor
			require.NoError(t, bn.Backward(&output, &gradInput))
			require.NoError(t, bn.Backward(&output, &gradInput))

			perChannel := float32(tc.shape.NumElements() / 2)
			want := perChannel
			if tc.name == "BatchNorm1d" {
				want = 2 * perChannel
			}
			assert.InDeltaSlice(t, []float32{want, want}, bn.Beta().Grad, 1e-4)
		})
	}
}

func TestBatchNorm_InModel(t *testing.T) {
	model := must.M1(nn.NewModel(
		nn.NewLinear(3, 4),
		nn.NewBatchNorm1d(4),
		nn.NewReLU(),
		nn.NewLinear(4, 1),
	))
	input := must.M1(tensor.FromSlice([]float32{
		0.1, 0.2, 0.3,
		0.4, 0.5, 0.6,
		-0.3, 0.9, 0.0,
	}, tensor.Shape{3, 3}))

	var output tensor.Tensor
	require.NoError(t, model.Forward(input, &output))
	assert.Equal(t, tensor.Shape{3, 1}, output.Shape)

	withGrad(t, &output, 1)
	require.NoError(t, model.Backward(&output, input))
	assert.Len(t, input.Grad, 9)
	assert.Len(t, model.Parameters(), 6)
}
