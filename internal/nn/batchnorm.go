package nn

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/stacknet/internal/tensor"
)

// BatchNormConfig configures a batch normalization layer.
type BatchNormConfig struct {
	Eps               float32 // Added to the variance before the square root.
	Momentum          float32 // Weight of the new batch statistic in the running averages.
	Affine            bool    // Learn a per-channel scale (gamma) and shift (beta).
	TrackRunningStats bool    // Maintain running mean and variance.
}

// DefaultBatchNormConfig returns eps=1e-5, momentum=0.1, affine and running statistics enabled.
func DefaultBatchNormConfig() BatchNormConfig {
	return BatchNormConfig{
		Eps:               1e-5,
		Momentum:          0.1,
		Affine:            true,
		TrackRunningStats: true,
	}
}

// batchNorm is the rank-generic implementation shared by BatchNorm1d, 2d and 3d.
//
// Inputs are laid out as [N, C, spatial...]; statistics are computed per
// channel C over the batch and all spatial positions. Element (n, c, s) lives
// at index (n*C + c)*S + s, where S is the product of the spatial dimensions
// (1 for rank-2 inputs).
//
// Forward caches a copy of its input so Backward can recompute the batch
// statistics. A layer instance therefore supports a single forward in flight
// per backward; interleaving forwards on the same instance is a usage error.
type batchNorm struct {
	name        string
	rank        int
	layout      string // expected layout, for error messages
	numFeatures int
	cfg         BatchNormConfig

	// resetGrads zeroes gamma/beta gradients at the start of every Backward.
	// BatchNorm1d accumulates across calls instead.
	resetGrads bool

	gamma       tensor.Tensor // [C], present iff cfg.Affine
	beta        tensor.Tensor // [C], present iff cfg.Affine
	runningMean tensor.Tensor // [C], present iff cfg.TrackRunningStats
	runningVar  tensor.Tensor // [C], present iff cfg.TrackRunningStats

	input       []float32 // last forward input
	inputShape  tensor.Shape
	firstUpdate bool
}

func newBatchNorm(name string, rank int, layout string, numFeatures int, cfg BatchNormConfig, resetGrads bool) batchNorm {
	bn := batchNorm{
		name:        name,
		rank:        rank,
		layout:      layout,
		numFeatures: numFeatures,
		cfg:         cfg,
		resetGrads:  resetGrads,
		firstUpdate: true,
	}
	if cfg.Affine {
		bn.gamma = newParameter(numFeatures)
		bn.beta = newParameter(numFeatures)
		Uniform(&bn.gamma, gammaInitLow, gammaInitHigh)
	}
	if cfg.TrackRunningStats {
		bn.runningMean = newBuffer(numFeatures)
		bn.runningVar = newBuffer(numFeatures)
	}
	return bn
}

// dims splits a validated shape into batch size, channel count and spatial size.
func (bn *batchNorm) dims(shape tensor.Shape) (n, c, spatial int) {
	spatial = 1
	for _, d := range shape[2:] {
		spatial *= d
	}
	return shape[0], shape[1], spatial
}

func (bn *batchNorm) checkShape(op string, shape tensor.Shape) error {
	if len(shape) != bn.rank {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s.%s: expected %s input, got %v", bn.name, op, bn.layout, shape)
	}
	if shape[1] != bn.numFeatures {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s.%s: expected %d channels, got %d (shape %v)",
			bn.name, op, bn.numFeatures, shape[1], shape)
	}
	if err := shape.Validate(); err != nil {
		return errors.WithMessagef(err, "%s.%s", bn.name, op)
	}
	return nil
}

// channelStats returns the mean and biased (divide-by-count) variance of channel c.
func channelStats(x []float32, n, c, numChannels, spatial int) (mean, variance float32) {
	count := float32(n * spatial)
	for b := 0; b < n; b++ {
		base := (b*numChannels + c) * spatial
		for _, v := range x[base : base+spatial] {
			mean += v
		}
	}
	mean /= count

	for b := 0; b < n; b++ {
		base := (b*numChannels + c) * spatial
		for _, v := range x[base : base+spatial] {
			diff := v - mean
			variance += diff * diff
		}
	}
	variance /= count
	return mean, variance
}

func (bn *batchNorm) invStd(variance float32) float32 {
	return 1 / float32(math.Sqrt(float64(variance+bn.cfg.Eps)))
}

func (bn *batchNorm) forward(input, output *tensor.Tensor) error {
	if err := bn.checkShape("Forward", input.Shape); err != nil {
		return err
	}
	size := input.Shape.NumElements()
	if len(input.Data) != size {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s.Forward: input has %d values, shape %v needs %d",
			bn.name, len(input.Data), input.Shape, size)
	}

	n, numChannels, spatial := bn.dims(input.Shape)
	output.Shape = input.Shape.Clone()
	if err := output.Resize(); err != nil {
		return err
	}
	bn.input = append(bn.input[:0], input.Data...)
	bn.inputShape = input.Shape.Clone()

	for c := 0; c < numChannels; c++ {
		mean, variance := channelStats(input.Data, n, c, numChannels, spatial)
		bn.updateRunningStats(c, mean, variance)

		inv := bn.invStd(variance)
		scale, shift := float32(1), float32(0)
		if bn.cfg.Affine {
			scale, shift = bn.gamma.Data[c], bn.beta.Data[c]
		}
		for b := 0; b < n; b++ {
			base := (b*numChannels + c) * spatial
			for i := base; i < base+spatial; i++ {
				xHat := (input.Data[i] - mean) * inv
				output.Data[i] = scale*xHat + shift
			}
		}
	}

	if bn.cfg.TrackRunningStats && bn.firstUpdate {
		klog.V(2).Infof("%s: running statistics initialized from a batch of %d", bn.label(), n)
	}
	bn.firstUpdate = false
	return nil
}

// updateRunningStats assigns the batch statistics on the first forward and
// blends them with an exponential moving average afterwards.
func (bn *batchNorm) updateRunningStats(c int, mean, variance float32) {
	if !bn.cfg.TrackRunningStats {
		return
	}
	if bn.firstUpdate {
		bn.runningMean.Data[c] = mean
		bn.runningVar.Data[c] = variance
		return
	}
	m := bn.cfg.Momentum
	bn.runningMean.Data[c] = (1-m)*bn.runningMean.Data[c] + m*mean
	bn.runningVar.Data[c] = (1-m)*bn.runningVar.Data[c] + m*variance
}

func (bn *batchNorm) backward(output, input *tensor.Tensor) error {
	if bn.input == nil {
		return errors.Wrapf(tensor.ErrIllegalState, "%s.Backward: no cached input, call Forward first", bn.name)
	}
	if err := bn.checkShape("Backward", output.Shape); err != nil {
		return err
	}
	if err := upstreamGrad(bn.name, output); err != nil {
		return err
	}
	// Same-size gradients with another [N, C, spatial] split would pair the wrong elements.
	if !output.Shape.Equal(bn.inputShape) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s.Backward: gradient shape %v does not match forward input shape %v",
			bn.name, output.Shape, bn.inputShape)
	}

	n, numChannels, spatial := bn.dims(output.Shape)
	input.Shape = output.Shape.Clone()
	if err := input.Resize(); err != nil {
		return err
	}
	if err := input.ResizeGrad(); err != nil {
		return err
	}
	if bn.cfg.Affine && bn.resetGrads {
		bn.gamma.ZeroGrad()
		bn.beta.ZeroGrad()
	}

	count := float32(n * spatial)
	xHat := make([]float32, n*spatial)
	for c := 0; c < numChannels; c++ {
		// Statistics are recomputed from the cached input, not carried over from Forward.
		mean, variance := channelStats(bn.input, n, c, numChannels, spatial)
		inv := bn.invStd(variance)
		g := float32(1)
		if bn.cfg.Affine {
			g = bn.gamma.Data[c]
		}

		var sumDy, sumDyXHat float32
		pos := 0
		for b := 0; b < n; b++ {
			base := (b*numChannels + c) * spatial
			for i := base; i < base+spatial; i++ {
				xHat[pos] = (bn.input[i] - mean) * inv
				dy := output.Grad[i]
				sumDy += dy
				sumDyXHat += dy * xHat[pos]
				pos++
			}
		}

		meanDy := sumDy / count
		meanDyXHat := sumDyXHat / count
		pos = 0
		for b := 0; b < n; b++ {
			base := (b*numChannels + c) * spatial
			for i := base; i < base+spatial; i++ {
				input.Grad[i] = inv*g*output.Grad[i] - inv*g*meanDy - inv*g*xHat[pos]*meanDyXHat
				pos++
			}
		}

		if bn.cfg.Affine {
			bn.beta.Grad[c] += sumDy
			bn.gamma.Grad[c] += sumDyXHat
		}
	}
	return nil
}

func (bn *batchNorm) parameters() []*tensor.Tensor {
	if bn.cfg.Affine {
		return []*tensor.Tensor{&bn.gamma, &bn.beta}
	}
	return nil
}

func (bn *batchNorm) label() string {
	return fmt.Sprintf("%s(%d)", bn.name, bn.numFeatures)
}

// Gamma returns the learned scale, or nil if the layer is not affine.
func (bn *batchNorm) Gamma() *tensor.Tensor {
	if !bn.cfg.Affine {
		return nil
	}
	return &bn.gamma
}

// Beta returns the learned shift, or nil if the layer is not affine.
func (bn *batchNorm) Beta() *tensor.Tensor {
	if !bn.cfg.Affine {
		return nil
	}
	return &bn.beta
}

// RunningMean returns the running mean, or nil if running statistics are disabled.
// It is not a parameter and carries no gradient.
func (bn *batchNorm) RunningMean() *tensor.Tensor {
	if !bn.cfg.TrackRunningStats {
		return nil
	}
	return &bn.runningMean
}

// RunningVar returns the running variance, or nil if running statistics are disabled.
func (bn *batchNorm) RunningVar() *tensor.Tensor {
	if !bn.cfg.TrackRunningStats {
		return nil
	}
	return &bn.runningVar
}

// NumFeatures returns the number of channels C.
func (bn *batchNorm) NumFeatures() int {
	return bn.numFeatures
}

// Config returns the layer configuration.
func (bn *batchNorm) Config() BatchNormConfig {
	return bn.cfg
}

// BatchNorm1d normalizes [batch_size, num_features] inputs per feature.
//
// Unlike BatchNorm2d and BatchNorm3d, Backward adds into the gamma/beta
// gradients without clearing them first, so repeated Backward calls accumulate.
type BatchNorm1d struct {
	batchNorm
}

// NewBatchNorm1d creates a BatchNorm1d layer with DefaultBatchNormConfig.
func NewBatchNorm1d(numFeatures int) *BatchNorm1d {
	return NewBatchNorm1dWithConfig(numFeatures, DefaultBatchNormConfig())
}

// NewBatchNorm1dWithConfig creates a BatchNorm1d layer.
func NewBatchNorm1dWithConfig(numFeatures int, cfg BatchNormConfig) *BatchNorm1d {
	return &BatchNorm1d{newBatchNorm("BatchNorm1d", 2, "[batch_size, num_features]", numFeatures, cfg, false)}
}

// Forward normalizes input with the batch statistics of each feature.
func (l *BatchNorm1d) Forward(input, output *tensor.Tensor) error { return l.forward(input, output) }

// Backward computes the input gradient and adds into the gamma/beta gradients.
func (l *BatchNorm1d) Backward(output, input *tensor.Tensor) error { return l.backward(output, input) }

// Parameters returns [gamma, beta] if affine, otherwise nothing.
func (l *BatchNorm1d) Parameters() []*tensor.Tensor { return l.parameters() }

// String returns "BatchNorm1d(C)".
func (l *BatchNorm1d) String() string { return l.label() }

// BatchNorm2d normalizes [N, C, H, W] inputs per channel.
//
// Backward resets the gamma/beta gradients before writing them.
type BatchNorm2d struct {
	batchNorm
}

// NewBatchNorm2d creates a BatchNorm2d layer with DefaultBatchNormConfig.
func NewBatchNorm2d(numFeatures int) *BatchNorm2d {
	return NewBatchNorm2dWithConfig(numFeatures, DefaultBatchNormConfig())
}

// NewBatchNorm2dWithConfig creates a BatchNorm2d layer.
func NewBatchNorm2dWithConfig(numFeatures int, cfg BatchNormConfig) *BatchNorm2d {
	return &BatchNorm2d{newBatchNorm("BatchNorm2d", 4, "[N, C, H, W]", numFeatures, cfg, true)}
}

// Forward normalizes input with the batch statistics of each channel.
func (l *BatchNorm2d) Forward(input, output *tensor.Tensor) error { return l.forward(input, output) }

// Backward computes the input gradient and the gamma/beta gradients of this call.
func (l *BatchNorm2d) Backward(output, input *tensor.Tensor) error { return l.backward(output, input) }

// Parameters returns [gamma, beta] if affine, otherwise nothing.
func (l *BatchNorm2d) Parameters() []*tensor.Tensor { return l.parameters() }

// String returns "BatchNorm2d(C)".
func (l *BatchNorm2d) String() string { return l.label() }

// BatchNorm3d normalizes [N, C, D, H, W] inputs per channel.
//
// Backward resets the gamma/beta gradients before writing them.
type BatchNorm3d struct {
	batchNorm
}

// NewBatchNorm3d creates a BatchNorm3d layer with DefaultBatchNormConfig.
func NewBatchNorm3d(numFeatures int) *BatchNorm3d {
	return NewBatchNorm3dWithConfig(numFeatures, DefaultBatchNormConfig())
}

// NewBatchNorm3dWithConfig creates a BatchNorm3d layer.
func NewBatchNorm3dWithConfig(numFeatures int, cfg BatchNormConfig) *BatchNorm3d {
	return &BatchNorm3d{newBatchNorm("BatchNorm3d", 5, "[N, C, D, H, W]", numFeatures, cfg, true)}
}

// Forward normalizes input with the batch statistics of each channel.
func (l *BatchNorm3d) Forward(input, output *tensor.Tensor) error { return l.forward(input, output) }

// Backward computes the input gradient and the gamma/beta gradients of this call.
func (l *BatchNorm3d) Backward(output, input *tensor.Tensor) error { return l.backward(output, input) }

// Parameters returns [gamma, beta] if affine, otherwise nothing.
func (l *BatchNorm3d) Parameters() []*tensor.Tensor { return l.parameters() }

// String returns "BatchNorm3d(C)".
func (l *BatchNorm3d) String() string { return l.label() }
