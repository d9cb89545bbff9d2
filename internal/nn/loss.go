package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/stacknet/internal/tensor"
)

// MSELoss computes Mean Squared Error loss.
//
// Loss = mean((pred - target)²)
//
// Only the flattened sizes of pred and target must agree. Returns a tensor of
// shape [1]. The loss produces no gradient: seed the model's output gradient
// yourself, or use MSELossGrad.
func MSELoss(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	if len(pred.Data) != len(target.Data) {
		return nil, errors.Wrapf(tensor.ErrSizeMismatch, "MSELoss: prediction has %d values, target has %d",
			len(pred.Data), len(target.Data))
	}
	if len(pred.Data) == 0 {
		return nil, errors.Wrap(tensor.ErrIllegalState, "MSELoss: empty prediction")
	}

	var sum float32
	for i, p := range pred.Data {
		diff := p - target.Data[i]
		sum += diff * diff
	}

	loss := &tensor.Tensor{Shape: tensor.Shape{1}, Data: []float32{sum / float32(len(pred.Data))}}
	return loss, nil
}

// MSELossGrad writes dLoss/dPred = 2·(pred - target)/n into pred.Grad,
// resizing it to match pred.Shape.
func MSELossGrad(pred, target *tensor.Tensor) error {
	if len(pred.Data) != len(target.Data) {
		return errors.Wrapf(tensor.ErrSizeMismatch, "MSELossGrad: prediction has %d values, target has %d",
			len(pred.Data), len(target.Data))
	}
	if err := pred.ResizeGrad(); err != nil {
		return errors.WithMessage(err, "MSELossGrad")
	}
	if len(pred.Grad) != len(pred.Data) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "MSELossGrad: prediction shape %v does not match its %d values",
			pred.Shape, len(pred.Data))
	}
	scale := 2 / float32(len(pred.Data))
	for i, p := range pred.Data {
		pred.Grad[i] = scale * (p - target.Data[i])
	}
	return nil
}
