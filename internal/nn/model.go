package nn

import (
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/stacknet/internal/tensor"
)

// Model chains layers into a single forward/backward pipeline.
//
// Each layer's output becomes the next layer's input. The intermediate
// outputs (activations) are owned by the model and kept until the next
// Forward, so Backward can hand every layer the tensor it produced:
//
//	model, _ := nn.NewModel(
//	    nn.NewLinear(3, 2),
//	    nn.NewReLU(),
//	    nn.NewLinear(2, 1),
//	)
//
//	var output tensor.Tensor
//	err := model.Forward(input, &output)
//	// fill output.Grad with dLoss/dOutput
//	err = model.Backward(&output, input) // input.Grad now holds dLoss/dInput
//
// A model with no layers can be built and extended with AddLayer, but running
// Forward or Backward on it is a usage error (ErrIllegalState).
//
// A Model is not safe for concurrent use: Forward rebuilds the activation cache.
type Model struct {
	layers      []Layer
	activations []tensor.Tensor // len(layers)-1 after Forward; nil before
}

// NewModel creates a Model from the given layers, in execution order.
func NewModel(layers ...Layer) (*Model, error) {
	m := &Model{}
	for _, layer := range layers {
		if err := m.AddLayer(layer); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddLayer appends a layer to the sequence. The model takes ownership of it.
//
// This allows building models incrementally:
//
//	model, _ := nn.NewModel()
//	_ = model.AddLayer(nn.NewLinear(784, 128))
//	_ = model.AddLayer(nn.NewReLU())
//	_ = model.AddLayer(nn.NewLinear(128, 10))
func (m *Model) AddLayer(layer Layer) error {
	if layer == nil {
		return errors.Wrapf(tensor.ErrIllegalState, "Model.AddLayer: nil layer at position %d", len(m.layers))
	}
	m.layers = append(m.layers, layer)
	return nil
}

// Forward streams input through every layer and writes the last layer's
// result into output.
//
// Fails with ErrIllegalState if the model has no layers.
func (m *Model) Forward(input, output *tensor.Tensor) error {
	if len(m.layers) == 0 {
		return errors.Wrap(tensor.ErrIllegalState, "Model.Forward: model has no layers")
	}

	numActivations := len(m.layers) - 1
	if len(m.activations) != numActivations || m.activations == nil {
		m.activations = make([]tensor.Tensor, numActivations)
	}

	current := input
	for i, layer := range m.layers {
		next := output
		if i < numActivations {
			next = &m.activations[i]
		}
		if err := layer.Forward(current, next); err != nil {
			m.activations = nil
			return errors.WithMessagef(err, "Model.Forward: layer %d (%s)", i, layer)
		}
		klog.V(3).Infof("forward %d %s: %v -> %v", i, layer, current.Shape, next.Shape)
		current = next
	}
	return nil
}

// Backward streams the gradient in output.Grad back through the layers in
// reverse order and writes the resulting gradient into input.Grad.
//
// output and input must be the tensors passed to the preceding Forward.
// Fails with ErrIllegalState if Forward has not populated the activation cache
// for the current layer stack.
func (m *Model) Backward(output, input *tensor.Tensor) error {
	if len(m.layers) == 0 {
		return errors.Wrap(tensor.ErrIllegalState, "Model.Backward: model has no layers")
	}
	if m.activations == nil || len(m.activations) != len(m.layers)-1 {
		return errors.Wrap(tensor.ErrIllegalState, "Model.Backward: forward must precede backward")
	}

	current := output
	for i := len(m.layers) - 1; i >= 0; i-- {
		prev := input
		if i > 0 {
			prev = &m.activations[i-1]
		}
		layer := m.layers[i]
		if err := layer.Backward(current, prev); err != nil {
			return errors.WithMessagef(err, "Model.Backward: layer %d (%s)", i, layer)
		}
		klog.V(3).Infof("backward %d %s: %v <- %v", i, layer, prev.Shape, current.Shape)
		current = prev
	}
	return nil
}

// Parameters returns all trainable parameters, in layer order.
//
// The returned pointers alias the live parameters: writing through them
// updates the layers.
func (m *Model) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, layer := range m.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}

// ZeroGrad clears the gradients of all parameters.
//
// Layers add into parameter gradients, so call this before each fresh
// accumulation cycle.
func (m *Model) ZeroGrad() {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}

// NumParameters returns the total number of scalar parameters.
func (m *Model) NumParameters() int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Shape.NumElements()
	}
	return total
}

// Len returns the number of layers.
func (m *Model) Len() int {
	return len(m.layers)
}

// Layer returns the layer at the given index.
//
// Panics if index is out of bounds.
func (m *Model) Layer(index int) Layer {
	if index < 0 || index >= len(m.layers) {
		panic("Model.Layer: index out of bounds")
	}
	return m.layers[index]
}

// String returns the label of every layer, one per line.
func (m *Model) String() string {
	var sb strings.Builder
	for _, layer := range m.layers {
		sb.WriteString(layer.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
