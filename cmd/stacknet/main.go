// Package main provides the stacknet CLI.
//
// It builds a small regression model, runs one forward/backward step on
// random data and reports the loss and gradient norms.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"gonum.org/v1/gonum/blas/blas32"
	"k8s.io/klog/v2"

	"github.com/born-ml/stacknet/nn"
	"github.com/born-ml/stacknet/tensor"
)

const version = "v0.1.0-dev"

var (
	flagBatch   = flag.Int("batch", 8, "Batch size.")
	flagIn      = flag.Int("in", 4, "Number of input features.")
	flagHidden  = flag.Int("hidden", 16, "Width of the hidden layer.")
	flagSeed    = flag.Int64("seed", 42, "Seed for the random input batch.")
	flagSummary = flag.Bool("summary", true, "Print the model summary table.")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("stacknet %s\n", version)
		return
	}

	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if *flagBatch < 2 {
		klog.Exitf("-batch must be at least 2 for batch normalization, got %d", *flagBatch)
	}
	if *flagIn <= 0 || *flagHidden <= 0 {
		klog.Exitf("-in and -hidden must be positive, got %d and %d", *flagIn, *flagHidden)
	}
	model := must.M1(nn.NewModel(
		nn.NewLinear(*flagIn, *flagHidden),
		nn.NewBatchNorm1d(*flagHidden),
		nn.NewReLU(),
		nn.NewLinear(*flagHidden, 1),
		nn.NewSigmoid(),
	))
	klog.Infof("model: %d layers, %s parameters", model.Len(), humanize.Comma(int64(model.NumParameters())))
	if *flagSummary {
		fmt.Println(model.Summary())
	}

	rng := rand.New(rand.NewSource(*flagSeed)) //nolint:gosec // Intentional deterministic seed for reproducibility
	input := must.M1(tensor.New(*flagBatch, *flagIn))
	for i := range input.Data {
		input.Data[i] = 2*rng.Float32() - 1
	}
	target := must.M1(tensor.New(*flagBatch, 1))
	for i := range target.Data {
		// Learnable target: is the first feature positive?
		if input.Data[i*(*flagIn)] > 0 {
			target.Data[i] = 1
		}
	}

	if err := step(model, input, target); err != nil {
		klog.Exitf("training step failed: %+v", err)
	}
}

// step runs one forward/backward pass and reports the results.
func step(model *nn.Model, input, target *tensor.Tensor) error {
	var output tensor.Tensor
	if err := model.Forward(input, &output); err != nil {
		return err
	}
	loss, err := nn.MSELoss(&output, target)
	if err != nil {
		return err
	}
	if err := nn.MSELossGrad(&output, target); err != nil {
		return err
	}
	model.ZeroGrad()
	if err := model.Backward(&output, input); err != nil {
		return err
	}
	klog.V(1).Infof("output %s", &output)

	fmt.Printf("loss: %.6f\n", loss.Data[0])
	for i, p := range model.Parameters() {
		fmt.Printf("param %d %v: |grad| = %.6f\n", i, p.Shape, norm(p.Grad))
	}
	fmt.Printf("input: |grad| = %.6f\n", norm(input.Grad))
	return nil
}

func norm(values []float32) float32 {
	return blas32.Nrm2(blas32.Vector{N: len(values), Inc: 1, Data: values})
}
