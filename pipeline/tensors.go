package pipeline

import (
	"fmt"
	"math/rand"

	"github.com/pdevine/tensor"
)

// tensors.go holds the small elementwise kernels the loop needs. The
// pipeline's tensor currency is *tensor.Dense with float32 or float64
// backing, selected by the denoiser's reported dtype.

// randNormal samples a standard-normal tensor of the given shape from rng.
func randNormal(shape []int, rng *rand.Rand, dtype tensor.Dtype) (*tensor.Dense, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}

	switch dtype {
	case tensor.Float32:
		data := make([]float32, n)
		for i := range data {
			data[i] = float32(rng.NormFloat64())
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
	case tensor.Float64:
		data := make([]float64, n)
		for i := range data {
			data[i] = rng.NormFloat64()
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDtype, dtype)
	}
}

// scaleInPlace multiplies every element of t by s, mutating t.
func scaleInPlace(t *tensor.Dense, s float64) (*tensor.Dense, error) {
	switch t.Dtype() {
	case tensor.Float32:
		return t.MulScalar(float32(s), true, tensor.UseUnsafe())
	case tensor.Float64:
		return t.MulScalar(s, true, tensor.UseUnsafe())
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDtype, t.Dtype())
	}
}

// scaled returns a copy of t with every element multiplied by s.
func scaled(t *tensor.Dense, s float64) (*tensor.Dense, error) {
	switch t.Dtype() {
	case tensor.Float32:
		return t.MulScalar(float32(s), true)
	case tensor.Float64:
		return t.MulScalar(s, true)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDtype, t.Dtype())
	}
}

// duplicateBatch concatenates t with itself along the batch axis, turning a
// (b, ...) tensor into a (2b, ...) tensor.
func duplicateBatch(t *tensor.Dense) (*tensor.Dense, error) {
	return t.Concat(0, t)
}

// combineGuidance splits a doubled-batch noise prediction into its
// unconditional and conditional halves and blends them:
//
//	noise = uncond + scale*(cond - uncond)
//
// The first half of the batch is the unconditional prediction, matching the
// [unconditional; conditional] embedding concatenation order.
func combineGuidance(noisePred *tensor.Dense, scale float64) (*tensor.Dense, error) {
	shape := noisePred.Shape()
	if len(shape) == 0 || shape[0]%2 != 0 {
		return nil, fmt.Errorf("pipeline: cannot split noise prediction of shape %v into halves", shape)
	}

	outShape := append([]int{shape[0] / 2}, shape[1:]...)

	switch data := noisePred.Data().(type) {
	case []float32:
		half := len(data) / 2
		uncond, cond := data[:half], data[half:]
		out := make([]float32, half)
		s := float32(scale)
		for i := range out {
			out[i] = uncond[i] + s*(cond[i]-uncond[i])
		}
		return tensor.New(tensor.WithShape(outShape...), tensor.WithBacking(out)), nil
	case []float64:
		half := len(data) / 2
		uncond, cond := data[:half], data[half:]
		out := make([]float64, half)
		for i := range out {
			out[i] = uncond[i] + scale*(cond[i]-uncond[i])
		}
		return tensor.New(tensor.WithShape(outShape...), tensor.WithBacking(out)), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDtype, noisePred.Dtype())
	}
}
