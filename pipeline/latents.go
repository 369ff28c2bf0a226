package pipeline

import (
	"fmt"
	"math/rand"

	"github.com/pdevine/tensor"
)

// latents.go produces or validates the initial noisy latent tensor.

// latentShape is the expected shape of the latent tensor for the given
// batch and pixel dimensions: (batch, channels, height/8, width/8).
func (p *Pipeline) latentShape(batch, height, width int) []int {
	return []int{batch, p.denoiser.InChannels(), height / SizeMultiple, width / SizeMultiple}
}

// PrepareLatents returns the starting latent tensor for a run, not yet
// scaled by the scheduler's initial noise sigma.
//
// When supplied is nil, a standard-normal tensor of the expected shape is
// sampled from rng in the denoiser's dtype. When supplied is non-nil, its
// shape must match exactly and device must match the denoiser's placement;
// the tensor is then used unchanged.
func (p *Pipeline) PrepareLatents(supplied *tensor.Dense, device Device, batch, height, width int, rng *rand.Rand) (*tensor.Dense, error) {
	if height%SizeMultiple != 0 || width%SizeMultiple != 0 {
		return nil, fmt.Errorf("%w: height and width must be divisible by %d, got %d and %d",
			ErrInvalidParams, SizeMultiple, height, width)
	}

	shape := p.latentShape(batch, height, width)

	if supplied == nil {
		return randNormal(shape, rng, p.denoiser.Dtype())
	}

	if !supplied.Shape().Eq(tensor.Shape(shape)) {
		return nil, fmt.Errorf("%w: got %v, expected %v", ErrLatentsShape, supplied.Shape(), shape)
	}
	if device == "" {
		device = DeviceCPU
	}
	if device != p.denoiser.Device() {
		return nil, fmt.Errorf("%w: got %q, expected %q", ErrLatentsDevice, device, p.denoiser.Device())
	}

	return supplied, nil
}

// newRNG returns the sampling source for a run: the explicit source when
// given, otherwise one seeded by seed (or a fresh random seed when seed is
// negative).
func newRNG(explicit *rand.Rand, seed int64) *rand.Rand {
	if explicit != nil {
		return explicit
	}
	if seed < 0 {
		seed = RandomSeed()
	}
	return rand.New(rand.NewSource(seed))
}
