package pipeline

import (
	"fmt"

	"github.com/pdevine/tensor"
)

// postprocess.go turns final latents into screened pixel images.

// LatentScaleFactor is the fixed constant the latent encoder applied; the
// decoder input must have it inverted.
const LatentScaleFactor = 0.18215

// DecodeToImage decodes a latent tensor into the final pixel images:
// invert the encoder's scaling, run the decoder, rescale from [-1, 1] to
// [0, 1] with clamping, and reorder channel-first to channel-last. The
// result always uses float32 on host memory. The flag list is empty; safety
// screening fills it in.
func (p *Pipeline) DecodeToImage(latents *tensor.Dense) (*PipelineOutput, error) {
	unscaled, err := scaled(latents, 1/LatentScaleFactor)
	if err != nil {
		return nil, err
	}

	pixels, err := p.decoder.Decode(unscaled)
	if err != nil {
		return nil, err
	}

	images, err := toChannelLast(pixels)
	if err != nil {
		return nil, err
	}
	return &PipelineOutput{Images: images, NSFWContentDetected: []bool{}}, nil
}

// CheckForSafety runs the configured safety classifier over the decoded
// images, adopting its (possibly redacted) images and per-image flags.
//
// When either the feature extractor or the safety checker is absent the
// output passes through unscreened with an empty flag list. This silent
// bypass is documented optional behavior, not an error.
func (p *Pipeline) CheckForSafety(output *PipelineOutput) (*PipelineOutput, error) {
	if p.featureExtractor == nil || p.safetyChecker == nil {
		return output, nil
	}

	features, err := p.featureExtractor.Extract(output.Images)
	if err != nil {
		return nil, err
	}
	screened, flags, err := p.safetyChecker.Check(output.Images, features)
	if err != nil {
		return nil, err
	}
	return &PipelineOutput{Images: screened, NSFWContentDetected: flags}, nil
}

// toChannelLast converts a (batch, 3, h, w) pixel tensor with values in
// [-1, 1] into a (batch, h, w, 3) float32 tensor with values clamped to
// [0, 1].
func toChannelLast(pixels *tensor.Dense) (*tensor.Dense, error) {
	shape := pixels.Shape()
	if len(shape) != 4 || shape[1] != 3 {
		return nil, fmt.Errorf("pipeline: expected (batch, 3, h, w) decoded pixels, got %v", shape)
	}
	batch, height, width := shape[0], shape[2], shape[3]

	var src []float32
	switch data := pixels.Data().(type) {
	case []float32:
		src = data
	case []float64:
		src = make([]float32, len(data))
		for i, v := range data {
			src[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDtype, pixels.Dtype())
	}

	plane := height * width
	out := make([]float32, len(src))
	for b := 0; b < batch; b++ {
		base := b * 3 * plane
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				for c := 0; c < 3; c++ {
					v := src[base+c*plane+y*width+x]/2 + 0.5
					if v < 0 {
						v = 0
					} else if v > 1 {
						v = 1
					}
					out[((b*height+y)*width+x)*3+c] = v
				}
			}
		}
	}

	return tensor.New(tensor.WithShape(batch, height, width, 3), tensor.WithBacking(out)), nil
}
