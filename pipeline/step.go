package pipeline

import (
	"github.com/pdevine/tensor"
)

// step.go implements one iteration of the denoising loop: network
// inference, guidance combination, scheduler update.

// Step advances the latents by one denoising iteration at timestep t.
//
// With guidanceScale > 1 the latents are duplicated along the batch axis so
// a single denoiser pass produces both the unconditional and conditional
// noise predictions, which are then blended with the classifier-free
// guidance formula. The embeddings must have been built with matching
// duality (see GetTextEmbeddings). With guidanceScale <= 1 no duplication
// happens and the prediction is used as-is.
//
// The returned result carries the next latent sample and, when the
// scheduler exposes it, an estimate of the fully denoised latent.
func (p *Pipeline) Step(t int, latents *tensor.Dense, guidanceScale float64, embeddings *tensor.Dense, stepOpts map[string]any) (SchedulerStepResult, error) {
	guided := guidanceScale > 1.0

	modelInput := latents
	if guided {
		doubled, err := duplicateBatch(latents)
		if err != nil {
			return SchedulerStepResult{}, err
		}
		modelInput = doubled
	}

	modelInput, err := p.scheduler.ScaleModelInput(modelInput, t)
	if err != nil {
		return SchedulerStepResult{}, err
	}

	noisePred, err := p.denoiser.Predict(modelInput, t, embeddings)
	if err != nil {
		return SchedulerStepResult{}, err
	}

	if guided {
		noisePred, err = combineGuidance(noisePred, guidanceScale)
		if err != nil {
			return SchedulerStepResult{}, err
		}
	}

	return p.scheduler.Step(noisePred, t, latents, stepOpts)
}
