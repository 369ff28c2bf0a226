package pipeline

import (
	"errors"
	"fmt"

	"github.com/pdevine/tensor"
	"go.uber.org/zap"
)

// Pipeline orchestrates text-to-image generation over a set of injected
// capabilities. It holds an explicit reference to each collaborator; there
// is no registration machinery and no inherited behavior. Device and dtype
// questions are answered by the denoiser's accessors.
//
// A Pipeline is stateless between runs and safe for concurrent use as long
// as its capabilities are; each run owns its latent and embedding tensors
// exclusively for its lifetime.
type Pipeline struct {
	tokenizer        Tokenizer
	textEncoder      TextEncoder
	denoiser         Denoiser
	scheduler        Scheduler
	decoder          Decoder
	safetyChecker    SafetyChecker
	featureExtractor FeatureExtractor

	logger *zap.Logger
}

// NewPipeline builds a Pipeline from the given capabilities. Tokenizer,
// text encoder, denoiser, scheduler, and decoder are required; safety
// checker and feature extractor may be nil, in which case safety screening
// is skipped (see CheckForSafety). A nil logger disables logging.
func NewPipeline(caps Capabilities, logger *zap.Logger) (*Pipeline, error) {
	if err := caps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		tokenizer:        caps.Tokenizer,
		textEncoder:      caps.TextEncoder,
		denoiser:         caps.Denoiser,
		scheduler:        caps.Scheduler,
		decoder:          caps.Decoder,
		safetyChecker:    caps.SafetyChecker,
		featureExtractor: caps.FeatureExtractor,
		logger:           logger,
	}, nil
}

// Channels reports the denoiser's latent channel count.
func (p *Pipeline) Channels() int {
	return p.denoiser.InChannels()
}

// Image runs a full generation to completion and returns the final output.
//
// It drains the stream Generate produces; callback, when non-nil, is
// invoked once per stream element, including the final output. Any failure
// terminates the run with no partial result.
func (p *Pipeline) Image(params GenerateParams, callback StreamCallback) (*PipelineOutput, error) {
	stream, err := p.Generate(params)
	if err != nil {
		return nil, err
	}
	return drain(stream, callback, true)
}

// ImageFromEmbeddings runs a generation for a caller that already computed
// its embedding tensor, skipping conditioning and latent preparation. It
// initializes the scheduler's timestep schedule for numSteps, then drains
// the embeddings-driven stream. callback, when non-nil, is invoked for
// intermediate states only.
//
// The latents are scaled by the scheduler's initial noise sigma inside the
// loop; they must not be pre-scaled.
func (p *Pipeline) ImageFromEmbeddings(latents *tensor.Dense, numSteps int, embeddings *tensor.Dense, guidanceScale float64, callback StreamCallback, runID string, stepOpts map[string]any) (*PipelineOutput, error) {
	if err := p.scheduler.SetTimesteps(numSteps); err != nil {
		return nil, err
	}
	stream := p.GenerateFromEmbeddings(latents, embeddings, guidanceScale, runID, stepOpts)
	return drain(stream, callback, false)
}

// Generate validates params, prepares conditioning and latents, and
// returns the stream of generation states. Validation failures and
// conditioning/preparation failures surface here, before the stream
// exists; failures inside the loop surface through the stream's Err.
func (p *Pipeline) Generate(params GenerateParams) (*GenerationStream, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}

	batch := len(params.Prompts)

	// guidanceScale = 1 corresponds to doing no classifier-free guidance.
	guided := params.GuidanceScale > 1.0

	embeddings, err := p.GetTextEmbeddings(params.Prompts, params.OpposingPrompts, guided)
	if err != nil {
		return nil, err
	}

	// The schedule must exist before latent scaling: the initial noise
	// sigma may depend on the step count.
	if err := p.scheduler.SetTimesteps(params.Steps); err != nil {
		return nil, err
	}

	latents, err := p.PrepareLatents(params.Latents, params.LatentsDevice,
		batch, params.Height, params.Width, newRNG(params.Rand, params.Seed))
	if err != nil {
		return nil, err
	}

	return p.GenerateFromEmbeddings(latents, embeddings, params.GuidanceScale, params.RunID, params.StepOptions), nil
}

// GenerateFromEmbeddings returns the stream of generation states for
// already-prepared latents and embeddings. An empty runID is replaced with
// a fresh random identifier.
//
// The incoming latents are scaled by the scheduler's initial noise sigma
// unconditionally on the first pull. A caller that passes latents which
// were already scaled will have them scaled twice; Generate always passes
// never-scaled latents.
func (p *Pipeline) GenerateFromEmbeddings(latents *tensor.Dense, embeddings *tensor.Dense, guidanceScale float64, runID string, stepOpts map[string]any) *GenerationStream {
	stream := &GenerationStream{
		p:             p,
		runID:         runID,
		guidanceScale: guidanceScale,
		embeddings:    embeddings,
		latents:       latents,
		stepOpts:      stepOpts,
	}

	if stream.runID == "" {
		id, err := NewRunID()
		if err != nil {
			stream.err = err
			stream.phase = phaseDone
			return stream
		}
		stream.runID = id
	}
	return stream
}

// drain consumes a stream to exhaustion and returns its final output.
// finalToCallback controls whether the final output event is also passed
// to the callback.
func drain(stream *GenerationStream, callback StreamCallback, finalToCallback bool) (*PipelineOutput, error) {
	var output *PipelineOutput
	produced := false

	for stream.Next() {
		ev := stream.Event()
		produced = true
		if ev.Output != nil {
			output = ev.Output
			if callback != nil && finalToCallback {
				callback(ev)
			}
			continue
		}
		if callback != nil {
			callback(ev)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if !produced || output == nil {
		return nil, ErrEmptyStream
	}
	return output, nil
}

// releaseCachedMemory passes the post-loop memory hint to every capability
// that accepts one. Best-effort only.
func (p *Pipeline) releaseCachedMemory() {
	for _, c := range []any{p.denoiser, p.decoder, p.textEncoder} {
		if r, ok := c.(CacheReleaser); ok {
			r.ReleaseCachedMemory()
		}
	}
}

// EnableAttentionSlicing turns on sliced attention computation in the
// denoiser, computing attention in several steps to save memory at a small
// speed cost. sliceSize <= 0 selects an automatic size of half the
// attention head dimension. Returns ErrAttentionModeUnsupported when the
// denoiser has no slicing support.
func (p *Pipeline) EnableAttentionSlicing(sliceSize int) error {
	slicer, ok := p.denoiser.(AttentionSlicer)
	if !ok {
		return fmt.Errorf("%w: attention slicing", ErrAttentionModeUnsupported)
	}
	if sliceSize <= 0 {
		// Half the attention head size is usually a good trade-off
		// between speed and memory.
		sliceSize = slicer.AttentionHeadDim() / 2
	}
	slicer.SetAttentionSlice(sliceSize)
	return nil
}

// DisableAttentionSlicing restores single-pass attention computation.
func (p *Pipeline) DisableAttentionSlicing() error {
	slicer, ok := p.denoiser.(AttentionSlicer)
	if !ok {
		return fmt.Errorf("%w: attention slicing", ErrAttentionModeUnsupported)
	}
	slicer.SetAttentionSlice(0)
	return nil
}

// EnableMemoryEfficientAttention switches the denoiser to its
// memory-efficient attention implementation. When both this mode and
// attention slicing are enabled, the memory-efficient implementation wins.
func (p *Pipeline) EnableMemoryEfficientAttention() error {
	return p.setMemoryEfficientAttention(true)
}

// DisableMemoryEfficientAttention switches the denoiser back to its
// default attention implementation.
func (p *Pipeline) DisableMemoryEfficientAttention() error {
	return p.setMemoryEfficientAttention(false)
}

func (p *Pipeline) setMemoryEfficientAttention(enabled bool) error {
	setter, ok := p.denoiser.(MemoryEfficientAttentionSetter)
	if !ok {
		return fmt.Errorf("%w: memory-efficient attention", ErrAttentionModeUnsupported)
	}
	setter.SetMemoryEfficientAttention(enabled)
	return nil
}

// IsValidationError reports whether err is one of the pipeline's upfront
// validation failures, as opposed to a capability error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidParams) ||
		errors.Is(err, ErrLatentsShape) ||
		errors.Is(err, ErrLatentsDevice)
}
