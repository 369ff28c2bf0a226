package pipeline

// capabilities.go defines the interfaces for the external collaborators the
// pipeline orchestrates. The pipeline implements no neural network, solver,
// or tokenization logic itself; everything heavy is injected through these
// interfaces at construction time.

import (
	"fmt"

	"github.com/pdevine/tensor"
)

// Device identifies the compute placement of a capability or tensor.
// The pipeline treats it as an opaque tag and only ever compares for equality.
type Device string

// DeviceCPU is the default placement for tensors created on the host.
const DeviceCPU Device = "cpu"

// Tokenizer maps text to fixed-length token-id sequences.
type Tokenizer interface {
	// Tokenize converts texts to a (batch, maxLength) token-id tensor,
	// truncating or padding every sequence to exactly maxLength.
	Tokenize(texts []string, maxLength int) (*tensor.Dense, error)

	// ModelMaxLength reports the maximum sequence length of the paired
	// text encoder.
	ModelMaxLength() int
}

// TextEncoder maps token ids to an embedding tensor.
type TextEncoder interface {
	// Encode maps a (batch, seq) token-id tensor to a (batch, seq, hidden)
	// embedding tensor.
	Encode(tokenIDs *tensor.Dense) (*tensor.Dense, error)
}

// Denoiser is the conditional noise-prediction network (the U-Net in
// Stable Diffusion). Predict must return a tensor of the same shape as the
// latents it was given.
type Denoiser interface {
	// Predict estimates the noise residual present in latents at the given
	// timestep, conditioned on the embedding tensor.
	Predict(latents *tensor.Dense, timestep int, embeddings *tensor.Dense) (*tensor.Dense, error)

	// InChannels reports the channel count of the latent space.
	InChannels() int

	// Device reports where the network executes. Latents supplied by
	// callers must reside on the same device.
	Device() Device

	// Dtype reports the numeric precision the network computes in. Latents
	// sampled by the pipeline use this dtype.
	Dtype() tensor.Dtype
}

// AttentionSlicer is an optional Denoiser extension for sliced attention,
// trading speed for lower memory use. Slice size 0 disables slicing.
// Affects performance only, never output correctness.
type AttentionSlicer interface {
	SetAttentionSlice(size int)

	// AttentionHeadDim reports the attention head dimension, used to pick
	// an automatic slice size.
	AttentionHeadDim() int
}

// MemoryEfficientAttentionSetter is an optional Denoiser extension toggling
// a memory-efficient attention implementation.
type MemoryEfficientAttentionSetter interface {
	SetMemoryEfficientAttention(enabled bool)
}

// CacheReleaser is an optional capability extension. The pipeline calls
// ReleaseCachedMemory after the last denoising step as a best-effort
// resource hint; it is not correctness-critical.
type CacheReleaser interface {
	ReleaseCachedMemory()
}

// SchedulerStepResult is the outcome of one scheduler update.
type SchedulerStepResult struct {
	// PrevSample is the next (less noisy) latent sample.
	PrevSample *tensor.Dense

	// PredictedOriginal is the scheduler's estimate of the fully denoised
	// latent, when the scheduler exposes one. Nil otherwise.
	PredictedOriginal *tensor.Dense
}

// Scheduler is the numerical integrator advancing latents from noisier to
// less-noisy states. Its step formula is opaque to the pipeline.
type Scheduler interface {
	// SetTimesteps initializes the timestep schedule for the requested
	// number of inference steps.
	SetTimesteps(numSteps int) error

	// Timesteps returns the current schedule, in the order the loop should
	// visit them. It must return an error when no step count has been set.
	Timesteps() ([]int, error)

	// NumTrainTimesteps reports the length of the training noise schedule.
	NumTrainTimesteps() int

	// InitNoiseSigma reports the scaling the initial noise must receive.
	// Depends on the scheduler's configuration, not on the loop.
	InitNoiseSigma() float64

	// ScaleModelInput applies the scheduler-specific input normalization
	// for the given timestep. Pass-through for some schedulers.
	ScaleModelInput(sample *tensor.Dense, timestep int) (*tensor.Dense, error)

	// Step computes the previous (less noisy) sample from a noise
	// prediction. The opts map is passed through from the caller without
	// validation; unsupported options surface as the scheduler's own error.
	Step(noisePred *tensor.Dense, timestep int, sample *tensor.Dense, opts map[string]any) (SchedulerStepResult, error)
}

// Decoder maps latents back to pixel space.
type Decoder interface {
	// Decode maps a (batch, channels, h, w) latent tensor to a
	// (batch, 3, h*8, w*8) pixel tensor with values in [-1, 1].
	Decode(latents *tensor.Dense) (*tensor.Dense, error)
}

// FeatureExtractor prepares decoded images for the safety checker.
type FeatureExtractor interface {
	// Extract maps a (batch, h, w, 3) pixel tensor to the feature tensor
	// the safety checker expects.
	Extract(images *tensor.Dense) (*tensor.Dense, error)
}

// SafetyChecker screens decoded images for unsafe content. It may replace
// flagged images with a redacted placeholder.
type SafetyChecker interface {
	// Check returns the (possibly redacted) images and one flag per image.
	Check(images *tensor.Dense, features *tensor.Dense) (*tensor.Dense, []bool, error)
}

// Capabilities bundles the collaborators a Pipeline orchestrates.
// Tokenizer, TextEncoder, Denoiser, Scheduler, and Decoder are required.
// SafetyChecker and FeatureExtractor are optional; when either is nil,
// safety screening is skipped and no images are flagged.
type Capabilities struct {
	Tokenizer        Tokenizer
	TextEncoder      TextEncoder
	Denoiser         Denoiser
	Scheduler        Scheduler
	Decoder          Decoder
	SafetyChecker    SafetyChecker
	FeatureExtractor FeatureExtractor
}

// validate checks that every required capability is present.
func (c Capabilities) validate() error {
	required := []struct {
		name    string
		missing bool
	}{
		{"tokenizer", c.Tokenizer == nil},
		{"text encoder", c.TextEncoder == nil},
		{"denoiser", c.Denoiser == nil},
		{"scheduler", c.Scheduler == nil},
		{"decoder", c.Decoder == nil},
	}
	for _, r := range required {
		if r.missing {
			return fmt.Errorf("%w: %s", ErrMissingCapability, r.name)
		}
	}
	return nil
}
