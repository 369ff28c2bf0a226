package pipeline

import (
	"fmt"
	"math/rand"

	"github.com/pdevine/tensor"
)

// GenerateParams holds parameters for one generation run.
type GenerateParams struct {
	// Prompts guide the generation, one per batch element. Required.
	Prompts []string

	// OpposingPrompts steer the unconditional half of classifier-free
	// guidance away from their content (negative prompts). Optional; when
	// set, must have the same length as Prompts. When empty and guidance
	// is enabled, one blank string per batch element is used.
	OpposingPrompts []string

	// Height and Width of the generated images in pixels.
	// Both must be divisible by 8.
	Height int
	Width  int

	// Steps is the number of denoising iterations (at least 1).
	Steps int

	// GuidanceScale is the classifier-free guidance weight. Values above
	// 1.0 enable guidance; 1.0 or less runs a single unguided prediction
	// per step.
	GuidanceScale float64

	// Seed seeds latent sampling for reproducibility. Negative means a
	// fresh random seed. Ignored when Rand or Latents is set.
	Seed int64

	// Rand, when non-nil, is the source used to sample the initial
	// latents. Takes precedence over Seed.
	Rand *rand.Rand

	// Latents, when non-nil, is the pre-generated noise to start from. It
	// must have shape (batch, denoiser channels, Height/8, Width/8) and
	// must NOT be pre-scaled by the scheduler's initial noise sigma.
	Latents *tensor.Dense

	// LatentsDevice tags where supplied Latents reside. Empty means
	// DeviceCPU. Must match the denoiser's device.
	LatentsDevice Device

	// RunID tags every state of the run. Empty means a fresh random id.
	RunID string

	// StepOptions is passed through opaquely to every scheduler step call.
	StepOptions map[string]any
}

// Parameter validation constants.
const (
	// SizeMultiple is the divisor image dimensions must satisfy; the latent
	// space is 8x smaller than pixel space in both dimensions.
	SizeMultiple = 8

	MinSteps = 1
)

// Default generation values, matching the common Stable Diffusion settings.
const (
	DefaultHeight        = 512
	DefaultWidth         = 512
	DefaultSteps         = 50
	DefaultGuidanceScale = 7.5
)

// DefaultParams returns generation parameters with standard defaults.
// The caller must at minimum set Prompts.
func DefaultParams() GenerateParams {
	return GenerateParams{
		Height:        DefaultHeight,
		Width:         DefaultWidth,
		Steps:         DefaultSteps,
		GuidanceScale: DefaultGuidanceScale,
		Seed:          -1,
	}
}

// ValidateParams validates generation parameters and returns an error if
// invalid. This is a pure function with no side effects; it runs before any
// capability is invoked.
func ValidateParams(p GenerateParams) error {
	if len(p.Prompts) == 0 {
		return fmt.Errorf("%w: at least one prompt is required", ErrInvalidParams)
	}

	if p.Height <= 0 || p.Width <= 0 {
		return fmt.Errorf("%w: height and width must be positive, got %dx%d",
			ErrInvalidParams, p.Width, p.Height)
	}
	if p.Height%SizeMultiple != 0 || p.Width%SizeMultiple != 0 {
		return fmt.Errorf("%w: height and width must be divisible by %d, got %d and %d",
			ErrInvalidParams, SizeMultiple, p.Height, p.Width)
	}

	if p.Steps < MinSteps {
		return fmt.Errorf("%w: steps %d must be at least %d", ErrInvalidParams, p.Steps, MinSteps)
	}

	if p.GuidanceScale < 0 {
		return fmt.Errorf("%w: guidance scale %.2f must not be negative",
			ErrInvalidParams, p.GuidanceScale)
	}

	if len(p.OpposingPrompts) != 0 && len(p.OpposingPrompts) != len(p.Prompts) {
		return fmt.Errorf("%w: %d opposing prompts for %d prompts",
			ErrInvalidParams, len(p.OpposingPrompts), len(p.Prompts))
	}

	return nil
}
