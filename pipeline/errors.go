package pipeline

import "errors"

// Sentinel errors for pipeline operations.
// These are domain-specific errors that provide clear failure modes.
//
// Failures raised by the injected capabilities (tokenizer, text encoder,
// denoiser, scheduler, decoder, safety checker) are NOT wrapped in any of
// these sentinels; they propagate to the caller unmodified.
var (
	// Validation errors, raised before any heavy computation
	ErrInvalidParams = errors.New("pipeline: invalid generation parameters")
	ErrLatentsShape  = errors.New("pipeline: unexpected latents shape")
	ErrLatentsDevice = errors.New("pipeline: unexpected latents device")

	// Construction errors
	ErrMissingCapability = errors.New("pipeline: required capability not configured")

	// ErrEmptyStream indicates a generation stream produced no elements at
	// all. This is an internal-consistency failure and never expected in
	// normal operation.
	ErrEmptyStream = errors.New("pipeline: generation stream produced no elements")

	// ErrUnsupportedDtype is returned when a capability reports a numeric
	// precision the pipeline cannot sample or combine.
	ErrUnsupportedDtype = errors.New("pipeline: unsupported tensor dtype")

	// ErrAttentionModeUnsupported is returned when the configured denoiser
	// does not implement the requested attention execution mode.
	ErrAttentionModeUnsupported = errors.New("pipeline: denoiser does not support attention mode")
)
