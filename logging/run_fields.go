package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// run_fields.go provides zap.Field helpers so every log entry touching a
// generation run carries the same field names.

// RunID tags an entry with the generation run identifier.
func RunID(id string) zap.Field {
	return zap.String("run_id", id)
}

// Step tags an entry with the denoising step index (-1 for the initial
// pre-loop state).
func Step(step int) zap.Field {
	return zap.Int("step", step)
}

// Timestep tags an entry with the raw scheduler timestep value.
func Timestep(t int) zap.Field {
	return zap.Int("timestep", t)
}

// GuidanceScale tags an entry with the classifier-free guidance weight.
func GuidanceScale(scale float64) zap.Field {
	return zap.Float64("guidance_scale", scale)
}

// ImageSize tags an entry with the output dimensions in pixels.
func ImageSize(width, height int) zap.Field {
	return zap.String("image_size", fmt.Sprintf("%dx%d", width, height))
}

// RunFields bundles the fields describing one run's configuration.
func RunFields(runID string, width, height, steps int, guidanceScale float64) []zap.Field {
	return []zap.Field{
		RunID(runID),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("steps", steps),
		GuidanceScale(guidanceScale),
	}
}
