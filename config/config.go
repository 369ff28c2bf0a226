// Package config loads generation defaults from the environment and from
// optional YAML files. Invalid values never fail loading; each field falls
// back to its default so a misconfigured deployment still generates.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sdpipeline/pipeline"
)

// Config holds generation defaults and logging settings.
type Config struct {
	// Image generation defaults
	ImageSize      int     `yaml:"image_size"`      // square output size in pixels
	InferenceSteps int     `yaml:"inference_steps"` // denoising steps
	GuidanceScale  float64 `yaml:"guidance_scale"`  // classifier-free guidance weight
	NegativePrompt string  `yaml:"negative_prompt"` // default opposing prompt

	// Logging
	LogLevel    string `yaml:"log_level"` // debug, info, warn, error, fatal
	LogFile     string `yaml:"log_file"`  // empty disables file output
	Development bool   `yaml:"development"`
}

// Default configuration values.
const (
	DefaultImageSize      = 512
	DefaultInferenceSteps = 50
	DefaultGuidanceScale  = 7.5

	MinInferenceSteps = 1
	MaxInferenceSteps = 500

	MinGuidanceScale = 0.0
	MaxGuidanceScale = 30.0
)

// Default returns a Config with default values.
// This is a pure function with no side effects.
func Default() *Config {
	return &Config{
		ImageSize:      DefaultImageSize,
		InferenceSteps: DefaultInferenceSteps,
		GuidanceScale:  DefaultGuidanceScale,
		LogLevel:       "info",
	}
}

// Load reads configuration from environment variables, falling back to
// defaults for anything unset or invalid. A .env file in the working
// directory is loaded first when present (existing environment variables
// win over .env entries).
//
// Recognized variables:
//
//	SD_IMAGE_SIZE       square output size (must be divisible by 8)
//	SD_INFERENCE_STEPS  denoising steps (1-500)
//	SD_GUIDANCE_SCALE   guidance weight (0.0-30.0)
//	SD_NEGATIVE_PROMPT  default opposing prompt
//	SD_LOG_LEVEL        debug | info | warn | error | fatal
//	SD_LOG_FILE         log file path (empty disables file logging)
//	SD_DEV_MODE         true enables development logging
func Load() *Config {
	// Ignore a missing .env; it is optional.
	_ = godotenv.Load()

	return &Config{
		ImageSize:      parseImageSize(os.Getenv("SD_IMAGE_SIZE")),
		InferenceSteps: parseInferenceSteps(os.Getenv("SD_INFERENCE_STEPS")),
		GuidanceScale:  parseGuidanceScale(os.Getenv("SD_GUIDANCE_SCALE")),
		NegativePrompt: os.Getenv("SD_NEGATIVE_PROMPT"),
		LogLevel:       parseLogLevel(os.Getenv("SD_LOG_LEVEL")),
		LogFile:        os.Getenv("SD_LOG_FILE"),
		Development:    parseBool(os.Getenv("SD_DEV_MODE")),
	}
}

// LoadFile reads configuration from a YAML file, filling unset fields with
// defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg.normalized(), nil
}

// Params builds generation parameters for one prompt from the configured
// defaults.
func (c *Config) Params(prompt string) pipeline.GenerateParams {
	p := pipeline.DefaultParams()
	p.Prompts = []string{prompt}
	p.Height = c.ImageSize
	p.Width = c.ImageSize
	p.Steps = c.InferenceSteps
	p.GuidanceScale = c.GuidanceScale
	if c.NegativePrompt != "" {
		p.OpposingPrompts = []string{c.NegativePrompt}
	}
	return p
}

// normalized replaces out-of-range fields with defaults.
func (c *Config) normalized() *Config {
	if c.ImageSize <= 0 || c.ImageSize%pipeline.SizeMultiple != 0 {
		c.ImageSize = DefaultImageSize
	}
	if c.InferenceSteps < MinInferenceSteps || c.InferenceSteps > MaxInferenceSteps {
		c.InferenceSteps = DefaultInferenceSteps
	}
	if c.GuidanceScale < MinGuidanceScale || c.GuidanceScale > MaxGuidanceScale {
		c.GuidanceScale = DefaultGuidanceScale
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// parseImageSize parses and validates an image size. Returns the default
// for empty, unparseable, or invalid input.
func parseImageSize(s string) int {
	if s == "" {
		return DefaultImageSize
	}
	size, err := strconv.Atoi(s)
	if err != nil || size <= 0 || size%pipeline.SizeMultiple != 0 {
		return DefaultImageSize
	}
	return size
}

// parseInferenceSteps parses and validates a step count.
func parseInferenceSteps(s string) int {
	if s == "" {
		return DefaultInferenceSteps
	}
	steps, err := strconv.Atoi(s)
	if err != nil || steps < MinInferenceSteps || steps > MaxInferenceSteps {
		return DefaultInferenceSteps
	}
	return steps
}

// parseGuidanceScale parses and validates a guidance weight.
func parseGuidanceScale(s string) float64 {
	if s == "" {
		return DefaultGuidanceScale
	}
	scale, err := strconv.ParseFloat(s, 64)
	if err != nil || scale < MinGuidanceScale || scale > MaxGuidanceScale {
		return DefaultGuidanceScale
	}
	return scale
}

// parseLogLevel keeps any non-empty value; the logging package falls back
// to its default for unknown levels.
func parseLogLevel(s string) string {
	if s == "" {
		return "info"
	}
	return s
}

// parseBool treats "true", "1", and "yes" as true, anything else as false.
func parseBool(s string) bool {
	switch s {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
