package pipeline

import (
	"github.com/pdevine/tensor"
	"go.uber.org/zap"

	"sdpipeline/logging"
)

// stream.go implements the lazily produced sequence of generation states.
// The loop suspends at every step boundary and only resumes when the
// consumer pulls the next element, so a consumer can observe, rate-limit,
// or abandon a run at any step.

// IntermediateState is one snapshot of the generation loop, emitted for
// progress observation. It is produced once per step, plus one initial
// pre-loop state with Step == -1.
type IntermediateState struct {
	// RunID is identical across every state of one run.
	RunID string

	// Step is -1 for the initial state, then 0..N-1.
	Step int

	// Timestep is the raw schedule value for this step. The initial state
	// carries the scheduler's training timestep count.
	Timestep int

	// Latents is the current latent tensor. Owned by the run; consumers
	// must not mutate it.
	Latents *tensor.Dense

	// PredictedOriginal is the scheduler's estimate of the fully denoised
	// latent, when available. Nil otherwise, and always nil on the initial
	// state.
	PredictedOriginal *tensor.Dense
}

// PipelineOutput is the final result of a run: decoded images and one
// NSFW flag per image. Produced exactly once, as the last stream element.
type PipelineOutput struct {
	// Images is a (batch, height, width, 3) channel-last pixel tensor on
	// host memory, float32 values in [0, 1].
	Images *tensor.Dense

	// NSFWContentDetected has one entry per image when safety screening
	// ran, and is empty when screening was skipped.
	NSFWContentDetected []bool
}

// StreamEvent is one element of a generation stream: either an
// intermediate state or the final output, never both.
type StreamEvent struct {
	State  *IntermediateState // nil on the final element
	Output *PipelineOutput    // nil on intermediate elements
}

// StreamCallback observes stream events as convenience entry points drain
// a stream.
type StreamCallback func(StreamEvent)

// stream lifecycle phases
const (
	phaseInit = iota
	phaseSteps
	phaseFinal
	phaseDone
)

// GenerationStream is a finite, single-pass, pull-based sequence of
// generation states. Usage follows the bufio.Scanner pattern:
//
//	stream := pipe.Generate(params)
//	for stream.Next() {
//	    ev := stream.Event()
//	    ...
//	}
//	if err := stream.Err(); err != nil {
//	    ...
//	}
//
// Each call to Next runs at most one denoising step. Abandoning the stream
// (never calling Next again) abandons the run; no cleanup beyond the
// best-effort memory hint is guaranteed. A stream is not restartable and
// not safe for concurrent use.
type GenerationStream struct {
	p *Pipeline

	runID         string
	guidanceScale float64
	embeddings    *tensor.Dense
	latents       *tensor.Dense
	stepOpts      map[string]any

	phase     int
	stepIndex int
	scheduled bool
	timesteps []int

	event StreamEvent
	err   error
}

// Next advances the stream to its next element. It returns false when the
// sequence is exhausted or a step failed; Err distinguishes the two.
func (s *GenerationStream) Next() bool {
	if s.err != nil || s.phase == phaseDone {
		return false
	}

	switch s.phase {
	case phaseInit:
		return s.start()
	case phaseSteps:
		if !s.scheduled {
			// Depends on the scheduler having a step count set; a
			// scheduler without one fails here rather than silently
			// producing zero steps.
			ts, err := s.p.scheduler.Timesteps()
			if err != nil {
				return s.fail(err)
			}
			s.scheduled = true
			s.timesteps = ts
		}
		if s.stepIndex < len(s.timesteps) {
			return s.step()
		}
		return s.finish()
	default:
		return false
	}
}

// Event returns the element the last successful Next produced.
func (s *GenerationStream) Event() StreamEvent {
	return s.event
}

// Err returns the error that terminated the stream, or nil after a normal
// exhaustion. Validation errors carry the pipeline's sentinel errors;
// capability failures are returned unmodified.
func (s *GenerationStream) Err() error {
	return s.err
}

// RunID returns the identifier tagging every state of this run.
func (s *GenerationStream) RunID() string {
	return s.runID
}

// start scales the initial noise and emits the step -1 state.
func (s *GenerationStream) start() bool {
	// Scale the initial noise by the standard deviation required by the
	// scheduler. This is applied unconditionally: latents passed to
	// GenerateFromEmbeddings must never be pre-scaled.
	latents, err := scaleInPlace(s.latents, s.p.scheduler.InitNoiseSigma())
	if err != nil {
		return s.fail(err)
	}
	s.latents = latents

	s.p.logger.Info("generation run started",
		logging.RunID(s.runID),
		logging.GuidanceScale(s.guidanceScale))

	s.phase = phaseSteps
	s.event = StreamEvent{State: &IntermediateState{
		RunID:    s.runID,
		Step:     -1,
		Timestep: s.p.scheduler.NumTrainTimesteps(),
		Latents:  s.latents,
	}}
	return true
}

// step runs one denoising iteration and emits its state.
func (s *GenerationStream) step() bool {
	t := s.timesteps[s.stepIndex]
	result, err := s.p.Step(t, s.latents, s.guidanceScale, s.embeddings, s.stepOpts)
	if err != nil {
		return s.fail(err)
	}
	s.latents = result.PrevSample

	s.p.logger.Debug("denoising step complete",
		logging.RunID(s.runID),
		logging.Step(s.stepIndex),
		logging.Timestep(t))

	s.event = StreamEvent{State: &IntermediateState{
		RunID:             s.runID,
		Step:              s.stepIndex,
		Timestep:          t,
		Latents:           s.latents,
		PredictedOriginal: result.PredictedOriginal,
	}}
	s.stepIndex++
	return true
}

// finish decodes the final latents, runs safety screening, and emits the
// final output.
func (s *GenerationStream) finish() bool {
	s.p.releaseCachedMemory()

	output, err := s.p.DecodeToImage(s.latents)
	if err != nil {
		return s.fail(err)
	}
	output, err = s.p.CheckForSafety(output)
	if err != nil {
		return s.fail(err)
	}

	s.p.logger.Info("generation run finished",
		logging.RunID(s.runID),
		zap.Int("steps", s.stepIndex),
		zap.Int("images", output.Images.Shape()[0]))

	s.phase = phaseDone
	s.event = StreamEvent{Output: output}
	return true
}

// fail terminates the stream with err. Any error inside a step is fatal to
// the run; there are no retries and no partial recovery.
func (s *GenerationStream) fail(err error) bool {
	s.err = err
	s.phase = phaseDone
	s.event = StreamEvent{}
	s.p.logger.Error("generation run failed",
		logging.RunID(s.runID),
		zap.Error(err))
	return false
}
