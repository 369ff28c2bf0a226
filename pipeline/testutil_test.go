package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pdevine/tensor"
)

// Test doubles for the injected capabilities. These are deliberately tiny:
// seq length 4, hidden size 8, 4 latent channels.

const (
	testMaxLength = 4
	testHidden    = 8
	testChannels  = 4
)

var errSchedulerNotReady = errors.New("fakescheduler: timestep schedule not initialized")

// fakeTokenizer encodes each text as (len(text)+1, 0, 0, ...).
type fakeTokenizer struct {
	calls [][]string
}

func (f *fakeTokenizer) Tokenize(texts []string, maxLength int) (*tensor.Dense, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	ids := make([]int32, len(texts)*maxLength)
	for i, text := range texts {
		ids[i*maxLength] = int32(len(text) + 1)
	}
	return tensor.New(tensor.WithShape(len(texts), maxLength), tensor.WithBacking(ids)), nil
}

func (f *fakeTokenizer) ModelMaxLength() int { return testMaxLength }

// fakeTextEncoder fills every element of row b with the first token id of
// row b, so tests can tell which prompt produced which embedding row.
type fakeTextEncoder struct {
	err error
}

func (f *fakeTextEncoder) Encode(tokenIDs *tensor.Dense) (*tensor.Dense, error) {
	if f.err != nil {
		return nil, f.err
	}
	shape := tokenIDs.Shape()
	batch, seq := shape[0], shape[1]
	ids := tokenIDs.Data().([]int32)
	data := make([]float32, batch*seq*testHidden)
	for b := 0; b < batch; b++ {
		v := float32(ids[b*seq])
		for i := 0; i < seq*testHidden; i++ {
			data[b*seq*testHidden+i] = v
		}
	}
	return tensor.New(tensor.WithShape(batch, seq, testHidden), tensor.WithBacking(data)), nil
}

// fakeDenoiser returns a constant noise prediction of the input shape.
type fakeDenoiser struct {
	calls      int
	batchSizes []int
	noise      float32
	err        error
	device     Device
	released   int
}

func (f *fakeDenoiser) Predict(latents *tensor.Dense, timestep int, embeddings *tensor.Dense) (*tensor.Dense, error) {
	f.calls++
	f.batchSizes = append(f.batchSizes, latents.Shape()[0])
	if f.err != nil {
		return nil, f.err
	}
	n := latents.Shape().TotalSize()
	data := make([]float32, n)
	for i := range data {
		data[i] = f.noise
	}
	return tensor.New(tensor.WithShape(latents.Shape()...), tensor.WithBacking(data)), nil
}

func (f *fakeDenoiser) InChannels() int { return testChannels }

func (f *fakeDenoiser) Device() Device {
	if f.device != "" {
		return f.device
	}
	return DeviceCPU
}

func (f *fakeDenoiser) Dtype() tensor.Dtype { return tensor.Float32 }

func (f *fakeDenoiser) ReleaseCachedMemory() { f.released++ }

// slicingDenoiser adds the attention extension interfaces.
type slicingDenoiser struct {
	fakeDenoiser
	sliceSize       int
	memoryEfficient bool
}

func (s *slicingDenoiser) SetAttentionSlice(size int)          { s.sliceSize = size }
func (s *slicingDenoiser) AttentionHeadDim() int               { return 16 }
func (s *slicingDenoiser) SetMemoryEfficientAttention(on bool) { s.memoryEfficient = on }

// fakeScheduler halves the sample magnitude on every step.
type fakeScheduler struct {
	timesteps         []int
	numTrain          int
	initNoiseSigma    float64
	predOriginal      bool
	stepErr           error
	setTimestepsCalls int
	stepOpts          []map[string]any
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{numTrain: 1000, initNoiseSigma: 1.0}
}

func (f *fakeScheduler) SetTimesteps(numSteps int) error {
	f.setTimestepsCalls++
	if numSteps < 1 {
		return fmt.Errorf("fakescheduler: invalid step count %d", numSteps)
	}
	ratio := f.numTrain / numSteps
	f.timesteps = make([]int, numSteps)
	for i := range f.timesteps {
		f.timesteps[i] = (numSteps - 1 - i) * ratio
	}
	return nil
}

func (f *fakeScheduler) Timesteps() ([]int, error) {
	if f.timesteps == nil {
		return nil, errSchedulerNotReady
	}
	return f.timesteps, nil
}

func (f *fakeScheduler) NumTrainTimesteps() int  { return f.numTrain }
func (f *fakeScheduler) InitNoiseSigma() float64 { return f.initNoiseSigma }

func (f *fakeScheduler) ScaleModelInput(sample *tensor.Dense, timestep int) (*tensor.Dense, error) {
	return sample, nil
}

func (f *fakeScheduler) Step(noisePred *tensor.Dense, timestep int, sample *tensor.Dense, opts map[string]any) (SchedulerStepResult, error) {
	f.stepOpts = append(f.stepOpts, opts)
	if f.stepErr != nil {
		return SchedulerStepResult{}, f.stepErr
	}
	prev, err := scaled(sample, 0.5)
	if err != nil {
		return SchedulerStepResult{}, err
	}
	result := SchedulerStepResult{PrevSample: prev}
	if f.predOriginal {
		orig, err := scaled(sample, 0.25)
		if err != nil {
			return SchedulerStepResult{}, err
		}
		result.PredictedOriginal = orig
	}
	return result, nil
}

// fakeDecoder upsamples latents to a constant-valued pixel tensor.
type fakeDecoder struct {
	pixel  float32
	inputs []*tensor.Dense
	err    error
}

func (f *fakeDecoder) Decode(latents *tensor.Dense) (*tensor.Dense, error) {
	f.inputs = append(f.inputs, latents)
	if f.err != nil {
		return nil, f.err
	}
	shape := latents.Shape()
	batch, h, w := shape[0], shape[2]*SizeMultiple, shape[3]*SizeMultiple
	data := make([]float32, batch*3*h*w)
	for i := range data {
		data[i] = f.pixel
	}
	return tensor.New(tensor.WithShape(batch, 3, h, w), tensor.WithBacking(data)), nil
}

// fakeFeatureExtractor passes the images through as features.
type fakeFeatureExtractor struct{}

func (fakeFeatureExtractor) Extract(images *tensor.Dense) (*tensor.Dense, error) {
	return images, nil
}

// fakeSafetyChecker flags every image when flagAll is set.
type fakeSafetyChecker struct {
	flagAll bool
}

func (f *fakeSafetyChecker) Check(images *tensor.Dense, features *tensor.Dense) (*tensor.Dense, []bool, error) {
	flags := make([]bool, images.Shape()[0])
	for i := range flags {
		flags[i] = f.flagAll
	}
	return images, flags, nil
}

// testCapabilities bundles fresh fakes for one test.
type testCapabilities struct {
	tokenizer *fakeTokenizer
	encoder   *fakeTextEncoder
	denoiser  *fakeDenoiser
	scheduler *fakeScheduler
	decoder   *fakeDecoder
}

func newTestCapabilities() *testCapabilities {
	return &testCapabilities{
		tokenizer: &fakeTokenizer{},
		encoder:   &fakeTextEncoder{},
		denoiser:  &fakeDenoiser{},
		scheduler: newFakeScheduler(),
		decoder:   &fakeDecoder{},
	}
}

func (tc *testCapabilities) capabilities() Capabilities {
	return Capabilities{
		Tokenizer:   tc.tokenizer,
		TextEncoder: tc.encoder,
		Denoiser:    tc.denoiser,
		Scheduler:   tc.scheduler,
		Decoder:     tc.decoder,
	}
}

// newTestPipeline builds a pipeline over fresh fakes.
func newTestPipeline(t *testing.T) (*Pipeline, *testCapabilities) {
	t.Helper()
	tc := newTestCapabilities()
	p, err := NewPipeline(tc.capabilities(), nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, tc
}

// constLatents builds a latent tensor of the given shape filled with v.
func constLatents(shape []int, v float32) *tensor.Dense {
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = v
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}
