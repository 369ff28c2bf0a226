package pipeline

import (
	"errors"
	"testing"
)

func TestStepUnguided(t *testing.T) {
	p, tc := newTestPipeline(t)
	latents := constLatents([]int{1, testChannels, 8, 8}, 1)

	result, err := p.Step(100, latents, 1.0, nil, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if result.PrevSample == nil {
		t.Fatal("no previous sample returned")
	}

	// guidance scale <= 1 must not duplicate the batch
	if len(tc.denoiser.batchSizes) != 1 || tc.denoiser.batchSizes[0] != 1 {
		t.Errorf("denoiser batch sizes = %v, want [1]", tc.denoiser.batchSizes)
	}
}

func TestStepGuidedDoublesBatch(t *testing.T) {
	p, tc := newTestPipeline(t)
	latents := constLatents([]int{2, testChannels, 8, 8}, 1)

	if _, err := p.Step(100, latents, 7.5, nil, nil); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(tc.denoiser.batchSizes) != 1 || tc.denoiser.batchSizes[0] != 4 {
		t.Errorf("denoiser batch sizes = %v, want [4]", tc.denoiser.batchSizes)
	}
}

func TestStepSchedulerReceivesOriginalLatents(t *testing.T) {
	p, _ := newTestPipeline(t)
	latents := constLatents([]int{1, testChannels, 8, 8}, 2)

	result, err := p.Step(100, latents, 7.5, nil, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	// fake scheduler halves the sample, so the previous sample tells us the
	// scheduler saw the undoubled latents
	data := result.PrevSample.Data().([]float32)
	if data[0] != 1 {
		t.Errorf("prev sample element = %v, want 1 (half of original latents)", data[0])
	}
}

func TestStepPredictedOriginal(t *testing.T) {
	p, tc := newTestPipeline(t)
	latents := constLatents([]int{1, testChannels, 8, 8}, 1)

	result, err := p.Step(100, latents, 1.0, nil, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if result.PredictedOriginal != nil {
		t.Error("predicted original should be nil when the scheduler exposes none")
	}

	tc.scheduler.predOriginal = true
	result, err = p.Step(100, latents, 1.0, nil, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if result.PredictedOriginal == nil {
		t.Error("predicted original missing when the scheduler exposes one")
	}
}

func TestStepDenoiserErrorPropagates(t *testing.T) {
	p, tc := newTestPipeline(t)
	boom := errors.New("cuda out of memory")
	tc.denoiser.err = boom

	_, err := p.Step(100, constLatents([]int{1, testChannels, 8, 8}, 1), 1.0, nil, nil)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want denoiser error unmodified", err)
	}
}

func TestStepOptionsPassThrough(t *testing.T) {
	p, tc := newTestPipeline(t)
	opts := map[string]any{"eta": 0.0}

	if _, err := p.Step(100, constLatents([]int{1, testChannels, 8, 8}, 1), 1.0, nil, opts); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(tc.scheduler.stepOpts) != 1 || tc.scheduler.stepOpts[0]["eta"] != 0.0 {
		t.Errorf("scheduler received opts %v, want pass-through of %v", tc.scheduler.stepOpts, opts)
	}
}
