// Package pipeline orchestrates iterative denoising for a latent
// text-to-image diffusion model: given a text prompt, it drives a
// fixed-step sampling loop that turns random noise into a decoded image,
// optionally under classifier-free guidance, while emitting intermediate
// state for callers to observe progress.
//
// The package implements no neural network, numerical solver, tokenizer,
// or safety classifier of its own. Those are injected capabilities (see
// Capabilities); the pipeline is a pure control layer over them.
//
// # Quick start
//
//	pipe, err := pipeline.NewPipeline(pipeline.Capabilities{
//	    Tokenizer:   tok,
//	    TextEncoder: enc,
//	    Denoiser:    unet,
//	    Scheduler:   sched,
//	    Decoder:     vae,
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	params := pipeline.DefaultParams()
//	params.Prompts = []string{"a sunset over mountains"}
//
//	out, err := pipe.Image(params, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// out.Images is a (batch, h, w, 3) pixel tensor; see the imaging
//	// package for PNG encoding.
//
// # Observing progress
//
// Image drives the loop to completion. For step-by-step control, Generate
// returns a pull-based GenerationStream whose elements are one initial
// state (step -1), one state per denoising step, and exactly one final
// output. The loop suspends between elements; a consumer that stops
// calling Next abandons the run.
//
//	stream, err := pipe.Generate(params)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for stream.Next() {
//	    if st := stream.Event().State; st != nil {
//	        fmt.Println("step", st.Step)
//	    }
//	}
//	if err := stream.Err(); err != nil {
//	    log.Fatal(err)
//	}
//
// Convenience callbacks can also render progress; see ProgressCallback.
//
// # Entry points for precomputed embeddings
//
// GenerateFromEmbeddings and ImageFromEmbeddings skip conditioning and
// latent preparation for callers that already hold an embedding tensor.
// Note that both scale the incoming latents by the scheduler's initial
// noise sigma unconditionally: passing pre-scaled latents double-scales
// them.
//
// # Error handling
//
// Validation failures (dimensions not divisible by 8, latent shape or
// device mismatch) are raised before any network call and wrap the
// package's sentinel errors; check them with errors.Is or
// IsValidationError. Failures from the injected capabilities propagate
// unmodified, with no retry and no partial result.
package pipeline
