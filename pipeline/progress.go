package pipeline

import (
	"io"

	"github.com/fatih/color"
)

// ProgressCallback returns a StreamCallback that renders one line per
// denoising step to w, replacing the progress bar a console frontend would
// show. The initial (step -1) state prints the run header; the final
// output prints a completion line with the image count.
//
// Colors are dropped automatically when w is not a terminal.
func ProgressCallback(w io.Writer, totalSteps int) StreamCallback {
	header := color.New(color.FgCyan, color.Bold)
	stepLine := color.New(color.FgWhite)
	done := color.New(color.FgGreen, color.Bold)

	return func(ev StreamEvent) {
		switch {
		case ev.Output != nil:
			done.Fprintf(w, "done: %d image(s)\n", imageCount(ev.Output))
		case ev.State == nil:
			// nothing to render
		case ev.State.Step < 0:
			header.Fprintf(w, "run %s: %d steps\n", ev.State.RunID, totalSteps)
		default:
			stepLine.Fprintf(w, "  step %d/%d (t=%d)\n", ev.State.Step+1, totalSteps, ev.State.Timestep)
		}
	}
}

// imageCount reads the batch dimension of the output images.
func imageCount(out *PipelineOutput) int {
	if out.Images == nil {
		return 0
	}
	shape := out.Images.Shape()
	if len(shape) == 0 {
		return 0
	}
	return shape[0]
}
